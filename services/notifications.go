package services

import (
	"context"
	"errors"
	"sereno/db"
	"sereno/models"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	NotificationsDefaultLimit = 50
	commentPreviewLength      = 50
)

// NotificationService stores notifications and pushes them to the recipient in realtime
type NotificationService struct {
	db       *gorm.DB
	realtime *Realtime
	counters *CounterService
}

func NewNotificationService(orm *gorm.DB, realtime *Realtime, counters *CounterService) *NotificationService {
	return &NotificationService{db: orm, realtime: realtime, counters: counters}
}

// Notify implements Notifier
func (ns *NotificationService) Notify(ctx context.Context, n *models.Notification) error {
	_, err := ns.Create(ctx, n)
	return err
}

// Create stores n, bumps the unread counter and pushes a "notification" event
func (ns *NotificationService) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if n == nil || n.RecipientID == "" {
		return nil, newError(KindValidation, "notification recipient is required")
	}
	if n.SenderID != "" && n.SenderID == n.RecipientID {
		return nil, newError(KindValidation, "users are not notified about their own actions")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if err := db.Write(ctx, ns.db).Create(n).Error; err != nil {
		err = remoteError("failed to store notification", err)
		logrus.WithFields(logrus.Fields{
			"function":     "Create",
			"recipient_id": n.RecipientID,
			"type":         n.Type,
			"error":        err.Error(),
		}).Error("Failed to create notification")
		return nil, err
	}

	if err := ns.counters.Add(ctx, n.RecipientID, CounterNotifications, 1); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "Create",
			"recipient_id": n.RecipientID,
			"error":        err.Error(),
		}).Warn("Failed to update notification counter")
	}
	ns.realtime.Deliver(ctx, n.RecipientID, "notification", n)
	return n, nil
}

// CommentPreview shortens comment text for the notification body
func CommentPreview(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= commentPreviewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:commentPreviewLength]) + "..."
}

// List returns the latest notifications of userID, newest first
func (ns *NotificationService) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = NotificationsDefaultLimit
	}
	notifications := []models.Notification{}
	err := db.Read(ctx, ns.db).
		Where("recipient_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, remoteError("failed to load notifications", err)
	}
	return notifications, nil
}

// UnreadCount counts unread notifications, used to resync the badge counter
func (ns *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := db.Read(ctx, ns.db).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, remoteError("failed to count notifications", err)
	}
	return count, nil
}

// MarkRead marks one notification of the session user as read
func (ns *NotificationService) MarkRead(ctx context.Context, sess Session, notificationID string) error {
	if err := sess.validate(); err != nil {
		return err
	}
	n, err := ns.owned(ctx, sess, notificationID)
	if err != nil {
		return err
	}
	if n.Read {
		return nil
	}
	now := time.Now().UTC()
	err = db.Write(ctx, ns.db).Model(&models.Notification{}).
		Where("id = ?", n.ID).
		Updates(map[string]interface{}{"read": true, "read_at": now}).Error
	if err != nil {
		return remoteError("failed to mark notification as read", err)
	}
	ns.decrement(ctx, sess.UserID, 1)
	return nil
}

// MarkAllRead marks every unread notification of userID as read
func (ns *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	now := time.Now().UTC()
	result := db.Write(ctx, ns.db).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", userID, false).
		Updates(map[string]interface{}{"read": true, "read_at": now})
	if result.Error != nil {
		return 0, remoteError("failed to mark notifications as read", result.Error)
	}
	if err := ns.counters.Set(ctx, userID, CounterNotifications, 0); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "MarkAllRead",
			"user_id":  userID,
			"error":    err.Error(),
		}).Warn("Failed to reset notification counter")
	}
	return result.RowsAffected, nil
}

// Delete removes one notification of the session user
func (ns *NotificationService) Delete(ctx context.Context, sess Session, notificationID string) error {
	if err := sess.validate(); err != nil {
		return err
	}
	n, err := ns.owned(ctx, sess, notificationID)
	if err != nil {
		return err
	}
	if err := db.Write(ctx, ns.db).Delete(&models.Notification{}, "id = ?", n.ID).Error; err != nil {
		return remoteError("failed to delete notification", err)
	}
	if !n.Read {
		ns.decrement(ctx, sess.UserID, 1)
	}
	return nil
}

// ClearAll deletes every notification of userID
func (ns *NotificationService) ClearAll(ctx context.Context, userID string) (int64, error) {
	result := db.Write(ctx, ns.db).Where("recipient_id = ?", userID).Delete(&models.Notification{})
	if result.Error != nil {
		return 0, remoteError("failed to clear notifications", result.Error)
	}
	if err := ns.counters.Set(ctx, userID, CounterNotifications, 0); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "ClearAll",
			"user_id":  userID,
			"error":    err.Error(),
		}).Warn("Failed to reset notification counter")
	}
	return result.RowsAffected, nil
}

func (ns *NotificationService) owned(ctx context.Context, sess Session, notificationID string) (*models.Notification, error) {
	if strings.TrimSpace(notificationID) == "" {
		return nil, newError(KindValidation, "notification id is required")
	}
	var n models.Notification
	err := db.Write(ctx, ns.db).Where("id = ?", notificationID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "notification not found")
	}
	if err != nil {
		return nil, remoteError("failed to load notification", err)
	}
	if n.RecipientID != sess.UserID {
		return nil, newError(KindForbidden, "this notification belongs to another user")
	}
	return &n, nil
}

func (ns *NotificationService) decrement(ctx context.Context, userID string, n int64) {
	if err := ns.counters.Add(ctx, userID, CounterNotifications, -n); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "decrement",
			"user_id":  userID,
			"error":    err.Error(),
		}).Warn("Failed to update notification counter")
	}
}
