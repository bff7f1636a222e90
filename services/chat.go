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
	MessagesDefaultLimit = 100
	MaxMessageLength     = 4000
)

// ChatService - direct messages between friends
type ChatService struct {
	db       *gorm.DB
	friends  *FriendStore
	counters *CounterService
	realtime *Realtime
}

func NewChatService(orm *gorm.DB, friends *FriendStore, counters *CounterService, realtime *Realtime) *ChatService {
	return &ChatService{db: orm, friends: friends, counters: counters, realtime: realtime}
}

// Send stores a message from the session user to receiverID; both must be friends
func (cs *ChatService) Send(ctx context.Context, sess Session, receiverID, content string) (*models.Message, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, newError(KindValidation, "message cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, newError(KindValidation, "message is longer than %d characters", MaxMessageLength)
	}
	if receiverID == "" || receiverID == sess.UserID {
		return nil, newError(KindValidation, "pick someone else to talk to")
	}
	friends, err := cs.friends.IsFriend(ctx, sess.UserID, receiverID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, newError(KindForbidden, "you can only message your friends")
	}

	msg := &models.Message{
		SenderID:   sess.UserID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.Write(ctx, cs.db).Create(msg).Error; err != nil {
		err = remoteError("failed to send message", err)
		logrus.WithFields(logrus.Fields{
			"function":    "Send",
			"sender_id":   sess.UserID,
			"receiver_id": receiverID,
			"error":       err.Error(),
		}).Error("Failed to store message")
		return nil, err
	}

	if err := cs.counters.Add(ctx, receiverID, CounterUnreadMessages, 1); err != nil {
		logrus.WithFields(logrus.Fields{"function": "Send", "user_id": receiverID, "error": err.Error()}).
			Warn("Failed to update unread counter")
	}
	cs.realtime.Deliver(ctx, receiverID, "message", msg)
	return msg, nil
}

// Messages returns the conversation between the two users, oldest first
func (cs *ChatService) Messages(ctx context.Context, userID, otherID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = MessagesDefaultLimit
	}
	messages := []models.Message{}
	// newest window first, then flipped
	err := db.Read(ctx, cs.db).
		Where("chat_id = ?", models.PairKey(userID, otherID)).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, remoteError("failed to load messages", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead marks a message as read; only its receiver may do that
func (cs *ChatService) MarkRead(ctx context.Context, sess Session, messageID string) error {
	if err := sess.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(messageID) == "" {
		return newError(KindValidation, "message id is required")
	}
	var msg models.Message
	err := db.Write(ctx, cs.db).Where("id = ?", messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(KindNotFound, "message not found")
	}
	if err != nil {
		return remoteError("failed to load message", err)
	}
	if msg.ReceiverID != sess.UserID {
		return newError(KindForbidden, "only the receiver can mark a message as read")
	}
	if msg.IsRead {
		return nil
	}
	now := time.Now().UTC()
	result := db.Write(ctx, cs.db).Model(&models.Message{}).
		Where("id = ? AND is_read = ?", msg.ID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if result.Error != nil {
		return remoteError("failed to mark message as read", result.Error)
	}
	if result.RowsAffected > 0 {
		if err := cs.counters.Add(ctx, sess.UserID, CounterUnreadMessages, -1); err != nil {
			logrus.WithFields(logrus.Fields{"function": "MarkRead", "user_id": sess.UserID, "error": err.Error()}).
				Warn("Failed to update unread counter")
		}
	}
	return nil
}
