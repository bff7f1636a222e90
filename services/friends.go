package services

import (
	"context"
	"errors"
	"fmt"
	"sereno/db"
	"sereno/models"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SearchLimit bounds the result list of SearchUsers
const SearchLimit = 10

// Notifier receives notifications produced by store operations
type Notifier interface {
	Notify(ctx context.Context, notification *models.Notification) error
}

// RequestLookup - answer of HasSentFriendRequest/HasReceivedFriendRequest
type RequestLookup struct {
	Exists    bool   `json:"exists"`
	RequestID string `json:"request_id,omitempty"`
}

// FriendProfile - friend with presence annotation
type FriendProfile struct {
	models.UserProfile
	Online       bool      `json:"online"`
	Presence     string    `json:"presence"`
	FriendsSince time.Time `json:"friends_since"`
}

// FriendStore is the only place that reads and mutates friend requests and friendships
type FriendStore struct {
	db       *gorm.DB
	notifier Notifier
	counters *CounterService
	feed     *FeedCache
	now      func() time.Time
}

type FriendStoreOption func(*FriendStore)

func WithNotifier(n Notifier) FriendStoreOption {
	return func(fs *FriendStore) { fs.notifier = n }
}

func WithCounters(c *CounterService) FriendStoreOption {
	return func(fs *FriendStore) { fs.counters = c }
}

// WithFeedCache drops cached feeds when friendships change
func WithFeedCache(fc *FeedCache) FriendStoreOption {
	return func(fs *FriendStore) { fs.feed = fc }
}

func WithClock(now func() time.Time) FriendStoreOption {
	return func(fs *FriendStore) { fs.now = now }
}

func NewFriendStore(orm *gorm.DB, opts ...FriendStoreOption) *FriendStore {
	fs := &FriendStore{db: orm, now: time.Now}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// SendFriendRequest creates a pending request from the session user to recipientID
func (fs *FriendStore) SendFriendRequest(ctx context.Context, sess Session, recipientID string) (*models.FriendRequest, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return nil, newError(KindValidation, "recipient is required")
	}
	if recipientID == sess.UserID {
		return nil, newError(KindValidation, "you cannot send a friend request to yourself")
	}

	now := fs.now()
	request := &models.FriendRequest{
		SenderID:       sess.UserID,
		SenderName:     sess.name(),
		SenderPhotoURL: sess.PhotoURL,
		RecipientID:    recipientID,
		Status:         models.FriendRequestPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recipients int64
		if err := tx.Model(&models.User{}).Where("id = ?", recipientID).Count(&recipients).Error; err != nil {
			return remoteError("failed to check recipient", err)
		}
		if recipients == 0 {
			return newError(KindNotFound, "user not found")
		}

		friends, err := isFriend(tx, sess.UserID, recipientID)
		if err != nil {
			return remoteError("failed to check friendship", err)
		}
		if friends {
			return newError(KindAlreadyFriends, "you are already friends with this user")
		}

		var pending []models.FriendRequest
		err = tx.Where("pair_key = ? AND status = ?", models.PairKey(sess.UserID, recipientID), models.FriendRequestPending).
			Find(&pending).Error
		if err != nil {
			return remoteError("failed to check pending requests", err)
		}
		if len(pending) > 0 {
			if pending[0].SenderID == sess.UserID {
				return newError(KindDuplicate, "you already sent a friend request to this user")
			}
			return newError(KindDuplicate, "this user already sent you a friend request, check your requests")
		}

		if err := tx.Create(request).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newError(KindDuplicate, "a friend request between you is already pending")
			}
			return remoteError("failed to create friend request", err)
		}
		return nil
	})
	if err != nil {
		fs.logFailure("SendFriendRequest", err, logrus.Fields{"sender_id": sess.UserID, "recipient_id": recipientID})
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":     "SendFriendRequest",
		"request_id":   request.ID,
		"sender_id":    request.SenderID,
		"recipient_id": request.RecipientID,
	}).Info("Friend request sent")

	fs.bumpCounter(ctx, recipientID, 1)
	fs.notify(ctx, &models.Notification{
		RecipientID: recipientID,
		SenderID:    sess.UserID,
		SenderName:  request.SenderName,
		Type:        models.NotificationFriendRequest,
		Title:       "New friend request",
		Message:     fmt.Sprintf("%s sent you a friend request.", request.SenderName),
		ActionURL:   "/profile/" + sess.UserID,
		RequestID:   request.ID,
	})
	return request, nil
}

// CancelFriendRequest deletes a pending request; only its sender may do that
func (fs *FriendStore) CancelFriendRequest(ctx context.Context, sess Session, requestID string) error {
	if err := sess.validate(); err != nil {
		return err
	}
	var request models.FriendRequest
	err := fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadRequest(tx, requestID, &request); err != nil {
			return err
		}
		if request.SenderID != sess.UserID {
			return newError(KindForbidden, "you can only cancel friend requests you sent")
		}
		if request.Status != models.FriendRequestPending {
			return newError(KindAlreadyResolved, "this friend request is no longer pending")
		}
		result := tx.Where("id = ? AND status = ?", request.ID, models.FriendRequestPending).Delete(&models.FriendRequest{})
		if result.Error != nil {
			return remoteError("failed to cancel friend request", result.Error)
		}
		if result.RowsAffected == 0 {
			return newError(KindAlreadyResolved, "this friend request is no longer pending")
		}
		return nil
	})
	if err != nil {
		fs.logFailure("CancelFriendRequest", err, logrus.Fields{"request_id": requestID, "user_id": sess.UserID})
		return err
	}
	fs.bumpCounter(ctx, request.RecipientID, -1)
	return nil
}

// AcceptFriendRequest resolves the request and writes both friend rows in one transaction
func (fs *FriendStore) AcceptFriendRequest(ctx context.Context, sess Session, requestID string) error {
	if err := sess.validate(); err != nil {
		return err
	}
	var request models.FriendRequest
	err := fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := fs.resolve(tx, sess, requestID, models.FriendRequestAccepted, &request); err != nil {
			return err
		}
		now := fs.now()
		rows := []models.Friendship{
			{UserID: request.SenderID, FriendID: request.RecipientID, RequestID: request.ID, CreatedAt: now},
			{UserID: request.RecipientID, FriendID: request.SenderID, RequestID: request.ID, CreatedAt: now},
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return remoteError("failed to store friendship", err)
		}
		return nil
	})
	if err != nil {
		fs.logFailure("AcceptFriendRequest", err, logrus.Fields{"request_id": requestID, "user_id": sess.UserID})
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":     "AcceptFriendRequest",
		"request_id":   request.ID,
		"sender_id":    request.SenderID,
		"recipient_id": request.RecipientID,
	}).Info("Friend request accepted")

	fs.bumpCounter(ctx, request.RecipientID, -1)
	fs.feed.Invalidate(ctx, request.SenderID)
	fs.feed.Invalidate(ctx, request.RecipientID)
	fs.notify(ctx, &models.Notification{
		RecipientID: request.SenderID,
		SenderID:    sess.UserID,
		SenderName:  sess.name(),
		Type:        models.NotificationFriendAccepted,
		Title:       "Friend request accepted",
		Message:     fmt.Sprintf("%s accepted your friend request.", sess.name()),
		ActionURL:   "/profile/" + sess.UserID,
		RequestID:   request.ID,
	})
	return nil
}

// RejectFriendRequest marks the request rejected and keeps it as audit trail
func (fs *FriendStore) RejectFriendRequest(ctx context.Context, sess Session, requestID string) error {
	if err := sess.validate(); err != nil {
		return err
	}
	var request models.FriendRequest
	err := fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fs.resolve(tx, sess, requestID, models.FriendRequestRejected, &request)
	})
	if err != nil {
		fs.logFailure("RejectFriendRequest", err, logrus.Fields{"request_id": requestID, "user_id": sess.UserID})
		return err
	}
	fs.bumpCounter(ctx, request.RecipientID, -1)
	return nil
}

// resolve moves a pending request addressed to the session user into status
func (fs *FriendStore) resolve(tx *gorm.DB, sess Session, requestID string, status models.FriendRequestStatus, request *models.FriendRequest) error {
	if err := loadRequest(tx, requestID, request); err != nil {
		return err
	}
	if request.RecipientID != sess.UserID {
		return newError(KindForbidden, "you are not allowed to answer this friend request")
	}
	if request.Status != models.FriendRequestPending {
		return newError(KindAlreadyResolved, "this friend request is no longer pending")
	}

	now := fs.now()
	result := tx.Model(&models.FriendRequest{}).
		Where("id = ? AND status = ?", request.ID, models.FriendRequestPending).
		Updates(map[string]interface{}{"status": status, "updated_at": now})
	if result.Error != nil {
		return remoteError("failed to update friend request", result.Error)
	}
	if result.RowsAffected == 0 {
		return newError(KindAlreadyResolved, "this friend request is no longer pending")
	}
	request.Status = status
	request.UpdatedAt = now
	return nil
}

// RemoveFriend deletes the friendship in both directions
func (fs *FriendStore) RemoveFriend(ctx context.Context, sess Session, friendID string) error {
	if err := sess.validate(); err != nil {
		return err
	}
	err := fs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where(
			"(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)",
			sess.UserID, friendID, friendID, sess.UserID,
		).Delete(&models.Friendship{})
		if result.Error != nil {
			return remoteError("failed to remove friend", result.Error)
		}
		if result.RowsAffected == 0 {
			return newError(KindNotFound, "you are not friends with this user")
		}
		return nil
	})
	if err != nil {
		fs.logFailure("RemoveFriend", err, logrus.Fields{"user_id": sess.UserID, "friend_id": friendID})
		return err
	}
	fs.feed.Invalidate(ctx, sess.UserID)
	fs.feed.Invalidate(ctx, friendID)
	return nil
}

// IsFriend reports whether b is in a's friend collection
func (fs *FriendStore) IsFriend(ctx context.Context, userA, userB string) (bool, error) {
	if userA == "" || userB == "" || userA == userB {
		return false, nil
	}
	ok, err := isFriend(db.Read(ctx, fs.db), userA, userB)
	if err != nil {
		err = remoteError("failed to check friendship", err)
		fs.logFailure("IsFriend", err, logrus.Fields{"user_a": userA, "user_b": userB})
		return false, err
	}
	return ok, nil
}

// HasSentFriendRequest looks for a pending request from fromID to toID
func (fs *FriendStore) HasSentFriendRequest(ctx context.Context, fromID, toID string) (RequestLookup, error) {
	return fs.findPending(ctx, "HasSentFriendRequest", fromID, toID)
}

// HasReceivedFriendRequest answers "did fromID ask toID", seen from toID
func (fs *FriendStore) HasReceivedFriendRequest(ctx context.Context, fromID, toID string) (RequestLookup, error) {
	return fs.findPending(ctx, "HasReceivedFriendRequest", fromID, toID)
}

func (fs *FriendStore) findPending(ctx context.Context, function, fromID, toID string) (RequestLookup, error) {
	if fromID == "" || toID == "" {
		return RequestLookup{}, nil
	}
	var requests []models.FriendRequest
	err := db.Read(ctx, fs.db).
		Where("sender_id = ? AND recipient_id = ? AND status = ?", fromID, toID, models.FriendRequestPending).
		Order("created_at DESC").
		Limit(1).
		Find(&requests).Error
	if err != nil {
		err = remoteError("failed to look up friend request", err)
		fs.logFailure(function, err, logrus.Fields{"from_id": fromID, "to_id": toID})
		return RequestLookup{}, err
	}
	if len(requests) == 0 {
		return RequestLookup{}, nil
	}
	return RequestLookup{Exists: true, RequestID: requests[0].ID}, nil
}

// GetPendingFriendRequests returns requests addressed to userID, most recent first
func (fs *FriendStore) GetPendingFriendRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	return fs.listPending(ctx, "GetPendingFriendRequests", "recipient_id", userID)
}

// GetSentFriendRequests returns pending requests sent by userID, most recent first
func (fs *FriendStore) GetSentFriendRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	return fs.listPending(ctx, "GetSentFriendRequests", "sender_id", userID)
}

func (fs *FriendStore) listPending(ctx context.Context, function, column, userID string) ([]models.FriendRequest, error) {
	requests := []models.FriendRequest{}
	err := db.Read(ctx, fs.db).
		Where(column+" = ? AND status = ?", userID, models.FriendRequestPending).
		Order("created_at DESC").
		Order("id DESC").
		Find(&requests).Error
	if err != nil {
		err = remoteError("failed to load friend requests", err)
		fs.logFailure(function, err, logrus.Fields{"user_id": userID})
		return nil, err
	}
	return requests, nil
}

// SyncRequestCounter rewrites the friend request badge of userID from the database
func (fs *FriendStore) SyncRequestCounter(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := db.Read(ctx, fs.db).Model(&models.FriendRequest{}).
		Where("recipient_id = ? AND status = ?", userID, models.FriendRequestPending).
		Count(&count).Error
	if err != nil {
		return 0, remoteError("failed to count friend requests", err)
	}
	if err := fs.counters.Set(ctx, userID, CounterFriendRequests, count); err != nil {
		return count, remoteError("failed to store friend request counter", err)
	}
	return count, nil
}

// GetFriends returns the friend profiles of userID with presence labels
func (fs *FriendStore) GetFriends(ctx context.Context, userID string) ([]FriendProfile, error) {
	type friendRow struct {
		models.User
		FriendsSince time.Time
	}
	var rows []friendRow
	err := db.Read(ctx, fs.db).
		Table("friendships f").
		Select("u.*, f.created_at AS friends_since").
		Joins("JOIN users u ON u.id = f.friend_id").
		Where("f.user_id = ?", userID).
		Order("u.display_name ASC").
		Scan(&rows).Error
	if err != nil {
		err = remoteError("failed to load friends", err)
		fs.logFailure("GetFriends", err, logrus.Fields{"user_id": userID})
		return nil, err
	}

	now := fs.now()
	friends := make([]FriendProfile, 0, len(rows))
	for i := range rows {
		online, presence := PresenceLabel(rows[i].LastSeen, now)
		friends = append(friends, FriendProfile{
			UserProfile:  rows[i].User.Profile(),
			Online:       online,
			Presence:     presence,
			FriendsSince: rows[i].FriendsSince,
		})
	}
	return friends, nil
}

// SearchUsers - case-insensitive substring match over display name and username
func (fs *FriendStore) SearchUsers(ctx context.Context, term, excludeUserID string) ([]models.UserProfile, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []models.UserProfile{}, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"

	var users []models.User
	err := db.Read(ctx, fs.db).
		Where("(LOWER(display_name) LIKE ? ESCAPE '\\' OR LOWER(username) LIKE ? ESCAPE '\\') AND id <> ?", pattern, pattern, excludeUserID).
		Order("display_name ASC").
		Limit(SearchLimit).
		Find(&users).Error
	if err != nil {
		err = remoteError("failed to search users", err)
		fs.logFailure("SearchUsers", err, logrus.Fields{"term": term})
		return nil, err
	}

	profiles := make([]models.UserProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Profile())
	}
	return profiles, nil
}

// PresenceLabel renders last-seen the way the friends list shows it
func PresenceLabel(lastSeen *time.Time, now time.Time) (bool, string) {
	if lastSeen == nil || lastSeen.IsZero() {
		return false, "offline"
	}
	diff := now.Sub(*lastSeen)
	if diff < 0 {
		diff = 0
	}
	switch {
	case diff < time.Minute:
		return true, "online now"
	case diff < time.Hour:
		return false, pluralize(int(diff/time.Minute), "minute")
	case diff < 24*time.Hour:
		return false, pluralize(int(diff/time.Hour), "hour")
	default:
		return false, "seen on " + lastSeen.Format("2006-01-02")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("seen 1 %s ago", unit)
	}
	return fmt.Sprintf("seen %d %ss ago", n, unit)
}

func isFriend(tx *gorm.DB, userA, userB string) (bool, error) {
	var count int64
	err := tx.Model(&models.Friendship{}).
		Where("user_id = ? AND friend_id = ?", userA, userB).
		Count(&count).Error
	return count > 0, err
}

func loadRequest(tx *gorm.DB, requestID string, request *models.FriendRequest) error {
	if strings.TrimSpace(requestID) == "" {
		return newError(KindValidation, "friend request id is required")
	}
	err := tx.Where("id = ?", requestID).First(request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(KindNotFound, "friend request not found")
	}
	if err != nil {
		return remoteError("failed to load friend request", err)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (fs *FriendStore) bumpCounter(ctx context.Context, userID string, delta int64) {
	if err := fs.counters.Add(ctx, userID, CounterFriendRequests, delta); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "bumpCounter",
			"user_id":  userID,
			"error":    err.Error(),
		}).Warn("Failed to update friend request counter")
	}
}

func (fs *FriendStore) notify(ctx context.Context, n *models.Notification) {
	if fs.notifier == nil {
		return
	}
	if err := fs.notifier.Notify(ctx, n); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "notify",
			"recipient_id": n.RecipientID,
			"type":         n.Type,
			"error":        err.Error(),
		}).Warn("Failed to deliver notification")
	}
}

func (fs *FriendStore) logFailure(function string, err error, fields logrus.Fields) {
	fields["function"] = function
	fields["kind"] = KindOf(err)
	fields["error"] = err.Error()
	entry := logrus.WithFields(fields)
	if KindOf(err) == KindRemote {
		entry.Error("Friend store operation failed")
		return
	}
	entry.Debug("Friend store operation refused")
}
