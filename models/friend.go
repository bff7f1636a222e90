package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest - directional proposal of friendship.
// Status moves pending -> accepted or pending -> rejected and never back;
// a cancelled request is deleted outright.
type FriendRequest struct {
	ID             string              `gorm:"primaryKey;size:36" json:"id"`
	SenderID       string              `gorm:"size:36;index:idx_friend_requests_sender_status" json:"sender_id"`
	SenderName     string              `gorm:"size:120" json:"sender_name"`
	SenderPhotoURL string              `gorm:"size:512" json:"sender_photo_url,omitempty"`
	RecipientID    string              `gorm:"size:36;index:idx_friend_requests_recipient_status" json:"recipient_id"`
	Status         FriendRequestStatus `gorm:"size:16;index:idx_friend_requests_sender_status;index:idx_friend_requests_recipient_status" json:"status"`
	// PairKey is the unordered (sender, recipient) pair; unique among pending requests
	PairKey   string    `gorm:"size:80;uniqueIndex:uq_friend_requests_pending_pair,where:status = 'pending'" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (FriendRequest) TableName() string {
	return "friend_requests"
}

func (r *FriendRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.PairKey == "" {
		r.PairKey = PairKey(r.SenderID, r.RecipientID)
	}
	return nil
}

// Friendship - one row per direction, i.e. the friend collection of UserID.
type Friendship struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;uniqueIndex:uq_friendships_pair" json:"user_id"`
	FriendID  string    `gorm:"size:36;uniqueIndex:uq_friendships_pair;index" json:"friend_id"`
	RequestID string    `gorm:"size:36" json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Friendship) TableName() string {
	return "friendships"
}

func (f *Friendship) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// PairKey - order-independent key for two user ids
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}
