package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message - direct message between two users
type Message struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	ChatID     string     `gorm:"size:80;index:idx_messages_chat_created" json:"chat_id"`
	SenderID   string     `gorm:"size:36;index" json:"sender_id"`
	ReceiverID string     `gorm:"size:36;index" json:"receiver_id"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	IsRead     bool       `gorm:"default:false" json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `gorm:"index:idx_messages_chat_created" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.ChatID == "" {
		m.ChatID = PairKey(m.SenderID, m.ReceiverID)
	}
	return nil
}

type NotificationType string

const (
	NotificationFriendRequest  NotificationType = "friend_request"
	NotificationFriendAccepted NotificationType = "friend_accepted"
	NotificationLike           NotificationType = "like"
	NotificationComment        NotificationType = "comment"
	NotificationMessage        NotificationType = "message"
)

type Notification struct {
	ID          string           `gorm:"primaryKey;size:36" json:"id"`
	RecipientID string           `gorm:"size:36;index:idx_notifications_recipient_created" json:"recipient_id"`
	SenderID    string           `gorm:"size:36" json:"sender_id,omitempty"`
	SenderName  string           `gorm:"size:120" json:"sender_name,omitempty"`
	Type        NotificationType `gorm:"size:32" json:"type"`
	Title       string           `gorm:"size:255" json:"title,omitempty"`
	Message     string           `gorm:"type:text" json:"message"`
	ActionURL   string           `gorm:"size:255" json:"action_url,omitempty"`
	RequestID   string           `gorm:"size:36" json:"request_id,omitempty"`
	PostID      string           `gorm:"size:36" json:"post_id,omitempty"`
	Read        bool             `gorm:"default:false" json:"read"`
	ReadAt      *time.Time       `json:"read_at,omitempty"`
	CreatedAt   time.Time        `gorm:"index:idx_notifications_recipient_created" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
