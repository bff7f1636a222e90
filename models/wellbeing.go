package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MoodEntry - a point of the mood tracker
type MoodEntry struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     string    `gorm:"size:36;index:idx_mood_entries_user_recorded" json:"user_id"`
	Emoji      string    `gorm:"size:16" json:"emoji"`
	Label      string    `gorm:"size:60" json:"label"`
	Intensity  int       `json:"intensity"`
	Notes      string    `gorm:"type:text" json:"notes,omitempty"`
	Activities []string  `gorm:"serializer:json" json:"activities"`
	RecordedAt time.Time `gorm:"index:idx_mood_entries_user_recorded" json:"recorded_at"`
}

func (MoodEntry) TableName() string {
	return "mood_entries"
}

func (m *MoodEntry) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// DiaryEntry - private diary page, visible only to its owner
type DiaryEntry struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;index:idx_diary_entries_user_created" json:"user_id"`
	Title     string    `gorm:"size:255" json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	Mood      Mood      `gorm:"embedded;embeddedPrefix:mood_" json:"mood"`
	Tags      []string  `gorm:"serializer:json" json:"tags"`
	CreatedAt time.Time `gorm:"index:idx_diary_entries_user_created" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DiaryEntry) TableName() string {
	return "diary_entries"
}

func (d *DiaryEntry) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// Group - community group
type Group struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:120" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"size:60;index" json:"category"`
	Icon        string    `gorm:"size:32" json:"icon,omitempty"`
	Color       string    `gorm:"size:32" json:"color,omitempty"`
	CreatorID   string    `gorm:"size:36" json:"creator_id"`
	IsPrivate   bool      `json:"is_private"`
	Rules       []string  `gorm:"serializer:json" json:"rules"`
	MemberCount int64     `gorm:"not null;default:0" json:"member_count"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Group) TableName() string {
	return "community_groups"
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

type GroupMember struct {
	GroupID   string    `gorm:"primaryKey;size:36" json:"group_id"`
	UserID    string    `gorm:"primaryKey;size:36;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (GroupMember) TableName() string {
	return "group_members"
}
