package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleClient       Role = "client"
	RolePsychologist Role = "psychologist"
	RoleAdmin        Role = "admin"
)

type User struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Email       string     `gorm:"size:255;uniqueIndex" json:"email"`
	DisplayName string     `gorm:"size:120;index" json:"display_name"`
	Username    *string    `gorm:"size:60;uniqueIndex" json:"username,omitempty"`
	PhotoURL    string     `gorm:"size:512" json:"photo_url,omitempty"`
	Bio         string     `gorm:"type:text" json:"bio,omitempty"`
	Location    string     `gorm:"size:255" json:"location,omitempty"`
	Role        Role       `gorm:"size:20;default:client" json:"role"`
	Password    string     `gorm:"size:255" json:"-"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Profile - public projection of a user
func (u *User) Profile() UserProfile {
	profile := UserProfile{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		LastSeen:    u.LastSeen,
	}
	if u.Username != nil {
		profile.Username = *u.Username
	}
	return profile
}

// UserProfile is what other users get to see.
type UserProfile struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Username    string     `json:"username,omitempty"`
	PhotoURL    string     `json:"photo_url,omitempty"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
}
