package services

import (
	"sereno/models"
	"strings"
)

// Session - identity of the caller, passed explicitly to every mutating call
type Session struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// SessionOf builds the session of a stored user
func SessionOf(user *models.User) Session {
	return Session{UserID: user.ID, DisplayName: user.DisplayName, PhotoURL: user.PhotoURL}
}

func (s Session) validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return newError(KindValidation, "you need to be signed in")
	}
	return nil
}

func (s Session) name() string {
	if s.DisplayName == "" {
		return "A Sereno user"
	}
	return s.DisplayName
}
