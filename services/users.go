package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/mail"
	"sereno/db"
	"sereno/models"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"
	"gorm.io/gorm"
)

const minPasswordLength = 8

// RegisterInput - fields accepted at sign up
type RegisterInput struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
	Username    string `json:"username"`
}

// ProfilePatch - nil fields are left untouched
type ProfilePatch struct {
	DisplayName *string `json:"display_name"`
	Username    *string `json:"username"`
	PhotoURL    *string `json:"photo_url"`
	Bio         *string `json:"bio"`
	Location    *string `json:"location"`
}

type UserService struct {
	db     *gorm.DB
	tokens *TokenIssuer
}

func NewUserService(orm *gorm.DB, tokens *TokenIssuer) *UserService {
	return &UserService{db: orm, tokens: tokens}
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(hash), nil
}

func checkPassword(stored, password string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 2 {
		return false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(hash, want) == 1
}

// Register creates an account with an argon2id password hash
func (us *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, newError(KindValidation, "a valid email is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, newError(KindValidation, "password must be at least %d characters", minPasswordLength)
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, newError(KindValidation, "display name is required")
	}

	user := &models.User{Email: email, DisplayName: name, Role: models.RoleClient}
	if username := strings.TrimSpace(in.Username); username != "" {
		user.Username = &username
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, remoteError("failed to hash password", err)
	}
	user.Password = hash

	err = db.Write(ctx, us.db).Transaction(func(tx *gorm.DB) error {
		var exists int64
		query := tx.Model(&models.User{}).Where("email = ?", email)
		if user.Username != nil {
			query = query.Or("username = ?", *user.Username)
		}
		if err := query.Count(&exists).Error; err != nil {
			return remoteError("failed to check existing users", err)
		}
		if exists > 0 {
			return newError(KindDuplicate, "an account with this email or username already exists")
		}
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newError(KindDuplicate, "an account with this email or username already exists")
			}
			return remoteError("failed to create user", err)
		}
		return nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Register",
			"email":    email,
			"kind":     KindOf(err),
		}).Warn("Registration failed")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"function": "Register", "user_id": user.ID}).Info("User registered")
	return user, nil
}

// Login checks the password and issues a session token
func (us *UserService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", nil, newError(KindValidation, "email and password are required")
	}
	var user models.User
	err := db.Write(ctx, us.db).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, newError(KindValidation, "invalid email or password")
	}
	if err != nil {
		return "", nil, remoteError("failed to load user", err)
	}
	if !checkPassword(user.Password, password) {
		return "", nil, newError(KindValidation, "invalid email or password")
	}

	token, err := us.IssueToken(&user)
	if err != nil {
		return "", nil, err
	}
	us.TouchLastSeen(ctx, user.ID)
	return token, &user, nil
}

func (us *UserService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newError(KindValidation, "user id is required")
	}
	var user models.User
	err := db.Read(ctx, us.db).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "user not found")
	}
	if err != nil {
		return nil, remoteError("failed to load user", err)
	}
	return &user, nil
}

// UpdateProfile applies the non-nil fields of patch to the session user
func (us *UserService) UpdateProfile(ctx context.Context, sess Session, patch ProfilePatch) (*models.User, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" {
			return nil, newError(KindValidation, "display name cannot be empty")
		}
		updates["display_name"] = name
	}
	if patch.Username != nil {
		username := strings.TrimSpace(*patch.Username)
		if username == "" {
			updates["username"] = nil
		} else {
			updates["username"] = username
		}
	}
	if patch.PhotoURL != nil {
		updates["photo_url"] = strings.TrimSpace(*patch.PhotoURL)
	}
	if patch.Bio != nil {
		updates["bio"] = *patch.Bio
	}
	if patch.Location != nil {
		updates["location"] = strings.TrimSpace(*patch.Location)
	}

	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		result := db.Write(ctx, us.db).Model(&models.User{}).Where("id = ?", sess.UserID).Updates(updates)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return nil, newError(KindDuplicate, "this username is already taken")
			}
			return nil, remoteError("failed to update profile", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, newError(KindNotFound, "user not found")
		}
	}
	return us.GetProfile(ctx, sess.UserID)
}

// IssueToken signs a session token carrying the user's current profile
func (us *UserService) IssueToken(user *models.User) (string, error) {
	token, err := us.tokens.Issue(SessionOf(user))
	if err != nil {
		return "", remoteError("failed to issue token", err)
	}
	return token, nil
}

// ResolveSession replaces the identity carried by a token with the stored profile.
// Names and photos written into requests, posts and notifications must follow profile edits.
func (us *UserService) ResolveSession(ctx context.Context, sess Session) (Session, error) {
	user, err := us.GetProfile(ctx, sess.UserID)
	if err != nil {
		return Session{}, err
	}
	return SessionOf(user), nil
}

// TouchLastSeen records activity of userID; failures are only logged
func (us *UserService) TouchLastSeen(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	err := db.Write(ctx, us.db).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_seen", time.Now().UTC()).Error
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "TouchLastSeen",
			"user_id":  userID,
			"error":    err.Error(),
		}).Warn("Failed to update last seen")
	}
}
