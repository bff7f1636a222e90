package services

import (
	"context"
	"errors"
	"sereno/db"
	"sereno/models"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const GroupsDefaultLimit = 20

type GroupInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Icon        string   `json:"icon"`
	Color       string   `json:"color"`
	IsPrivate   bool     `json:"is_private"`
	Rules       []string `json:"rules"`
}

// GroupService - community groups and their member sets
type GroupService struct {
	db *gorm.DB
}

func NewGroupService(orm *gorm.DB) *GroupService {
	return &GroupService{db: orm}
}

// Create stores the group with its creator as the first member
func (gs *GroupService) Create(ctx context.Context, sess Session, in GroupInput) (*models.Group, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, newError(KindValidation, "group name is required")
	}
	rules := in.Rules
	if rules == nil {
		rules = []string{}
	}
	now := time.Now().UTC()
	group := &models.Group{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Icon:        in.Icon,
		Color:       in.Color,
		CreatorID:   sess.UserID,
		IsPrivate:   in.IsPrivate,
		Rules:       rules,
		MemberCount: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := db.Write(ctx, gs.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return remoteError("failed to create group", err)
		}
		if err := tx.Create(&models.GroupMember{GroupID: group.ID, UserID: sess.UserID, CreatedAt: now}).Error; err != nil {
			return remoteError("failed to add group creator", err)
		}
		return nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "Create", "user_id": sess.UserID, "error": err.Error()}).
			Error("Failed to create group")
		return nil, err
	}
	return group, nil
}

// List returns the newest groups, optionally of one category
func (gs *GroupService) List(ctx context.Context, category string, limit int) ([]models.Group, error) {
	if limit <= 0 || limit > 100 {
		limit = GroupsDefaultLimit
	}
	query := db.Read(ctx, gs.db)
	if category = strings.TrimSpace(category); category != "" {
		query = query.Where("category = ?", category)
	}
	groups := []models.Group{}
	if err := query.Order("created_at DESC").Limit(limit).Find(&groups).Error; err != nil {
		return nil, remoteError("failed to load groups", err)
	}
	return groups, nil
}

// Join adds the session user; joining twice is a no-op
func (gs *GroupService) Join(ctx context.Context, sess Session, groupID string) (*models.Group, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	var group models.Group
	err := db.Write(ctx, gs.db).Transaction(func(tx *gorm.DB) error {
		if err := loadGroup(tx, groupID, &group); err != nil {
			return err
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.GroupMember{GroupID: group.ID, UserID: sess.UserID, CreatedAt: time.Now().UTC()})
		if result.Error != nil {
			return remoteError("failed to join group", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Model(&models.Group{}).Where("id = ?", group.ID).
			UpdateColumn("member_count", gorm.Expr("member_count + 1")).Error; err != nil {
			return remoteError("failed to join group", err)
		}
		return loadGroup(tx, group.ID, &group)
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// Leave removes the session user; the member count never goes below zero
func (gs *GroupService) Leave(ctx context.Context, sess Session, groupID string) (*models.Group, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	var group models.Group
	err := db.Write(ctx, gs.db).Transaction(func(tx *gorm.DB) error {
		if err := loadGroup(tx, groupID, &group); err != nil {
			return err
		}
		result := tx.Where("group_id = ? AND user_id = ?", group.ID, sess.UserID).Delete(&models.GroupMember{})
		if result.Error != nil {
			return remoteError("failed to leave group", result.Error)
		}
		if result.RowsAffected == 0 {
			return newError(KindNotFound, "you are not a member of this group")
		}
		if err := tx.Model(&models.Group{}).Where("id = ?", group.ID).
			UpdateColumn("member_count", gorm.Expr("CASE WHEN member_count > 0 THEN member_count - 1 ELSE 0 END")).Error; err != nil {
			return remoteError("failed to leave group", err)
		}
		return loadGroup(tx, group.ID, &group)
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (gs *GroupService) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var count int64
	err := db.Read(ctx, gs.db).Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		return false, remoteError("failed to check membership", err)
	}
	return count > 0, nil
}

func loadGroup(tx *gorm.DB, groupID string, group *models.Group) error {
	if strings.TrimSpace(groupID) == "" {
		return newError(KindValidation, "group id is required")
	}
	err := tx.Where("id = ?", groupID).First(group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(KindNotFound, "group not found")
	}
	if err != nil {
		return remoteError("failed to load group", err)
	}
	return nil
}
