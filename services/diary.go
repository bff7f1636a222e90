package services

import (
	"context"
	"errors"
	"sereno/db"
	"sereno/models"
	"strings"
	"time"

	"gorm.io/gorm"
)

const DiaryDefaultLimit = 50

type DiaryInput struct {
	Title   string      `json:"title"`
	Content string      `json:"content"`
	Mood    models.Mood `json:"mood"`
	Tags    []string    `json:"tags"`
}

type DiaryPatch struct {
	Title   *string      `json:"title"`
	Content *string      `json:"content"`
	Mood    *models.Mood `json:"mood"`
	Tags    *[]string    `json:"tags"`
}

// DiaryService - private diary pages, every operation is scoped to the owner
type DiaryService struct {
	db *gorm.DB
}

func NewDiaryService(orm *gorm.DB) *DiaryService {
	return &DiaryService{db: orm}
}

func (ds *DiaryService) Create(ctx context.Context, sess Session, in DiaryInput) (*models.DiaryEntry, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, newError(KindValidation, "diary entry cannot be empty")
	}
	now := time.Now().UTC()
	entry := &models.DiaryEntry{
		UserID:    sess.UserID,
		Title:     strings.TrimSpace(in.Title),
		Content:   content,
		Mood:      in.Mood,
		Tags:      normalizeTags(in.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Write(ctx, ds.db).Create(entry).Error; err != nil {
		return nil, remoteError("failed to create diary entry", err)
	}
	return entry, nil
}

func (ds *DiaryService) List(ctx context.Context, userID string, limit int) ([]models.DiaryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = DiaryDefaultLimit
	}
	entries := []models.DiaryEntry{}
	err := db.Read(ctx, ds.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, remoteError("failed to load diary", err)
	}
	return entries, nil
}

func (ds *DiaryService) Update(ctx context.Context, sess Session, entryID string, patch DiaryPatch) (*models.DiaryEntry, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	var entry models.DiaryEntry
	err := db.Write(ctx, ds.db).Transaction(func(tx *gorm.DB) error {
		if err := ds.owned(tx, sess, entryID, &entry); err != nil {
			return err
		}
		updates := map[string]interface{}{"updated_at": time.Now().UTC()}
		if patch.Title != nil {
			updates["title"] = strings.TrimSpace(*patch.Title)
		}
		if patch.Content != nil {
			content := strings.TrimSpace(*patch.Content)
			if content == "" {
				return newError(KindValidation, "diary entry cannot be empty")
			}
			updates["content"] = content
		}
		if patch.Mood != nil {
			updates["mood_emoji"] = patch.Mood.Emoji
			updates["mood_label"] = patch.Mood.Label
			updates["mood_value"] = patch.Mood.Value
		}
		if patch.Tags != nil {
			updates["tags"] = encodeTags(normalizeTags(*patch.Tags))
		}
		if err := tx.Model(&models.DiaryEntry{}).Where("id = ?", entry.ID).Updates(updates).Error; err != nil {
			return remoteError("failed to update diary entry", err)
		}
		if err := tx.Where("id = ?", entry.ID).First(&entry).Error; err != nil {
			return remoteError("failed to reload diary entry", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (ds *DiaryService) Delete(ctx context.Context, sess Session, entryID string) error {
	if err := sess.validate(); err != nil {
		return err
	}
	return db.Write(ctx, ds.db).Transaction(func(tx *gorm.DB) error {
		var entry models.DiaryEntry
		if err := ds.owned(tx, sess, entryID, &entry); err != nil {
			return err
		}
		if err := tx.Where("id = ?", entry.ID).Delete(&models.DiaryEntry{}).Error; err != nil {
			return remoteError("failed to delete diary entry", err)
		}
		return nil
	})
}

func (ds *DiaryService) owned(tx *gorm.DB, sess Session, entryID string, entry *models.DiaryEntry) error {
	if strings.TrimSpace(entryID) == "" {
		return newError(KindValidation, "diary entry id is required")
	}
	err := tx.Where("id = ?", entryID).First(entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(KindNotFound, "diary entry not found")
	}
	if err != nil {
		return remoteError("failed to load diary entry", err)
	}
	if entry.UserID != sess.UserID {
		return newError(KindForbidden, "this diary entry belongs to another user")
	}
	return nil
}
