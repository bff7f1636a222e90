package services

import (
	"context"
	"math"
	"sereno/db"
	"sereno/models"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	MoodPeriodWeek  = "week"
	MoodPeriodMonth = "month"
)

// MoodInput - a mood tracker entry as submitted by the user
type MoodInput struct {
	Emoji      string   `json:"emoji"`
	Label      string   `json:"label"`
	Intensity  int      `json:"intensity"`
	Notes      string   `json:"notes"`
	Activities []string `json:"activities"`
}

// MoodStats - aggregate over a period
type MoodStats struct {
	Period       string             `json:"period"`
	TotalEntries int                `json:"total_entries"`
	AverageMood  float64            `json:"average_mood"`
	Moods        []models.MoodEntry `json:"moods"`
}

type MoodService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMoodService(orm *gorm.DB) *MoodService {
	return &MoodService{db: orm, now: time.Now}
}

// RecordMood stores a mood entry with intensity 1..10
func (ms *MoodService) RecordMood(ctx context.Context, sess Session, in MoodInput) (*models.MoodEntry, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	if in.Intensity < 1 || in.Intensity > 10 {
		return nil, newError(KindValidation, "intensity must be between 1 and 10")
	}
	if strings.TrimSpace(in.Label) == "" && strings.TrimSpace(in.Emoji) == "" {
		return nil, newError(KindValidation, "pick a mood first")
	}
	entry := &models.MoodEntry{
		UserID:     sess.UserID,
		Emoji:      strings.TrimSpace(in.Emoji),
		Label:      strings.TrimSpace(in.Label),
		Intensity:  in.Intensity,
		Notes:      strings.TrimSpace(in.Notes),
		Activities: normalizeTags(in.Activities),
		RecordedAt: ms.now().UTC(),
	}
	if err := db.Write(ctx, ms.db).Create(entry).Error; err != nil {
		return nil, remoteError("failed to record mood", err)
	}
	return entry, nil
}

// History returns entries of the last days, newest first
func (ms *MoodService) History(ctx context.Context, userID string, days int) ([]models.MoodEntry, error) {
	if days <= 0 {
		days = 30
	}
	since := ms.now().UTC().AddDate(0, 0, -days)
	entries := []models.MoodEntry{}
	err := db.Read(ctx, ms.db).
		Where("user_id = ? AND recorded_at > ?", userID, since).
		Order("recorded_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, remoteError("failed to load mood history", err)
	}
	return entries, nil
}

// Stats averages intensity over the last week or month, rounded to one decimal
func (ms *MoodService) Stats(ctx context.Context, userID, period string) (*MoodStats, error) {
	var days int
	switch period {
	case "", MoodPeriodWeek:
		period, days = MoodPeriodWeek, 7
	case MoodPeriodMonth:
		days = 30
	default:
		return nil, newError(KindValidation, "period must be week or month")
	}

	entries, err := ms.History(ctx, userID, days)
	if err != nil {
		return nil, err
	}
	stats := &MoodStats{Period: period, TotalEntries: len(entries), Moods: entries}
	if len(entries) > 0 {
		total := 0
		for _, e := range entries {
			total += e.Intensity
		}
		stats.AverageMood = math.Round(float64(total)/float64(len(entries))*10) / 10
	}
	return stats, nil
}
