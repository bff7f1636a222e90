package services

import (
	"context"
	"fmt"
	"sereno/db"
	"sereno/models"
	"strings"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	orm, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := orm.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return orm
}

func createTestUser(t *testing.T, orm *gorm.DB, displayName string) models.User {
	t.Helper()
	if displayName == "" {
		displayName = gofakeit.Name()
	}
	user := models.User{
		Email:       fmt.Sprintf("%s.%s@sereno.test", strings.ToLower(gofakeit.FirstName()), uuid.NewString()[:8]),
		DisplayName: displayName,
		Password:    "not-a-real-hash",
	}
	require.NoError(t, orm.Create(&user).Error)
	return user
}

func sessionOf(u models.User) Session {
	return SessionOf(&u)
}

// recordingNotifier keeps every notification it receives
type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, *n)
	return nil
}

func (r *recordingNotifier) byType(t models.NotificationType) []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, n := range r.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), "unexpected error: %v", err)
}
