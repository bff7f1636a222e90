package services

import (
	"context"
	"errors"
	"sereno/models"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func friendIDsOf(profiles []FriendProfile) []string {
	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestSendFriendRequest(t *testing.T) {
	orm := newTestDB(t)
	notifier := &recordingNotifier{}
	store := NewFriendStore(orm, WithNotifier(notifier))
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")

	request, err := store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FriendRequestPending, request.Status)
	assert.Equal(t, "Alice", request.SenderName)
	assert.NotEmpty(t, request.ID)

	sent, err := store.HasSentFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, sent.Exists)
	assert.Equal(t, request.ID, sent.RequestID)

	received, err := store.HasReceivedFriendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, received.Exists)

	reverse, err := store.HasSentFriendRequest(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, reverse.Exists)

	for _, pair := range [][2]string{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		friends, err := store.IsFriend(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.False(t, friends)
	}

	pending, err := store.GetPendingFriendRequests(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, request.ID, pending[0].ID)

	outgoing, err := store.GetSentFriendRequests(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, outgoing, 1)

	notes := notifier.byType(models.NotificationFriendRequest)
	require.Len(t, notes, 1)
	assert.Equal(t, bob.ID, notes[0].RecipientID)
	assert.Equal(t, request.ID, notes[0].RequestID)
}

func TestSendFriendRequestRefusals(t *testing.T) {
	orm := newTestDB(t)
	store := NewFriendStore(orm)
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")

	_, err := store.SendFriendRequest(ctx, sessionOf(alice), alice.ID)
	requireKind(t, err, KindValidation)

	_, err = store.SendFriendRequest(ctx, sessionOf(alice), "  ")
	requireKind(t, err, KindValidation)

	_, err = store.SendFriendRequest(ctx, Session{}, bob.ID)
	requireKind(t, err, KindValidation)

	_, err = store.SendFriendRequest(ctx, sessionOf(alice), "missing-user")
	requireKind(t, err, KindNotFound)

	_, err = store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)

	_, err = store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	requireKind(t, err, KindDuplicate)
	assert.True(t, errors.Is(err, ErrDuplicate))

	_, err = store.SendFriendRequest(ctx, sessionOf(bob), alice.ID)
	requireKind(t, err, KindDuplicate)
	assert.Contains(t, UserMessage(err), "check your requests")
}

func TestAcceptFriendRequest(t *testing.T) {
	orm := newTestDB(t)
	notifier := &recordingNotifier{}
	store := NewFriendStore(orm, WithNotifier(notifier))
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")

	request, err := store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)

	pending, err := store.GetPendingFriendRequests(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	err = store.AcceptFriendRequest(ctx, sessionOf(alice), request.ID)
	requireKind(t, err, KindForbidden)

	require.NoError(t, store.AcceptFriendRequest(ctx, sessionOf(bob), request.ID))

	for _, pair := range [][2]string{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		friends, err := store.IsFriend(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, friends)
	}

	aliceFriends, err := store.GetFriends(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.ID}, friendIDsOf(aliceFriends))

	bobFriends, err := store.GetFriends(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID}, friendIDsOf(bobFriends))

	pending, err = store.GetPendingFriendRequests(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var stored models.FriendRequest
	require.NoError(t, orm.First(&stored, "id = ?", request.ID).Error)
	assert.Equal(t, models.FriendRequestAccepted, stored.Status)

	err = store.AcceptFriendRequest(ctx, sessionOf(bob), request.ID)
	requireKind(t, err, KindAlreadyResolved)

	err = store.RejectFriendRequest(ctx, sessionOf(bob), request.ID)
	requireKind(t, err, KindAlreadyResolved)

	err = store.AcceptFriendRequest(ctx, sessionOf(bob), "no-such-request")
	requireKind(t, err, KindNotFound)

	accepted := notifier.byType(models.NotificationFriendAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, alice.ID, accepted[0].RecipientID)
}

func TestAcceptFriendRequestRollsBackOnFailure(t *testing.T) {
	orm := newTestDB(t)
	store := NewFriendStore(orm)
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")
	request, err := store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)

	err = orm.Callback().Create().Before("gorm:create").Register("test:fail_friendships", func(tx *gorm.DB) {
		if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "friendships" {
			_ = tx.AddError(errors.New("friendships unavailable"))
		}
	})
	require.NoError(t, err)

	err = store.AcceptFriendRequest(ctx, sessionOf(bob), request.ID)
	requireKind(t, err, KindRemote)

	require.NoError(t, orm.Callback().Create().Remove("test:fail_friendships"))

	for _, pair := range [][2]string{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		friends, err := store.IsFriend(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.False(t, friends)
	}
	var stored models.FriendRequest
	require.NoError(t, orm.First(&stored, "id = ?", request.ID).Error)
	assert.Equal(t, models.FriendRequestPending, stored.Status)

	// the request is still usable once storage recovers
	require.NoError(t, store.AcceptFriendRequest(ctx, sessionOf(bob), request.ID))
	friends, err := store.IsFriend(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, friends)
}

func TestPendingPairIndexRejectsLateInsert(t *testing.T) {
	orm := newTestDB(t)
	store := NewFriendStore(orm)
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")

	// a reverse request lands between the pending check and the insert
	var once sync.Once
	err := orm.Callback().Create().Before("gorm:create").Register("test:concurrent_reverse_request", func(tx *gorm.DB) {
		if tx.Statement.Schema == nil || tx.Statement.Schema.Table != "friend_requests" {
			return
		}
		once.Do(func() {
			now := time.Now().UTC()
			_, err := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
				`INSERT INTO friend_requests (id, sender_id, sender_name, recipient_id, status, pair_key, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), bob.ID, bob.DisplayName, alice.ID, models.FriendRequestPending,
				models.PairKey(alice.ID, bob.ID), now, now)
			if err != nil {
				_ = tx.AddError(err)
			}
		})
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = orm.Callback().Create().Remove("test:concurrent_reverse_request") })

	_, err = store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	requireKind(t, err, KindDuplicate)
	assert.Equal(t, "a friend request between you is already pending", UserMessage(err))

	// the transaction rolled back, the concurrent row with it
	var pending int64
	require.NoError(t, orm.Model(&models.FriendRequest{}).Where("pair_key = ?", models.PairKey(alice.ID, bob.ID)).Count(&pending).Error)
	assert.Zero(t, pending)
}

func TestRejectFriendRequest(t *testing.T) {
	orm := newTestDB(t)
	store := NewFriendStore(orm)
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")
	carol := createTestUser(t, orm, "Carol")

	request, err := store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)

	err = store.RejectFriendRequest(ctx, sessionOf(carol), request.ID)
	requireKind(t, err, KindForbidden)

	require.NoError(t, store.RejectFriendRequest(ctx, sessionOf(bob), request.ID))

	pending, err := store.GetPendingFriendRequests(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	for _, pair := range [][2]string{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		friends, err := store.IsFriend(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.False(t, friends)
	}

	var stored models.FriendRequest
	require.NoError(t, orm.First(&stored, "id = ?", request.ID).Error)
	assert.Equal(t, models.FriendRequestRejected, stored.Status)

	// a rejected request does not block a new one
	again, err := store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)
	assert.NotEqual(t, request.ID, again.ID)
}

func TestCancelFriendRequest(t *testing.T) {
	orm := newTestDB(t)
	store := NewFriendStore(orm)
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")

	request, err := store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)

	err = store.CancelFriendRequest(ctx, sessionOf(bob), request.ID)
	requireKind(t, err, KindForbidden)

	require.NoError(t, store.CancelFriendRequest(ctx, sessionOf(alice), request.ID))

	pending, err := store.GetPendingFriendRequests(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var count int64
	require.NoError(t, orm.Model(&models.FriendRequest{}).Where("id = ?", request.ID).Count(&count).Error)
	assert.Zero(t, count)

	err = store.CancelFriendRequest(ctx, sessionOf(alice), request.ID)
	requireKind(t, err, KindNotFound)

	friends, err := store.IsFriend(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, friends)

	again, err := store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)

	require.NoError(t, store.AcceptFriendRequest(ctx, sessionOf(bob), again.ID))
	err = store.CancelFriendRequest(ctx, sessionOf(alice), again.ID)
	requireKind(t, err, KindAlreadyResolved)
}

func TestSendFriendRequestToFriend(t *testing.T) {
	orm := newTestDB(t)
	store := NewFriendStore(orm)
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")

	request, err := store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)
	require.NoError(t, store.AcceptFriendRequest(ctx, sessionOf(bob), request.ID))

	var before int64
	require.NoError(t, orm.Model(&models.FriendRequest{}).Count(&before).Error)

	_, err = store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	requireKind(t, err, KindAlreadyFriends)
	_, err = store.SendFriendRequest(ctx, sessionOf(bob), alice.ID)
	requireKind(t, err, KindAlreadyFriends)

	var after int64
	require.NoError(t, orm.Model(&models.FriendRequest{}).Count(&after).Error)
	assert.Equal(t, before, after)
}

func TestRemoveFriend(t *testing.T) {
	orm := newTestDB(t)
	store := NewFriendStore(orm)
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")

	request, err := store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)
	require.NoError(t, store.AcceptFriendRequest(ctx, sessionOf(bob), request.ID))

	require.NoError(t, store.RemoveFriend(ctx, sessionOf(bob), alice.ID))

	for _, pair := range [][2]string{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		friends, err := store.IsFriend(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.False(t, friends)
	}

	err = store.RemoveFriend(ctx, sessionOf(bob), alice.ID)
	requireKind(t, err, KindNotFound)

	_, err = store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)
}

func TestPendingRequestsMostRecentFirst(t *testing.T) {
	orm := newTestDB(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	store := NewFriendStore(orm, WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))
	ctx := context.Background()

	recipient := createTestUser(t, orm, "Recipient")
	var senders []models.User
	for i := 0; i < 3; i++ {
		sender := createTestUser(t, orm, "")
		senders = append(senders, sender)
		_, err := store.SendFriendRequest(ctx, sessionOf(sender), recipient.ID)
		require.NoError(t, err)
	}

	pending, err := store.GetPendingFriendRequests(ctx, recipient.ID)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, senders[2].ID, pending[0].SenderID)
	assert.Equal(t, senders[1].ID, pending[1].SenderID)
	assert.Equal(t, senders[0].ID, pending[2].SenderID)
}

func TestCrossRequestsRace(t *testing.T) {
	orm := newTestDB(t)
	store := NewFriendStore(orm)
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pair := range [][2]models.User{{alice, bob}, {bob, alice}} {
		wg.Add(1)
		go func(i int, from, to models.User) {
			defer wg.Done()
			_, errs[i] = store.SendFriendRequest(ctx, sessionOf(from), to.ID)
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireKind(t, err, KindDuplicate)
	}
	assert.Equal(t, 1, succeeded)

	var pending int64
	require.NoError(t, orm.Model(&models.FriendRequest{}).
		Where("pair_key = ? AND status = ?", models.PairKey(alice.ID, bob.ID), models.FriendRequestPending).
		Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}

func TestSearchUsers(t *testing.T) {
	orm := newTestDB(t)
	store := NewFriendStore(orm)
	ctx := context.Background()

	caller := createTestUser(t, orm, "Alice Caller")
	walker := createTestUser(t, orm, "Alice Walker")
	createTestUser(t, orm, "alice cooper")
	handle := createTestUser(t, orm, "Someone Else")
	username := "malice_99"
	require.NoError(t, orm.Model(&handle).Update("username", username).Error)
	createTestUser(t, orm, "Bob")

	results, err := store.SearchUsers(ctx, "ALICE", caller.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, p := range results {
		assert.NotEqual(t, caller.ID, p.ID)
	}

	results, err = store.SearchUsers(ctx, "walk", caller.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, walker.ID, results[0].ID)

	results, err = store.SearchUsers(ctx, "   ", caller.ID)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = store.SearchUsers(ctx, "%", caller.ID)
	require.NoError(t, err)
	assert.Empty(t, results)

	for i := 0; i < SearchLimit+5; i++ {
		createTestUser(t, orm, "Zed "+strings.Repeat("z", i+1))
	}
	results, err = store.SearchUsers(ctx, "zed", caller.ID)
	require.NoError(t, err)
	assert.Len(t, results, SearchLimit)
}

func TestPresenceLabel(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name     string
		lastSeen *time.Time
		online   bool
		label    string
	}{
		{"never seen", nil, false, "offline"},
		{"just now", at(10 * time.Second), true, "online now"},
		{"one minute", at(time.Minute), false, "seen 1 minute ago"},
		{"minutes", at(42 * time.Minute), false, "seen 42 minutes ago"},
		{"hours", at(5 * time.Hour), false, "seen 5 hours ago"},
		{"days", at(72 * time.Hour), false, "seen on 2024-04-28"},
		{"clock skew", at(-time.Minute), true, "online now"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			online, label := PresenceLabel(tt.lastSeen, now)
			assert.Equal(t, tt.online, online)
			assert.Equal(t, tt.label, label)
		})
	}
}

func TestGetFriendsPresence(t *testing.T) {
	orm := newTestDB(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewFriendStore(orm, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")
	carol := createTestUser(t, orm, "Carol")
	require.NoError(t, orm.Model(&bob).Update("last_seen", now.Add(-20*time.Second)).Error)
	require.NoError(t, orm.Model(&carol).Update("last_seen", now.Add(-3*time.Hour)).Error)

	for _, friend := range []models.User{bob, carol} {
		request, err := store.SendFriendRequest(ctx, sessionOf(alice), friend.ID)
		require.NoError(t, err)
		require.NoError(t, store.AcceptFriendRequest(ctx, sessionOf(friend), request.ID))
	}

	friends, err := store.GetFriends(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 2)
	assert.Equal(t, bob.ID, friends[0].ID)
	assert.True(t, friends[0].Online)
	assert.Equal(t, carol.ID, friends[1].ID)
	assert.False(t, friends[1].Online)
	assert.Equal(t, "seen 3 hours ago", friends[1].Presence)
}

func TestSyncRequestCounterWithoutRedis(t *testing.T) {
	orm := newTestDB(t)
	store := NewFriendStore(orm, WithCounters(NewCounterService(nil)))
	ctx := context.Background()

	recipient := createTestUser(t, orm, "Recipient")
	for i := 0; i < 2; i++ {
		_, err := store.SendFriendRequest(ctx, sessionOf(createTestUser(t, orm, "")), recipient.ID)
		require.NoError(t, err)
	}

	count, err := store.SyncRequestCounter(ctx, recipient.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
