package services

import (
	"context"
	"sereno/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService(t *testing.T) {
	orm := newTestDB(t)
	ns := NewNotificationService(orm, nil, nil)
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")

	_, err := ns.Create(ctx, &models.Notification{Message: "nobody"})
	requireKind(t, err, KindValidation)

	_, err = ns.Create(ctx, &models.Notification{RecipientID: alice.ID, SenderID: alice.ID, Message: "me"})
	requireKind(t, err, KindValidation)

	var ids []string
	for i := 0; i < 3; i++ {
		n, err := ns.Create(ctx, &models.Notification{
			RecipientID: alice.ID,
			SenderID:    bob.ID,
			Type:        models.NotificationLike,
			Message:     "Bob liked your post.",
		})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	list, err := ns.List(ctx, alice.ID, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	unread, err := ns.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	err = ns.MarkRead(ctx, sessionOf(bob), ids[0])
	requireKind(t, err, KindForbidden)

	err = ns.MarkRead(ctx, sessionOf(alice), "missing")
	requireKind(t, err, KindNotFound)

	require.NoError(t, ns.MarkRead(ctx, sessionOf(alice), ids[0]))
	require.NoError(t, ns.MarkRead(ctx, sessionOf(alice), ids[0]))

	unread, err = ns.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	updated, err := ns.MarkAllRead(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	require.NoError(t, ns.Delete(ctx, sessionOf(alice), ids[1]))
	list, err = ns.List(ctx, alice.ID, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	cleared, err := ns.ClearAll(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cleared)
}

func TestFriendStoreNotifiesThroughService(t *testing.T) {
	orm := newTestDB(t)
	ns := NewNotificationService(orm, nil, nil)
	store := NewFriendStore(orm, WithNotifier(ns))
	ctx := context.Background()

	alice := createTestUser(t, orm, "Alice")
	bob := createTestUser(t, orm, "Bob")

	request, err := store.SendFriendRequest(ctx, sessionOf(alice), bob.ID)
	require.NoError(t, err)

	list, err := ns.List(ctx, bob.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotificationFriendRequest, list[0].Type)
	assert.Equal(t, request.ID, list[0].RequestID)
	assert.Equal(t, "Alice sent you a friend request.", list[0].Message)
}
