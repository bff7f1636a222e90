package services

import (
	"context"
	"sereno/models"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestPostService(orm *gorm.DB, notifier Notifier) *PostService {
	ps := NewPostService(orm, nil, nil, notifier)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	ps.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return ps
}

func makeFriends(t *testing.T, orm *gorm.DB, a, b models.User) {
	t.Helper()
	store := NewFriendStore(orm)
	request, err := store.SendFriendRequest(context.Background(), sessionOf(a), b.ID)
	require.NoError(t, err)
	require.NoError(t, store.AcceptFriendRequest(context.Background(), sessionOf(b), request.ID))
}

func feedIDs(posts []models.FeedPost) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestCreatePost(t *testing.T) {
	orm := newTestDB(t)
	ps := newTestPostService(orm, nil)
	ctx := context.Background()
	author := createTestUser(t, orm, "Author")

	_, err := ps.CreatePost(ctx, sessionOf(author), PostInput{Content: "   "})
	requireKind(t, err, KindValidation)

	_, err = ps.CreatePost(ctx, sessionOf(author), PostInput{Content: "hi", Visibility: "friends-only"})
	requireKind(t, err, KindValidation)

	_, err = ps.CreatePost(ctx, Session{}, PostInput{Content: "hi"})
	requireKind(t, err, KindValidation)

	content := gofakeit.Sentence(8)
	post, err := ps.CreatePost(ctx, sessionOf(author), PostInput{
		Content: "  " + content + "  ",
		Mood:    models.Mood{Emoji: "🙂", Label: "calm", Value: 7},
		Tags:    []string{"#Sleep", "sleep", " ", "gratitude"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, post.ID)
	assert.Equal(t, content, post.Content)
	assert.Equal(t, models.VisibilityPublic, post.Visibility)
	assert.Equal(t, []string{"Sleep", "gratitude"}, post.Tags)
	assert.Zero(t, post.Likes)
	assert.Zero(t, post.Comments)
	assert.Zero(t, post.Shares)
	assert.False(t, post.IsEdited)

	stored, err := ps.GetPost(ctx, post.ID, author.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Tags, stored.Tags)
	assert.Equal(t, "calm", stored.Mood.Label)
}

func TestLikeAndUnlikePost(t *testing.T) {
	orm := newTestDB(t)
	notifier := &recordingNotifier{}
	ps := newTestPostService(orm, notifier)
	ctx := context.Background()

	author := createTestUser(t, orm, "Author")
	fan := createTestUser(t, orm, "Fan")
	post, err := ps.CreatePost(ctx, sessionOf(author), PostInput{Content: "a good day"})
	require.NoError(t, err)

	liked, err := ps.LikePost(ctx, sessionOf(fan), post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), liked.Likes)

	liked, err = ps.LikePost(ctx, sessionOf(fan), post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), liked.Likes, "liking twice counts once")

	has, err := ps.HasLiked(ctx, post.ID, fan.ID)
	require.NoError(t, err)
	assert.True(t, has)

	unliked, err := ps.UnlikePost(ctx, sessionOf(fan), post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unliked.Likes)

	unliked, err = ps.UnlikePost(ctx, sessionOf(fan), post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unliked.Likes)

	_, err = ps.LikePost(ctx, sessionOf(author), post.ID)
	require.NoError(t, err)

	assert.Len(t, notifier.byType(models.NotificationLike), 1, "self likes are not notified")

	_, err = ps.LikePost(ctx, sessionOf(fan), "missing")
	requireKind(t, err, KindNotFound)
}

func TestUnlikePostNeverNegative(t *testing.T) {
	orm := newTestDB(t)
	ps := newTestPostService(orm, nil)
	ctx := context.Background()

	author := createTestUser(t, orm, "Author")
	fan := createTestUser(t, orm, "Fan")
	post, err := ps.CreatePost(ctx, sessionOf(author), PostInput{Content: "counter drift"})
	require.NoError(t, err)

	_, err = ps.LikePost(ctx, sessionOf(fan), post.ID)
	require.NoError(t, err)
	// counter already drifted to zero while the like row survived
	require.NoError(t, orm.Model(&models.Post{}).Where("id = ?", post.ID).UpdateColumn("likes", 0).Error)

	unliked, err := ps.UnlikePost(ctx, sessionOf(fan), post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), unliked.Likes)
}

func TestTogglePostLike(t *testing.T) {
	orm := newTestDB(t)
	ps := newTestPostService(orm, nil)
	ctx := context.Background()

	author := createTestUser(t, orm, "Author")
	fan := createTestUser(t, orm, "Fan")
	post, err := ps.CreatePost(ctx, sessionOf(author), PostInput{Content: "toggle me"})
	require.NoError(t, err)

	updated, liked, err := ps.TogglePostLike(ctx, sessionOf(fan), post.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), updated.Likes)

	updated, liked, err = ps.TogglePostLike(ctx, sessionOf(fan), post.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, int64(0), updated.Likes)
}

func TestUpdatePost(t *testing.T) {
	orm := newTestDB(t)
	ps := newTestPostService(orm, nil)
	ctx := context.Background()

	author := createTestUser(t, orm, "Author")
	other := createTestUser(t, orm, "Other")
	post, err := ps.CreatePost(ctx, sessionOf(author), PostInput{
		Content: "first draft",
		Mood:    models.Mood{Emoji: "😐", Label: "meh", Value: 5},
		Tags:    []string{"drafts"},
	})
	require.NoError(t, err)

	newContent := "second draft"
	_, err = ps.UpdatePost(ctx, sessionOf(other), post.ID, PostPatch{Content: &newContent})
	requireKind(t, err, KindForbidden)

	empty := " "
	_, err = ps.UpdatePost(ctx, sessionOf(author), post.ID, PostPatch{Content: &empty})
	requireKind(t, err, KindValidation)

	tags := []string{"#rewrites", "Rewrites"}
	updated, err := ps.UpdatePost(ctx, sessionOf(author), post.ID, PostPatch{Content: &newContent, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, newContent, updated.Content)
	assert.Equal(t, []string{"rewrites"}, updated.Tags)
	assert.Equal(t, "meh", updated.Mood.Label, "untouched fields are kept")
	assert.True(t, updated.IsEdited)
	assert.True(t, updated.UpdatedAt.After(post.UpdatedAt))

	private := models.VisibilityPrivate
	updated, err = ps.UpdatePost(ctx, sessionOf(author), post.ID, PostPatch{Visibility: &private})
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityPrivate, updated.Visibility)

	_, err = ps.GetPost(ctx, post.ID, other.ID)
	requireKind(t, err, KindNotFound)
}

func TestDeletePost(t *testing.T) {
	orm := newTestDB(t)
	ps := newTestPostService(orm, nil)
	comments := NewCommentService(orm, nil)
	ctx := context.Background()

	author := createTestUser(t, orm, "Author")
	other := createTestUser(t, orm, "Other")
	post, err := ps.CreatePost(ctx, sessionOf(author), PostInput{Content: "short lived"})
	require.NoError(t, err)
	_, err = ps.LikePost(ctx, sessionOf(other), post.ID)
	require.NoError(t, err)
	_, err = comments.AddComment(ctx, sessionOf(other), post.ID, "nice")
	require.NoError(t, err)

	err = ps.DeletePost(ctx, sessionOf(other), post.ID)
	requireKind(t, err, KindForbidden)

	require.NoError(t, ps.DeletePost(ctx, sessionOf(author), post.ID))

	_, err = ps.GetPost(ctx, post.ID, author.ID)
	requireKind(t, err, KindNotFound)

	var likes, remaining int64
	require.NoError(t, orm.Model(&models.PostLike{}).Where("post_id = ?", post.ID).Count(&likes).Error)
	require.NoError(t, orm.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&remaining).Error)
	assert.Zero(t, likes)
	assert.Zero(t, remaining)

	err = ps.DeletePost(ctx, sessionOf(author), post.ID)
	requireKind(t, err, KindNotFound)
}

func TestListPosts(t *testing.T) {
	orm := newTestDB(t)
	ps := newTestPostService(orm, nil)
	ctx := context.Background()
	author := createTestUser(t, orm, "Author")

	var created []*models.Post
	for i := 0; i < 5; i++ {
		in := PostInput{Content: gofakeit.Sentence(5)}
		if i%2 == 0 {
			in.Tags = []string{"Mindfulness"}
		}
		post, err := ps.CreatePost(ctx, sessionOf(author), in)
		require.NoError(t, err)
		created = append(created, post)
	}
	_, err := ps.CreatePost(ctx, sessionOf(author), PostInput{Content: "hidden", Visibility: models.VisibilityPrivate})
	require.NoError(t, err)

	page, err := ps.ListPosts(ctx, PostQuery{Limit: 2})
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, []string{created[4].ID, created[3].ID}, feedIDs(page.Posts))
	assert.Equal(t, created[3].ID, page.LastID)

	last, err := ps.ListPosts(ctx, PostQuery{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.False(t, last.HasMore)
	assert.Equal(t, []string{created[0].ID}, feedIDs(last.Posts))

	tagged, err := ps.ListPosts(ctx, PostQuery{Tag: "mindful"})
	require.NoError(t, err)
	assert.Equal(t, []string{created[4].ID, created[2].ID, created[0].ID}, feedIDs(tagged.Posts))
}

func TestGetFeed(t *testing.T) {
	orm := newTestDB(t)
	ps := newTestPostService(orm, nil)
	ctx := context.Background()

	reader := createTestUser(t, orm, "Reader")
	friend := createTestUser(t, orm, "Friend")
	stranger := createTestUser(t, orm, "Stranger")
	makeFriends(t, orm, reader, friend)

	own, err := ps.CreatePost(ctx, sessionOf(reader), PostInput{Content: "mine", Visibility: models.VisibilityPrivate})
	require.NoError(t, err)
	fromFriend, err := ps.CreatePost(ctx, sessionOf(friend), PostInput{Content: "from a friend"})
	require.NoError(t, err)
	_, err = ps.CreatePost(ctx, sessionOf(friend), PostInput{Content: "friend private", Visibility: models.VisibilityPrivate})
	require.NoError(t, err)
	_, err = ps.CreatePost(ctx, sessionOf(stranger), PostInput{Content: "not for you"})
	require.NoError(t, err)
	anonymous, err := ps.CreatePost(ctx, sessionOf(friend), PostInput{Content: "anonymous share", IsAnonymous: true})
	require.NoError(t, err)

	feed, err := ps.GetFeed(ctx, reader.ID, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{anonymous.ID, fromFriend.ID, own.ID}, feedIDs(feed.Posts))
	assert.False(t, feed.HasMore)
	assert.Equal(t, "Anonymous", feed.Posts[0].Author)
	assert.Empty(t, feed.Posts[0].UserID)

	first, err := ps.GetFeed(ctx, reader.ID, "", 1)
	require.NoError(t, err)
	assert.True(t, first.HasMore)
	next, err := ps.GetFeed(ctx, reader.ID, first.LastID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{fromFriend.ID}, feedIDs(next.Posts))
}

func TestGetUserPosts(t *testing.T) {
	orm := newTestDB(t)
	ps := newTestPostService(orm, nil)
	ctx := context.Background()

	owner := createTestUser(t, orm, "Owner")
	visitor := createTestUser(t, orm, "Visitor")

	public, err := ps.CreatePost(ctx, sessionOf(owner), PostInput{Content: "public"})
	require.NoError(t, err)
	_, err = ps.CreatePost(ctx, sessionOf(owner), PostInput{Content: "private", Visibility: models.VisibilityPrivate})
	require.NoError(t, err)
	anonymous, err := ps.CreatePost(ctx, sessionOf(owner), PostInput{Content: "anonymous", IsAnonymous: true})
	require.NoError(t, err)

	seen, err := ps.GetUserPosts(ctx, owner.ID, visitor.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{public.ID}, feedIDs(seen))

	mine, err := ps.GetUserPosts(ctx, owner.ID, owner.ID, 0)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, anonymous.ID, mine[0].ID)
	assert.Equal(t, owner.ID, mine[0].UserID, "owners see their own anonymous posts attributed")
}
