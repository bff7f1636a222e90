package services

import (
	"context"
	"encoding/json"
	"errors"
	"sereno/db"
	"sereno/models"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	PostsDefaultLimit = 20
	PostsMaxLimit     = 100
)

// PostInput - fields of a new post
type PostInput struct {
	Content     string            `json:"content"`
	Mood        models.Mood       `json:"mood"`
	Image       string            `json:"image"`
	Tags        []string          `json:"tags"`
	IsAnonymous bool              `json:"is_anonymous"`
	Visibility  models.Visibility `json:"visibility"`
	CommunityID string            `json:"community_id"`
}

// PostPatch - partial update, nil fields are left untouched
type PostPatch struct {
	Content    *string            `json:"content"`
	Mood       *models.Mood       `json:"mood"`
	Image      *string            `json:"image"`
	Tags       *[]string          `json:"tags"`
	Visibility *models.Visibility `json:"visibility"`
}

// PostQuery - filters of ListPosts
type PostQuery struct {
	Limit       int    `form:"limit"`
	Offset      int    `form:"offset"`
	CommunityID string `form:"community_id"`
	Tag         string `form:"tag"`
}

// PostService stores posts and keeps the cached feeds of friends in sync
type PostService struct {
	db       *gorm.DB
	feed     *FeedCache
	queue    *QueueService
	realtime *Realtime
	notifier Notifier
	now      func() time.Time
}

func NewPostService(orm *gorm.DB, redisClient *redis.Client, realtime *Realtime, notifier Notifier) *PostService {
	return &PostService{
		db:       orm,
		feed:     NewFeedCache(redisClient),
		realtime: realtime,
		notifier: notifier,
		now:      time.Now,
	}
}

func (ps *PostService) Feed() *FeedCache {
	return ps.feed
}

// UseQueue routes feed fan-out through the Redis worker queue
func (ps *PostService) UseQueue(q *QueueService) {
	ps.queue = q
}

// CreatePost validates, stores and returns the persisted post
func (ps *PostService) CreatePost(ctx context.Context, sess Session, in PostInput) (*models.Post, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, newError(KindValidation, "post content cannot be empty")
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if visibility != models.VisibilityPublic && visibility != models.VisibilityPrivate {
		return nil, newError(KindValidation, "unknown visibility %q", visibility)
	}

	now := ps.now().UTC()
	post := &models.Post{
		UserID:      sess.UserID,
		Author:      sess.name(),
		IsAnonymous: in.IsAnonymous,
		Avatar:      sess.PhotoURL,
		Content:     content,
		Mood:        in.Mood,
		Image:       strings.TrimSpace(in.Image),
		Tags:        normalizeTags(in.Tags),
		Visibility:  visibility,
		CommunityID: in.CommunityID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Write(ctx, ps.db).Create(post).Error; err != nil {
		err = remoteError("failed to create post", err)
		logrus.WithFields(logrus.Fields{
			"function": "CreatePost",
			"user_id":  sess.UserID,
			"error":    err.Error(),
		}).Error("Failed to create post")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"function": "CreatePost", "post_id": post.ID, "user_id": post.UserID}).Debug("Post created")
	ps.dispatchFeedUpdate(ctx, FeedActionCreate, *post)
	return post, nil
}

// LikePost adds the session user to the like set; liking twice counts once
func (ps *PostService) LikePost(ctx context.Context, sess Session, postID string) (*models.Post, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	var post models.Post
	added := false
	err := db.Write(ctx, ps.db).Transaction(func(tx *gorm.DB) error {
		if err := loadPost(tx, postID, &post); err != nil {
			return err
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.PostLike{PostID: post.ID, UserID: sess.UserID, CreatedAt: ps.now().UTC()})
		if result.Error != nil {
			return remoteError("failed to like post", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		added = true
		if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("likes", gorm.Expr("likes + 1")).Error; err != nil {
			return remoteError("failed to like post", err)
		}
		return reloadPost(tx, &post)
	})
	if err != nil {
		logPostFailure("LikePost", err, postID, sess.UserID)
		return nil, err
	}

	if added && post.UserID != sess.UserID && ps.notifier != nil {
		if err := ps.notifier.Notify(ctx, &models.Notification{
			RecipientID: post.UserID,
			SenderID:    sess.UserID,
			SenderName:  sess.name(),
			Type:        models.NotificationLike,
			Title:       "New like",
			Message:     sess.name() + " liked your post.",
			ActionURL:   "/home/posts/" + post.ID,
			PostID:      post.ID,
		}); err != nil {
			logrus.WithFields(logrus.Fields{"function": "LikePost", "post_id": post.ID, "error": err.Error()}).
				Warn("Failed to deliver notification")
		}
	}
	return &post, nil
}

// UnlikePost removes the session user from the like set; the counter never goes below zero
func (ps *PostService) UnlikePost(ctx context.Context, sess Session, postID string) (*models.Post, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	var post models.Post
	err := db.Write(ctx, ps.db).Transaction(func(tx *gorm.DB) error {
		if err := loadPost(tx, postID, &post); err != nil {
			return err
		}
		result := tx.Where("post_id = ? AND user_id = ?", post.ID, sess.UserID).Delete(&models.PostLike{})
		if result.Error != nil {
			return remoteError("failed to unlike post", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("likes", gorm.Expr("CASE WHEN likes > 0 THEN likes - 1 ELSE 0 END")).Error; err != nil {
			return remoteError("failed to unlike post", err)
		}
		return reloadPost(tx, &post)
	})
	if err != nil {
		logPostFailure("UnlikePost", err, postID, sess.UserID)
		return nil, err
	}
	return &post, nil
}

// TogglePostLike likes or unlikes depending on the current like set
func (ps *PostService) TogglePostLike(ctx context.Context, sess Session, postID string) (*models.Post, bool, error) {
	liked, err := ps.HasLiked(ctx, postID, sess.UserID)
	if err != nil {
		return nil, false, err
	}
	if liked {
		post, err := ps.UnlikePost(ctx, sess, postID)
		return post, false, err
	}
	post, err := ps.LikePost(ctx, sess, postID)
	return post, err == nil, err
}

func (ps *PostService) HasLiked(ctx context.Context, postID, userID string) (bool, error) {
	var count int64
	err := db.Read(ctx, ps.db).Model(&models.PostLike{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error
	if err != nil {
		return false, remoteError("failed to check like", err)
	}
	return count > 0, nil
}

// UpdatePost merges patch into the post of the session user
func (ps *PostService) UpdatePost(ctx context.Context, sess Session, postID string, patch PostPatch) (*models.Post, error) {
	if err := sess.validate(); err != nil {
		return nil, err
	}
	var post models.Post
	err := db.Write(ctx, ps.db).Transaction(func(tx *gorm.DB) error {
		if err := loadPost(tx, postID, &post); err != nil {
			return err
		}
		if post.UserID != sess.UserID {
			return newError(KindForbidden, "only the author can edit this post")
		}
		updates := map[string]interface{}{}
		if patch.Content != nil {
			content := strings.TrimSpace(*patch.Content)
			if content == "" {
				return newError(KindValidation, "post content cannot be empty")
			}
			updates["content"] = content
		}
		if patch.Mood != nil {
			updates["mood_emoji"] = patch.Mood.Emoji
			updates["mood_label"] = patch.Mood.Label
			updates["mood_value"] = patch.Mood.Value
		}
		if patch.Image != nil {
			updates["image"] = strings.TrimSpace(*patch.Image)
		}
		if patch.Tags != nil {
			post.Tags = normalizeTags(*patch.Tags)
			updates["tags"] = encodeTags(post.Tags)
		}
		if patch.Visibility != nil {
			if *patch.Visibility != models.VisibilityPublic && *patch.Visibility != models.VisibilityPrivate {
				return newError(KindValidation, "unknown visibility %q", *patch.Visibility)
			}
			updates["visibility"] = *patch.Visibility
		}
		updates["is_edited"] = true
		updates["updated_at"] = ps.now().UTC()

		if err := tx.Model(&models.Post{}).Where("id = ?", post.ID).Updates(updates).Error; err != nil {
			return remoteError("failed to update post", err)
		}
		return reloadPost(tx, &post)
	})
	if err != nil {
		logPostFailure("UpdatePost", err, postID, sess.UserID)
		return nil, err
	}
	ps.feed.StorePost(ctx, post.ToFeedPost())
	return &post, nil
}

// DeletePost removes the post with its comments and likes; author only
func (ps *PostService) DeletePost(ctx context.Context, sess Session, postID string) error {
	if err := sess.validate(); err != nil {
		return err
	}
	var post models.Post
	err := db.Write(ctx, ps.db).Transaction(func(tx *gorm.DB) error {
		if err := loadPost(tx, postID, &post); err != nil {
			return err
		}
		if post.UserID != sess.UserID {
			return newError(KindForbidden, "only the author can delete this post")
		}
		for _, model := range []interface{}{&models.CommentLike{}, &models.CommentReport{}, &models.Comment{}} {
			if err := tx.Where("post_id = ?", post.ID).Delete(model).Error; err != nil {
				return remoteError("failed to delete post comments", err)
			}
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostLike{}).Error; err != nil {
			return remoteError("failed to delete post likes", err)
		}
		if err := tx.Where("id = ?", post.ID).Delete(&models.Post{}).Error; err != nil {
			return remoteError("failed to delete post", err)
		}
		return nil
	})
	if err != nil {
		logPostFailure("DeletePost", err, postID, sess.UserID)
		return err
	}
	ps.dispatchFeedUpdate(ctx, FeedActionDelete, post)
	return nil
}

func (ps *PostService) GetPost(ctx context.Context, postID, viewerID string) (*models.Post, error) {
	var post models.Post
	if err := loadPost(db.Read(ctx, ps.db), postID, &post); err != nil {
		return nil, err
	}
	if post.Visibility == models.VisibilityPrivate && post.UserID != viewerID {
		return nil, newError(KindNotFound, "post not found")
	}
	return &post, nil
}

// ListPosts returns public posts newest first
func (ps *PostService) ListPosts(ctx context.Context, q PostQuery) (*models.FeedResponse, error) {
	limit := clampLimit(q.Limit)
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	query := db.Read(ctx, ps.db).Model(&models.Post{}).Where("visibility = ?", models.VisibilityPublic)
	if q.CommunityID != "" {
		query = query.Where("community_id = ?", q.CommunityID)
	}
	if tag := strings.ToLower(strings.TrimSpace(q.Tag)); tag != "" {
		query = query.Where("LOWER(tags) LIKE ? ESCAPE '\\'", "%"+escapeLike(tag)+"%")
	}

	var posts []models.Post
	err := query.Order("created_at DESC").Order("id DESC").
		Limit(limit + 1).Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, remoteError("failed to load posts", err)
	}
	return feedResponse(posts, limit), nil
}

// GetUserPosts lists posts of userID; private ones only for the owner
func (ps *PostService) GetUserPosts(ctx context.Context, userID, viewerID string, limit int) ([]models.FeedPost, error) {
	limit = clampLimit(limit)
	query := db.Read(ctx, ps.db).Where("user_id = ?", userID)
	if userID != viewerID {
		query = query.Where("visibility = ? AND is_anonymous = ?", models.VisibilityPublic, false)
	}
	var posts []models.Post
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&posts).Error; err != nil {
		return nil, remoteError("failed to load user posts", err)
	}
	result := make([]models.FeedPost, 0, len(posts))
	for i := range posts {
		fp := posts[i].ToFeedPost()
		if userID == viewerID {
			fp.UserID, fp.Author, fp.Avatar = posts[i].UserID, posts[i].Author, posts[i].Avatar
		}
		result = append(result, fp)
	}
	return result, nil
}

// GetFeed returns friends' and own posts, from the cache when it is warm
func (ps *PostService) GetFeed(ctx context.Context, userID, lastID string, limit int) (*models.FeedResponse, error) {
	limit = clampLimit(limit)

	if cached, err := ps.feed.Page(ctx, userID, lastID, limit); err == nil && len(cached) > 0 {
		return &models.FeedResponse{Posts: cached, HasMore: len(cached) == limit, LastID: lastFeedID(cached)}, nil
	}

	posts, err := ps.buildFeedFromDB(ctx, userID, lastID, limit+1)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "GetFeed", "user_id": userID, "error": err.Error()}).Error("Failed to build feed")
		return nil, err
	}
	response := feedResponse(posts, limit)
	if lastID == "" {
		go ps.feed.Fill(context.Background(), userID, response.Posts)
	}
	return response, nil
}

// RebuildFeed replaces the cached feed of userID with a fresh one from the database
func (ps *PostService) RebuildFeed(ctx context.Context, userID string) error {
	posts, err := ps.buildFeedFromDB(ctx, userID, "", MaxFeedSize)
	if err != nil {
		return err
	}
	feed := make([]models.FeedPost, 0, len(posts))
	for i := range posts {
		feed = append(feed, posts[i].ToFeedPost())
	}
	return ps.feed.Replace(ctx, userID, feed)
}

func (ps *PostService) buildFeedFromDB(ctx context.Context, userID, lastID string, limit int) ([]models.Post, error) {
	friendIDs, err := ps.friendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	authors := append(friendIDs, userID)

	query := db.Read(ctx, ps.db).
		Where("user_id IN ?", authors).
		Where("visibility = ? OR user_id = ?", models.VisibilityPublic, userID)

	if lastID != "" {
		var cursor models.Post
		err := db.Read(ctx, ps.db).Select("id", "created_at").Where("id = ?", lastID).First(&cursor).Error
		if err == nil {
			query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, remoteError("failed to load feed cursor", err)
		}
	}

	var posts []models.Post
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&posts).Error; err != nil {
		return nil, remoteError("failed to load feed posts", err)
	}
	return posts, nil
}

func (ps *PostService) friendIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := db.Read(ctx, ps.db).Model(&models.Friendship{}).
		Where("user_id = ?", userID).
		Pluck("friend_id", &ids).Error
	if err != nil {
		return nil, remoteError("failed to load friends", err)
	}
	return ids, nil
}

// dispatchFeedUpdate enqueues fan-out, or runs it in the background without a queue
func (ps *PostService) dispatchFeedUpdate(ctx context.Context, action FeedAction, post models.Post) {
	if !ps.feed.enabled() && ps.realtime == nil {
		return
	}
	if ps.queue != nil {
		err := ps.queue.Enqueue(ctx, FeedUpdateTask{AuthorID: post.UserID, Post: post, Action: action})
		if err == nil {
			return
		}
		logrus.WithFields(logrus.Fields{
			"function": "dispatchFeedUpdate",
			"post_id":  post.ID,
			"error":    err.Error(),
		}).Warn("Feed queue unavailable, fanning out directly")
	}
	go ps.applyFeedUpdate(context.Background(), FeedUpdateTask{AuthorID: post.UserID, Post: post, Action: action})
}

// applyFeedUpdate updates the cached feeds of the author and every friend
func (ps *PostService) applyFeedUpdate(ctx context.Context, task FeedUpdateTask) {
	friendIDs, err := ps.friendIDs(ctx, task.AuthorID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "applyFeedUpdate",
			"author_id": task.AuthorID,
			"error":     err.Error(),
		}).Error("Failed to load friends for fan-out")
		return
	}
	recipients := append(friendIDs, task.AuthorID)

	switch task.Action {
	case FeedActionCreate:
		feedPost := task.Post.ToFeedPost()
		for _, userID := range recipients {
			if task.Post.Visibility == models.VisibilityPrivate && userID != task.AuthorID {
				continue
			}
			ps.feed.Add(ctx, userID, feedPost)
			ps.realtime.Deliver(ctx, userID, "feed_posted", feedPost)
		}
	case FeedActionDelete:
		for _, userID := range recipients {
			ps.feed.Remove(ctx, userID, task.Post.ID)
		}
		ps.feed.DropPost(ctx, task.Post.ID)
	default:
		logrus.WithField("action", task.Action).Warn("Unknown feed action")
	}
}

func loadPost(tx *gorm.DB, postID string, post *models.Post) error {
	if strings.TrimSpace(postID) == "" {
		return newError(KindValidation, "post id is required")
	}
	err := tx.Where("id = ?", postID).First(post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(KindNotFound, "post not found")
	}
	if err != nil {
		return remoteError("failed to load post", err)
	}
	return nil
}

func reloadPost(tx *gorm.DB, post *models.Post) error {
	if err := tx.Where("id = ?", post.ID).First(post).Error; err != nil {
		return remoteError("failed to reload post", err)
	}
	return nil
}

// encodeTags matches the json serializer of Post.Tags for map updates
func encodeTags(tags []string) string {
	data, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func normalizeTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, tag)
	}
	return result
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return PostsDefaultLimit
	}
	if limit > PostsMaxLimit {
		return PostsMaxLimit
	}
	return limit
}

// feedResponse trims the extra row fetched beyond limit
func feedResponse(posts []models.Post, limit int) *models.FeedResponse {
	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}
	feed := make([]models.FeedPost, 0, len(posts))
	for i := range posts {
		feed = append(feed, posts[i].ToFeedPost())
	}
	return &models.FeedResponse{Posts: feed, HasMore: hasMore, LastID: lastFeedID(feed)}
}

func lastFeedID(posts []models.FeedPost) string {
	if len(posts) == 0 {
		return ""
	}
	return posts[len(posts)-1].ID
}

func logPostFailure(function string, err error, postID, userID string) {
	entry := logrus.WithFields(logrus.Fields{
		"function": function,
		"post_id":  postID,
		"user_id":  userID,
		"kind":     KindOf(err),
		"error":    err.Error(),
	})
	if KindOf(err) == KindRemote {
		entry.Error("Post operation failed")
		return
	}
	entry.Debug("Post operation refused")
}
