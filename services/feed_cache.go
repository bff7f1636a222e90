package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sereno/models"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	FEED_CACHE_TTL  = 24 * time.Hour
	MaxFeedSize     = 1000
	FEED_KEY_PREFIX = "user_feed:"
	POST_KEY_PREFIX = "post:"
)

// FeedCache keeps per-user feeds as Redis sorted sets (score = created_at, member = post id)
// and the post bodies as JSON strings. A cache without a client does nothing.
type FeedCache struct {
	redisClient *redis.Client
}

func NewFeedCache(redisClient *redis.Client) *FeedCache {
	return &FeedCache{redisClient: redisClient}
}

func (fc *FeedCache) enabled() bool {
	return fc != nil && fc.redisClient != nil
}

func feedKey(userID string) string {
	return FEED_KEY_PREFIX + userID
}

func postKey(postID string) string {
	return POST_KEY_PREFIX + postID
}

func feedScore(post models.FeedPost) float64 {
	return float64(post.CreatedAt.UnixNano()) / 1e9
}

// Page reads limit posts after lastID; a cold cache returns an error
func (fc *FeedCache) Page(ctx context.Context, userID, lastID string, limit int) ([]models.FeedPost, error) {
	if !fc.enabled() {
		return nil, fmt.Errorf("redis not available")
	}
	key := feedKey(userID)

	var start, stop int64 = 0, int64(limit - 1)
	if lastID != "" {
		rank, err := fc.redisClient.ZRevRank(ctx, key, lastID).Result()
		if err != nil {
			return nil, err
		}
		start = rank + 1
		stop = start + int64(limit) - 1
	}

	postIDs, err := fc.redisClient.ZRevRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(postIDs) == 0 {
		return []models.FeedPost{}, nil
	}

	pipe := fc.redisClient.Pipeline()
	cmds := make([]*redis.StringCmd, len(postIDs))
	for i, postID := range postIDs {
		cmds[i] = pipe.Get(ctx, postKey(postID))
	}
	if _, err = pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	posts := make([]models.FeedPost, 0, len(cmds))
	for _, cmd := range cmds {
		val, err := cmd.Result()
		if err != nil {
			continue
		}
		var post models.FeedPost
		if err := json.Unmarshal([]byte(val), &post); err == nil {
			posts = append(posts, post)
		}
	}
	return posts, nil
}

// Fill caches posts into an empty feed without dropping what is already there
func (fc *FeedCache) Fill(ctx context.Context, userID string, posts []models.FeedPost) {
	if !fc.enabled() || len(posts) == 0 {
		return
	}
	pipe := fc.redisClient.Pipeline()
	fc.stage(ctx, pipe, userID, posts)
	if _, err := pipe.Exec(ctx); err != nil {
		logCacheFailure("Fill", userID, err)
	}
}

// Replace drops the cached feed of userID and stores posts instead
func (fc *FeedCache) Replace(ctx context.Context, userID string, posts []models.FeedPost) error {
	if !fc.enabled() {
		return fmt.Errorf("redis not available")
	}
	pipe := fc.redisClient.TxPipeline()
	pipe.Del(ctx, feedKey(userID))
	fc.stage(ctx, pipe, userID, posts)
	_, err := pipe.Exec(ctx)
	return err
}

func (fc *FeedCache) stage(ctx context.Context, pipe redis.Pipeliner, userID string, posts []models.FeedPost) {
	key := feedKey(userID)
	for _, post := range posts {
		pipe.ZAdd(ctx, key, &redis.Z{Score: feedScore(post), Member: post.ID})
		if data, err := json.Marshal(post); err == nil {
			pipe.Set(ctx, postKey(post.ID), data, FEED_CACHE_TTL)
		}
	}
	pipe.ZRemRangeByRank(ctx, key, 0, -MaxFeedSize-1)
	pipe.Expire(ctx, key, FEED_CACHE_TTL)
}

// Add pushes one post into the feed of userID
func (fc *FeedCache) Add(ctx context.Context, userID string, post models.FeedPost) {
	if !fc.enabled() {
		return
	}
	pipe := fc.redisClient.Pipeline()
	fc.stage(ctx, pipe, userID, []models.FeedPost{post})
	if _, err := pipe.Exec(ctx); err != nil {
		logCacheFailure("Add", userID, err)
	}
}

// StorePost refreshes the cached body of a post that is already in some feeds
func (fc *FeedCache) StorePost(ctx context.Context, post models.FeedPost) {
	if !fc.enabled() {
		return
	}
	data, err := json.Marshal(post)
	if err != nil {
		return
	}
	if err := fc.redisClient.SetXX(ctx, postKey(post.ID), data, FEED_CACHE_TTL).Err(); err != nil && err != redis.Nil {
		logCacheFailure("StorePost", post.UserID, err)
	}
}

// Remove takes a post out of the feed of userID
func (fc *FeedCache) Remove(ctx context.Context, userID, postID string) {
	if !fc.enabled() {
		return
	}
	if err := fc.redisClient.ZRem(ctx, feedKey(userID), postID).Err(); err != nil {
		logCacheFailure("Remove", userID, err)
	}
}

// DropPost deletes the cached body of a post
func (fc *FeedCache) DropPost(ctx context.Context, postID string) {
	if !fc.enabled() {
		return
	}
	if err := fc.redisClient.Del(ctx, postKey(postID)).Err(); err != nil {
		logCacheFailure("DropPost", "", err)
	}
}

// Invalidate forgets the cached feed of userID, used after friendship changes
func (fc *FeedCache) Invalidate(ctx context.Context, userID string) {
	if !fc.enabled() {
		return
	}
	if err := fc.redisClient.Del(ctx, feedKey(userID)).Err(); err != nil {
		logCacheFailure("Invalidate", userID, err)
	}
}

func logCacheFailure(function, userID string, err error) {
	logrus.WithFields(logrus.Fields{
		"function": function,
		"user_id":  userID,
		"error":    err.Error(),
	}).Warn("Feed cache update failed")
}
