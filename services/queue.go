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
	FEED_UPDATE_QUEUE  = "sereno:feed_update_queue"
	QUEUE_WORKER_COUNT = 5
	queuePollTimeout   = 5 * time.Second
)

type FeedAction string

const (
	FeedActionCreate FeedAction = "create"
	FeedActionDelete FeedAction = "delete"
)

// FeedUpdateTask - one fan-out job for the feed workers
type FeedUpdateTask struct {
	AuthorID string      `json:"author_id"`
	Post     models.Post `json:"post"`
	Action   FeedAction  `json:"action"`
}

// QueueService moves feed fan-out off the request path through a Redis list
type QueueService struct {
	redisClient *redis.Client
	posts       *PostService
	workers     int
}

func NewQueueService(redisClient *redis.Client, posts *PostService, workers int) *QueueService {
	if workers <= 0 {
		workers = QUEUE_WORKER_COUNT
	}
	return &QueueService{redisClient: redisClient, posts: posts, workers: workers}
}

// StartWorkers runs the workers until ctx is cancelled
func (qs *QueueService) StartWorkers(ctx context.Context) {
	for i := 0; i < qs.workers; i++ {
		go qs.worker(ctx, i)
	}
}

func (qs *QueueService) worker(ctx context.Context, workerID int) {
	log := logrus.WithFields(logrus.Fields{"function": "worker", "worker_id": workerID})
	log.Info("Feed update worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info("Feed update worker stopping")
			return
		default:
		}

		result, err := qs.redisClient.BLPop(ctx, queuePollTimeout, FEED_UPDATE_QUEUE).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			log.WithField("error", err.Error()).Warn("Failed to read feed task")
			time.Sleep(time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var task FeedUpdateTask
		if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
			log.WithField("error", err.Error()).Warn("Dropping malformed feed task")
			continue
		}
		log.WithFields(logrus.Fields{"author_id": task.AuthorID, "action": task.Action}).Debug("Processing feed task")
		qs.posts.applyFeedUpdate(ctx, task)
	}
}

// Enqueue appends task to the queue
func (qs *QueueService) Enqueue(ctx context.Context, task FeedUpdateTask) error {
	if qs == nil || qs.redisClient == nil {
		return fmt.Errorf("redis not available")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := qs.redisClient.RPush(ctx, FEED_UPDATE_QUEUE, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Stats - queue length and worker count for the health endpoint
func (qs *QueueService) Stats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"queue_name":   FEED_UPDATE_QUEUE,
		"worker_count": qs.workers,
	}
	length, err := qs.redisClient.LLen(ctx, FEED_UPDATE_QUEUE).Result()
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}
	stats["queue_length"] = length
	return stats
}
