package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// CounterType - badge counter kind
type CounterType string

const (
	CounterFriendRequests CounterType = "friend_requests"
	CounterNotifications  CounterType = "notifications"
	CounterUnreadMessages CounterType = "unread_messages"
)

var AllCounterTypes = []CounterType{CounterFriendRequests, CounterNotifications, CounterUnreadMessages}

const COUNTER_KEY_PREFIX = "counters:"

// adds ARGV[2] to field ARGV[1], never going below zero
var addCounterScript = redis.NewScript(`
	local value = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
	if value < 0 then
		redis.call('HSET', KEYS[1], ARGV[1], 0)
		value = 0
	end
	return value
`)

// CounterService keeps per-user badge counters in a Redis hash.
// A nil service or a service without a client is a no-op.
type CounterService struct {
	redisClient *redis.Client
}

func NewCounterService(redisClient *redis.Client) *CounterService {
	return &CounterService{redisClient: redisClient}
}

func (s *CounterService) enabled() bool {
	return s != nil && s.redisClient != nil
}

func counterKey(userID string) string {
	return COUNTER_KEY_PREFIX + userID
}

// Add applies delta and returns nothing; the stored value is floored at zero
func (s *CounterService) Add(ctx context.Context, userID string, counterType CounterType, delta int64) error {
	if !s.enabled() || userID == "" || delta == 0 {
		return nil
	}
	_, err := addCounterScript.Run(ctx, s.redisClient, []string{counterKey(userID)}, string(counterType), delta).Int64()
	if err != nil {
		return fmt.Errorf("failed to update counter %s: %w", counterType, err)
	}
	return nil
}

// Set overwrites a counter, used when resyncing from the database
func (s *CounterService) Set(ctx context.Context, userID string, counterType CounterType, value int64) error {
	if !s.enabled() {
		return nil
	}
	if value < 0 {
		value = 0
	}
	return s.redisClient.HSet(ctx, counterKey(userID), string(counterType), value).Err()
}

// GetAll returns every known counter of userID, zero for missing ones
func (s *CounterService) GetAll(ctx context.Context, userID string) (map[CounterType]int64, error) {
	counters := make(map[CounterType]int64, len(AllCounterTypes))
	for _, t := range AllCounterTypes {
		counters[t] = 0
	}
	if !s.enabled() {
		return counters, nil
	}

	values, err := s.redisClient.HGetAll(ctx, counterKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	for field, raw := range values {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "GetAll",
				"user_id":  userID,
				"field":    field,
			}).Warn("Skipping malformed counter value")
			continue
		}
		counters[CounterType(field)] = n
	}
	return counters, nil
}
