package services

import (
	"context"
	"fmt"
	"sereno/config"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// InitRedis connects to the configured Redis and checks the connection
func InitRedis(ctx context.Context) (*redis.Client, error) {
	if config.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is not loaded")
	}

	redisConfig := config.AppConfig.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"addr": client.Options().Addr,
		"db":   redisConfig.DB,
	}).Info("Redis connected")
	return client, nil
}
