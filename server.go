package main

import (
	"context"
	"flag"
	"fmt"
	"sereno/api/handlers"
	"sereno/api/middleware"
	"sereno/api/routes"
	"sereno/api/views"
	"sereno/config"
	"sereno/db"
	"sereno/services"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	flag.Parse()

	err := config.LoadConfig(configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	config.SetupLogging()
	conf := config.AppConfig
	logrus.WithField("config", configPath).Info("Starting server...")

	if conf.Auth.JWTSecret == "" && !conf.Auth.AllowTestTokens {
		logrus.Fatal("auth.jwt_secret is required unless allow_test_tokens is set")
	}

	if err = db.ConnectDB(); err != nil {
		panic("Failed to connect to the database: " + err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional: counters and the feed cache become no-ops without it
	var redisClient *redis.Client
	if conf.Redis.Host != "" {
		redisClient, err = services.InitRedis(ctx)
		if err != nil {
			logrus.WithField("error", err.Error()).Warn("Redis unavailable, running without cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	ws := services.NewWSConnManager()
	var bus *services.EventBus
	if conf.RabbitMQ.URL != "" {
		bus, err = services.InitRabbitMQ(conf.RabbitMQ.URL, ws)
		if err != nil {
			logrus.WithField("error", err.Error()).Warn("RabbitMQ unavailable, pushing to local sockets only")
			bus = nil
		} else {
			defer bus.Close()
			for i := 0; i < conf.RabbitMQ.ConsumerCount; i++ {
				if err := bus.StartConsumer(ctx, conf.RabbitMQ.NotifyQueue); err != nil {
					logrus.WithField("error", err.Error()).Fatal("Failed to start event consumer")
				}
			}
		}
	}
	realtime := &services.Realtime{Bus: bus, WS: ws}

	orm := db.ORM
	counters := services.NewCounterService(redisClient)
	notifications := services.NewNotificationService(orm, realtime, counters)
	posts := services.NewPostService(orm, redisClient, realtime, notifications)
	friends := services.NewFriendStore(orm,
		services.WithNotifier(notifications),
		services.WithCounters(counters),
		services.WithFeedCache(posts.Feed()),
	)

	var queue *services.QueueService
	if redisClient != nil {
		queue = services.NewQueueService(redisClient, posts, conf.Backend.FeedWorkers)
		posts.UseQueue(queue)
		queue.StartWorkers(ctx)
	}

	tokens := services.NewTokenIssuer(conf.Auth.JWTSecret, time.Duration(conf.Auth.TokenTTL)*time.Hour)
	users := services.NewUserService(orm, tokens)

	h := &handlers.Handlers{
		DB:            orm,
		Users:         users,
		Friends:       friends,
		Posts:         posts,
		Comments:      services.NewCommentService(orm, notifications),
		Moods:         services.NewMoodService(orm),
		Diary:         services.NewDiaryService(orm),
		Groups:        services.NewGroupService(orm),
		Chat:          services.NewChatService(orm, friends, counters, realtime),
		Notifications: notifications,
		Counters:      counters,
		Queue:         queue,
		WS:            ws,
		Toaster:       views.NewRealtimeToaster(realtime),
	}

	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(conf.Backend.AllowedOrigins))
	router.Use(middleware.PrometheusMiddleware("sereno"))

	auth := middleware.AuthMiddleware(middleware.AuthOptions{
		Tokens:          tokens,
		AllowTestTokens: conf.Auth.AllowTestTokens,
		Touch:           users.TouchLastSeen,
		Resolve:         users.ResolveSession,
	})
	routes.PublicApi(router, h)
	routes.PrivateApi(router, h, auth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", h.Health)

	addr := fmt.Sprintf("%s:%d", conf.Backend.Host, conf.Backend.Port)
	logrus.WithField("addr", addr).Info("Server listening")
	if err := router.Run(addr); err != nil {
		panic(err)
	}
}
