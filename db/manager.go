package db

import (
	"context"
	"fmt"
	"sereno/config"
	"sereno/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

var ORM *gorm.DB

// AllModels - every table managed by AutoMigrate
var AllModels = []interface{}{
	&models.User{},
	&models.FriendRequest{},
	&models.Friendship{},
	&models.Post{},
	&models.PostLike{},
	&models.Comment{},
	&models.CommentLike{},
	&models.CommentReport{},
	&models.MoodEntry{},
	&models.DiaryEntry{},
	&models.Group{},
	&models.GroupMember{},
	&models.Message{},
	&models.Notification{},
}

func dsnFromConfig(dbConf config.DBConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
		dbConf.Host, dbConf.Port, dbConf.User, dbConf.Password, dbConf.DBName,
	)
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

// ConnectDB opens the master connection, registers read replicas and migrates the schema
func ConnectDB() (err error) {
	if ORM != nil {
		logrus.Info("ORM is already initialized")
		return nil
	}

	conf := config.AppConfig
	if conf == nil {
		return fmt.Errorf("AppConfig is not loaded")
	}
	if conf.Databases.Master.Host == "" {
		return fmt.Errorf("master database configuration is missing")
	}

	masterDSN := dsnFromConfig(conf.Databases.Master)
	replicaDSNs := make([]gorm.Dialector, 0, len(conf.Databases.Replicas))
	for _, r := range conf.Databases.Replicas {
		replicaDSNs = append(replicaDSNs, postgres.Open(dsnFromConfig(r)))
	}

	database, err := gorm.Open(postgres.Open(masterDSN), gormConfig())
	if err != nil {
		return err
	}

	if len(replicaDSNs) > 0 {
		err = database.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicaDSNs,
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			return err
		}
	}

	if err = Migrate(database); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"host":     conf.Databases.Master.Host,
		"replicas": len(replicaDSNs),
	}).Info("Database connected")

	ORM = database
	return nil
}

// OpenSQLite opens a SQLite database with the same schema (tests and local runs)
func OpenSQLite(dsn string) (*gorm.DB, error) {
	database, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers anyway; one connection keeps in-memory databases alive
	sqlDB.SetMaxOpenConns(1)

	if err = Migrate(database); err != nil {
		return nil, err
	}
	return database, nil
}

// Read returns a session of orm routed to the replicas
func Read(ctx context.Context, orm *gorm.DB) *gorm.DB {
	return orm.WithContext(ctx).Clauses(dbresolver.Read)
}

// Write returns a session of orm routed to the master
func Write(ctx context.Context, orm *gorm.DB) *gorm.DB {
	return orm.WithContext(ctx).Clauses(dbresolver.Write)
}
