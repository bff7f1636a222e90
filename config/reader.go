package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
}

type ConfigSchema struct {
	Databases struct {
		Master   DBConfig   `yaml:"master"`
		Replicas []DBConfig `yaml:"replicas"`
	} `yaml:"databases"`
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	RabbitMQ struct {
		URL           string `yaml:"url"`
		NotifyQueue   string `yaml:"notify_queue"`
		ConsumerCount int    `yaml:"consumer_count"`
	} `yaml:"rabbitmq"`
	Backend struct {
		Host           string   `yaml:"host"`
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		FeedWorkers    int      `yaml:"feed_workers"`
	} `yaml:"backend"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		TokenTTL  int    `yaml:"token_ttl_hours"`
		// AllowTestTokens accepts X-User-ID and test_token_<id>, local development only
		AllowTestTokens bool `yaml:"allow_test_tokens"`
	} `yaml:"auth"`
	Logs struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logs"`
}

var AppConfig *ConfigSchema

// LoadConfig reads the YAML file and applies environment overrides.
func LoadConfig(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	conf := &ConfigSchema{}
	if err = yaml.Unmarshal(data, conf); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", filePath, err)
	}
	applyEnv(conf)
	applyDefaults(conf)
	AppConfig = conf
	return nil
}

func applyEnv(conf *ConfigSchema) {
	if v := os.Getenv("DB_HOST"); v != "" {
		conf.Databases.Master.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			conf.Databases.Master.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		conf.Databases.Master.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		conf.Databases.Master.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		conf.Databases.Master.DBName = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		conf.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			conf.Redis.Port = port
		}
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		conf.RabbitMQ.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		conf.Auth.JWTSecret = v
	}
}

func applyDefaults(conf *ConfigSchema) {
	if conf.Databases.Master.Port == 0 {
		conf.Databases.Master.Port = 5432
	}
	if conf.Backend.Port == 0 {
		conf.Backend.Port = 8080
	}
	if conf.Backend.FeedWorkers == 0 {
		conf.Backend.FeedWorkers = 5
	}
	if conf.Auth.TokenTTL == 0 {
		conf.Auth.TokenTTL = 72
	}
	if conf.RabbitMQ.ConsumerCount == 0 {
		conf.RabbitMQ.ConsumerCount = 1
	}
	if conf.RabbitMQ.NotifyQueue == "" {
		conf.RabbitMQ.NotifyQueue = "sereno_notify_push_queue"
	}
	if conf.Logs.Level == "" {
		conf.Logs.Level = "info"
	}
}
