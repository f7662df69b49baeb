package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Outbox   OutboxConfig
	Notifier NotifierConfig
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type KafkaConfig struct {
	Brokers               []string `mapstructure:"brokers"`
	GroupID               string   `mapstructure:"group_id"`
	Concurrency           int      `mapstructure:"concurrency"`
	PublishTimeoutSeconds int      `mapstructure:"publish_timeout_seconds"`
	Topics                TopicsConfig
}

// TopicsConfig names the topics the services exchange events on. The
// defaults match what the consumers subscribe to; only override all of
// them together.
type TopicsConfig struct {
	OrderRequests string `mapstructure:"order_requests"`
	OrderCreated  string `mapstructure:"order_created"`
	LabEvents     string `mapstructure:"lab_events"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	TTLSeconds   int    `mapstructure:"ttl_seconds"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type OutboxConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
	BatchSize           int `mapstructure:"batch_size"`
	MaxRetries          int `mapstructure:"max_retries"`
	RetentionHours      int `mapstructure:"retention_hours"`
}

type NotifierConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeoutSeconds", 30)

	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.group_id", "lab-service")
	viper.SetDefault("kafka.concurrency", 3)
	viper.SetDefault("kafka.publish_timeout_seconds", 10)
	viper.SetDefault("kafka.topics.order_requests", "order-requests")
	viper.SetDefault("kafka.topics.order_created", "order-created")
	viper.SetDefault("kafka.topics.lab_events", "lab-events")

	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.ttl_seconds", 300)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)

	viper.SetDefault("outbox.poll_interval_seconds", 5)
	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.max_retries", 3)
	viper.SetDefault("outbox.retention_hours", 72)

	viper.SetDefault("notifier.enabled", false)
	viper.SetDefault("notifier.smtp_port", 587)
}

func (c KafkaConfig) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutSeconds) * time.Second
}

func (c RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c OutboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c OutboxConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}
