package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

type RedisConfig struct {
	Host      string `json:"host" env:"REDIS_HOST"`
	Port      int    `json:"port" env:"REDIS_PORT" env-default:"6379"`
	Password  string `json:"password" env:"REDIS_PASSWORD"`
	DB        int    `json:"db" env:"REDIS_DB"`
	Namespace string `json:"namespace" env:"REDIS_NAMESPACE" env-default:"authentica"`
}

type RedisSentinelConfig struct {
	SentinelHost     string `json:"sentinel_host" env:"REDIS_SENTINEL_HOST"`
	SentinelPort     int    `json:"sentinel_port" env:"REDIS_SENTINEL_PORT" env-default:"26379"`
	Password         string `json:"password" env:"REDIS_SENTINEL_PASSWORD"`
	MasterName       string `json:"master_name" env:"REDIS_SENTINEL_MASTER"`
	SentinelUsername string `json:"sentinel_username" env:"REDIS_SENTINEL_USERNAME"`
	Namespace        string `json:"namespace" env:"REDIS_SENTINEL_NAMESPACE" env-default:"authentica"`
}

// NewRedisClient connects to a single redis instance and pings it once.
func NewRedisClient(config *RedisConfig) (*redis.Client, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("redis host is empty")
	}

	client := redis.NewClient(clientOptions(config))

	if err := ping(client); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to redis", "host", config.Host, "port", config.Port)
	return client, nil
}

// NewRedisSentinelClient connects to the master behind a sentinel.
func NewRedisSentinelClient(config *RedisSentinelConfig) (*redis.Client, error) {
	if config.MasterName == "" {
		return nil, fmt.Errorf("redis sentinel master name is empty")
	}

	client := redis.NewFailoverClient(failoverOptions(config))

	if err := ping(client); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis through Sentinel: %w", err)
	}

	slog.Info("Connected to redis through sentinel", "sentinel_host", config.SentinelHost, "master", config.MasterName)
	return client, nil
}

func clientOptions(config *RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	}
}

// failoverOptions uses the same password for the sentinel and the master.
func failoverOptions(config *RedisSentinelConfig) *redis.FailoverOptions {
	return &redis.FailoverOptions{
		MasterName:       config.MasterName,
		SentinelAddrs:    []string{fmt.Sprintf("%s:%d", config.SentinelHost, config.SentinelPort)},
		SentinelUsername: config.SentinelUsername,
		SentinelPassword: config.Password,
		Password:         config.Password,
	}
}

// ping closes the client when redis cannot be reached
func ping(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			slog.Warn("failed to close redis client", "error", closeErr)
		}
		return err
	}
	return nil
}
