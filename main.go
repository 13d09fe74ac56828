package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go-authentica/authentica"
	"go-authentica/config"
	"go-authentica/logging"
	"go-authentica/metrics"
	redis "go-authentica/redis"
)

func main() {
	configPath := flag.String("config", "", "Path for the config.json to use, environment only when empty")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		config.Usage(flag.CommandLine.Output())
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("failed to read config", err)
	}
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if *configPath != "" {
		slog.Info("Using config", "path", *configPath)
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid config", err)
	}

	notificationStorage, err := createNotificationStorage(&cfg)
	if err != nil {
		fatal("failed to instantiate notification storage", err)
	}

	serverState := ServerState{
		webhookSecret:       cfg.Webhook.Password,
		notificationStorage: notificationStorage,
		nafathClient:        authentica.NewClient(cfg.Authentica.BaseURL, cfg.Authentica.APIKey),
		metrics:             metrics.New(),
	}

	server, err := NewServer(&serverState, cfg.ServerConfig)
	if err != nil {
		fatal("failed to create server", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("failed to listen and serve", err)
		}
	case <-ctx.Done():
		if err := server.Stop(); err != nil {
			os.Exit(1)
		}
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func createNotificationStorage(cfg *config.Config) (NotificationStorage, error) {
	switch cfg.StorageType {
	case config.StorageRedis:
		slog.Info("Using redis notification storage")
		client, err := redis.NewRedisClient(&cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisNotificationStorage(client, cfg.RedisConfig.Namespace), nil
	case config.StorageRedisSentinel:
		slog.Info("Using redis sentinel notification storage")
		client, err := redis.NewRedisSentinelClient(&cfg.RedisSentinelConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisNotificationStorage(client, cfg.RedisSentinelConfig.Namespace), nil
	case config.StorageMemory:
		slog.Info("Using in memory notification storage")
		return NewInMemoryNotificationStorage(), nil
	}
	return nil, fmt.Errorf("%v is not a valid storage type", cfg.StorageType)
}
