package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"

	"github.com/MagnunAVF/shorturls/internal/config"
	"github.com/MagnunAVF/shorturls/internal/events"
	"github.com/MagnunAVF/shorturls/internal/httpapi"
	applog "github.com/MagnunAVF/shorturls/internal/logger"
	"github.com/MagnunAVF/shorturls/internal/shortener"
	"github.com/MagnunAVF/shorturls/internal/storage/gormstore"
	"github.com/MagnunAVF/shorturls/internal/storage/memory"
	"github.com/MagnunAVF/shorturls/internal/storage/rediscache"
)

const shutdownTimeout = 10 * time.Second

type storage struct {
	mappings shortener.MappingStore
	clicks   shortener.ClickLog
	close    func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	applog.InitFromEnv()

	if err := run(cfg); err != nil {
		slog.Error("API service stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	mappings := st.mappings
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("Redis unreachable, lookups will hit the database until it recovers", "addr", cfg.RedisAddr, "err", err)
		}
		mappings = rediscache.New(mappings, rdb, cfg.CacheTTL)
	}

	clicks := st.clicks
	if cfg.RabbitMQURL != "" {
		conn, err := amqp091.Dial(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("connect to RabbitMQ: %w", err)
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("open RabbitMQ channel: %w", err)
		}
		defer ch.Close()
		if _, err := events.DeclareQueue(ch, cfg.ClickQueue); err != nil {
			return err
		}
		clicks = events.NewPublishingClickLog(clicks, events.NewClickPublisher(ch, cfg.ClickQueue), nil)
	}

	engine := shortener.NewEngine(mappings, clicks, shortener.Options{
		CodeLength:      cfg.CodeLength,
		DefaultValidity: cfg.DefaultValidity,
		MaxAttempts:     cfg.MaxAttempts,
	})
	app := httpapi.New(engine, httpapi.Config{BaseURL: cfg.AppDomain})

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("Starting API service", "addr", cfg.Port, "db_driver", cfg.DBDriver)
		listenErr <- app.Listen(cfg.Port)
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down API service")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func openStorage(cfg *config.Config) (*storage, error) {
	if cfg.DBDriver == "memory" {
		s := memory.New()
		return &storage{mappings: s, clicks: s, close: s.Close}, nil
	}

	dsn := cfg.DBURL
	if dsn == "" && cfg.DBDriver == "sqlite" {
		dsn = "file:shorturls.db?_foreign_keys=1"
	}
	s, err := gormstore.Open(cfg.DBDriver, dsn, applog.NewGormLogger(cfg.GormLogLevel))
	if err != nil {
		return nil, err
	}
	slog.Info("Database ready", "driver", cfg.DBDriver)
	return &storage{mappings: s, clicks: s, close: s.Close}, nil
}
