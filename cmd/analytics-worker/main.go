package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rabbitmq/amqp091-go"
	_ "go.uber.org/automaxprocs"

	"github.com/MagnunAVF/shorturls/internal/analytics"
	"github.com/MagnunAVF/shorturls/internal/config"
	"github.com/MagnunAVF/shorturls/internal/events"
	applog "github.com/MagnunAVF/shorturls/internal/logger"
	"github.com/MagnunAVF/shorturls/internal/storage/gormstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	applog.InitFromEnv()

	if cfg.DBDriver == "memory" {
		slog.Error("Analytics worker needs a database, DB_DRIVER=memory is not supported")
		os.Exit(1)
	}

	store, err := gormstore.Open(cfg.DBDriver, cfg.DBURL, applog.NewGormLogger(cfg.GormLogLevel))
	if err != nil {
		slog.Error("Unable to connect to database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	rabbitConn, err := amqp091.Dial(cfg.RabbitMQURL)
	if err != nil {
		slog.Error("Unable to connect to RabbitMQ", "err", err)
		os.Exit(1)
	}
	defer rabbitConn.Close()

	rabbitCH, err := rabbitConn.Channel()
	if err != nil {
		slog.Error("Unable to open RabbitMQ channel", "err", err)
		os.Exit(1)
	}
	defer rabbitCH.Close()

	q, err := events.DeclareQueue(rabbitCH, cfg.ClickQueue)
	if err != nil {
		slog.Error("Failed to declare queue", "err", err)
		os.Exit(1)
	}

	msgs, err := analytics.Subscribe(rabbitCH, q.Name, cfg.Prefetch)
	if err != nil {
		slog.Error("Failed to register consumer", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Analytics worker started, waiting for click events", "queue", q.Name,
		"batch_size", cfg.BatchSize, "flush_interval", cfg.FlushInterval)

	w := analytics.NewWorker(store, analytics.Config{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	})
	if err := w.Run(ctx, msgs); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Analytics worker stopped", "err", err)
		return
	}
	slog.Info("Analytics worker stopped")
}
