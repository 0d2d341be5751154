// Package analytics consumes click events from RabbitMQ and folds them into
// per-code rollups.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/samber/lo"

	"github.com/MagnunAVF/shorturls/internal/events"
	"github.com/MagnunAVF/shorturls/internal/logger"
)

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 2 * time.Second
	DefaultPrefetch      = 100
)

var ErrDeliveriesClosed = errors.New("analytics: delivery channel closed")

// RollupStore is satisfied by *gormstore.Store.
type RollupStore interface {
	AddClickCounts(ctx context.Context, counts map[string]int64) error
}

// Consumer is the part of *amqp091.Channel Subscribe needs.
type Consumer interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
}

// Subscribe sets the prefetch window and starts a manual-ack consumer.
func Subscribe(ch Consumer, queue string, prefetch int) (<-chan amqp091.Delivery, error) {
	if prefetch <= 0 {
		prefetch = DefaultPrefetch
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %q: %w", queue, err)
	}
	return msgs, nil
}

type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

type Worker struct {
	store RollupStore
	cfg   Config
	log   *slog.Logger

	events     []events.ClickMessage
	deliveries []amqp091.Delivery
}

func NewWorker(store RollupStore, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	return &Worker{store: store, cfg: cfg, log: logger.Default()}
}

// Run batches deliveries until ctx is cancelled or the channel closes. A batch
// is written when it reaches BatchSize or when FlushInterval passes, and is
// flushed once more on the way out.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp091.Delivery) error {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx))
			return nil
		case d, ok := <-deliveries:
			if !ok {
				w.flush(context.WithoutCancel(ctx))
				return ErrDeliveriesClosed
			}
			w.add(d)
			if len(w.events) >= w.cfg.BatchSize {
				w.flush(ctx)
				ticker.Reset(w.cfg.FlushInterval)
			}
		case <-ticker.C:
			if len(w.events) > 0 {
				w.log.Debug("timer flush", "count", len(w.events))
				w.flush(ctx)
			}
		}
	}
}

func (w *Worker) add(d amqp091.Delivery) {
	var msg events.ClickMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.ShortCode == "" {
		w.log.Error("undecodable click message, rejecting", "message_id", d.MessageId, "err", err)
		_ = d.Reject(false)
		return
	}
	w.events = append(w.events, msg)
	w.deliveries = append(w.deliveries, d)
}

func (w *Worker) flush(ctx context.Context) {
	if len(w.events) == 0 {
		return
	}
	batch, deliveries := w.events, w.deliveries
	w.events, w.deliveries = nil, nil

	counts := lo.MapValues(
		lo.CountValuesBy(batch, func(m events.ClickMessage) string { return m.ShortCode }),
		func(n int, _ string) int64 { return int64(n) },
	)

	if err := w.store.AddClickCounts(ctx, counts); err != nil {
		w.log.Error("rollup batch failed, requeueing", "count", len(batch), "err", err)
		for _, d := range deliveries {
			_ = d.Nack(false, true)
		}
		return
	}
	for _, d := range deliveries {
		_ = d.Ack(false)
	}
	w.log.Info("rollup batch stored", "events", len(batch), "codes", len(counts))
}
