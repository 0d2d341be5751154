// Package events fans click events out to RabbitMQ for the analytics worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/MagnunAVF/shorturls/internal/shortener"
)

// ClickMessage is the JSON body of a click event on the queue.
type ClickMessage struct {
	ID        string    `json:"id"`
	ShortCode string    `json:"short_code"`
	Timestamp time.Time `json:"timestamp"`
	Referrer  string    `json:"referrer,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
}

// Channel is the part of *amqp091.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// QueueDeclarer is the part of *amqp091.Channel used to declare the click queue.
type QueueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
}

// DeclareQueue declares the durable click queue shared by the API and the worker.
func DeclareQueue(ch QueueDeclarer, name string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		return q, fmt.Errorf("declare queue %q: %w", name, err)
	}
	return q, nil
}

type ClickPublisher struct {
	ch    Channel
	queue string
}

func NewClickPublisher(ch Channel, queue string) *ClickPublisher {
	return &ClickPublisher{ch: ch, queue: queue}
}

func (p *ClickPublisher) Publish(ctx context.Context, ev *shortener.ClickEvent) error {
	msg := ClickMessage{
		ID:        uuid.NewString(),
		ShortCode: ev.MappingCode,
		Timestamp: ev.Timestamp,
		Referrer:  ev.Referrer,
		ClientIP:  ev.ClientIP,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal click: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish click: %w", err)
	}
	return nil
}

// Publisher is satisfied by *ClickPublisher.
type Publisher interface {
	Publish(ctx context.Context, ev *shortener.ClickEvent) error
}

// PublishingClickLog appends to the wrapped log and then publishes the event.
// Only the append decides the result; publish errors go to the reporter.
type PublishingClickLog struct {
	shortener.ClickLog
	pub      Publisher
	reporter shortener.ErrorReporter
}

func NewPublishingClickLog(next shortener.ClickLog, pub Publisher, reporter shortener.ErrorReporter) *PublishingClickLog {
	if reporter == nil {
		reporter = shortener.LogReporter{}
	}
	return &PublishingClickLog{ClickLog: next, pub: pub, reporter: reporter}
}

func (l *PublishingClickLog) AppendClick(ctx context.Context, ev *shortener.ClickEvent) error {
	if err := l.ClickLog.AppendClick(ctx, ev); err != nil {
		return err
	}
	if err := l.pub.Publish(ctx, ev); err != nil {
		l.reporter.Report(ctx, "publish click", err, "code", ev.MappingCode)
	}
	return nil
}

var _ shortener.ClickLog = (*PublishingClickLog)(nil)
