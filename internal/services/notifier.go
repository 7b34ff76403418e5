package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// EventType names a notification emitted by the ledger core.
type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventEscrowReleased     EventType = "escrow.released"
	EventDepositRequested   EventType = "deposit.requested"
	EventDepositApproved    EventType = "deposit.approved"
	EventDepositRejected    EventType = "deposit.rejected"
	EventTransferCompleted  EventType = "transfer.completed"
)

// Event is published after the unit that produced it has committed.
type Event struct {
	Type          EventType `json:"type"`
	OrderID       string    `json:"order_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	AccountID     string    `json:"account_id,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Status        string    `json:"status,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Notifier delivers events to the notification subsystem.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// RedisNotifier pushes JSON events onto a Redis list.
type RedisNotifier struct {
	client *redis.Client
	list   string
}

func NewRedisNotifier(client *redis.Client, list string) *RedisNotifier {
	return &RedisNotifier{client: client, list: list}
}

func (n *RedisNotifier) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.client.RPush(ctx, n.list, data).Err()
}

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes JSON events to a Kafka topic keyed by order or account.
type KafkaNotifier struct {
	writer MessageWriter
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return NewKafkaNotifierWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	})
}

func NewKafkaNotifierWithWriter(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (n *KafkaNotifier) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := event.OrderID
	if key == "" {
		key = event.AccountID
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// LogNotifier writes events to the service log. Used when no broker is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Publish(_ context.Context, event Event) error {
	n.log.Info().
		Str("event", string(event.Type)).
		Str("order_id", event.OrderID).
		Str("transaction_id", event.TransactionID).
		Str("account_id", event.AccountID).
		Int64("amount", event.Amount).
		Str("status", event.Status).
		Msg("notification")
	return nil
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Event) error { return nil }

// dispatcher publishes events after commit. Failures are logged and never
// returned to the caller of the ledger operation.
type dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	log      zerolog.Logger
}

func newDispatcher(notifier Notifier, timeout time.Duration, log zerolog.Logger) dispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return dispatcher{notifier: notifier, timeout: timeout, log: log}
}

func (d dispatcher) emit(ctx context.Context, events ...Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	for _, event := range events {
		if event.OccurredAt.IsZero() {
			event.OccurredAt = time.Now().UTC()
		}
		if err := d.publish(ctx, event); err != nil {
			d.log.Warn().Err(err).Str("event", string(event.Type)).Str("order_id", event.OrderID).
				Str("transaction_id", event.TransactionID).Msg("Failed to publish notification")
		}
	}
}

func (d dispatcher) publish(ctx context.Context, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return d.notifier.Publish(ctx, event)
}
