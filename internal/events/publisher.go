// Package events publishes domain events for consumers outside the request path,
// such as the reconciliation worker that repairs failed secondary postings.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event types.
const (
	TypeReconciliationRequired = "reconciliation.required"
	TypeFolioCancelled         = "folio.cancelled"
	TypePlatformFeeWaived      = "platform_fee.waived"
	TypeApprovalLockout        = "approval.lockout"
)

type Event struct {
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id"`
	EntityIDs  map[string]any `json:"entity_ids,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher delivers events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes events to the logger when no broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, e Event) error {
	p.Logger.Warn("event not delivered to broker", "type", e.Type, "tenant_id", e.TenantID, "entity_ids", e.EntityIDs, "payload", e.Payload)
	return nil
}

// AMQPPublisher publishes persistent JSON messages to a durable queue named after the event type.
type AMQPPublisher struct {
	url    string
	logger *slog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func NewAMQPPublisher(url string, logger *slog.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, logger: logger, declared: map[string]bool{}}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	p.conn = conn
	p.ch = ch
	p.declared = map[string]bool{}
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if err := p.connect(); err != nil {
			p.logger.Error("rabbitmq reconnect failed", "err", err)
			return err
		}
	}
	if !p.declared[e.Type] {
		if _, err := p.ch.QueueDeclare(e.Type, true, false, false, false, nil); err != nil {
			p.logger.Error("rabbitmq queue declare failed", "queue", e.Type, "err", err)
			return err
		}
		p.declared[e.Type] = true
	}

	err = p.ch.PublishWithContext(ctx, "", e.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.OccurredAt,
		Body:         body,
	})
	if err != nil {
		p.logger.Error("rabbitmq publish failed", "type", e.Type, "err", err)
		return err
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory. Used by tests and local tooling.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, e)
	return nil
}

// OfType returns recorded events with the given type.
func (r *Recorder) OfType(typ string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.Events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
