// Package notify publishes domain events (donation outcomes, moderation
// decisions) to RabbitMQ for downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Topics. Each is also the name of a durable queue bound to the default
// exchange.
const (
	TopicDonationOutcome   = "donation.outcome"
	TopicModerationDecided = "moderation.decided"
)

// Topics lists every topic crowdstage publishes.
var Topics = []string{TopicDonationOutcome, TopicModerationDecided}

// Publisher sends a JSON payload on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Nop discards every message. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// AMQPPublisher publishes persistent JSON messages over one connection,
// redialling when the connection drops.
type AMQPPublisher struct {
	url string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewAMQPPublisher dials url and declares the queues for every topic.
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connectLocked() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	for _, topic := range Topics {
		if _, err := ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("declare queue %s: %w", topic, err)
		}
	}

	p.conn = conn
	p.ch = ch
	return nil
}

// Publish marshals payload and publishes it to topic.
func (p *AMQPPublisher) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.conn == nil || p.conn.IsClosed() || p.ch == nil || p.ch.IsClosed() {
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", topic, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close shuts down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// Best publishes and logs a failure instead of returning it. Notifications
// never fail the operation that produced them.
func Best(ctx context.Context, publisher Publisher, topic string, payload any) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to publish notification")
	}
}
