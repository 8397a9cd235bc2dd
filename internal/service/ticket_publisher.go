// Package service holds outbound integrations used by the HTTP handlers.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/support-desk/internal/queue"
)

var ErrPublisherClosed = errors.New("publisher closed")

// TicketPublisher sends ticket events to a durable RabbitMQ queue. The
// connection is opened on first use and re-dialed after the broker drops it.
type TicketPublisher struct {
	url   string
	queue string
	log   *zap.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewTicketPublisher(url, queueName string, log *zap.Logger) *TicketPublisher {
	return &TicketPublisher{url: url, queue: queueName, log: log}
}

// PublishTicketCreated sends ev as a persistent JSON message routed to the
// configured queue through the default exchange.
func (p *TicketPublisher) PublishTicketCreated(ctx context.Context, ev queue.TicketCreatedEvent) error {
	msg, err := newPublishing(ev, time.Now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close releases the broker connection. Later publishes fail with
// ErrPublisherClosed.
func (p *TicketPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	return err
}

// channel returns a live channel, dialing when needed. Callers hold p.mu.
func (p *TicketPublisher) channel() (*amqp.Channel, error) {
	if p.closed {
		return nil, ErrPublisherClosed
	}
	if p.ch != nil && !p.ch.IsClosed() && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.log.Info("ticket publisher connected", zap.String("queue", p.queue))
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *TicketPublisher) reset() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func newPublishing(ev queue.TicketCreatedEvent, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now.UTC(),
		MessageId:    ev.TicketID,
		Type:         "ticket.created",
		Body:         body,
	}, nil
}
