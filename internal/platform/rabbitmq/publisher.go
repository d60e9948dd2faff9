package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/lector/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher implements queue.Publisher over a single confirm-mode channel.
// The connection is opened on first use and reopened after a failure.
type Publisher struct {
	dialer *Dialer
	logger *slog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
	closed   bool
}

var _ queue.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher that dials with d.
func NewPublisher(d *Dialer, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		dialer: d,
		logger: logger.With(slog.String("component", "amqp_publisher")),
	}
}

// Publish sends msg to the named durable queue through the default exchange
// and waits for the broker's confirmation.
func (p *Publisher) Publish(ctx context.Context, name string, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return queue.ErrClosed
	}
	if err := p.ensureChannel(ctx); err != nil {
		return err
	}

	if !p.declared[name] {
		if _, err := p.ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			p.resetLocked()
			return fmt.Errorf("failed to declare queue %s: %w", name, mapClosed(err))
		}
		p.declared[name] = true
	}

	pub := amqp.Publishing{
		MessageId:   msg.ID,
		ContentType: msg.ContentType,
		Body:        msg.Body,
		Timestamp:   msg.Timestamp,
	}
	if msg.Persistent {
		pub.DeliveryMode = amqp.Persistent
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, "", name, false, false, pub)
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("failed to publish to %s: %w", name, mapClosed(err))
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		// The confirmation may still arrive; the channel is dropped so its
		// sequence numbers cannot be confused with the next publish.
		p.resetLocked()
		return fmt.Errorf("failed waiting for publish confirmation: %w", err)
	}
	if !acked {
		return fmt.Errorf("%w: message %s on %s", queue.ErrNotConfirmed, msg.ID, name)
	}
	return nil
}

func (p *Publisher) ensureChannel(ctx context.Context) error {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return nil
	}
	p.resetLocked()

	conn, err := p.dialer.dial(ctx)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", mapClosed(err))
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", mapClosed(err))
	}

	p.conn = conn
	p.ch = ch
	p.declared = make(map[string]bool)
	p.logger.Debug("publisher channel ready")
	return nil
}

func (p *Publisher) resetLocked() {
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			p.logger.Warn("failed to close publisher connection", slog.String("error", err.Error()))
		}
	}
	p.conn = nil
	p.ch = nil
	p.declared = nil
}

// Close closes the underlying connection. Further publishes fail with
// queue.ErrClosed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.resetLocked()
	return nil
}
