// Package rabbitmq adapts amqp091-go to the queue interfaces: durable queues
// on the default exchange, manual acknowledgement and publisher confirms.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/lector/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultHeartbeat   = 10 * time.Second
	defaultDialTimeout = 30 * time.Second
)

// Dialer implements queue.Dialer for an AMQP URL.
type Dialer struct {
	url    string
	name   string
	logger *slog.Logger
}

var _ queue.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer. name is reported to the broker as the
// connection name.
func NewDialer(url, name string, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{url: url, name: name, logger: logger.With(slog.String("component", "amqp_dialer"))}
}

// Dial implements queue.Dialer.
func (d *Dialer) Dial(ctx context.Context) (queue.Connection, error) {
	conn, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	return newConnection(conn), nil
}

func (d *Dialer) dial(ctx context.Context) (*amqp.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	conn, err := amqp.DialConfig(d.url, amqp.Config{
		Heartbeat:  defaultHeartbeat,
		Locale:     "en_US",
		Properties: amqp.Table{"connection_name": d.name},
		Dial:       amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	d.logger.Debug("opened broker connection", slog.String("connection_name", d.name))
	return conn, nil
}

// connection implements queue.Connection.
type connection struct {
	conn   *amqp.Connection
	closed chan error
}

func newConnection(conn *amqp.Connection) *connection {
	c := &connection{conn: conn, closed: make(chan error, 1)}
	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		defer close(c.closed)
		if amqpErr, ok := <-notify; ok && amqpErr != nil {
			c.closed <- amqpErr
		}
	}()
	return c
}

func (c *connection) Channel() (queue.Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, mapClosed(err)
	}
	return &channel{ch: ch, done: make(chan struct{})}, nil
}

func (c *connection) NotifyClose() <-chan error { return c.closed }

func (c *connection) Close() error { return mapClosed(c.conn.Close()) }

// channel implements queue.Channel.
type channel struct {
	ch        *amqp.Channel
	done      chan struct{}
	closeOnce sync.Once
}

func (c *channel) DeclareQueue(name string) error {
	_, err := c.ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	return mapClosed(err)
}

func (c *channel) Qos(prefetch int) error {
	return mapClosed(c.ch.Qos(prefetch, 0, false))
}

func (c *channel) Consume(name, consumerTag string) (<-chan queue.Delivery, error) {
	msgs, err := c.ch.Consume(
		name,
		consumerTag,
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, mapClosed(err)
	}

	out := make(chan queue.Delivery)
	go func() {
		defer close(out)
		for msg := range msgs {
			select {
			case out <- &delivery{msg: msg}:
			case <-c.done:
				// Unacknowledged deliveries are requeued by the broker.
				return
			}
		}
	}()
	return out, nil
}

func (c *channel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return mapClosed(c.ch.Close())
}

// delivery implements queue.Delivery.
type delivery struct {
	msg amqp.Delivery
}

func (d *delivery) Body() []byte      { return d.msg.Body }
func (d *delivery) MessageID() string { return d.msg.MessageId }
func (d *delivery) Redelivered() bool { return d.msg.Redelivered }
func (d *delivery) Ack() error        { return mapClosed(d.msg.Ack(false)) }

func (d *delivery) Nack(requeue bool) error {
	return mapClosed(d.msg.Nack(false, requeue))
}

// mapClosed translates amqp's closed errors into queue.ErrClosed.
func mapClosed(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("%w: %w", queue.ErrClosed, err)
	}
	return err
}
