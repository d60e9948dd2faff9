package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned when operating on a closed connection or channel.
	ErrClosed = errors.New("queue connection closed")

	// ErrNotConfirmed is returned when the broker negatively acknowledges a publish.
	ErrNotConfirmed = errors.New("publish not confirmed by broker")
)

// Message is an outgoing message.
type Message struct {
	// ID is the broker-level message id. Producers set it to the task id.
	ID          string
	ContentType string
	Body        []byte
	Timestamp   time.Time
	// Persistent asks the broker to write the message to disk so that it
	// survives a broker restart.
	Persistent bool
}

// Publisher publishes messages to named queues.
// Version: 1.0
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
}

// Delivery is a message received from a queue. Exactly one of Ack or Nack
// must be called, and only from the goroutine that received it.
// Version: 1.0
type Delivery interface {
	Body() []byte
	MessageID() string
	Redelivered() bool
	Ack() error
	Nack(requeue bool) error
}

// Channel is a session on a connection.
// Version: 1.0
type Channel interface {
	// DeclareQueue declares a durable queue, creating it if needed.
	DeclareQueue(name string) error

	// Qos bounds the number of unacknowledged deliveries on the channel.
	Qos(prefetch int) error

	// Consume starts consuming with manual acknowledgement. The returned
	// channel is closed when the channel or its connection closes.
	Consume(queue, consumerTag string) (<-chan Delivery, error)

	Close() error
}

// Connection is a live broker connection.
// Version: 1.0
type Connection interface {
	Channel() (Channel, error)

	// NotifyClose returns a channel that receives the reason when the
	// connection fails and is closed afterwards. A graceful close only
	// closes it.
	NotifyClose() <-chan error

	Close() error
}

// Dialer establishes broker connections.
// Version: 1.0
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}
