package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/phrazzld/lector/internal/queue"
)

// ErrBrokerDown is returned by dials and publishes that the Broker was told to fail.
var ErrBrokerDown = errors.New("mock broker: connection refused")

// Broker is an in-memory message broker implementing queue.Dialer and
// queue.Publisher. It honours prefetch limits and requeues unacknowledged
// deliveries, flagged as redelivered, when their channel or connection goes
// away, which makes it suitable for exercising consumer reliability.
type Broker struct {
	mu       sync.Mutex
	queues   map[string]*brokerQueue
	conns    map[*brokerConn]struct{}
	changed  chan struct{}
	failDial int

	// PublishErr, when set, is returned by Publish.
	PublishErr error

	// Dials counts calls to Dial, including failed ones.
	Dials int
	// Published records every accepted message per queue.
	Published map[string][]queue.Message
	// PrefetchSet records the last prefetch applied per queue.
	PrefetchSet map[string]int
}

type brokerQueue struct {
	declared bool
	ready    []*brokerMessage
	acked    []*brokerMessage
	rejected []*brokerMessage
}

type brokerMessage struct {
	msg         queue.Message
	redelivered bool
	deliveries  int
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{
		queues:      make(map[string]*brokerQueue),
		conns:       make(map[*brokerConn]struct{}),
		changed:     make(chan struct{}),
		Published:   make(map[string][]queue.Message),
		PrefetchSet: make(map[string]int),
	}
}

var (
	_ queue.Dialer    = (*Broker)(nil)
	_ queue.Publisher = (*Broker)(nil)
)

// notify wakes every goroutine waiting for broker state to change.
// Callers must hold b.mu.
func (b *Broker) notify() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Broker) queue(name string) *brokerQueue {
	q, ok := b.queues[name]
	if !ok {
		q = &brokerQueue{}
		b.queues[name] = q
	}
	return q
}

// FailNextDials makes the next n dials fail with ErrBrokerDown.
func (b *Broker) FailNextDials(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failDial = n
}

// Dial implements queue.Dialer.
func (b *Broker) Dial(ctx context.Context) (queue.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.Dials++
	if b.failDial != 0 {
		if b.failDial > 0 {
			b.failDial--
		}
		return nil, ErrBrokerDown
	}

	conn := &brokerConn{broker: b, closeCh: make(chan error, 1)}
	b.conns[conn] = struct{}{}
	return conn, nil
}

// Publish implements queue.Publisher. Publishing to a queue nobody declared
// still stores the message, as with the default exchange.
func (b *Broker) Publish(ctx context.Context, name string, msg queue.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.PublishErr != nil {
		return b.PublishErr
	}
	b.Published[name] = append(b.Published[name], msg)
	b.queue(name).ready = append(b.queue(name).ready, &brokerMessage{msg: msg})
	b.notify()
	return nil
}

// KillConnections drops every open connection as a network failure would:
// close notifications receive an error and unacknowledged deliveries are
// requeued for redelivery.
func (b *Broker) KillConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.conns {
		conn.closeLocked(fmt.Errorf("%w: connection reset", ErrBrokerDown))
	}
}

// OpenConnections returns the number of live connections.
func (b *Broker) OpenConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Declared reports whether a queue has been declared durable.
func (b *Broker) Declared(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	return ok && q.declared
}

// Ready returns the number of messages waiting for delivery.
func (b *Broker) Ready(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue(name).ready)
}

// Acked returns the bodies of acknowledged messages in acknowledgement order.
func (b *Broker) Acked(name string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, 0, len(b.queue(name).acked))
	for _, m := range b.queue(name).acked {
		out = append(out, m.msg.Body)
	}
	return out
}

// Rejected returns the number of messages nacked without requeue.
func (b *Broker) Rejected(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue(name).rejected)
}

// Deliveries returns how many times messages with the given id were delivered.
func (b *Broker) Deliveries(name, messageID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.queue(name)
	for _, list := range [][]*brokerMessage{q.ready, q.acked, q.rejected} {
		for _, m := range list {
			if m.msg.ID == messageID {
				return m.deliveries
			}
		}
	}
	for conn := range b.conns {
		for _, ch := range conn.channels {
			for d := range ch.unacked {
				if d.queue == name && d.msg.msg.ID == messageID {
					return d.msg.deliveries
				}
			}
		}
	}
	return 0
}

// brokerConn implements queue.Connection.
type brokerConn struct {
	broker   *Broker
	channels []*brokerChannel
	closeCh  chan error
	closed   bool
}

func (c *brokerConn) Channel() (queue.Channel, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return nil, queue.ErrClosed
	}
	ch := &brokerChannel{
		conn:    c,
		unacked: make(map[*brokerDelivery]struct{}),
		done:    make(chan struct{}),
	}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *brokerConn) NotifyClose() <-chan error {
	return c.closeCh
}

func (c *brokerConn) Close() error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()

	if c.closed {
		return queue.ErrClosed
	}
	c.closeLocked(nil)
	return nil
}

// closeLocked tears the connection down. A nil reason is a graceful close.
func (c *brokerConn) closeLocked(reason error) {
	if c.closed {
		return
	}
	c.closed = true
	for _, ch := range c.channels {
		ch.closeLocked()
	}
	delete(c.broker.conns, c)
	if reason != nil {
		c.closeCh <- reason
	}
	close(c.closeCh)
	c.broker.notify()
}

// brokerChannel implements queue.Channel.
type brokerChannel struct {
	conn     *brokerConn
	prefetch int
	unacked  map[*brokerDelivery]struct{}
	done     chan struct{}
	closed   bool
}

func (ch *brokerChannel) DeclareQueue(name string) error {
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return queue.ErrClosed
	}
	b.queue(name).declared = true
	return nil
}

func (ch *brokerChannel) Qos(prefetch int) error {
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return queue.ErrClosed
	}
	ch.prefetch = prefetch
	return nil
}

func (ch *brokerChannel) Consume(name, consumerTag string) (<-chan queue.Delivery, error) {
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return nil, queue.ErrClosed
	}
	if q, ok := b.queues[name]; !ok || !q.declared {
		return nil, fmt.Errorf("mock broker: no queue %q", name)
	}
	b.PrefetchSet[name] = ch.prefetch

	out := make(chan queue.Delivery)
	go ch.pump(name, out)
	return out, nil
}

// pump pushes ready messages to the consumer while the prefetch window allows.
func (ch *brokerChannel) pump(name string, out chan<- queue.Delivery) {
	b := ch.conn.broker
	defer close(out)

	for {
		b.mu.Lock()
		if ch.closed {
			b.mu.Unlock()
			return
		}
		q := b.queue(name)
		if len(q.ready) > 0 && (ch.prefetch <= 0 || len(ch.unacked) < ch.prefetch) {
			m := q.ready[0]
			q.ready = q.ready[1:]
			m.deliveries++
			d := &brokerDelivery{ch: ch, queue: name, msg: m, redelivered: m.redelivered}
			ch.unacked[d] = struct{}{}
			b.mu.Unlock()

			select {
			case out <- d:
			case <-ch.done:
				// closeLocked has already requeued d.
				return
			}
			continue
		}
		wait := b.changed
		b.mu.Unlock()

		select {
		case <-wait:
		case <-ch.done:
			return
		}
	}
}

func (ch *brokerChannel) Close() error {
	b := ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch.closed {
		return queue.ErrClosed
	}
	ch.closeLocked()
	b.notify()
	return nil
}

// closeLocked requeues unacknowledged deliveries at the head of their queue.
func (ch *brokerChannel) closeLocked() {
	if ch.closed {
		return
	}
	ch.closed = true
	close(ch.done)

	b := ch.conn.broker
	for d := range ch.unacked {
		d.msg.redelivered = true
		q := b.queue(d.queue)
		q.ready = append([]*brokerMessage{d.msg}, q.ready...)
	}
	ch.unacked = make(map[*brokerDelivery]struct{})
}

// brokerDelivery implements queue.Delivery.
type brokerDelivery struct {
	ch          *brokerChannel
	queue       string
	msg         *brokerMessage
	redelivered bool
	settled     bool
}

func (d *brokerDelivery) Body() []byte      { return d.msg.msg.Body }
func (d *brokerDelivery) MessageID() string { return d.msg.msg.ID }
func (d *brokerDelivery) Redelivered() bool { return d.redelivered }

func (d *brokerDelivery) Ack() error {
	return d.settle(func(q *brokerQueue) {
		q.acked = append(q.acked, d.msg)
	})
}

func (d *brokerDelivery) Nack(requeue bool) error {
	return d.settle(func(q *brokerQueue) {
		if requeue {
			d.msg.redelivered = true
			q.ready = append([]*brokerMessage{d.msg}, q.ready...)
			return
		}
		q.rejected = append(q.rejected, d.msg)
	})
}

func (d *brokerDelivery) settle(apply func(q *brokerQueue)) error {
	b := d.ch.conn.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if d.ch.closed {
		return queue.ErrClosed
	}
	if d.settled {
		return fmt.Errorf("mock broker: delivery of %s already settled", d.msg.msg.ID)
	}
	d.settled = true
	delete(d.ch.unacked, d)
	apply(b.queue(d.queue))
	b.notify()
	return nil
}
