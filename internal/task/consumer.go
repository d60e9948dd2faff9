package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/queue"
	"github.com/sethvargo/go-retry"
)

// ConnState is the connection state of a Consumer.
type ConnState int32

// Consumer connection states
const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String implements fmt.Stringer.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// Handler processes the envelopes of one task kind and returns the artifact
// that completes the task. Handlers must be idempotent with respect to the
// task id because transport failures cause redelivery.
type Handler interface {
	Handle(ctx context.Context, env *Envelope) (*domain.Artifact, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env *Envelope) (*domain.Artifact, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, env *Envelope) (*domain.Artifact, error) {
	return f(ctx, env)
}

// ConsumerConfig holds configuration for a Consumer
type ConsumerConfig struct {
	// Queue is the durable queue to consume from.
	Queue string

	// Prefetch bounds the number of unacknowledged messages, and therefore
	// concurrently running jobs, held by this consumer.
	Prefetch int

	// ConnectAttempts is the number of connection attempts made before the
	// consumer gives up with domain.ErrBrokerUnreachable.
	ConnectAttempts int

	// RetryDelay is the fixed delay between connection attempts.
	RetryDelay time.Duration

	// PollInterval is how often the dispatch loop reports on running jobs.
	PollInterval time.Duration

	// ShutdownTimeout bounds how long shutdown waits for running jobs.
	// Jobs still running afterwards are left unacknowledged.
	ShutdownTimeout time.Duration
}

// DefaultConsumerConfig returns a ConsumerConfig with reasonable defaults
func DefaultConsumerConfig(queueName string) ConsumerConfig {
	return ConsumerConfig{
		Queue:           queueName,
		Prefetch:        1,
		ConnectAttempts: 5,
		RetryDelay:      5 * time.Second,
		PollInterval:    time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ConsumerStats are running totals for a Consumer.
type ConsumerStats struct {
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Discarded  int64 `json:"discarded"`
	Reconnects int64 `json:"reconnects"`
	InFlight   int64 `json:"in_flight"`
}

// Consumer consumes task envelopes from one queue and dispatches them to the
// handler registered for their kind.
//
// Messages are acknowledged once their outcome is recorded, whether the task
// completed or failed: processing failures are terminal and never requeued.
// A lost connection leaves running jobs unacknowledged so that the broker
// redelivers them, and the consumer reconnects.
type Consumer struct {
	cfg      ConsumerConfig
	dialer   queue.Dialer
	recorder *Recorder
	handlers map[domain.TaskKind]Handler
	logger   *slog.Logger

	state      atomic.Int32
	completed  atomic.Int64
	failed     atomic.Int64
	discarded  atomic.Int64
	reconnects atomic.Int64
	inFlight   atomic.Int64
}

// NewConsumer creates a Consumer.
func NewConsumer(
	cfg ConsumerConfig,
	dialer queue.Dialer,
	recorder *Recorder,
	handlers map[domain.TaskKind]Handler,
	logger *slog.Logger,
) (*Consumer, error) {
	if dialer == nil {
		return nil, ErrNilDialer
	}
	if recorder == nil {
		return nil, ErrNilRecorder
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if len(handlers) == 0 {
		return nil, ErrNoHandlers
	}
	if cfg.Queue == "" {
		return nil, fmt.Errorf("%w: queue name is required", domain.ErrValidation)
	}

	log := logger.With(slog.String("component", "task_consumer"), slog.String("queue", cfg.Queue))

	if cfg.Prefetch <= 0 {
		log.Warn("invalid prefetch, defaulting to 1", slog.Int("configured", cfg.Prefetch))
		cfg.Prefetch = 1
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	return &Consumer{
		cfg:      cfg,
		dialer:   dialer,
		recorder: recorder,
		handlers: handlers,
		logger:   log,
	}, nil
}

// Queue returns the name of the consumed queue.
func (c *Consumer) Queue() string { return c.cfg.Queue }

// State returns the current connection state.
func (c *Consumer) State() ConnState { return ConnState(c.state.Load()) }

// Stats returns a snapshot of the consumer's counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Completed:  c.completed.Load(),
		Failed:     c.failed.Load(),
		Discarded:  c.discarded.Load(),
		Reconnects: c.reconnects.Load(),
		InFlight:   c.inFlight.Load(),
	}
}

func (c *Consumer) setState(s ConnState) {
	if ConnState(c.state.Swap(int32(s))) != s {
		c.logger.Debug("consumer state changed", slog.String("state", s.String()))
	}
}

// Run consumes until ctx is cancelled, reconnecting after transport failures.
// It returns nil on shutdown and an error wrapping domain.ErrBrokerUnreachable
// when a connection cannot be (re-)established.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	for {
		sess, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = c.consume(ctx, sess)
		sess.release(c.logger)
		c.setState(StateDisconnected)

		if err == nil || ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return nil
		}

		c.reconnects.Add(1)
		c.logger.Warn("broker connection lost, reconnecting", slog.String("error", err.Error()))
	}
}

// session holds the resources of one broker connection.
type session struct {
	conn       queue.Connection
	ch         queue.Channel
	deliveries <-chan queue.Delivery
	closed     <-chan error
}

func (s *session) release(log *slog.Logger) {
	if s.ch != nil {
		if err := s.ch.Close(); err != nil && !errors.Is(err, queue.ErrClosed) {
			log.Debug("failed to close channel", slog.String("error", err.Error()))
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, queue.ErrClosed) {
			log.Debug("failed to close connection", slog.String("error", err.Error()))
		}
	}
}

// connect dials the broker with a bounded number of fixed-delay attempts.
func (c *Consumer) connect(ctx context.Context) (*session, error) {
	c.setState(StateConnecting)

	attempt := 0
	backoff := retry.WithMaxRetries(uint64(c.cfg.ConnectAttempts-1), retry.NewConstant(c.cfg.RetryDelay))

	sess, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*session, error) {
		attempt++
		sess, err := c.open(ctx)
		if err != nil {
			c.logger.Warn("failed to connect to broker",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", c.cfg.ConnectAttempts),
				slog.Duration("retry_delay", c.cfg.RetryDelay),
				slog.String("error", err.Error()))
			return nil, retry.RetryableError(err)
		}
		return sess, nil
	})
	if err != nil {
		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %d attempts: %w", domain.ErrBrokerUnreachable, attempt, err)
	}

	c.setState(StateConnected)
	c.logger.Info("connected to broker",
		slog.Int("attempt", attempt),
		slog.Int("prefetch", c.cfg.Prefetch))
	return sess, nil
}

// open acquires a connection and a consuming channel, releasing whatever was
// acquired if a later step fails.
func (c *Consumer) open(ctx context.Context) (*session, error) {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	sess := &session{conn: conn, closed: conn.NotifyClose()}

	ch, err := conn.Channel()
	if err != nil {
		sess.release(c.logger)
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	sess.ch = ch

	if err := ch.DeclareQueue(c.cfg.Queue); err != nil {
		sess.release(c.logger)
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.Qos(c.cfg.Prefetch); err != nil {
		sess.release(c.logger)
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	tag := fmt.Sprintf("lector-%s-%s", c.cfg.Queue, uuid.NewString()[:8])
	deliveries, err := ch.Consume(c.cfg.Queue, tag)
	if err != nil {
		sess.release(c.logger)
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	sess.deliveries = deliveries

	return sess, nil
}

// job is a delivery being processed.
type job struct {
	seq      uint64
	delivery queue.Delivery
	env      *Envelope
	cancel   context.CancelFunc
	started  time.Time
}

// jobResult is sent by a job once its outcome has been recorded.
// Abandoned jobs were cancelled before they could record an outcome and must
// not be acknowledged.
type jobResult struct {
	seq       uint64
	failed    bool
	abandoned bool
}

// consume runs the dispatch loop for one session. It returns nil when ctx is
// cancelled and an error wrapping domain.ErrTransportFailure when the
// connection is lost.
func (c *Consumer) consume(ctx context.Context, sess *session) error {
	jobs := make(map[uint64]*job, c.cfg.Prefetch)
	// Buffered so that jobs abandoned with this session never block.
	results := make(chan jobResult, c.cfg.Prefetch)
	var seq uint64

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Stop taking deliveries while the prefetch window is full.
		var deliveries <-chan queue.Delivery
		if len(jobs) < c.cfg.Prefetch {
			deliveries = sess.deliveries
		}

		select {
		case <-ctx.Done():
			c.drain(sess, jobs, results)
			return nil

		case err := <-sess.closed:
			c.abandon(jobs)
			if err == nil {
				err = queue.ErrClosed
			}
			return fmt.Errorf("%w: %w", domain.ErrTransportFailure, err)

		case d, ok := <-deliveries:
			if !ok {
				c.abandon(jobs)
				return fmt.Errorf("%w: delivery channel closed", domain.ErrTransportFailure)
			}
			seq++
			if j := c.dispatch(ctx, seq, d, results); j != nil {
				jobs[j.seq] = j
			}

		case r := <-results:
			c.finish(jobs, r)

		case <-ticker.C:
			for _, j := range jobs {
				c.logger.Info("task still processing",
					slog.String("task_id", j.env.TaskID.String()),
					slog.Duration("elapsed", time.Since(j.started).Round(time.Millisecond)))
			}
		}
	}
}

// dispatch decodes a delivery and starts its job. Undecodable messages are
// acknowledged and dropped.
func (c *Consumer) dispatch(ctx context.Context, seq uint64, d queue.Delivery, results chan<- jobResult) *job {
	env, err := DecodeEnvelope(d.Body())
	if err != nil {
		c.discarded.Add(1)
		c.logger.Error("discarding undecodable message",
			slog.String("message_id", d.MessageID()),
			slog.Bool("redelivered", d.Redelivered()),
			slog.String("error", err.Error()))
		c.ack(d, "")
		return nil
	}

	taskLog := c.logger.With(
		slog.String("task_id", env.TaskID.String()),
		slog.String("owner_id", env.OwnerID.String()),
		slog.String("kind", string(env.Kind)))

	// Jobs outlive ctx so that shutdown can let them finish; they are
	// cancelled explicitly when the connection is lost or shutdown times out.
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	jobCtx = logger.WithLogger(jobCtx, taskLog)

	j := &job{seq: seq, delivery: d, env: env, cancel: cancel, started: time.Now()}
	c.inFlight.Add(1)
	taskLog.Info("task received", slog.Bool("redelivered", d.Redelivered()))

	go c.run(jobCtx, j, results)
	return j
}

// run processes a job off the dispatch goroutine and records its outcome.
func (c *Consumer) run(ctx context.Context, j *job, results chan<- jobResult) {
	log := logger.FromContextOrDefault(ctx, c.logger)
	res := jobResult{seq: j.seq}

	// 1. Skip work that a previous delivery already completed
	if artifact, done, err := c.recorder.Completed(ctx, j.env); err != nil {
		log.Warn("failed to check for an existing artifact", slog.String("error", err.Error()))
	} else if done {
		log.Info("task already completed, acknowledging redelivery",
			slog.String("artifact_id", artifact.ID.String()))
		results <- res
		return
	}

	// 2. Mark as processing
	if err := c.recorder.Processing(ctx, j.env); err != nil {
		log.Warn("failed to record processing status", slog.String("error", err.Error()))
	}

	// 3. Run the handler and store its artifact
	artifact, err := c.handle(ctx, j.env)
	if err == nil {
		artifact, err = c.recorder.Complete(ctx, j.env, artifact)
	}

	if ctx.Err() != nil {
		log.Warn("task abandoned before completion", slog.Duration("elapsed", time.Since(j.started)))
		res.abandoned = true
		results <- res
		return
	}

	if err == nil {
		log.Info("task completed",
			slog.String("artifact_id", artifact.ID.String()),
			slog.String("ref", artifact.Ref),
			slog.Duration("elapsed", time.Since(j.started)))
		results <- res
		return
	}

	// 4. Record the failure; it is terminal
	if !errors.Is(err, domain.ErrProcessingFailure) {
		err = fmt.Errorf("%w: %w", domain.ErrProcessingFailure, err)
	}
	log.Error("task failed", slog.String("error", err.Error()))
	if recErr := c.recorder.Fail(ctx, j.env, err); recErr != nil {
		log.Error("failed to record task failure", slog.String("error", recErr.Error()))
	}
	res.failed = true
	results <- res
}

// handle runs the handler for env, converting panics into errors.
func (c *Consumer) handle(ctx context.Context, env *Envelope) (artifact *domain.Artifact, err error) {
	h, ok := c.handlers[env.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %s tasks on queue %s",
			domain.ErrProcessingFailure, env.Kind, c.cfg.Queue)
	}

	defer func() {
		if p := recover(); p != nil {
			logger.FromContextOrDefault(ctx, c.logger).Error("handler panicked",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())))
			artifact, err = nil, fmt.Errorf("%w: handler panic: %v", domain.ErrProcessingFailure, p)
		}
	}()

	return h.Handle(ctx, env)
}

// finish acknowledges a settled job.
func (c *Consumer) finish(jobs map[uint64]*job, r jobResult) {
	j, ok := jobs[r.seq]
	if !ok {
		return
	}
	delete(jobs, r.seq)
	j.cancel()
	c.inFlight.Add(-1)

	if r.abandoned {
		return
	}
	if r.failed {
		c.failed.Add(1)
	} else {
		c.completed.Add(1)
	}
	c.ack(j.delivery, j.env.TaskID.String())
}

func (c *Consumer) ack(d queue.Delivery, taskID string) {
	if err := d.Ack(); err != nil {
		// The broker will redeliver; handlers are idempotent.
		c.logger.Warn("failed to acknowledge message",
			slog.String("task_id", taskID),
			slog.String("message_id", d.MessageID()),
			slog.String("error", err.Error()))
	}
}

// abandon cancels every running job without acknowledging it.
func (c *Consumer) abandon(jobs map[uint64]*job) {
	for seq, j := range jobs {
		j.cancel()
		c.inFlight.Add(-1)
		c.logger.Warn("abandoning in-flight task for redelivery",
			slog.String("task_id", j.env.TaskID.String()))
		delete(jobs, seq)
	}
}

// drain waits for running jobs during shutdown, acknowledging those that
// finish within the shutdown timeout.
func (c *Consumer) drain(sess *session, jobs map[uint64]*job, results <-chan jobResult) {
	if len(jobs) == 0 {
		return
	}
	c.logger.Info("waiting for in-flight tasks before shutdown", slog.Int("count", len(jobs)))

	timeout := time.NewTimer(c.cfg.ShutdownTimeout)
	defer timeout.Stop()

	for len(jobs) > 0 {
		select {
		case r := <-results:
			c.finish(jobs, r)
		case <-sess.closed:
			c.abandon(jobs)
			return
		case <-timeout.C:
			c.logger.Warn("shutdown timeout reached", slog.Int("abandoned", len(jobs)))
			c.abandon(jobs)
			return
		}
	}
}
