package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/domain"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/queue"
)

// Routes maps each task kind to the queue its envelopes are published to.
type Routes map[domain.TaskKind]string

// Producer validates submissions and publishes them as task envelopes.
// It never writes to the metadata store: a task exists as soon as its
// envelope is durably queued.
type Producer struct {
	publisher queue.Publisher
	routes    Routes
	logger    *slog.Logger
}

// NewProducer creates a Producer.
func NewProducer(publisher queue.Publisher, routes Routes, logger *slog.Logger) (*Producer, error) {
	if publisher == nil {
		return nil, ErrNilPublisher
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	for kind, name := range routes {
		if !kind.Valid() || name == "" {
			return nil, fmt.Errorf("%w: %q -> %q", ErrUnknownQueue, kind, name)
		}
	}

	return &Producer{
		publisher: publisher,
		routes:    routes,
		logger:    logger.With(slog.String("component", "task_producer")),
	}, nil
}

// Submit enqueues payload on behalf of ownerID and returns the new task id
// without waiting for processing.
//
// Invalid input fails with domain.ErrValidation. A failed publish fails with
// domain.ErrQueueUnavailable and no task id, in which case the caller must
// resubmit rather than poll.
func (p *Producer) Submit(ctx context.Context, ownerID uuid.UUID, payload Payload) (uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, p.logger)

	env, err := NewEnvelope(ownerID, payload)
	if err != nil {
		log.Debug("rejected task submission", slog.String("error", err.Error()))
		return uuid.Nil, err
	}

	name, ok := p.routes[env.Kind]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %w: %s", domain.ErrValidation, ErrUnknownQueue, env.Kind)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	msg := queue.Message{
		ID:          env.TaskID.String(),
		ContentType: "application/json",
		Body:        body,
		Timestamp:   env.Timestamp,
		Persistent:  true,
	}

	if err := p.publisher.Publish(ctx, name, msg); err != nil {
		log.Error("failed to publish task",
			slog.String("task_id", env.TaskID.String()),
			slog.String("kind", string(env.Kind)),
			slog.String("queue", name),
			slog.String("error", err.Error()))
		return uuid.Nil, fmt.Errorf("%w: %w", domain.ErrQueueUnavailable, err)
	}

	log.Info("task submitted",
		slog.String("task_id", env.TaskID.String()),
		slog.String("owner_id", ownerID.String()),
		slog.String("kind", string(env.Kind)),
		slog.String("queue", name))

	return env.TaskID, nil
}
