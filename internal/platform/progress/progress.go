// Package progress tracks per-task progress counters in Redis so that status
// polls can report how far a running task has got.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/lector/internal/task"
	"github.com/redis/go-redis/v9"
)

const (
	fieldDone  = "done"
	fieldTotal = "total"
)

// Tracker implements task.ProgressTracker with one Redis hash per task.
// Entries expire after ttl so that abandoned tasks do not accumulate.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ task.ProgressTracker = (*Tracker)(nil)

// Connect parses a redis:// URL, verifies the server answers and returns a
// Tracker using it.
func Connect(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*Tracker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("could not parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("could not connect to Redis: %w", err)
	}

	return New(client, ttl, logger), nil
}

// New creates a Tracker around an existing client. A zero ttl keeps entries
// forever.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "progress_tracker")),
	}
}

// Key returns the Redis key holding the progress of taskID.
func Key(taskID uuid.UUID) string {
	return "lector:task:" + taskID.String() + ":progress"
}

// Start implements task.ProgressTracker.
func (t *Tracker) Start(ctx context.Context, taskID uuid.UUID, total int) error {
	return t.set(ctx, taskID, fieldDone, 0, fieldTotal, total)
}

// Advance implements task.ProgressTracker.
func (t *Tracker) Advance(ctx context.Context, taskID uuid.UUID, done int) error {
	return t.set(ctx, taskID, fieldDone, done)
}

func (t *Tracker) set(ctx context.Context, taskID uuid.UUID, values ...any) error {
	key := Key(taskID)
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		if t.ttl > 0 {
			pipe.Expire(ctx, key, t.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update progress of task %s: %w", taskID, err)
	}
	return nil
}

// Get implements task.ProgressTracker.
func (t *Tracker) Get(ctx context.Context, taskID uuid.UUID) (*task.Progress, bool, error) {
	fields, err := t.client.HGetAll(ctx, Key(taskID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read progress of task %s: %w", taskID, err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	done, err := strconv.Atoi(fields[fieldDone])
	if err != nil {
		return nil, false, fmt.Errorf("malformed progress of task %s: %w", taskID, err)
	}
	total, err := strconv.Atoi(fields[fieldTotal])
	if err != nil {
		return nil, false, fmt.Errorf("malformed progress of task %s: %w", taskID, err)
	}
	return &task.Progress{Done: done, Total: total}, true, nil
}

// Ping reports whether Redis is reachable.
func (t *Tracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (t *Tracker) Close() error {
	return t.client.Close()
}
