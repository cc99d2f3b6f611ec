package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/veilproof/riskscope/internal/core/domain"
	"github.com/veilproof/riskscope/internal/core/ports"
)

// StatusTracker couples the durable status write with the ephemeral status
// event. The cache write is the source of truth; the bus publish is a
// best-effort notify that must never fail the write.
type StatusTracker struct {
	cache ports.TaskCache
	bus   ports.StatusPublisher
	ttl   time.Duration
}

func NewStatusTracker(cache ports.TaskCache, bus ports.StatusPublisher, ttl time.Duration) *StatusTracker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StatusTracker{cache: cache, bus: bus, ttl: ttl}
}

func (t *StatusTracker) Set(ctx context.Context, taskID string, status domain.TaskStatus, progress int, message string) error {
	state := domain.TaskState{
		Status:   status,
		Progress: progress,
		Message:  message,
	}
	if err := t.cache.SetTaskState(ctx, taskID, state, t.ttl); err != nil {
		return err
	}

	if t.bus == nil {
		return nil
	}
	update := domain.StatusUpdate{
		TaskID:   taskID,
		Status:   status,
		Progress: progress,
		Message:  message,
	}
	if err := t.bus.PublishStatus(ctx, update); err != nil {
		slog.Warn("status_publish_failed", "task_id", taskID, "status", status, "error", err)
	}
	return nil
}

func (t *StatusTracker) TTL() time.Duration {
	return t.ttl
}
