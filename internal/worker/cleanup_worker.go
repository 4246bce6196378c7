package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dripdrop/musicjobs/internal/failure"
	"github.com/dripdrop/musicjobs/internal/logging"
	"github.com/dripdrop/musicjobs/internal/queue"
)

// Cleaner removes a job's stored objects and soft-deletes it.
type Cleaner interface {
	Cleanup(ctx context.Context, jobID string) error
}

// CleanupWorker runs queued job deletions
type CleanupWorker struct {
	cleaner Cleaner
	logger  *slog.Logger
}

func NewCleanupWorker(cleaner Cleaner, logger *slog.Logger) *CleanupWorker {
	return &CleanupWorker{
		cleaner: cleaner,
		logger:  logging.Or(logger).With(logging.FieldComponent, "cleanup_worker"),
	}
}

// ProcessTask handles cleanup task processing
func (w *CleanupWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParsePayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	logger := w.logger.With(logging.FieldJobID, payload.JobID)
	if err := w.cleaner.Cleanup(ctx, payload.JobID); err != nil {
		if errors.Is(err, failure.ErrNotFound) {
			logger.Warn("cleanup of unknown job")
			return nil
		}
		logger.Error("cleanup failed", "error", err)
		return err
	}
	return nil
}
