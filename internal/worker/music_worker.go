package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sourcegraph/conc"

	"github.com/dripdrop/musicjobs/internal/artwork"
	"github.com/dripdrop/musicjobs/internal/logging"
	"github.com/dripdrop/musicjobs/internal/model"
	"github.com/dripdrop/musicjobs/internal/queue"
	"github.com/dripdrop/musicjobs/internal/store"
	"github.com/dripdrop/musicjobs/internal/tags"
	"github.com/dripdrop/musicjobs/internal/workspace"
)

// Acquirer produces the job's local MP3.
type Acquirer interface {
	Acquire(ctx context.Context, job *model.MusicJob, dir string) (string, error)
}

// ArtworkResolver turns an artwork reference into image bytes, nil if none.
type ArtworkResolver interface {
	Resolve(ctx context.Context, spec string) *artwork.Artwork
}

// Publisher uploads the finished file.
type Publisher interface {
	Publish(ctx context.Context, filename string, job *model.MusicJob) (key string, url string, err error)
	Delete(ctx context.Context, key string) error
}

// Announcer broadcasts lifecycle changes.
type Announcer interface {
	Announce(ctx context.Context, jobID string, status model.JobStatus)
}

// Workspaces hands out per-job scratch directories.
type Workspaces interface {
	Create(jobID string) (*workspace.Workspace, error)
	Dispose(ws *workspace.Workspace)
}

// failureWriteTimeout bounds the store writes of the failure hook, which runs
// on a context that may already be past its deadline.
const failureWriteTimeout = 10 * time.Second

// MusicWorker processes music jobs
type MusicWorker struct {
	store      store.JobStore
	workspaces Workspaces
	acquirer   Acquirer
	artwork    ArtworkResolver
	publisher  Publisher
	announcer  Announcer
	applyTags  func(path string, fields tags.Fields) error
	now        func() time.Time
	logger     *slog.Logger
}

// NewMusicWorker creates a new music worker
func NewMusicWorker(
	jobStore store.JobStore,
	workspaces Workspaces,
	acquirer Acquirer,
	resolver ArtworkResolver,
	publisher Publisher,
	announcer Announcer,
	logger *slog.Logger,
) *MusicWorker {
	return &MusicWorker{
		store:      jobStore,
		workspaces: workspaces,
		acquirer:   acquirer,
		artwork:    resolver,
		publisher:  publisher,
		announcer:  announcer,
		applyTags:  tags.Apply,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logging.Or(logger).With(logging.FieldComponent, "music_worker"),
	}
}

// ProcessTask handles music task processing
func (w *MusicWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParsePayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	logger := w.logger.With(logging.FieldJobID, payload.JobID)
	if taskID, ok := asynq.GetTaskID(ctx); ok {
		logger = logger.With(logging.FieldTaskID, taskID)
	}
	if retried, ok := asynq.GetRetryCount(ctx); ok {
		logger = logger.With(logging.FieldAttempt, retried)
	}
	return w.Run(logging.WithContext(ctx, logger), payload.JobID)
}

// Run executes one attempt of the job. Every exit path disposes the
// workspace; any error leaves the record as it was before the failing step.
func (w *MusicWorker) Run(ctx context.Context, jobID string) error {
	logger := logging.FromContextOr(ctx, w.logger.With(logging.FieldJobID, jobID))

	job, err := w.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("load job: %w", err)
	}

	switch {
	case job.Failed:
		return fmt.Errorf("job %s already failed: %w", jobID, asynq.SkipRetry)
	case job.CompletedAt != nil:
		logger.Info("job already completed, skipping")
		return nil
	case job.Deleted():
		logger.Info("job deleted, skipping")
		return nil
	}

	if job.StartedAt == nil {
		now := w.now()
		job.StartedAt = &now
		job.UpdatedAt = now
		if err := w.store.Update(ctx, job); err != nil {
			return fmt.Errorf("mark job started: %w", err)
		}
	}
	w.announcer.Announce(ctx, job.ID, model.JobStatusStarted)
	logger.Info("music job started")

	ws, err := w.workspaces.Create(job.ID)
	if err != nil {
		return err
	}
	defer w.workspaces.Dispose(ws)

	var (
		art *artwork.Artwork
		wg  conc.WaitGroup
	)
	if job.ArtworkURL != nil && *job.ArtworkURL != "" {
		spec := *job.ArtworkURL
		wg.Go(func() {
			art = w.artwork.Resolve(ctx, spec)
		})
	}
	filename, acquireErr := w.acquirer.Acquire(ctx, job, ws.Dir)
	wg.Wait()
	if acquireErr != nil {
		return acquireErr
	}

	fields := tags.Fields{
		Title:    job.Title,
		Artist:   job.Artist,
		Album:    job.Album,
		Grouping: job.Grouping,
		Artwork:  art,
	}
	if err := w.applyTags(filename, fields); err != nil {
		return err
	}

	key, url, err := w.publisher.Publish(ctx, filename, job)
	if err != nil {
		return err
	}

	// cleanup may have run while this attempt was working
	current, err := w.store.Get(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}
	if current.Deleted() {
		logger.Info("job deleted while running, discarding output", "download_filename", key)
		if err := w.publisher.Delete(ctx, key); err != nil {
			logger.Error("delete output of deleted job", "download_filename", key, "error", err)
		}
		return nil
	}

	now := w.now()
	current.DownloadFilename = &key
	current.DownloadURL = &url
	current.CompletedAt = &now
	current.UpdatedAt = now
	if err := w.store.Update(ctx, current); err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}

	w.announcer.Announce(ctx, job.ID, model.JobStatusCompleted)
	logger.Info("music job completed", "download_filename", key)
	return nil
}

// OnExhaustedRetries is the asynq error handler. It marks the job failed
// once the last attempt has failed or retrying is pointless.
func (w *MusicWorker) OnExhaustedRetries(ctx context.Context, t *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	w.handleFailure(ctx, t, err, retried, maxRetry)
}

func (w *MusicWorker) handleFailure(ctx context.Context, t *asynq.Task, err error, retried, maxRetry int) {
	logger := w.logger.With("task_type", t.Type(), "attempt", retried, "max_retry", maxRetry)

	if retried < maxRetry && !errors.Is(err, asynq.SkipRetry) {
		logger.Warn("task attempt failed, will retry", "error", err)
		return
	}

	if queue.Kind(t.Type()) != queue.KindProcessMusic {
		logger.Error("task failed permanently", "error", err)
		return
	}

	payload, perr := queue.ParsePayload(t)
	if perr != nil {
		logger.Error("task failed permanently with unreadable payload", "error", err)
		return
	}

	logger = logger.With(logging.FieldJobID, payload.JobID)
	logger.Error("music job failed", "error", err)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	if merr := w.MarkFailed(ctx, payload.JobID); merr != nil {
		logger.Error("mark job failed", "error", merr)
	}
}

// MarkFailed sets the failure flag on the job. Completed and already failed
// jobs are left alone; a missing job is not an error.
func (w *MusicWorker) MarkFailed(ctx context.Context, jobID string) error {
	job, err := w.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if job.Failed || job.CompletedAt != nil {
		return nil
	}

	job.Failed = true
	job.UpdatedAt = w.now()
	if err := w.store.Update(ctx, job); err != nil {
		return err
	}
	w.announcer.Announce(ctx, job.ID, model.JobStatusFailed)
	return nil
}
