// Package queue wires music job kinds onto asynq: task construction,
// enqueue options, retry backoff and the worker server.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dripdrop/musicjobs/internal/config"
	"github.com/dripdrop/musicjobs/internal/logging"
	"github.com/dripdrop/musicjobs/internal/model"
)

// Kind identifies a task type.
type Kind string

const (
	KindProcessMusic Kind = "music:process"
	KindCleanupMusic Kind = "music:cleanup"
)

const QueueMaintenance = "maintenance"

// Table maps each kind to the handler that runs it.
type Table map[Kind]asynq.Handler

// Mux builds the asynq mux for the table.
func (t Table) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for kind, h := range t {
		mux.Handle(string(kind), h)
	}
	return mux
}

// NewTask builds a task of kind carrying jobID.
func NewTask(kind Kind, jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(model.MusicJobPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(string(kind), data), nil
}

// ParsePayload decodes the payload written by NewTask.
func ParsePayload(t *asynq.Task) (model.MusicJobPayload, error) {
	var p model.MusicJobPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to parse task payload: %w", err)
	}
	if p.JobID == "" {
		return p, fmt.Errorf("failed to parse task payload: missing jobId")
	}
	return p, nil
}

// RedisOpt converts redis settings into asynq connection options.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// RetryDelay returns an exponential backoff of base*2^n capped at max.
func RetryDelay(base, max time.Duration) func(n int, err error, t *asynq.Task) time.Duration {
	if base <= 0 {
		base = 10 * time.Second
	}
	if max < base {
		max = base
	}
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		delay := base
		for i := 0; i < n; i++ {
			delay *= 2
			if delay >= max {
				return max
			}
		}
		return delay
	}
}

// NewServer builds the worker server for cfg. errorHandler runs after every
// failed attempt.
func NewServer(redisOpt asynq.RedisConnOpt, cfg *config.Config, logger *slog.Logger, errorHandler asynq.ErrorHandler) *asynq.Server {
	concurrency := cfg.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			cfg.Queue.Name:   6,
			QueueMaintenance: 1,
		},
		RetryDelayFunc: RetryDelay(cfg.Queue.BackoffBase, cfg.Queue.BackoffMax),
		ErrorHandler:   errorHandler,
		Logger:         logging.NewAsynqLogger(logger),
		LogLevel:       logging.AsynqLevel(cfg.Server.LogLevel),
	})
}

// Client is the part of *asynq.Client the enqueuer uses.
type Client interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer submits music tasks with the configured retry policy.
type Enqueuer struct {
	client      Client
	queue       string
	maxAttempts int
	retention   time.Duration
}

func NewEnqueuer(client Client, cfg config.QueueConfig) *Enqueuer {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	name := cfg.Name
	if name == "" {
		name = "music"
	}
	return &Enqueuer{client: client, queue: name, maxAttempts: attempts, retention: cfg.Retention}
}

// EnqueueProcess submits the job for execution. The task id is the job id,
// so a second submission of the same job is rejected with
// asynq.ErrTaskIDConflict while the first is retained.
func (e *Enqueuer) EnqueueProcess(ctx context.Context, jobID string) (*asynq.TaskInfo, error) {
	task, err := NewTask(KindProcessMusic, jobID)
	if err != nil {
		return nil, err
	}
	return e.client.EnqueueContext(ctx, task,
		asynq.TaskID(jobID),
		asynq.Queue(e.queue),
		asynq.MaxRetry(e.maxAttempts-1),
		asynq.Retention(e.retention),
	)
}

// EnqueueCleanup schedules removal of the job's stored objects.
func (e *Enqueuer) EnqueueCleanup(ctx context.Context, jobID string) (*asynq.TaskInfo, error) {
	task, err := NewTask(KindCleanupMusic, jobID)
	if err != nil {
		return nil, err
	}
	return e.client.EnqueueContext(ctx, task,
		asynq.TaskID("cleanup:"+jobID),
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(e.maxAttempts-1),
		asynq.Retention(e.retention),
	)
}
