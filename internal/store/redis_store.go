package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dripdrop/musicjobs/internal/model"
)

// RedisJobStore keeps each job as a JSON document and a per-user sorted set
// of job ids scored by creation time.
type RedisJobStore struct {
	redis     *redis.Client
	retention time.Duration
}

var _ JobStore = (*RedisJobStore)(nil)

// NewRedisJobStore returns a store backed by rdb. A zero retention keeps
// records until they are deleted.
func NewRedisJobStore(rdb *redis.Client, retention time.Duration) *RedisJobStore {
	return &RedisJobStore{redis: rdb, retention: retention}
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

func userJobsKey(userID string) string {
	return fmt.Sprintf("user:%s:jobs", userID)
}

func (s *RedisJobStore) Create(ctx context.Context, job *model.MusicJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	created, err := s.redis.SetNX(ctx, jobKey(job.ID), data, s.retention).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if !created {
		return fmt.Errorf("create job %s: already exists", job.ID)
	}

	if err := s.redis.ZAdd(ctx, userJobsKey(job.UserID), redis.Z{
		Score:  float64(job.CreatedAt.UnixNano()),
		Member: job.ID,
	}).Err(); err != nil {
		return fmt.Errorf("index job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.MusicJob, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	var job model.MusicJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (s *RedisJobStore) Update(ctx context.Context, job *model.MusicJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	ttl := s.retention
	if ttl == 0 {
		ttl = redis.KeepTTL
	}
	updated, err := s.redis.SetXX(ctx, jobKey(job.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if !updated {
		return fmt.Errorf("%w: %s", ErrNotFound, job.ID)
	}
	return nil
}

func (s *RedisJobStore) List(ctx context.Context, userID string) ([]*model.MusicJob, error) {
	ids, err := s.redis.ZRevRange(ctx, userJobsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", userID, err)
	}

	jobs := make([]*model.MusicJob, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if job.Deleted() {
			continue
		}
		jobs = append(jobs, job)
	}

	// Expired documents leave their ids behind in the index.
	if len(stale) > 0 {
		s.redis.ZRem(ctx, userJobsKey(userID), stale...)
	}
	return jobs, nil
}
