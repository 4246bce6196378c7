// Package store persists music job records. Two backends exist: Redis (the
// default, JSON documents under job:<id>) and PostgreSQL.
package store

import (
	"context"
	"fmt"

	"github.com/dripdrop/musicjobs/internal/failure"
	"github.com/dripdrop/musicjobs/internal/model"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = fmt.Errorf("music job %w", failure.ErrNotFound)

// JobStore is the durable record of music jobs.
type JobStore interface {
	Create(ctx context.Context, job *model.MusicJob) error
	Get(ctx context.Context, id string) (*model.MusicJob, error)
	// Update replaces an existing record. Missing records yield ErrNotFound.
	Update(ctx context.Context, job *model.MusicJob) error
	// List returns the user's jobs that are not deleted, newest first.
	List(ctx context.Context, userID string) ([]*model.MusicJob, error)
}
