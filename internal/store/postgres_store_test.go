package store

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripdrop/musicjobs/internal/logging"
	"github.com/dripdrop/musicjobs/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping postgres store tests")
	}

	ctx := context.Background()
	db, err := OpenPostgres(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, logging.NewNop()))
	return db
}

func TestPostgresStoreLifecycle(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresJobStore(db, logging.NewNop())
	ctx := context.Background()

	userID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)
	job := testJob(uuid.NewString(), userID, now)
	grouping := "uploader"
	job.Grouping = &grouping
	t.Cleanup(func() { _, _ = db.Exec(`DELETE FROM music_jobs WHERE user_id = $1`, userID) })

	require.NoError(t, s.Create(ctx, job))
	assert.ErrorIs(t, s.Create(ctx, job), ErrDuplicate)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "uploader", *got.Grouping)
	assert.Equal(t, model.JobStatusPending, got.Status())

	key := "music/" + job.ID + "/title artist.mp3"
	got.DownloadFilename = &key
	got.StartedAt = &now
	got.CompletedAt = &now
	require.NoError(t, s.Update(ctx, got))

	got, err = s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status())

	jobs, err := s.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	got.DeletedAt = &now
	require.NoError(t, s.Update(ctx, got))
	jobs, err = s.List(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestPostgresStoreMissing(t *testing.T) {
	db := openTestDB(t)
	s := NewPostgresJobStore(db, logging.NewNop())

	_, err := s.Get(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Update(context.Background(), testJob(uuid.NewString(), "u", time.Now()))
	assert.ErrorIs(t, err, ErrNotFound)
}
