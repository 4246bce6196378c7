package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripdrop/musicjobs/internal/artwork"
	"github.com/dripdrop/musicjobs/internal/failure"
	"github.com/dripdrop/musicjobs/internal/logging"
	"github.com/dripdrop/musicjobs/internal/model"
	"github.com/dripdrop/musicjobs/internal/queue"
	"github.com/dripdrop/musicjobs/internal/store"
	"github.com/dripdrop/musicjobs/internal/tags"
	"github.com/dripdrop/musicjobs/internal/workspace"
)

type workerFixture struct {
	worker    *MusicWorker
	store     *memStore
	root      string
	acquirer  *fakeAcquirer
	resolver  *fakeResolver
	publisher *capturingPublisher
	announcer *recordingAnnouncer
}

func newWorkerFixture(t *testing.T, jobs ...*model.MusicJob) *workerFixture {
	t.Helper()
	f := &workerFixture{
		store:     newMemStore(jobs...),
		root:      t.TempDir(),
		acquirer:  &fakeAcquirer{},
		resolver:  &fakeResolver{},
		publisher: &capturingPublisher{},
		announcer: &recordingAnnouncer{},
	}
	f.worker = NewMusicWorker(
		f.store,
		workspace.NewManager(f.root, logging.NewNop()),
		f.acquirer,
		f.resolver,
		f.publisher,
		f.announcer,
		logging.NewNop(),
	)
	return f
}

func strPtr(s string) *string { return &s }

func pendingJob(id string) *model.MusicJob {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.MusicJob{
		ID:        id,
		UserID:    "u1",
		Title:     "Song",
		Artist:    "Band",
		Album:     "Record",
		Grouping:  strPtr("Channel"),
		VideoURL:  strPtr("https://video.example/watch?v=1"),
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func processTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	task, err := queue.NewTask(queue.KindProcessMusic, id)
	require.NoError(t, err)
	return task
}

func TestRunCompletesJob(t *testing.T) {
	job := pendingJob("j1")
	job.ArtworkURL = strPtr("https://img.example/cover.png")
	f := newWorkerFixture(t, job)
	f.resolver.art = &artwork.Artwork{Data: []byte{0x89, 'P', 'N', 'G', 1, 2, 3}, MimeType: "image/png"}

	require.NoError(t, f.worker.ProcessTask(context.Background(), processTask(t, "j1")))

	got := f.store.job("j1")
	assert.Equal(t, model.JobStatusCompleted, got.Status())
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.Failed)
	assert.Equal(t, "music/j1/song.mp3", *got.DownloadFilename)
	assert.Equal(t, "https://cdn.example/music/j1/song.mp3", *got.DownloadURL)
	assert.Equal(t, []model.JobStatus{model.JobStatusStarted, model.JobStatusCompleted}, f.announcer.statuses)
	assert.Equal(t, []string{"https://img.example/cover.png"}, f.resolver.specs)

	read := tags.ReadBytes(f.publisher.data, f.publisher.name, t.TempDir())
	require.NotNil(t, read.Title)
	assert.Equal(t, "Song", *read.Title)
	assert.Equal(t, "Band", *read.Artist)
	assert.Equal(t, "Record", *read.Album)
	assert.Equal(t, "Channel", *read.Grouping)
	require.NotNil(t, read.ArtworkURL)
	assert.Contains(t, *read.ArtworkURL, "data:image/png;base64,")

	_, err := os.Stat(f.acquirer.dirs[0])
	assert.True(t, os.IsNotExist(err), "workspace should be removed")
}

func TestRunWithoutArtworkSkipsResolver(t *testing.T) {
	f := newWorkerFixture(t, pendingJob("j1"))

	require.NoError(t, f.worker.Run(context.Background(), "j1"))

	assert.Empty(t, f.resolver.specs)
	read := tags.ReadBytes(f.publisher.data, f.publisher.name, t.TempDir())
	assert.Nil(t, read.ArtworkURL)
}

func TestRunAcquisitionFailureLeavesJobStarted(t *testing.T) {
	f := newWorkerFixture(t, pendingJob("j1"))
	f.acquirer.err = failure.Wrap(failure.ErrAcquisition, "acquire", "", "File not found", nil)

	err := f.worker.Run(context.Background(), "j1")
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrAcquisition)
	assert.Contains(t, err.Error(), "File not found")

	got := f.store.job("j1")
	assert.Equal(t, model.JobStatusStarted, got.Status())
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.DownloadURL)
	assert.Equal(t, []model.JobStatus{model.JobStatusStarted}, f.announcer.statuses)

	_, statErr := os.Stat(f.acquirer.dirs[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunRetryKeepsFirstStartTime(t *testing.T) {
	job := pendingJob("j1")
	started := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	job.StartedAt = &started
	f := newWorkerFixture(t, job)

	require.NoError(t, f.worker.Run(context.Background(), "j1"))
	assert.True(t, f.store.job("j1").StartedAt.Equal(started))
}

func TestRunPublishFailureIsNotCompleted(t *testing.T) {
	f := newWorkerFixture(t, pendingJob("j1"))
	f.publisher.err = failure.Wrap(failure.ErrStorage, "publish", "upload", "", errors.New("503"))

	err := f.worker.Run(context.Background(), "j1")
	assert.ErrorIs(t, err, failure.ErrStorage)
	assert.Nil(t, f.store.job("j1").CompletedAt)
}

func TestRunTaggingFailure(t *testing.T) {
	f := newWorkerFixture(t, pendingJob("j1"))
	f.worker.applyTags = func(string, tags.Fields) error {
		return failure.Wrap(failure.ErrTagging, "tags", "apply", "", errors.New("bad frame"))
	}

	err := f.worker.Run(context.Background(), "j1")
	assert.ErrorIs(t, err, failure.ErrTagging)
	assert.Nil(t, f.publisher.data)
}

func TestRunMissingJobSkipsRetry(t *testing.T) {
	f := newWorkerFixture(t)

	err := f.worker.Run(context.Background(), "missing")
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, failure.ErrNotFound)
	assert.Empty(t, f.announcer.statuses)
}

func TestRunTerminalJobs(t *testing.T) {
	now := time.Now()
	failed := pendingJob("failed")
	failed.Failed = true
	done := pendingJob("done")
	done.CompletedAt = &now
	deleted := pendingJob("deleted")
	deleted.DeletedAt = &now
	f := newWorkerFixture(t, failed, done, deleted)

	assert.ErrorIs(t, f.worker.Run(context.Background(), "failed"), asynq.SkipRetry)
	assert.NoError(t, f.worker.Run(context.Background(), "done"))
	assert.NoError(t, f.worker.Run(context.Background(), "deleted"))
	assert.Empty(t, f.acquirer.dirs)
	assert.Zero(t, f.store.updates)
}

func TestRunBusyWorkspace(t *testing.T) {
	f := newWorkerFixture(t, pendingJob("j1"))
	mgr := workspace.NewManager(f.root, logging.NewNop())
	held, err := mgr.Create("j1")
	require.NoError(t, err)
	defer mgr.Dispose(held)

	err = f.worker.Run(context.Background(), "j1")
	assert.ErrorIs(t, err, failure.ErrBusy)
	assert.Empty(t, f.acquirer.dirs)
}

func TestRunDeletedWhileRunningDiscardsOutput(t *testing.T) {
	f := newWorkerFixture(t, pendingJob("j1"))
	f.publisher.onPublish = func() {
		job := f.store.job("j1")
		deleted := time.Now()
		job.DeletedAt = &deleted
		require.NoError(t, f.store.Update(context.Background(), &job))
	}

	require.NoError(t, f.worker.Run(context.Background(), "j1"))

	got := f.store.job("j1")
	assert.NotNil(t, got.DeletedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.DownloadFilename)
	assert.Equal(t, []string{"music/j1/song.mp3"}, f.publisher.deleted)
	assert.Equal(t, []model.JobStatus{model.JobStatusStarted}, f.announcer.statuses)
}

func TestRunLogsWithWorkerLoggerByDefault(t *testing.T) {
	var buf bytes.Buffer
	f := newWorkerFixture(t, pendingJob("j1"))
	f.worker.logger = slog.New(slog.NewJSONHandler(&buf, nil)).With(logging.FieldComponent, "music_worker")

	require.NoError(t, f.worker.Run(context.Background(), "j1"))

	assert.Contains(t, buf.String(), `"component":"music_worker"`)
	assert.Contains(t, buf.String(), `"job_id":"j1"`)
}

func TestProcessTaskBadPayload(t *testing.T) {
	f := newWorkerFixture(t)

	err := f.worker.ProcessTask(context.Background(), asynq.NewTask(string(queue.KindProcessMusic), []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleFailureMarksFailedOnLastAttempt(t *testing.T) {
	job := pendingJob("j1")
	started := time.Now()
	job.StartedAt = &started
	f := newWorkerFixture(t, job)
	task := processTask(t, "j1")

	f.worker.handleFailure(context.Background(), task, errors.New("boom"), 1, 2)
	assert.False(t, f.store.job("j1").Failed)
	assert.Empty(t, f.announcer.statuses)

	f.worker.handleFailure(context.Background(), task, errors.New("boom"), 2, 2)
	got := f.store.job("j1")
	assert.True(t, got.Failed)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, model.JobStatusFailed, got.Status())
	assert.Equal(t, []model.JobStatus{model.JobStatusFailed}, f.announcer.statuses)
}

func TestHandleFailureWithExpiredContext(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	jobs := store.NewRedisJobStore(rdb, 0)

	job := pendingJob("j2")
	started := time.Now().UTC()
	job.StartedAt = &started
	require.NoError(t, jobs.Create(context.Background(), job))

	announcer := &recordingAnnouncer{}
	w := NewMusicWorker(jobs, workspace.NewManager(t.TempDir(), logging.NewNop()),
		&fakeAcquirer{}, &fakeResolver{}, &capturingPublisher{}, announcer, logging.NewNop())

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	w.handleFailure(ctx, processTask(t, "j2"), context.DeadlineExceeded, 2, 2)

	got, err := jobs.Get(context.Background(), "j2")
	require.NoError(t, err)
	assert.True(t, got.Failed)
	assert.Equal(t, model.JobStatusFailed, got.Status())
	assert.Equal(t, []model.JobStatus{model.JobStatusFailed}, announcer.statuses)
}

func TestHandleFailureOnSkipRetry(t *testing.T) {
	f := newWorkerFixture(t, pendingJob("j1"))

	f.worker.handleFailure(context.Background(), processTask(t, "j1"), asynq.SkipRetry, 0, 2)
	assert.True(t, f.store.job("j1").Failed)
}

func TestHandleFailureIgnoresOtherKinds(t *testing.T) {
	f := newWorkerFixture(t, pendingJob("j1"))
	task, err := queue.NewTask(queue.KindCleanupMusic, "j1")
	require.NoError(t, err)

	f.worker.handleFailure(context.Background(), task, errors.New("boom"), 5, 5)
	assert.False(t, f.store.job("j1").Failed)
}

func TestMarkFailedLeavesCompletedAndMissingJobs(t *testing.T) {
	now := time.Now()
	done := pendingJob("done")
	done.CompletedAt = &now
	f := newWorkerFixture(t, done)

	require.NoError(t, f.worker.MarkFailed(context.Background(), "done"))
	require.NoError(t, f.worker.MarkFailed(context.Background(), "missing"))
	assert.False(t, f.store.job("done").Failed)
	assert.Empty(t, f.announcer.statuses)
}

func TestCleanupWorker(t *testing.T) {
	cleaner := &fakeCleaner{}
	w := NewCleanupWorker(cleaner, logging.NewNop())
	task, err := queue.NewTask(queue.KindCleanupMusic, "j1")
	require.NoError(t, err)

	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, []string{"j1"}, cleaner.ids)

	cleaner.err = failure.Wrap(failure.ErrStorage, "cleanup", "", "", errors.New("denied"))
	assert.ErrorIs(t, w.ProcessTask(context.Background(), task), failure.ErrStorage)

	cleaner.err = failure.Wrap(failure.ErrNotFound, "store", "get", "j1", nil)
	assert.NoError(t, w.ProcessTask(context.Background(), task))
}
