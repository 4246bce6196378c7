package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dripdrop/musicjobs/internal/model"
	"github.com/dripdrop/musicjobs/internal/store"
)

type memStore struct {
	mu   sync.Mutex
	jobs map[string]model.MusicJob
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]model.MusicJob{}}
}

func (m *memStore) Create(_ context.Context, job *model.MusicJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("duplicate %s", job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*model.MusicJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return &job, nil
}

func (m *memStore) Update(_ context.Context, job *model.MusicJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, job.ID)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *memStore) List(_ context.Context, userID string) ([]*model.MusicJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.MusicJob
	for _, job := range m.jobs {
		if job.UserID == userID && !job.Deleted() {
			j := job
			out = append(out, &j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

type fakeStorage struct {
	objects   map[string][]byte
	types     map[string]string
	deleteErr map[string]error
	deleted   []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}, types: map[string]string{}, deleteErr: map[string]error{}}
}

func (f *fakeStorage) Upload(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.objects[key] = data
	f.types[key] = contentType
	return f.GetPublicURL(key), nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	if err := f.deleteErr[key]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) GetSignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return f.GetPublicURL(key), nil
}

func (f *fakeStorage) GetPublicURL(key string) string {
	return "https://cdn.example/" + key
}

type fakeEnqueuer struct {
	processed []string
	cleanups  []string
	err       error
}

func (f *fakeEnqueuer) EnqueueProcess(_ context.Context, jobID string) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.processed = append(f.processed, jobID)
	return &asynq.TaskInfo{ID: jobID}, nil
}

func (f *fakeEnqueuer) EnqueueCleanup(_ context.Context, jobID string) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.cleanups = append(f.cleanups, jobID)
	return &asynq.TaskInfo{ID: "cleanup:" + jobID}, nil
}

type fakeLookup struct {
	resolved string
	uploader string
}

func (f *fakeLookup) ResolveURL(_ context.Context, _ string) (string, error) {
	if f.resolved == "" {
		return "", errors.New("cannot resolve artwork")
	}
	return f.resolved, nil
}

func (f *fakeLookup) Uploader(_ context.Context, _ string) (string, error) {
	if f.uploader == "" {
		return "", errors.New("no uploader")
	}
	return f.uploader, nil
}

type recordingAnnouncer struct {
	mu      sync.Mutex
	updates []model.JobUpdate
}

func (r *recordingAnnouncer) Announce(_ context.Context, jobID string, status model.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, model.JobUpdate{ID: jobID, Status: status})
}
