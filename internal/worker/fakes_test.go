package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dripdrop/musicjobs/internal/artwork"
	"github.com/dripdrop/musicjobs/internal/model"
	"github.com/dripdrop/musicjobs/internal/store"
)

type memStore struct {
	mu      sync.Mutex
	jobs    map[string]model.MusicJob
	updates int
}

func newMemStore(jobs ...*model.MusicJob) *memStore {
	m := &memStore{jobs: map[string]model.MusicJob{}}
	for _, j := range jobs {
		m.jobs[j.ID] = *j
	}
	return m
}

func (m *memStore) Create(_ context.Context, job *model.MusicJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.updates++
	return nil
}

func (m *memStore) List(_ context.Context, _ string) ([]*model.MusicJob, error) {
	return nil, nil
}

func (m *memStore) job(id string) model.MusicJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

// mpegFrames returns a minimal MPEG-1 Layer III stream.
func mpegFrames(n int) []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x64})
	out := make([]byte, 0, n*len(frame))
	for i := 0; i < n; i++ {
		out = append(out, frame...)
	}
	return out
}

type fakeAcquirer struct {
	err  error
	dirs []string
}

func (f *fakeAcquirer) Acquire(_ context.Context, _ *model.MusicJob, dir string) (string, error) {
	f.dirs = append(f.dirs, dir)
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(dir, "audio.mp3")
	if err := os.WriteFile(path, mpegFrames(8), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeResolver struct {
	art   *artwork.Artwork
	specs []string
}

func (f *fakeResolver) Resolve(_ context.Context, spec string) *artwork.Artwork {
	f.specs = append(f.specs, spec)
	return f.art
}

type capturingPublisher struct {
	data      []byte
	name      string
	err       error
	onPublish func()
	deleted   []string
}

func (p *capturingPublisher) Publish(_ context.Context, filename string, job *model.MusicJob) (string, string, error) {
	if p.onPublish != nil {
		p.onPublish()
	}
	if p.err != nil {
		return "", "", p.err
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", "", err
	}
	p.data = data
	p.name = filepath.Base(filename)
	key := "music/" + job.ID + "/song.mp3"
	return key, "https://cdn.example/" + key, nil
}

func (p *capturingPublisher) Delete(_ context.Context, key string) error {
	p.deleted = append(p.deleted, key)
	return nil
}

type recordingAnnouncer struct {
	mu       sync.Mutex
	statuses []model.JobStatus
}

func (r *recordingAnnouncer) Announce(_ context.Context, _ string, status model.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

type fakeCleaner struct {
	err error
	ids []string
}

func (f *fakeCleaner) Cleanup(_ context.Context, jobID string) error {
	f.ids = append(f.ids, jobID)
	return f.err
}
