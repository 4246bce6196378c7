// Package workspace manages the per-job scratch directories that hold
// downloaded, converted and tagged audio before it is published.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/dripdrop/musicjobs/internal/failure"
	"github.com/dripdrop/musicjobs/internal/logging"
)

// Manager creates workspaces under a common root directory.
type Manager struct {
	root   string
	logger *slog.Logger
}

// Workspace is one job's scratch directory. It is owned by a single
// execution until Dispose is called.
type Workspace struct {
	JobID string
	Dir   string

	lock *flock.Flock
}

func NewManager(root string, logger *slog.Logger) *Manager {
	if strings.TrimSpace(root) == "" {
		root = "temp"
	}
	return &Manager{root: root, logger: logging.Or(logger).With(logging.FieldComponent, "workspace")}
}

// Root returns the directory all workspaces live under.
func (m *Manager) Root() string {
	return m.root
}

// Create makes root/<jobID> and locks it for the caller. A workspace held by
// another execution on this host yields failure.ErrBusy.
func (m *Manager) Create(jobID string) (*Workspace, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return nil, failure.Wrap(failure.ErrValidation, "workspace", "create", fmt.Sprintf("invalid job id %q", jobID), nil)
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	lock := flock.New(filepath.Join(m.root, jobID+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock workspace %s: %w", jobID, err)
	}
	if !locked {
		return nil, failure.Wrap(failure.ErrBusy, "workspace", "lock", jobID, nil)
	}

	dir := filepath.Join(m.root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("create workspace %s: %w", jobID, err)
	}

	m.logger.Debug("workspace created", logging.FieldJobID, jobID, "dir", dir)
	return &Workspace{JobID: jobID, Dir: dir, lock: lock}, nil
}

// Dispose removes the workspace tree and releases its lock. Failures are
// logged, never returned.
func (m *Manager) Dispose(ws *Workspace) {
	if ws == nil {
		return
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		m.logger.Warn("workspace removal failed", logging.FieldJobID, ws.JobID, "dir", ws.Dir, "error", err)
	}
	if ws.lock != nil {
		if err := ws.lock.Unlock(); err != nil {
			m.logger.Warn("workspace unlock failed", logging.FieldJobID, ws.JobID, "error", err)
		}
		_ = os.Remove(ws.lock.Path())
	}
}

// Path joins name onto the workspace directory.
func (ws *Workspace) Path(name string) string {
	return filepath.Join(ws.Dir, name)
}
