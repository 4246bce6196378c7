package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dripdrop/musicjobs/internal/failure"
	"github.com/dripdrop/musicjobs/internal/logging"
)

func TestCreateAndDispose(t *testing.T) {
	root := filepath.Join(t.TempDir(), "temp")
	m := NewManager(root, logging.NewNop())

	ws, err := m.Create("job-1")
	require.NoError(t, err)
	assert.DirExists(t, ws.Dir)
	require.NoError(t, os.WriteFile(ws.Path("temp.mp3"), []byte("x"), 0o644))

	m.Dispose(ws)
	assert.NoDirExists(t, ws.Dir)
	assert.NoFileExists(t, filepath.Join(root, "job-1.lock"))
	assert.DirExists(t, root)
}

func TestCreateToleratesExistingDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "job-1"), 0o755))
	m := NewManager(root, logging.NewNop())

	ws, err := m.Create("job-1")
	require.NoError(t, err)
	m.Dispose(ws)
}

func TestCreateBusyWhileLocked(t *testing.T) {
	m := NewManager(t.TempDir(), logging.NewNop())

	ws, err := m.Create("job-1")
	require.NoError(t, err)

	_, err = m.Create("job-1")
	assert.ErrorIs(t, err, failure.ErrBusy)
	assert.True(t, failure.Retryable(err))

	m.Dispose(ws)
	again, err := m.Create("job-1")
	require.NoError(t, err)
	m.Dispose(again)
}

func TestCreateRejectsPathLikeIDs(t *testing.T) {
	m := NewManager(t.TempDir(), logging.NewNop())
	for _, id := range []string{"", "..", "a/b", `a\b`} {
		_, err := m.Create(id)
		assert.ErrorIs(t, err, failure.ErrValidation, id)
	}
}

func TestDisposeNilIsNoop(t *testing.T) {
	NewManager(t.TempDir(), logging.NewNop()).Dispose(nil)
}
