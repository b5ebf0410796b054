package pipeline

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/choco-forest-watch/forest-watch-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return s
}

func TestCancelToken(t *testing.T) {
	t.Parallel()

	token := &CancelToken{}
	assert.False(t, token.Cancelled())
	token.Cancel()
	assert.True(t, token.Cancelled())
	// Cancelling twice stays cancelled.
	token.Cancel()
	assert.True(t, token.Cancelled())
}

func TestTokenRegistry(t *testing.T) {
	t.Parallel()

	registry := NewTokenRegistry()
	token := registry.Register("job-1")

	assert.False(t, registry.Cancel("unknown"), "unknown ids are a no-op")
	assert.False(t, token.Cancelled())

	assert.True(t, registry.Cancel("job-1"))
	assert.True(t, token.Cancelled())

	registry.Release("job-1")
	assert.False(t, registry.Cancel("job-1"), "released tokens are gone")
}

func TestReporterPersistsProgress(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	reporter := NewReporter(s, "train-1", "training")

	reporter.Update(0.4, "extracting samples", store.TaskRunning)
	task, err := s.GetTask("train-1")
	require.NoError(t, err)
	assert.Equal(t, "training", task.Kind)
	assert.Equal(t, store.TaskRunning, task.Status)
	assert.Equal(t, 0.4, task.Progress)
	assert.Equal(t, "extracting samples", task.Message)

	reporter.Complete("model trained")
	task, err = s.GetTask("train-1")
	require.NoError(t, err)
	assert.Equal(t, store.TaskCompleted, task.Status)
	assert.Equal(t, 1.0, task.Progress, "a finished task reports the full fraction")
	assert.Empty(t, task.Error)
}

func TestReporterFailAndCancel(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	failed := NewReporter(s, "train-2", "training")
	failed.Fail(0.6, errors.New("provider unreachable"))
	task, err := s.GetTask("train-2")
	require.NoError(t, err)
	assert.Equal(t, store.TaskFailed, task.Status)
	assert.Equal(t, "provider unreachable", task.Error)
	assert.Equal(t, 0.6, task.Progress)

	cancelled := NewReporter(s, "train-3", "training")
	cancelled.Cancelled(0.25)
	task, err = s.GetTask("train-3")
	require.NoError(t, err)
	assert.Equal(t, store.TaskCancelled, task.Status)
	assert.Equal(t, 0.25, task.Progress)
}

func TestReporterNilStoreIsSafe(t *testing.T) {
	t.Parallel()

	var reporter *Reporter
	reporter.Update(0.1, "no-op", store.TaskRunning)
	reporter.Complete("no-op")
}
