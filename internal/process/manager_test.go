package process

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_PID(t *testing.T) {
	mgr := NewManager(t.TempDir())

	assert.Equal(t, 0, mgr.ReadPID())
	assert.False(t, mgr.IsRunning())

	require.NoError(t, mgr.WritePID())
	assert.Equal(t, os.Getpid(), mgr.ReadPID())
	assert.True(t, mgr.IsRunning(), "the test process itself is alive")

	mgr.CleanupPID()
	assert.Equal(t, 0, mgr.ReadPID())
}

func TestManager_StalePIDIsRemoved(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir)

	// Start and reap a short-lived process to get a pid that no longer exists.
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())
	require.NoError(t, writeInt(filepath.Join(dir, pidFilename), cmd.Process.Pid))

	assert.False(t, mgr.IsRunning())
	assert.NoFileExists(t, filepath.Join(dir, pidFilename))
}

func TestManager_InvalidPIDFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pidFilename), []byte("not-a-pid"), 0o600))

	mgr := NewManager(dir)
	assert.Equal(t, 0, mgr.ReadPID())
	assert.NoError(t, mgr.Stop())
}

func TestManager_RefCount(t *testing.T) {
	mgr := NewManager(t.TempDir())

	assert.Equal(t, 0, mgr.ReadRef())
	assert.Equal(t, 1, mgr.IncrementRef())
	assert.Equal(t, 2, mgr.IncrementRef())
	assert.Equal(t, 1, mgr.DecrementRef())
	assert.Equal(t, 0, mgr.DecrementRef())
	assert.Equal(t, 0, mgr.DecrementRef(), "count never goes negative")

	mgr.IncrementRef()
	mgr.CleanupRef()
	assert.Equal(t, 0, mgr.ReadRef())
}

func TestManager_WaitForService(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	mgr := NewManager(t.TempDir())
	require.NoError(t, mgr.WritePID())

	require.NoError(t, mgr.WaitForService(t.Context(), healthy.URL))

	ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
	defer cancel()
	err := mgr.WaitForService(ctx, unhealthy.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_StartServiceIfNeeded(t *testing.T) {
	t.Run("already running", func(t *testing.T) {
		mgr := NewManager(t.TempDir())
		require.NoError(t, mgr.WritePID())
		mgr.command = func() *exec.Cmd {
			t.Fatal("service must not be started twice")
			return nil
		}

		started, err := mgr.StartServiceIfNeeded(t.Context(), "")
		require.NoError(t, err)
		assert.False(t, started)
	})

	t.Run("started", func(t *testing.T) {
		dir := t.TempDir()
		mgr := NewManager(dir)
		pidFile := filepath.Join(dir, pidFilename)
		mgr.command = func() *exec.Cmd {
			return exec.Command("sh", "-c", "echo $$ > "+pidFile+"; sleep 5")
		}

		started, err := mgr.StartServiceIfNeeded(t.Context(), "")
		require.NoError(t, err)
		assert.True(t, started)

		require.NoError(t, mgr.Stop())
		assert.False(t, mgr.IsRunning())
	})

	t.Run("launch failure", func(t *testing.T) {
		mgr := NewManager(t.TempDir())
		mgr.command = func() *exec.Cmd {
			return exec.Command(filepath.Join(t.TempDir(), "missing-binary"))
		}

		_, err := mgr.StartServiceIfNeeded(t.Context(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to start service")
	})
}
