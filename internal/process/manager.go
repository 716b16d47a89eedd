// Package process tracks the background bridge service started by the CLI:
// its pid file and the number of CLI sessions currently relying on it.
package process

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	pidFilename = "bridge.pid"
	refFilename = "sessions.ref"

	pollInterval = 100 * time.Millisecond
	stopTimeout  = 5 * time.Second
	startTimeout = 10 * time.Second
)

type Manager struct {
	pidFile string
	refFile string
	mu      sync.Mutex

	// command builds the service process; replaced in tests.
	command func() *exec.Cmd
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		pidFile: filepath.Join(baseDir, pidFilename),
		refFile: filepath.Join(baseDir, refFilename),
		command: func() *exec.Cmd {
			return exec.Command(os.Args[0], "start")
		},
	}
}

func (m *Manager) WritePID() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return writeInt(m.pidFile, os.Getpid())
}

// ReadPID returns 0 when no valid pid file exists.
func (m *Manager) ReadPID() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return readInt(m.pidFile)
}

// IsRunning reports whether the recorded process is alive. A stale pid file
// is removed.
func (m *Manager) IsRunning() bool {
	pid := m.ReadPID()
	if pid == 0 {
		return false
	}

	if !processAlive(pid) {
		m.CleanupPID()
		return false
	}

	return true
}

// Stop sends SIGTERM to the recorded process and waits for it to exit.
func (m *Manager) Stop() error {
	pid := m.ReadPID()
	if pid == 0 {
		return nil
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			m.CleanupPID()
			return nil
		}
		return fmt.Errorf("failed to send SIGTERM to process %d: %w", pid, err)
	}

	deadline := time.Now().Add(stopTimeout)
	for processAlive(pid) {
		if time.Now().After(deadline) {
			return fmt.Errorf("process %d did not exit within %s", pid, stopTimeout)
		}
		time.Sleep(pollInterval)
	}

	m.CleanupPID()
	return nil
}

func (m *Manager) CleanupPID() {
	m.mu.Lock()
	defer m.mu.Unlock()

	removeIfExists(m.pidFile)
}

func (m *Manager) IncrementRef() int { return m.adjustRef(1) }

func (m *Manager) DecrementRef() int { return m.adjustRef(-1) }

func (m *Manager) ReadRef() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return readInt(m.refFile)
}

// adjustRef updates the session count under one lock and never lets it go
// negative.
func (m *Manager) adjustRef(delta int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := max(readInt(m.refFile)+delta, 0)
	if err := writeInt(m.refFile, count); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write reference file: %v\n", err)
	}

	return count
}

func (m *Manager) CleanupRef() {
	m.mu.Lock()
	defer m.mu.Unlock()

	removeIfExists(m.refFile)
}

// WaitForService polls until the pid file names a live process and, when
// healthURL is set, the service answers it with 200.
func (m *Manager) WaitForService(ctx context.Context, healthURL string) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if m.IsRunning() && healthy(ctx, healthURL) {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("service not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// StartServiceIfNeeded launches the service in the background unless it is
// already running. It reports whether this call started it.
func (m *Manager) StartServiceIfNeeded(ctx context.Context, healthURL string) (bool, error) {
	if m.IsRunning() {
		return false, nil
	}

	cmd := m.command()
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("failed to start service: %w", err)
	}
	// Reap the child once it exits so it does not linger as a zombie.
	go func() { _ = cmd.Wait() }()

	ctx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	if err := m.WaitForService(ctx, healthURL); err != nil {
		return false, fmt.Errorf("service startup: %w", err)
	}

	return true, nil
}

func healthy(ctx context.Context, url string) bool {
	if url == "" {
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// processAlive probes pid with signal 0. EPERM means the process exists but
// belongs to someone else.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func readInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}

	return n
}

func writeInt(path string, n int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	return os.WriteFile(path, []byte(strconv.Itoa(n)), 0o600)
}

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to remove %s: %v\n", filepath.Base(path), err)
	}
}
