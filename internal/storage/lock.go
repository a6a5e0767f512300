package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// RunLock is the lock file written while the engine works on a wiki, so
// two processes never execute instructions side by side.
type RunLock struct {
	Holder      string    `json:"holder"`
	PID         int       `json:"pid"`
	Hostname    string    `json:"hostname"`
	WorkingPage string    `json:"working_page"`
	StartedAt   time.Time `json:"started_at"`
	Version     string    `json:"version"`
}

// LockPath returns the lock file used for the database at dbPath.
func LockPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), ".run-lock")
}

// AcquireRunLock creates the run lock next to the history database.
// A lock left behind by a dead process on this host is taken over.
// Returns the lock file path for cleanup on shutdown.
func AcquireRunLock(dbPath, workingPage, version string) (lockPath string, err error) {
	lockPath = LockPath(dbPath)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create lock directory: %w", err)
	}

	if data, err := os.ReadFile(lockPath); err == nil {
		var existing RunLock
		if json.Unmarshal(data, &existing) == nil {
			if isProcessAlive(existing.PID, existing.Hostname) {
				return "", fmt.Errorf("another cfdw run is in progress (PID %d on %s, page %q, started %s)",
					existing.PID, existing.Hostname, existing.WorkingPage, existing.StartedAt.Format(time.RFC3339))
			}
			// Stale lock - will overwrite
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := RunLock{
		Holder:      "cfdw",
		PID:         os.Getpid(),
		Hostname:    hostname,
		WorkingPage: workingPage,
		StartedAt:   time.Now(),
		Version:     version,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create run lock: %w", err)
	}
	return lockPath, nil
}

// ReleaseRunLock removes the lock file.
func ReleaseRunLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove run lock: %w", err)
	}
	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
// Processes on other hosts cannot be checked and are assumed alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks for existence; EPERM means it exists but is not ours
	err = process.Signal(syscall.Signal(0))
	if err == nil || err == syscall.EPERM {
		return true
	}
	return false
}
