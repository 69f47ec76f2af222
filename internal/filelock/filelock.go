// Package filelock guards the sentinel data directory so only one
// supervisor instance runs against a given checkpoint database at a
// time. Two supervisors tracking the same sessions would double-fire
// failures and double-launch recoveries.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// InstanceLock is an advisory flock on the data directory.
type InstanceLock struct {
	flock *flock.Flock
	path  string
}

// Acquire takes the instance lock for dataDir without blocking. It
// returns an error if another supervisor already holds it.
func Acquire(dataDir string) (*InstanceLock, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	path := filepath.Join(dataDir, "sentinel.lock")
	lock := flock.New(path)

	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("try lock %s: %w", path, err)
	}
	if !acquired {
		return nil, fmt.Errorf("another sentinel instance is already supervising %s", dataDir)
	}

	return &InstanceLock{flock: lock, path: path}, nil
}

// Release gives up the instance lock.
func (l *InstanceLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.path
}
