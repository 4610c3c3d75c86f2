package controller

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
)

// DataLock guards a watch root's data directory against concurrent
// coordinators. Two watch pipelines over the same tree would race each
// other's index writes; the lock makes the second starter fail fast.
// Serve-only processes do not take it.
type DataLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataLock creates a lock for the given data directory. The lock
// file lives at <dir>/coordinator.lock.
func NewDataLock(dir string) *DataLock {
	lockPath := filepath.Join(dir, "coordinator.lock")
	return &DataLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Acquire takes the lock without blocking. A held lock surfaces as
// ERR_403 so startup aborts instead of waiting on another process.
func (l *DataLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return cocoerrors.New(cocoerrors.ErrCodeStoreLocked,
			fmt.Sprintf("create data directory for lock %s", l.path), err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return cocoerrors.New(cocoerrors.ErrCodeStoreLocked,
			fmt.Sprintf("acquire coordinator lock %s", l.path), err)
	}
	if !acquired {
		return cocoerrors.New(cocoerrors.ErrCodeStoreLocked,
			fmt.Sprintf("another coordinator already watches this tree (lock %s)", l.path), nil)
	}

	l.locked = true
	return nil
}

// Release frees the lock. Safe to call when not held.
func (l *DataLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	return l.flock.Unlock()
}

// Path returns the lock file path.
func (l *DataLock) Path() string { return l.path }
