// Package lock provides the bounded-wait, cross-process exclusive lock that
// serializes writers of one ledger.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/V4T54L/aep-ledger/internal/domain"
)

// DefaultRetryDelay is how often a blocked acquirer polls the lock.
const DefaultRetryDelay = 50 * time.Millisecond

// FileLock is an advisory lock on a sidecar file. Each FileLock owns its own
// file handle, so two FileLocks on the same path exclude each other whether
// they live in one process or in different ones.
type FileLock struct {
	path       string
	timeout    time.Duration
	retryDelay time.Duration
	fl         *flock.Flock
}

// New returns a FileLock on path that waits at most timeout to acquire it.
func New(path string, timeout time.Duration) *FileLock {
	return &FileLock{
		path:       path,
		timeout:    timeout,
		retryDelay: DefaultRetryDelay,
		fl:         flock.New(path),
	}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// Acquire takes the lock, giving up after the configured timeout or when ctx
// is done. Timeouts are reported as domain.ErrLockTimeout.
func (l *FileLock) Acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	locked, err := l.fl.TryLockContext(ctx, l.retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %s after %s", domain.ErrLockTimeout, l.path, l.timeout)
		}
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s after %s", domain.ErrLockTimeout, l.path, l.timeout)
	}
	return nil
}

// Release unlocks and closes the lock file handle.
func (l *FileLock) Release() error {
	if err := l.fl.Close(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}
