package sessions

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout indicates a session lock could not be acquired in time.
var ErrLockTimeout = errors.New("session lock timeout")

// Locker serializes turns per session: for a given session at most one
// turn is in flight.
type Locker interface {
	Lock(ctx context.Context, sessionID string) error
	Unlock(sessionID string)
}

// LocalLocker is an in-process Locker backed by per-session channels.
type LocalLocker struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewLocalLocker creates a local session locker. A timeout of zero means
// wait until the context is done.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{
		timeout: timeout,
		locks:   make(map[string]chan struct{}),
	}
}

// Lock acquires the lock for sessionID, waiting up to the configured
// timeout.
func (l *LocalLocker) Lock(ctx context.Context, sessionID string) error {
	l.mu.Lock()
	ch, ok := l.locks[sessionID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[sessionID] = ch
	}
	l.mu.Unlock()

	var timeoutCh <-chan time.Time
	if l.timeout > 0 {
		timer := time.NewTimer(l.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeoutCh:
		return ErrLockTimeout
	}
}

// Unlock releases the lock for sessionID. Unlocking an unheld lock is a
// no-op.
func (l *LocalLocker) Unlock(sessionID string) {
	l.mu.Lock()
	ch, ok := l.locks[sessionID]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-ch:
	default:
	}
}
