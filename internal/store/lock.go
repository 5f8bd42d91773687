package store

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/hivectl/hive/internal/domain"
	"github.com/hivectl/hive/internal/log"
)

// StaleLockThreshold is the age past which a lock file is presumed orphaned
// (holder crashed without releasing) and may be reclaimed.
const StaleLockThreshold = 2 * time.Minute

// DefaultLockTimeout bounds how long Acquire retries before giving up.
const DefaultLockTimeout = 10 * time.Second

// FileLock is the single cross-process write lock for the hive database.
// All write transactions acquire it; readers proceed without it.
type FileLock struct {
	path    string
	timeout time.Duration
	held    bool
}

// lockInfo is written into the lock file for diagnostics and staleness.
type lockInfo struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// NewFileLock creates a lock handle for the given lock file path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, timeout: DefaultLockTimeout}
}

// WithTimeout overrides the acquisition retry budget.
func (l *FileLock) WithTimeout(d time.Duration) *FileLock {
	l.timeout = d
	return l
}

// Acquire takes the lock, retrying with jittered backoff until the timeout.
// A lock file older than StaleLockThreshold is reclaimed. Returns
// domain.ErrLockBusy when the budget is exhausted.
func (l *FileLock) Acquire() error {
	deadline := time.Now().Add(l.timeout)
	backoff := 10 * time.Millisecond

	for {
		if err := l.tryAcquire(); err == nil {
			l.held = true
			return nil
		}

		l.reclaimIfStale()

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", domain.ErrLockBusy, l.path)
		}

		// Full jitter keeps concurrent waiters from thundering.
		sleep := time.Duration(rand.Int63n(int64(backoff))) //nolint:gosec // jitter, not crypto
		time.Sleep(sleep)
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
}

func (l *FileLock) tryAcquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	info := lockInfo{PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	if err := json.NewEncoder(f).Encode(info); err != nil {
		_ = os.Remove(l.path)
		return err
	}
	return nil
}

// reclaimIfStale removes the lock file when its holder appears dead.
func (l *FileLock) reclaimIfStale() {
	stat, err := os.Stat(l.path)
	if err != nil {
		return
	}
	if time.Since(stat.ModTime()) < StaleLockThreshold {
		return
	}
	log.Warn(log.CatLock, "reclaiming stale lock", "path", l.path, "age", time.Since(stat.ModTime()))
	_ = os.Remove(l.path)
}

// Release drops the lock. Safe to call when not held.
func (l *FileLock) Release() {
	if !l.held {
		return
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		log.Warn(log.CatLock, "releasing lock failed", "path", l.path, "error", err)
	}
}

// Held reports whether this handle currently owns the lock.
func (l *FileLock) Held() bool { return l.held }
