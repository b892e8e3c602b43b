// Package distlock serializes work on a shared external resource (an
// outreach spreadsheet) across independent invocations.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/podmatch/internal/pkg/logger"
)

// ErrNotAcquired is returned by Guard when another holder owns the lock.
var ErrNotAcquired = errors.New("distlock: lock held by another invocation")

// Lock is a non-blocking mutual-exclusion handle for one key.
// A Lock value is meant for a single goroutine.
type Lock interface {
	// Acquire tries once to take the lock and reports whether it did.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this handle still owns it.
	Release(ctx context.Context) error
}

// expiring locks lapse after TTL unless extended. Guard extends them at
// half the TTL while fn runs.
type expiring interface {
	TTL() time.Duration
	Extend(ctx context.Context, ttl time.Duration) error
}

// New picks Redis when a client is available and falls back to Postgres
// advisory locks otherwise. Returns nil when neither backend is configured.
func New(rdb *redis.Client, db *sql.DB, key string, ttl time.Duration) Lock {
	switch {
	case rdb != nil:
		return NewRedisLock(rdb, key, ttl)
	case db != nil:
		return NewAdvisoryLock(db, key)
	default:
		return nil
	}
}

// Guard runs fn while holding l. It polls Acquire every interval until
// wait elapses, then gives up with ErrNotAcquired. A nil lock runs fn
// unguarded. Locks with a TTL are kept alive until fn returns.
func Guard(ctx context.Context, l Lock, wait, interval time.Duration, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	deadline := time.Now().Add(wait)
	for {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}

	defer func() {
		// Release on a fresh context so a cancelled request still unlocks.
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = l.Release(rctx)
	}()
	if e, ok := l.(expiring); ok && e.TTL() > 0 {
		stop := keepAlive(ctx, e)
		defer stop()
	}
	return fn(ctx)
}

// keepAlive extends e every half TTL until the returned stop is called.
// A failed extend is logged and ends the loop; fn keeps running.
func keepAlive(ctx context.Context, e expiring) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ttl := e.TTL()
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.Extend(ctx, ttl); err != nil {
					if ctx.Err() == nil {
						logger.Warn("distlock: extend failed", "error", err)
					}
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// AdvisoryLock uses pg_try_advisory_lock. The lock is session scoped, so
// it is pinned to one pooled connection for its lifetime.
type AdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewAdvisoryLock derives a stable 64-bit lock ID from key.
func NewAdvisoryLock(db *sql.DB, key string) *AdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &AdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire tries the advisory lock without blocking. The connection stays
// pinned only when the lock was taken; otherwise it goes back to the pool.
func (l *AdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return true, nil
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("distlock: get conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("distlock: try advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	closeErr := l.conn.Close()
	l.conn = nil
	if err != nil {
		return fmt.Errorf("distlock: advisory unlock: %w", err)
	}
	return closeErr
}
