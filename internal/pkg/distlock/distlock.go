// Package distlock provides the mutual exclusion used by long batch jobs
// (full rescoring, segment count refresh) so two schedulers cannot run the
// same job for one organization at once. Redis is preferred; Postgres
// advisory locks are the fallback.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned by Run when another holder owns the lock.
var ErrHeld = errors.New("distlock: lock held elsewhere")

// Lock is a single named lock. A Lock value is not safe for concurrent use;
// create one per job run.
type Lock interface {
	// Acquire tries to take the lock without blocking.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this holder still owns it.
	Release(ctx context.Context) error
}

// Locker hands out named locks.
type Locker interface {
	Lock(key string) Lock
}

// Provider picks the backend: Redis when a client is configured, Postgres
// advisory locks otherwise.
type Provider struct {
	Redis *redis.Client
	DB    *sql.DB
	TTL   time.Duration
}

// Lock returns a lock for key on the configured backend.
func (p *Provider) Lock(key string) Lock {
	if p.Redis != nil {
		return NewRedisLock(p.Redis, key, p.TTL)
	}
	return NewPGAdvisoryLock(p.DB, key)
}

// Run acquires key, runs fn and releases the lock. It returns ErrHeld
// without calling fn when the lock is taken.
func Run(ctx context.Context, l Locker, key string, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}
	lock := l.Lock(key)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrHeld)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

// PGAdvisoryLock uses pg_try_advisory_lock. Advisory locks belong to a
// session, so the lock pins one pooled connection from Acquire until
// Release; the lock is dropped with the connection if the process dies.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64

	mu   sync.Mutex
	conn *sql.Conn
}

// NewPGAdvisoryLock derives a stable 64-bit lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire tries the advisory lock on a dedicated connection.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return false, errors.New("distlock: already acquired")
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the pinned connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	closeErr := l.conn.Close()
	l.conn = nil
	return errors.Join(err, closeErr)
}
