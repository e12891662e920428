package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

// ErrPassInProgress means another pass holds the config's lock; the caller skips this tick.
var ErrPassInProgress = errors.New("reconciliation pass already in progress")

// PassLocker serializes passes per exchange config, across goroutines and instances.
type PassLocker interface {
	WithLock(ctx context.Context, configID int, fn func(ctx context.Context) error) error
}

func passLockName(configID int) string {
	return fmt.Sprintf("exchange:reconcile:%d", configID)
}

// RedisPassLocker holds a redislock lease for the pass and refreshes it while fn runs.
type RedisPassLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisPassLocker(client *redislock.Client, ttl time.Duration) *RedisPassLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisPassLocker{client: client, ttl: ttl}
}

func (l *RedisPassLocker) WithLock(ctx context.Context, configID int, fn func(ctx context.Context) error) error {
	lock, err := l.client.Obtain(ctx, passLockName(configID), l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrPassInProgress
	}
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release(context.Background()) }()

	passCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(l.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-passCtx.Done():
				return
			case <-ticker.C:
				if err := lock.Refresh(passCtx, l.ttl, nil); err != nil {
					// lease lost: stop the pass rather than race a new holder
					cancel()
					return
				}
			}
		}
	}()
	return fn(passCtx)
}

// MySQLPassLocker uses GET_LOCK. The lock is connection-scoped, so it is taken and
// released on one dedicated pooled connection.
type MySQLPassLocker struct {
	db *gorm.DB
}

func NewMySQLPassLocker(db *gorm.DB) *MySQLPassLocker {
	return &MySQLPassLocker{db: db}
}

func (l *MySQLPassLocker) WithLock(ctx context.Context, configID int, fn func(ctx context.Context) error) error {
	name := passLockName(configID)
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var ok *int
		if err := conn.Raw("SELECT GET_LOCK(?, 0)", name).Scan(&ok).Error; err != nil {
			return err
		}
		if ok == nil || *ok != 1 {
			return ErrPassInProgress
		}
		defer func() {
			var released *int
			_ = conn.Raw("SELECT RELEASE_LOCK(?)", name).Scan(&released).Error
		}()
		return fn(ctx)
	})
}

// LocalPassLocker is the single-instance single-flight guard.
type LocalPassLocker struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewLocalPassLocker() *LocalPassLocker {
	return &LocalPassLocker{locks: map[int]*sync.Mutex{}}
}

func (l *LocalPassLocker) WithLock(ctx context.Context, configID int, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m := l.locks[configID]
	if m == nil {
		m = &sync.Mutex{}
		l.locks[configID] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return ErrPassInProgress
	}
	defer m.Unlock()
	return fn(ctx)
}

// NewPassLocker picks the backend named by PASS_LOCK_BACKEND, falling back to a
// local guard when the backing client is unavailable.
func NewPassLocker(backend string, db *gorm.DB, client *redislock.Client) PassLocker {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "redis":
		if client != nil {
			return NewRedisPassLocker(client, 2*time.Minute)
		}
	case "mysql":
		if db != nil && db.Dialector != nil && db.Dialector.Name() == "mysql" {
			return NewMySQLPassLocker(db)
		}
	}
	return NewLocalPassLocker()
}
