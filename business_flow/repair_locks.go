package businessflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// RepairLocker guards the GTIN repair job so a single run is active at a time.
type RepairLocker interface {
	// TryLock returns ErrRepairInProgress when another holder owns key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (RepairLease, error)
}

// RepairLease is a held repair lock. Long runs call Refresh between batches to push
// the expiry out by another ttl; Refresh returns ErrRepairLockLost once the lease has
// expired or been taken over.
type RepairLease interface {
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// RedisRepairLocker shares the lock between instances through Redis.
type RedisRepairLocker struct {
	client *redislock.Client
}

func NewRedisRepairLocker(client *redislock.Client) *RedisRepairLocker {
	return &RedisRepairLocker{client: client}
}

func (l *RedisRepairLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (RepairLease, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrRepairInProgress
	}
	if err != nil {
		return nil, err
	}
	return &redisLease{lock: lock, ttl: ttl}, nil
}

type redisLease struct {
	lock *redislock.Lock
	ttl  time.Duration
}

func (l *redisLease) Refresh(ctx context.Context) error {
	err := l.lock.Refresh(ctx, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrRepairLockLost
	}
	return err
}

func (l *redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// LocalRepairLocker is used when no Redis is configured; it only protects this process.
// Local leases never expire.
type LocalRepairLocker struct {
	mu   sync.Mutex
	held map[string]*localLease
}

func NewLocalRepairLocker() *LocalRepairLocker {
	return &LocalRepairLocker{held: make(map[string]*localLease)}
}

func (l *LocalRepairLocker) TryLock(_ context.Context, key string, _ time.Duration) (RepairLease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrRepairInProgress
	}
	lease := &localLease{locker: l, key: key}
	l.held[key] = lease
	return lease, nil
}

type localLease struct {
	locker *LocalRepairLocker
	key    string
}

func (l *localLease) Refresh(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if l.locker.held[l.key] != l {
		return ErrRepairLockLost
	}
	return nil
}

func (l *localLease) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if l.locker.held[l.key] == l {
		delete(l.locker.held, l.key)
	}
	return nil
}
