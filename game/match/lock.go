package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Locker serialises work on one key. The returned unlock must be called
// exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func battleLockKey(battleID string) string  { return "lock:battle:" + battleID }
func trainerLockKey(trainerID string) string { return "lock:trainer:" + trainerID }

// ---- in-process ----

type keyedSlot struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is a per-key mutex for a single server process.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*keyedSlot
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*keyedSlot)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &keyedSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s, false)
		return nil, fmt.Errorf("%w: %s: %w", ErrLockTimeout, key, ctx.Err())
	}

	var once sync.Once
	return func() { once.Do(func() { l.release(key, s, true) }) }, nil
}

func (l *LocalLocker) release(key string, s *keyedSlot, held bool) {
	if held {
		<-s.ch
	}
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// ---- cache-backed ----

// LockStore is the subset of cache.Cache the distributed lock uses.
type LockStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// CacheLocker is a lease lock on a shared cache, so several server
// processes can serve the same battles. A holder that outlives ttl loses
// the lease; unlock then leaves the new holder's key alone.
type CacheLocker struct {
	store LockStore
	ttl   time.Duration
	wait  time.Duration
	retry rate.Limit
}

// NewCacheLocker creates a CacheLocker. wait bounds how long Lock polls.
func NewCacheLocker(store LockStore, ttl, wait time.Duration) *CacheLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &CacheLocker{store: store, ttl: ttl, wait: wait, retry: rate.Every(25 * time.Millisecond)}
}

func (l *CacheLocker) Lock(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	token := uuid.NewString()
	pace := rate.NewLimiter(l.retry, 1)
	for {
		ok, err := l.store.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if err := pace.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be done; release independently.
			rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer rcancel()
			_, _ = l.store.CompareAndDelete(rctx, key, token)
		})
	}, nil
}
