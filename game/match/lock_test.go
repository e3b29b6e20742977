package match

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kasuganosora/brotmon/cache/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_Serialises(t *testing.T) {
	l := NewLocalLocker()
	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), battleLockKey("b1"))
			if err != nil {
				t.Error(err)
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Empty(t, l.slots, "slots are released once nobody waits")
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), battleLockKey("a"))
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, battleLockKey("b"))
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_ContextTimeout(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock() // second call is a no-op
	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func newLocalStore(t *testing.T) *local.LocalCache {
	t.Helper()
	c, err := local.NewCache(local.Config{})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCacheLocker_WaitsThenTimesOut(t *testing.T) {
	store := newLocalStore(t)
	l := NewCacheLocker(store, time.Second, 60*time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "lock:battle:b1")
	require.NoError(t, err)

	start := time.Now()
	_, err = l.Lock(ctx, "lock:battle:b1")
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	unlock()
	again, err := l.Lock(ctx, "lock:battle:b1")
	require.NoError(t, err)
	again()
}

func TestCacheLocker_HandsOver(t *testing.T) {
	store := newLocalStore(t)
	l := NewCacheLocker(store, time.Second, time.Second)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	go func() {
		time.Sleep(30 * time.Millisecond)
		unlock()
	}()
	second, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	second()
}

func TestCacheLocker_ExpiredLeaseKeepsNewHolder(t *testing.T) {
	store := newLocalStore(t)
	short := NewCacheLocker(store, 20*time.Millisecond, time.Second)
	ctx := context.Background()

	stale, err := short.Lock(ctx, "k")
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	fresh, err := NewCacheLocker(store, time.Minute, time.Second).Lock(ctx, "k")
	require.NoError(t, err)
	defer fresh()

	stale() // must not release the fresh holder's lease
	ok, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}
