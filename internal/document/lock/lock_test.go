package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	l := NewLocal()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "doc-1")
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInside)
	require.Equal(t, 0, l.size())
}

func TestLocal_DifferentKeysIndependent(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocal_ContextCancel(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // second call is a no-op
	require.Equal(t, 0, l.size())
}

func TestRedis_LockUnlock(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})

	l := NewRedis(client, "test:lock:", 5*time.Second, 100*time.Millisecond)
	unlock, err := l.Lock(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, m.Exists("test:lock:doc-1"))

	// held: a second caller times out
	_, err = l.Lock(context.Background(), "doc-1")
	require.ErrorIs(t, err, ErrTimeout)

	// other keys are free
	unlock2, err := l.Lock(context.Background(), "doc-2")
	require.NoError(t, err)
	unlock2()

	unlock()
	require.False(t, m.Exists("test:lock:doc-1"))

	unlock3, err := l.Lock(context.Background(), "doc-1")
	require.NoError(t, err)
	unlock3()
}

func TestRedis_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})

	l := NewRedis(client, "test:lock:", time.Second, 100*time.Millisecond)
	unlockOld, err := l.Lock(context.Background(), "doc-1")
	require.NoError(t, err)

	m.FastForward(2 * time.Second)

	unlockNew, err := l.Lock(context.Background(), "doc-1")
	require.NoError(t, err)

	// the stale holder must not drop the new holder's lock
	unlockOld()
	require.True(t, m.Exists("test:lock:doc-1"))
	unlockNew()
	require.False(t, m.Exists("test:lock:doc-1"))
}
