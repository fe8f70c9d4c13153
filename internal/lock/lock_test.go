package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/chipheocrypto/c124/internal/lock"
)

func TestRedisLockerSerializesHolders(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := lock.RedisLocker{R: client, RetryBackoff: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})

	go func() {
		_ = locker.WithLock(ctx, lock.RoomKey("r1"), 500*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()

	<-firstDone

	go func() {
		_ = locker.WithLock(ctx, lock.RoomKey("r1"), 500*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Equal(t, []string{"first"}, order)
	mu.Unlock()
	close(releaseFirst)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
	require.False(t, mr.Exists(lock.RoomKey("r1")))
}

func TestRedisLockerHonoursContext(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set(lock.RoomKey("busy"), "someone-else"))

	locker := lock.RedisLocker{R: client, RetryBackoff: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	called := false
	err := locker.WithLock(ctx, lock.RoomKey("busy"), time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, called)

	val, err := mr.Get(lock.RoomKey("busy"))
	require.NoError(t, err)
	require.Equal(t, "someone-else", val)
}

func TestLocalLockerMutualExclusion(t *testing.T) {
	locker := lock.NewLocalLocker()
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, lock.RoomKey("r1"), 0, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxInside)
	}
}

func TestLocalLockerCancelledWhileWaiting(t *testing.T) {
	locker := lock.NewLocalLocker()
	held := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = locker.WithLock(context.Background(), lock.OrderKey("o1"), 0, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, lock.OrderKey("o1"), 0, func(context.Context) error {
		t.Fatalf("callback must not run while the key is held")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithLocksAcquiresAllKeys(t *testing.T) {
	locker := lock.NewLocalLocker()
	ctx := context.Background()

	var wg sync.WaitGroup
	var counter int
	for i := 0; i < 10; i++ {
		keys := []string{lock.RoomKey("a"), lock.RoomKey("b")}
		if i%2 == 1 {
			keys = []string{lock.RoomKey("b"), lock.RoomKey("a"), lock.RoomKey("b")}
		}
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			err := lock.WithLocks(ctx, locker, keys, time.Second, func(context.Context) error {
				counter++
				return nil
			})
			require.NoError(t, err)
		}(keys)
	}
	wg.Wait()
	require.Equal(t, 10, counter)
}
