package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestMutex(client *redis.Client, key string, opts ...AutoRenewMutexOption) *AutoRenewMutex {
	return newAutoRenewMutex(redsync.New(goredis.NewPool(client)), key, newAutoRenewMutexOptions(opts))
}

func TestAutoRenewMutexOptions(t *testing.T) {
	defaults := autoRenewMutexOptions{expiry: 8 * time.Second, retryDelay: 50 * time.Millisecond, renewInterval: 8 * time.Second / 3}
	tests := []struct {
		name string
		opts []AutoRenewMutexOption
		want autoRenewMutexOptions
	}{
		{name: "defaults", want: defaults},
		{
			name: "custom",
			opts: []AutoRenewMutexOption{
				WithAutoRenewMutexExpiry(6 * time.Second),
				WithAutoRenewMutexRenewInterval(time.Second),
				WithAutoRenewMutexRetryDelay(10 * time.Millisecond),
				WithAutoRenewMutexMaxWait(3 * time.Second),
			},
			want: autoRenewMutexOptions{expiry: 6 * time.Second, renewInterval: time.Second, retryDelay: 10 * time.Millisecond, maxWait: 3 * time.Second},
		},
		{
			name: "invalid values fall back",
			opts: []AutoRenewMutexOption{
				WithAutoRenewMutexExpiry(-time.Second),
				WithAutoRenewMutexRetryDelay(0),
			},
			want: defaults,
		},
		{
			name: "renew interval not shorter than expiry",
			opts: []AutoRenewMutexOption{
				WithAutoRenewMutexExpiry(3 * time.Second),
				WithAutoRenewMutexRenewInterval(3 * time.Second),
			},
			want: autoRenewMutexOptions{expiry: 3 * time.Second, renewInterval: time.Second, retryDelay: 50 * time.Millisecond},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, newAutoRenewMutexOptions(tt.opts))
		})
	}
}

func TestAutoRenewMutex_LockUnlock(t *testing.T) {
	mr, client := setupMiniredis(t)

	mutex := newTestMutex(client, "auction:a1:lock")
	assert.False(t, mutex.Valid())

	lockCtx, err := mutex.Lock(context.Background())
	require.NoError(t, err)
	assert.True(t, mr.Exists("auction:a1:lock"))
	assert.True(t, mutex.Valid())

	ok, err := mutex.Unlock()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("auction:a1:lock"))
	assert.False(t, mutex.Valid())
	assert.ErrorIs(t, lockCtx.Err(), context.Canceled)

	// 第二次 Unlock 沒有作用
	ok, err = mutex.Unlock()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestAutoRenewMutex_Wait(t *testing.T) {
	t.Run("caller context already done", func(t *testing.T) {
		_, client := setupMiniredis(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		lockCtx, err := newTestMutex(client, "k").Lock(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, lockCtx)
	})

	t.Run("times out while held elsewhere", func(t *testing.T) {
		_, client := setupMiniredis(t)
		holder := newTestMutex(client, "k")
		_, err := holder.Lock(context.Background())
		require.NoError(t, err)
		defer holder.Unlock()

		waiter := newTestMutex(client, "k",
			WithAutoRenewMutexMaxWait(80*time.Millisecond),
			WithAutoRenewMutexRetryDelay(10*time.Millisecond))
		begin := time.Now()
		_, err = waiter.Lock(context.Background())
		assert.ErrorIs(t, err, ErrLockTimeout)
		assert.GreaterOrEqual(t, time.Since(begin), 80*time.Millisecond)
	})

	t.Run("caller deadline wins over max wait", func(t *testing.T) {
		_, client := setupMiniredis(t)
		holder := newTestMutex(client, "k")
		_, err := holder.Lock(context.Background())
		require.NoError(t, err)
		defer holder.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		waiter := newTestMutex(client, "k",
			WithAutoRenewMutexMaxWait(time.Second),
			WithAutoRenewMutexRetryDelay(5*time.Millisecond))
		_, err = waiter.Lock(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("acquires once released", func(t *testing.T) {
		_, client := setupMiniredis(t)
		holder := newTestMutex(client, "k")
		_, err := holder.Lock(context.Background())
		require.NoError(t, err)

		go func() {
			time.Sleep(40 * time.Millisecond)
			holder.Unlock()
		}()

		waiter := newTestMutex(client, "k",
			WithAutoRenewMutexMaxWait(time.Second),
			WithAutoRenewMutexRetryDelay(5*time.Millisecond))
		_, err = waiter.Lock(context.Background())
		require.NoError(t, err)
		ok, err := waiter.Unlock()
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("redis failure is not retried", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.Regexp().ExpectSetNX("k", ".*", 8*time.Second).SetErr(redis.ErrClosed)

		lockCtx, err := newTestMutex(client, "k").Lock(context.Background())
		assert.ErrorIs(t, err, redis.ErrClosed)
		assert.Nil(t, lockCtx)
	})
}

func TestAutoRenewMutex_Renew(t *testing.T) {
	t.Run("extends expiry while held", func(t *testing.T) {
		_, client := setupMiniredis(t)
		mutex := newTestMutex(client, "k",
			WithAutoRenewMutexExpiry(2*time.Second),
			WithAutoRenewMutexRenewInterval(40*time.Millisecond))
		_, err := mutex.Lock(context.Background())
		require.NoError(t, err)
		first := mutex.mutex.Until()

		time.Sleep(150 * time.Millisecond)
		assert.True(t, mutex.Valid())
		assert.True(t, mutex.mutex.Until().After(first))

		ok, err := mutex.Unlock()
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("lost lock cancels with cause", func(t *testing.T) {
		mr, client := setupMiniredis(t)
		mutex := newTestMutex(client, "k",
			WithAutoRenewMutexExpiry(2*time.Second),
			WithAutoRenewMutexRenewInterval(40*time.Millisecond))
		lockCtx, err := mutex.Lock(context.Background())
		require.NoError(t, err)

		// 其他節點在鎖過期後取得了同一把鎖
		require.NoError(t, mr.Set("k", "other-owner"))

		select {
		case <-lockCtx.Done():
		case <-time.After(time.Second):
			t.Fatal("lock context was not cancelled after renew failure")
		}
		assert.ErrorIs(t, context.Cause(lockCtx), ErrLockLost)
		assert.False(t, mutex.Valid())

		ok, _ := mutex.Unlock()
		assert.False(t, ok)
		got, err := mr.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "other-owner", got)
	})
}
