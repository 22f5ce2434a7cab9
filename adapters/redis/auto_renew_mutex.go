package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
)

var _ IAutoRenewMutex = (*AutoRenewMutex)(nil)

type autoRenewMutexOptions struct {
	expiry        time.Duration
	renewInterval time.Duration
	retryDelay    time.Duration
	maxWait       time.Duration
}

type AutoRenewMutexOption func(*autoRenewMutexOptions)

// WithAutoRenewMutexExpiry 鎖在 Redis 上的存活時間
func WithAutoRenewMutexExpiry(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.expiry = d
	}
}

// WithAutoRenewMutexRenewInterval 續期間隔，未設置時為存活時間的 1/3
func WithAutoRenewMutexRenewInterval(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.renewInterval = d
	}
}

func WithAutoRenewMutexRetryDelay(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.retryDelay = d
	}
}

// WithAutoRenewMutexMaxWait 取得鎖的等待上限，0 代表只受 context 限制
func WithAutoRenewMutexMaxWait(d time.Duration) AutoRenewMutexOption {
	return func(o *autoRenewMutexOptions) {
		o.maxWait = d
	}
}

func newAutoRenewMutexOptions(opts []AutoRenewMutexOption) autoRenewMutexOptions {
	options := autoRenewMutexOptions{
		expiry:     8 * time.Second,
		retryDelay: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.expiry <= 0 {
		options.expiry = 8 * time.Second
	}
	if options.renewInterval <= 0 || options.renewInterval >= options.expiry {
		options.renewInterval = options.expiry / 3
	}
	if options.retryDelay <= 0 {
		options.retryDelay = 50 * time.Millisecond
	}
	return options
}

// AutoRenewMutex 是持有期間會在背景續期的 redsync 鎖。
//
// 續期失敗代表鎖可能已被其他節點取得，此時 Lock 回傳的 context 會以 ErrLockLost 取消，
// 持有者應放棄尚未提交的寫入。一個 AutoRenewMutex 同時只能被持有一次。
type AutoRenewMutex struct {
	mutex   *redsync.Mutex
	options autoRenewMutexOptions

	mu      sync.Mutex
	held    bool
	release context.CancelCauseFunc
	renewer chan struct{}
}

func newAutoRenewMutex(rs *redsync.Redsync, key string, options autoRenewMutexOptions) *AutoRenewMutex {
	return &AutoRenewMutex{
		// 重試由 acquire 自己控制，redsync 每次只嘗試一次
		mutex: rs.NewMutex(
			key,
			redsync.WithExpiry(options.expiry),
			redsync.WithTries(1),
		),
		options: options,
	}
}

// Lock 等待並取得鎖。
// 超過 maxWait 回傳 ErrLockTimeout；呼叫端的 context 結束時回傳 context 的錯誤；
// Redis 本身的錯誤不重試，直接回傳。
func (m *AutoRenewMutex) Lock(ctx context.Context) (context.Context, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}

	lockCtx, release := context.WithCancelCause(ctx)
	renewer := make(chan struct{})
	m.mu.Lock()
	m.held = true
	m.release = release
	m.renewer = renewer
	m.mu.Unlock()

	go m.keepAlive(lockCtx, release, renewer)
	return lockCtx, nil
}

func (m *AutoRenewMutex) acquire(ctx context.Context) error {
	waitCtx := ctx
	if m.options.maxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, m.options.maxWait)
		defer cancel()
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-waitCtx.Done():
			case <-time.After(m.options.retryDelay):
			}
		}
		if waitCtx.Err() != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrLockTimeout
		}

		err := m.mutex.LockContext(waitCtx)
		if err == nil {
			return nil
		}
		var redisErr *redsync.RedisError
		if errors.As(err, &redisErr) && waitCtx.Err() == nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
	}
}

// keepAlive 定期延長鎖的存活時間，直到 lockCtx 結束或續期失敗
func (m *AutoRenewMutex) keepAlive(lockCtx context.Context, release context.CancelCauseFunc, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.options.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lockCtx.Done():
			return
		case <-ticker.C:
			ok, err := m.mutex.ExtendContext(lockCtx)
			if lockCtx.Err() != nil {
				return
			}
			if err != nil || !ok {
				m.mu.Lock()
				m.held = false
				m.mu.Unlock()
				release(ErrLockLost)
				return
			}
		}
	}
}

// Unlock 停止續期並釋放鎖，鎖已遺失時回傳 false
func (m *AutoRenewMutex) Unlock() (bool, error) {
	m.mu.Lock()
	release, renewer := m.release, m.renewer
	m.held = false
	m.release, m.renewer = nil, nil
	m.mu.Unlock()
	if release == nil {
		return false, nil
	}

	release(context.Canceled)
	<-renewer
	return m.mutex.Unlock()
}

// Valid 回傳鎖是否仍由自己持有且尚未過期
func (m *AutoRenewMutex) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held && time.Now().Before(m.mutex.Until())
}
