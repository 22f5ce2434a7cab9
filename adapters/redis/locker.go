package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"auctionhall/auction"
)

var _ auction.Locker = (*MutexLocker)(nil)

// MutexLocker 以 redsync 實作跨節點的拍賣鎖
type MutexLocker struct {
	logger   *slog.Logger
	options  mutexLockerOptions
	newMutex func(key string) IAutoRenewMutex
}

type mutexLockerOptions struct {
	logger    *slog.Logger
	keyPrefix string
	mutex     []AutoRenewMutexOption
}

type MutexLockerOption func(*mutexLockerOptions)

// WithMutexLockerLogger 設置日誌記錄器
func WithMutexLockerLogger(logger *slog.Logger) MutexLockerOption {
	return func(o *mutexLockerOptions) {
		o.logger = logger
	}
}

// WithMutexLockerKeyPrefix 設置鎖的 key 前綴
func WithMutexLockerKeyPrefix(prefix string) MutexLockerOption {
	return func(o *mutexLockerOptions) {
		o.keyPrefix = prefix
	}
}

// WithMutexLockerMutexOptions 設置每把鎖使用的 AutoRenewMutex 選項
func WithMutexLockerMutexOptions(opts ...AutoRenewMutexOption) MutexLockerOption {
	return func(o *mutexLockerOptions) {
		o.mutex = append(o.mutex, opts...)
	}
}

func NewMutexLocker(client *redis.Client, opts ...MutexLockerOption) (*MutexLocker, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	options := mutexLockerOptions{
		logger: slog.Default(),
		mutex:  []AutoRenewMutexOption{WithAutoRenewMutexMaxWait(5 * time.Second)},
	}
	for _, opt := range opts {
		opt(&options)
	}
	rs := redsync.New(goredis.NewPool(client))
	mutexOptions := newAutoRenewMutexOptions(options.mutex)
	return &MutexLocker{
		logger:  options.logger.With(slog.String("caller", "MutexLocker")),
		options: options,
		newMutex: func(key string) IAutoRenewMutex {
			return newAutoRenewMutex(rs, key, mutexOptions)
		},
	}, nil
}

// LockKey 回傳拍賣鎖在 Redis 中的 key
func LockKey(prefix, auctionID string) string {
	return fmt.Sprintf("%sauction:%s:lock", prefix, auctionID)
}

func (l *MutexLocker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	mutex := l.newMutex(LockKey(l.options.keyPrefix, key))
	lockCtx, err := mutex.Lock(ctx)
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return nil, nil, auction.ErrContention
		}
		return nil, nil, err
	}

	var once sync.Once
	return lockCtx, func() {
		once.Do(func() {
			if !mutex.Valid() {
				// 持有期間鎖已失效，這段期間的寫入可能與其他節點重疊
				l.logger.Warn("Auction lock expired before release", slog.String("key", key))
			}
			ok, err := mutex.Unlock()
			if err != nil {
				l.logger.Warn("Fail to release auction lock", slog.String("key", key), slog.Any("error", err))
			} else if !ok {
				// 鎖已過期時會由 Redis 自行釋放
				l.logger.Debug("Auction lock already released", slog.String("key", key))
			}
		})
	}, nil
}
