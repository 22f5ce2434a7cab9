//go:generate mockgen -package=redis -destination=mock.go -source=interfaces.go

package redis

import (
	"context"
	"errors"
)

var (
	// ErrClosed 表示元件已經關閉或尚未啟動
	ErrClosed = errors.New("component is closed")
	// ErrLockTimeout 表示在等待上限內無法取得鎖
	ErrLockTimeout = errors.New("lock wait timeout")
	// ErrLockLost 表示持有期間續期失敗，鎖可能已被其他節點取得
	ErrLockLost = errors.New("lock lost")
)

// IProducer 定義了 Producer 的操作介面
type IProducer[T any] interface {
	Start()
	Publish(data T) error
	Close()
}

// IConsumer 定義了 Consumer 的操作介面
type IConsumer[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}

// IAutoRenewMutex 定義了 AutoRenewMutex 的操作介面
type IAutoRenewMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
	Valid() bool
}
