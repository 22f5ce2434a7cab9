//go:generate mockgen -package=auction -destination=mock_locker.go -source=locker.go

package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker 提供以拍賣為單位的互斥鎖
type Locker interface {
	// Lock 取得 key 的鎖；無法在等待上限內取得時回傳 ErrContention。
	// 回傳的 context 在釋放鎖或鎖失效時會被取消，釋放函數可重複呼叫。
	Lock(ctx context.Context, key string) (context.Context, func(), error)
}

// LocalLocker 是單一行程內的 Locker，適用於沒有 Redis 的部署
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
	wait  time.Duration
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker 建立 LocalLocker，wait 為取得鎖的等待上限
func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &LocalLocker{
		slots: make(map[string]*lockSlot),
		wait:  wait,
	}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, slot, false)
		return nil, nil, ctx.Err()
	case <-timer.C:
		l.release(key, slot, false)
		return nil, nil, ErrContention
	}

	lockCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	return lockCtx, func() {
		once.Do(func() {
			cancel()
			l.release(key, slot, true)
		})
	}, nil
}

func (l *LocalLocker) release(key string, slot *lockSlot, held bool) {
	if held {
		<-slot.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
}

// withAuctionLock 在拍賣的鎖與單一交易內執行 fn
// 鎖只涵蓋驗證與寫入，通知必須在回傳後才發送
func withAuctionLock(ctx context.Context, locker Locker, gateway Gateway, auctionID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error {
	const op = "withAuctionLock"
	lockCtx, unlock, err := locker.Lock(ctx, auctionID.String())
	if err != nil {
		if errors.Is(err, ErrContention) {
			return ErrContention
		}
		return fmt.Errorf("[%s] Fail to acquire auction lock, auction=%s, err=%w", op, auctionID, err)
	}
	defer unlock()
	return gateway.WithinTx(lockCtx, func(tx Tx) error {
		return fn(lockCtx, tx)
	})
}
