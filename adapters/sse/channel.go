package sse

import (
	"sync"
)

// Channel 用於管理針對某個主題 (Topic) 的所有訂閱者，
// 並將接收到的訊息廣播給所有訂閱者。
// 每個訂閱者有自己的緩衝區，緩衝區已滿時丟棄訊息，慢的連線不會拖住廣播。
type Channel[T any] struct {
	subscribers map[<-chan T]chan T
	bufferSize  int
	mu          sync.RWMutex
}

// NewChannel 建立新的頻道，bufferSize 為每個訂閱者的緩衝大小
func NewChannel[T any](bufferSize int) IChannel[T] {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Channel[T]{
		subscribers: make(map[<-chan T]chan T),
		bufferSize:  bufferSize,
	}
}

// Subscribe 建立一個新的 chan T，將其加入 subscribers，並回傳唯讀通道給呼叫者。
func (c *Channel[T]) Subscribe() <-chan T {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan T, c.bufferSize)
	c.subscribers[ch] = ch
	return ch
}

// Unsubscribe 從 subscribers 中移除指定的通道，並關閉該通道。
func (c *Channel[T]) Unsubscribe(ch <-chan T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if writeCh, exists := c.subscribers[ch]; exists {
		delete(c.subscribers, ch)
		close(writeCh)
	}
}

// UnsubscribeAll 關閉所有訂閱者的通道並清空訂閱清單。
func (c *Channel[T]) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, writeCh := range c.subscribers {
		close(writeCh)
	}
	clear(c.subscribers)
}

// Broadcast 將訊息廣播給所有仍在訂閱清單中的通道。
func (c *Channel[T]) Broadcast(message T) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dropped := 0
	for _, writeCh := range c.subscribers {
		select {
		case writeCh <- message:
		default:
			dropped++
		}
	}
	return dropped
}

// IsIdle 判斷 subscribers 是否為空。
func (c *Channel[T]) IsIdle() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers) == 0
}
