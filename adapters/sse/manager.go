package sse

import (
	"context"
	"log/slog"
	"sync"
)

type options[T any] struct {
	logger     *slog.Logger
	subscriber ISubscriber[T]
	route      func(T) string
	bufferSize int
}

type Option[T any] func(*options[T])

// WithLogger 設置日誌記錄器
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(o *options[T]) {
		o.logger = logger
	}
}

// WithSubscriber 設置跨節點訊息的來源，route 決定訊息要送往哪個頻道。
// 未設置時只會轉發本節點 Publish 的訊息
func WithSubscriber[T any](subscriber ISubscriber[T], route func(T) string) Option[T] {
	return func(o *options[T]) {
		o.subscriber = subscriber
		o.route = route
	}
}

// WithBufferSize 設置每個訂閱者的緩衝大小
func WithBufferSize[T any](size int) Option[T] {
	return func(o *options[T]) {
		o.bufferSize = size
	}
}

// connectionManager 管理多個 SSE 頻道的訂閱與發布。
type connectionManager[T any] struct {
	logger *slog.Logger

	mu     sync.RWMutex   // 保護 active 和 channels 的讀寫
	wg     sync.WaitGroup // 用於等待所有 goroutine 完成
	active bool           // 標記 manager 是否正在運作中
	cancel context.CancelFunc

	options  options[T]
	channels map[string]IChannel[T] // 儲存所有活躍的頻道
}

// NewConnectionManager 建立一個新的連線管理器。
func NewConnectionManager[T any](opts ...Option[T]) IConnectionManager[T] {
	o := options[T]{
		logger:     slog.Default(),
		bufferSize: 16,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &connectionManager[T]{
		logger:   o.logger.With(slog.String("caller", "ConnectionManager")),
		channels: make(map[string]IChannel[T]),
		options:  o,
		active:   true,
	}
}

// Start 啟動訂閱來源的轉發，沒有設置訂閱來源時不做任何事。
func (cm *connectionManager[T]) Start() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if !cm.active || cm.cancel != nil || cm.options.subscriber == nil || cm.options.route == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	cm.cancel = cancel
	source := cm.options.subscriber.Subscribe()

	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-source:
				if !ok {
					return
				}
				cm.broadcast(cm.options.route(msg), msg)
			}
		}
	}()
}

func (cm *connectionManager[T]) broadcast(channelName string, data T) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	channel, ok := cm.channels[channelName]
	if !ok {
		return
	}
	if dropped := channel.Broadcast(data); dropped > 0 {
		cm.logger.Warn("Drop message for slow subscribers", slog.String("channel", channelName), slog.Int("dropped", dropped))
	}
}

// Done 停止連線管理器的運作。
func (cm *connectionManager[T]) Done() {
	cm.mu.Lock()
	if !cm.active {
		cm.mu.Unlock()
		return
	}
	cm.active = false
	if cm.cancel != nil {
		cm.cancel()
	}
	cm.mu.Unlock()
	cm.wg.Wait()

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, channel := range cm.channels {
		channel.UnsubscribeAll()
	}
	clear(cm.channels)
}

// Subscribe 訂閱指定的頻道。
func (cm *connectionManager[T]) Subscribe(channelName string) (<-chan T, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.active {
		return nil, context.Canceled
	}

	c, ok := cm.channels[channelName]
	if !ok {
		c = NewChannel[T](cm.options.bufferSize)
		cm.channels[channelName] = c
	}
	return c.Subscribe(), nil
}

// Publish 將訊息廣播給本節點上訂閱該頻道的連線。
func (cm *connectionManager[T]) Publish(channelName string, data T) error {
	cm.mu.RLock()
	active := cm.active
	cm.mu.RUnlock()
	if !active {
		return context.Canceled
	}
	cm.broadcast(channelName, data)
	return nil
}

// Unsubscribe 取消訂閱指定的頻道。
func (cm *connectionManager[T]) Unsubscribe(channelName string, ch <-chan T) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, ok := cm.channels[channelName]
	if !ok {
		return
	}

	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(cm.channels, channelName)
	}
}
