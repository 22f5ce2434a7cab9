package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"
)

var _ IProducer[struct{}] = (*Producer[struct{}])(nil)

type producerOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	maxLen       int64
	drainTimeout time.Duration
	parseFunc    func(T) (map[string]any, error)
	sendFunc     func(context.Context, T) error
}

type ProducerOption[T any] func(*producerOptions[T])

func WithProducerLogger[T any](logger *slog.Logger) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.logger = logger
	}
}

// WithProducerBufferSize 佇列的初始容量，佇列本身沒有上限
func WithProducerBufferSize[T any](size int) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.bufferSize = size
	}
}

// WithProducerMaxLen 預設 XADD 的 MAXLEN（近似裁切），0 表示不裁切
func WithProducerMaxLen[T any](n int64) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.maxLen = n
	}
}

// WithProducerDrainTimeout Close 時等待佇列送完的上限
func WithProducerDrainTimeout[T any](d time.Duration) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.drainTimeout = d
	}
}

// WithProducerParseFunc 只在預設的 XADD 送出方式下使用
func WithProducerParseFunc[T any](fn func(T) (map[string]any, error)) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.parseFunc = fn
	}
}

// WithProducerSendFunc 取代預設的 XADD
func WithProducerSendFunc[T any](fn func(context.Context, T) error) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.sendFunc = fn
	}
}

// Producer 把資料放進無上限的佇列，由單一 goroutine 依照 Publish 的順序送出。
// Publish 不會因為 Redis 緩慢而阻塞，送出失敗只會記錄在日誌。
//
// Close 會停止接受新資料，並在 drainTimeout 內把佇列中剩餘的資料送完；
// 逾時仍未送出的資料會被丟棄。Producer 只能啟動一次。
type Producer[T any] struct {
	client  *redis.Client
	stream  string
	logger  *slog.Logger
	options producerOptions[T]

	mu       sync.RWMutex
	started  bool
	closed   bool
	upstream *chanx.UnboundedChan[T]
	abort    context.CancelFunc
	done     chan struct{}
}

func NewProducer[T any](client *redis.Client, stream string, opts ...ProducerOption[T]) (*Producer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := producerOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		drainTimeout: 2 * time.Second,
		parseFunc:    EncodeMessage[T],
	}
	for _, opt := range opts {
		opt(&options)
	}

	producer := &Producer[T]{
		client:  client,
		stream:  stream,
		logger:  options.logger.With(slog.String("caller", "Producer"), slog.String("stream", stream)),
		options: options,
		done:    make(chan struct{}),
	}
	if producer.options.sendFunc == nil {
		producer.options.sendFunc = producer.xadd
	}
	return producer, nil
}

func (p *Producer[T]) xadd(ctx context.Context, data T) error {
	message, err := p.options.parseFunc(data)
	if err != nil {
		return fmt.Errorf("parse message error: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: message,
	}
	if p.options.maxLen > 0 {
		args.MaxLen = p.options.maxLen
		args.Approx = true
	}
	return p.client.XAdd(ctx, args).Err()
}

func (p *Producer[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.upstream = chanx.NewUnboundedChan[T](ctx, p.options.bufferSize)
	p.abort = cancel
	p.started = true
	p.logger.Info("Start stream producer")
	go p.run(ctx)
}

func (p *Producer[T]) run(ctx context.Context) {
	defer close(p.done)

	dropped := 0
	// In 被關閉後 Out 會先吐完剩餘資料才關閉；abort 之後 Out 也會關閉
	for data := range p.upstream.Out {
		if ctx.Err() != nil {
			dropped++
			continue
		}
		if err := p.options.sendFunc(ctx, data); err != nil {
			if ctx.Err() != nil {
				dropped++
				continue
			}
			p.logger.Error("Fail to send message", slog.Any("error", err))
		}
	}
	if dropped > 0 {
		p.logger.Warn("Drop unsent messages on close", slog.Int("dropped", dropped))
	}
}

// Publish 將資料加入佇列，未啟動或已關閉時回傳 ErrClosed
func (p *Producer[T]) Publish(data T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started || p.closed {
		return ErrClosed
	}
	p.upstream.In <- data
	return nil
}

// Pending 回傳尚未送出的資料筆數
func (p *Producer[T]) Pending() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.upstream == nil {
		return 0
	}
	return p.upstream.Len()
}

func (p *Producer[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	if started {
		close(p.upstream.In)
	}
	p.mu.Unlock()
	if !started {
		return
	}

	timer := time.NewTimer(p.options.drainTimeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		p.abort()
		<-p.done
	}
	p.abort()
	p.logger.Info("Stream producer closed")
}
