package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ IConsumer[struct{}] = (*Consumer[struct{}])(nil)

type consumerState int

const (
	consumerIdle consumerState = iota
	consumerRunning
	consumerClosed
)

type consumerOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	batchSize    int64
	blockTimeout time.Duration
	startID      string
	parseFunc    func(map[string]any) (T, error)
}

type ConsumerOption[T any] func(*consumerOptions[T])

func WithConsumerLogger[T any](logger *slog.Logger) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.logger = logger
	}
}

// WithConsumerBufferSize 下游 channel 的容量
func WithConsumerBufferSize[T any](size int) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.bufferSize = size
	}
}

// WithConsumerBatchSize 單次 XREAD 最多取回的筆數
func WithConsumerBatchSize[T any](n int64) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.batchSize = n
	}
}

// WithConsumerBlockTimeout XREAD 的阻塞時間，同時也是讀取失敗後的退避時間
func WithConsumerBlockTimeout[T any](d time.Duration) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithConsumerStartID 起始訊息 ID，"$" 表示只接收啟動後的新事件，"0" 會重播整個 stream
func WithConsumerStartID[T any](id string) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.startID = id
	}
}

func WithConsumerParseFunc[T any](fn func(map[string]any) (T, error)) ConsumerOption[T] {
	return func(o *consumerOptions[T]) {
		o.parseFunc = fn
	}
}

// Consumer 以 XREAD（非 consumer group）追蹤 stream，讓每個節點都拿到完整的事件序列。
//
// Consumer 只能啟動一次。下游 channel 在建立時就已存在，所以可以先 Subscribe 再 Start；
// Close 之後下游 channel 會被關閉。
type Consumer[T any] struct {
	client     *redis.Client
	stream     string
	options    consumerOptions[T]
	logger     *slog.Logger
	downStream chan T

	mu     sync.Mutex
	state  consumerState
	cancel context.CancelFunc
	done   chan struct{}

	// 只在讀取 goroutine 內存取
	lastID string

	malformed atomic.Int64
}

func NewConsumer[T any](client *redis.Client, stream string, opts ...ConsumerOption[T]) (*Consumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := consumerOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		batchSize:    16,
		blockTimeout: time.Second,
		startID:      "$",
		parseFunc:    DecodeMessage[T],
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.batchSize <= 0 {
		options.batchSize = 1
	}
	if options.bufferSize < 0 {
		options.bufferSize = 0
	}

	return &Consumer[T]{
		client:     client,
		stream:     stream,
		options:    options,
		logger:     options.logger.With(slog.String("caller", "Consumer"), slog.String("stream", stream)),
		downStream: make(chan T, options.bufferSize),
		lastID:     options.startID,
		done:       make(chan struct{}),
	}, nil
}

// Start 啟動讀取 goroutine，重複呼叫或 Close 之後呼叫都不會有作用
func (s *Consumer[T]) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != consumerIdle {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = consumerRunning
	s.logger.Info("Start consuming stream", slog.String("from", s.lastID))
	go s.run(ctx)
}

func (s *Consumer[T]) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.downStream)

	for ctx.Err() == nil {
		messages, err := s.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("Fail to read stream", slog.Any("error", err))
			// Redis 不可用時避免空轉
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.options.blockTimeout):
			}
			continue
		}
		for _, message := range messages {
			// 解析失敗也要推進位置，否則會一直讀到同一筆
			s.lastID = message.ID
			data, err := s.options.parseFunc(message.Values)
			if err != nil {
				s.malformed.Add(1)
				s.logger.Warn("Skip malformed message",
					slog.String("messageId", message.ID),
					slog.Any("error", err))
				continue
			}
			select {
			case <-ctx.Done():
				return
			case s.downStream <- data:
			}
		}
	}
}

// read 取回 lastID 之後的一批訊息，阻塞逾時回傳空批次
func (s *Consumer[T]) read(ctx context.Context) ([]redis.XMessage, error) {
	if s.lastID == "$" {
		if err := s.resolveTail(ctx); err != nil {
			return nil, err
		}
	}
	streams, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.stream, s.lastID},
		Count:   s.options.batchSize,
		Block:   s.options.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, stream := range streams {
		if stream.Stream == s.stream {
			return stream.Messages, nil
		}
	}
	return nil, nil
}

// resolveTail 把 "$" 換成目前最後一筆的 ID，阻塞逾時後重新讀取時才不會漏掉中間寫入的訊息
func (s *Consumer[T]) resolveTail(ctx context.Context) error {
	last, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", 1).Result()
	if err != nil {
		return err
	}
	if len(last) == 0 {
		s.lastID = "0-0"
		return nil
	}
	s.lastID = last[0].ID
	return nil
}

// Subscribe 回傳下游 channel，Close 後會被關閉
func (s *Consumer[T]) Subscribe() <-chan T {
	return s.downStream
}

// Malformed 回傳因解析失敗而略過的訊息數
func (s *Consumer[T]) Malformed() int64 {
	return s.malformed.Load()
}

// Close 停止讀取並等待 goroutine 結束
func (s *Consumer[T]) Close() {
	s.mu.Lock()
	prev := s.state
	s.state = consumerClosed
	s.mu.Unlock()

	switch prev {
	case consumerIdle:
		close(s.downStream)
	case consumerRunning:
		s.cancel()
		<-s.done
		s.logger.Info("Stream consumer closed", slog.String("lastId", s.lastID))
	}
}
