package auction

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type options struct {
	notifier   Notifier
	logger     *slog.Logger
	clock      func() time.Time
	newID      func() uuid.UUID
	sweepBatch int
}

type Option func(*options)

// WithNotifier 設置事件推送的目標
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithLogger 設置日誌記錄器
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock 設置取得目前時間的函數
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithIDGenerator 設置產生 ID 的函數
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(o *options) {
		o.newID = fn
	}
}

// WithSweepBatchSize 設置每次掃描處理的過期拍賣上限
func WithSweepBatchSize(n int) Option {
	return func(o *options) {
		o.sweepBatch = n
	}
}

func newOptions(caller string, opts []Option) options {
	o := options{
		notifier:   NopNotifier{},
		logger:     slog.Default(),
		clock:      time.Now,
		newID:      uuid.New,
		sweepBatch: 100,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = NopNotifier{}
	}
	if o.sweepBatch <= 0 {
		o.sweepBatch = 100
	}
	o.logger = o.logger.With(slog.String("caller", caller))
	return o
}
