package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"auctionhall/auction"
	"auctionhall/models"
)

var _ auction.Notifier = (*EventPublisher)(nil)

// publishEventScript 發布拍賣事件
//
//	KEYS[1] - 拍賣最新價格的快照鍵
//	KEYS[2] - 事件的 stream
//	ARGV[1] - 事件種類
//	ARGV[2] - 價格（狀態事件為空字串）
//	ARGV[3] - 編碼後的事件
//	ARGV[4] - 快照的存活時間（毫秒）
//	ARGV[5] - stream 保留的最大長度
//
// 返回值:
//
//	1 - 已寫入 stream
//	0 - 價格不高於已發布的價格，事件被丟棄
//
// 事件在交易提交後才發送，同一場拍賣的價格事件可能亂序抵達，
// 這裡以快照中的價格過濾掉過時的事件
var publishEventScript = redis.NewScript(`
if ARGV[1] == 'price_changed' then
    local last = tonumber(redis.call('GET', KEYS[1]))
    local amount = tonumber(ARGV[2])
    if last ~= nil and amount <= last then
        return 0
    end
    redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[4])
end

redis.call('XADD', KEYS[2], 'MAXLEN', ARGV[5], '*', 'data', ARGV[3])
return 1
`)

type eventPublisherOptions struct {
	logger      *slog.Logger
	keyPrefix   string
	stream      string
	snapshotTTL time.Duration
	maxLen      int64
	clock       func() time.Time
}

type EventPublisherOption func(*eventPublisherOptions)

// WithEventPublisherLogger 設置日誌記錄器
func WithEventPublisherLogger(logger *slog.Logger) EventPublisherOption {
	return func(o *eventPublisherOptions) {
		o.logger = logger
	}
}

// WithEventPublisherKeyPrefix 設置快照 key 的前綴
func WithEventPublisherKeyPrefix(prefix string) EventPublisherOption {
	return func(o *eventPublisherOptions) {
		o.keyPrefix = prefix
	}
}

// WithEventPublisherStream 設置事件的 stream
func WithEventPublisherStream(stream string) EventPublisherOption {
	return func(o *eventPublisherOptions) {
		o.stream = stream
	}
}

// WithEventPublisherSnapshotTTL 設置價格快照的存活時間
func WithEventPublisherSnapshotTTL(d time.Duration) EventPublisherOption {
	return func(o *eventPublisherOptions) {
		o.snapshotTTL = d
	}
}

// WithEventPublisherMaxLen 設置 stream 保留的最大長度
func WithEventPublisherMaxLen(n int64) EventPublisherOption {
	return func(o *eventPublisherOptions) {
		o.maxLen = n
	}
}

// WithEventPublisherClock 設置事件時間的來源
func WithEventPublisherClock(clock func() time.Time) EventPublisherOption {
	return func(o *eventPublisherOptions) {
		o.clock = clock
	}
}

// EventPublisher 將拍賣事件寫入 Redis stream，供所有節點的 SSE 連線管理器讀取
type EventPublisher struct {
	client   *redis.Client
	producer *Producer[auction.Event]
	logger   *slog.Logger
	options  eventPublisherOptions
}

func NewEventPublisher(client *redis.Client, opts ...EventPublisherOption) (*EventPublisher, error) {
	const op = "NewEventPublisher"
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	options := eventPublisherOptions{
		logger:      slog.Default(),
		stream:      "auction:events",
		snapshotTTL: 24 * time.Hour,
		maxLen:      10000,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.snapshotTTL <= 0 {
		options.snapshotTTL = 24 * time.Hour
	}
	if options.stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	publisher := &EventPublisher{
		client:  client,
		logger:  options.logger.With(slog.String("caller", "EventPublisher")),
		options: options,
	}
	producer, err := NewProducer[auction.Event](
		client,
		options.stream,
		WithProducerLogger[auction.Event](options.logger),
		WithProducerSendFunc[auction.Event](publisher.send),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create producer, err=%w", op, err)
	}
	publisher.producer = producer
	return publisher, nil
}

// SnapshotKey 回傳拍賣最新價格快照的 key
func SnapshotKey(prefix string, auctionID uuid.UUID) string {
	return fmt.Sprintf("%sauction:%s:price", prefix, auctionID)
}

func (p *EventPublisher) Start() {
	p.producer.Start()
}

func (p *EventPublisher) Close() {
	p.producer.Close()
}

func (p *EventPublisher) PublishPriceChanged(_ context.Context, auctionID uuid.UUID, amount decimal.Decimal) error {
	return p.producer.Publish(auction.NewPriceChangedEvent(auctionID, amount, p.options.clock()))
}

func (p *EventPublisher) PublishStatusChanged(_ context.Context, auctionID uuid.UUID, status models.AuctionStatus) error {
	return p.producer.Publish(auction.NewStatusChangedEvent(auctionID, status, p.options.clock()))
}

func (p *EventPublisher) send(ctx context.Context, event auction.Event) error {
	const op = "send"
	payload, err := EncodePayload(event)
	if err != nil {
		return fmt.Errorf("[%s] Fail to encode event, err=%w", op, err)
	}
	result, err := publishEventScript.Run(
		ctx,
		p.client,
		[]string{SnapshotKey(p.options.keyPrefix, event.AuctionID), p.options.stream},
		string(event.Kind),
		event.Amount,
		payload,
		p.options.snapshotTTL.Milliseconds(),
		p.options.maxLen,
	).Int()
	if err != nil {
		return fmt.Errorf("[%s] Fail to run publish script, auction=%s, err=%w", op, event.AuctionID, err)
	}
	if result == 0 {
		p.logger.Debug("Drop stale price event",
			slog.String("auctionID", event.AuctionID.String()),
			slog.String("amount", event.Amount))
	}
	return nil
}

// EventConsumer 建立讀取事件 stream 的 Consumer，缺少拍賣 ID 或種類的事件視為格式錯誤
func EventConsumer(client *redis.Client, stream string, opts ...ConsumerOption[auction.Event]) (*Consumer[auction.Event], error) {
	opts = append([]ConsumerOption[auction.Event]{WithConsumerParseFunc(decodeEvent)}, opts...)
	return NewConsumer(client, stream, opts...)
}

func decodeEvent(values map[string]any) (auction.Event, error) {
	event, err := DecodeMessage[auction.Event](values)
	if err != nil {
		return auction.Event{}, err
	}
	if event.AuctionID == uuid.Nil || event.Kind == "" {
		return auction.Event{}, errors.New("event without auction id or kind")
	}
	return event, nil
}
