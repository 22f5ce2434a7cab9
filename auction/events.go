package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"auctionhall/models"
)

// EventKind 是拍賣事件的種類
type EventKind string

const (
	EventPriceChanged  EventKind = "price_changed"
	EventStatusChanged EventKind = "status_changed"
)

// Event 是推送給觀看者的拍賣事件
// Amount 以字串保存，避免序列化時失去精度
type Event struct {
	Kind       EventKind            `json:"kind" msgpack:"kind"`
	AuctionID  uuid.UUID            `json:"auctionId" msgpack:"auction_id"`
	Amount     string               `json:"amount,omitempty" msgpack:"amount"`
	Status     models.AuctionStatus `json:"status,omitempty" msgpack:"status"`
	OccurredAt time.Time            `json:"occurredAt" msgpack:"occurred_at"`
}

func NewPriceChangedEvent(auctionID uuid.UUID, amount decimal.Decimal, at time.Time) Event {
	return Event{
		Kind:       EventPriceChanged,
		AuctionID:  auctionID,
		Amount:     amount.StringFixed(2),
		OccurredAt: at,
	}
}

func NewStatusChangedEvent(auctionID uuid.UUID, status models.AuctionStatus, at time.Time) Event {
	return Event{
		Kind:       EventStatusChanged,
		AuctionID:  auctionID,
		Status:     status,
		OccurredAt: at,
	}
}
