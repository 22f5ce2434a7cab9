package sse

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"auctionhall/auction"
	"auctionhall/models"
)

var _ auction.Notifier = (*Notifier)(nil)

// EventChannel 回傳拍賣事件所屬的頻道名稱，每個拍賣一個頻道
func EventChannel(event auction.Event) string {
	return event.AuctionID.String()
}

// Notifier 直接把拍賣事件交給本節點的連線管理器，用於沒有 Redis 的單節點部署
type Notifier struct {
	manager IConnectionManager[auction.Event]
	clock   func() time.Time
}

func NewNotifier(manager IConnectionManager[auction.Event]) *Notifier {
	return &Notifier{manager: manager, clock: time.Now}
}

func (n *Notifier) publish(event auction.Event) error {
	return n.manager.Publish(EventChannel(event), event)
}

func (n *Notifier) PublishPriceChanged(_ context.Context, auctionID uuid.UUID, amount decimal.Decimal) error {
	return n.publish(auction.NewPriceChangedEvent(auctionID, amount, n.clock()))
}

func (n *Notifier) PublishStatusChanged(_ context.Context, auctionID uuid.UUID, status models.AuctionStatus) error {
	return n.publish(auction.NewStatusChangedEvent(auctionID, status, n.clock()))
}
