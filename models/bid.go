package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid 代表拍賣的出價紀錄，建立後不可修改
// 同一場拍賣中，同一出價者不能出相同的金額
type Bid struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;<-:create" json:"id"`
	AuctionID uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_bid_auction_bidder_amount;<-:create" json:"auctionId"`
	BidderID  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_bid_auction_bidder_amount;<-:create" json:"bidderId"`
	Amount    decimal.Decimal `gorm:"type:numeric(12,2);not null;uniqueIndex:idx_bid_auction_bidder_amount;<-:create" json:"amount"`
	CreatedAt time.Time       `gorm:"<-:create" json:"createdAt"`
}
