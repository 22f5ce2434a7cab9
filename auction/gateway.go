//go:generate mockgen -package=auction -destination=mock_gateway.go -source=gateway.go

package auction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"auctionhall/models"
)

// Tx 是單一交易中可組合的持久層操作
// 任一操作失敗時整個交易會回滾，不會留下部分寫入
type Tx interface {
	// GetAuctionForUpdate 以鎖定讀取取得拍賣，找不到時回傳 ErrNotFound
	GetAuctionForUpdate(ctx context.Context, id uuid.UUID) (models.Auction, error)
	// InsertBid 新增出價紀錄，違反唯一性時回傳 ErrDuplicateBid
	InsertBid(ctx context.Context, bid *models.Bid) error
	// UpdateAuctionPrice 將拍賣的目前價格更新為 bid 的金額，並遞增出價次數
	UpdateAuctionPrice(ctx context.Context, id uuid.UUID, bid models.Bid) error
	SetAuctionStatus(ctx context.Context, id uuid.UUID, status models.AuctionStatus) error
	CountBids(ctx context.Context, auctionID uuid.UUID) (int64, error)
}

// Gateway 是出價引擎與生命週期控制器依賴的持久層
type Gateway interface {
	// WithinTx 在同一個交易內執行 fn；fn 回傳錯誤時回滾
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	CreateAuction(ctx context.Context, auction *models.Auction) error
	// ListExpiredAuctions 列出儲存狀態仍為 active 但結束時間已過的拍賣
	ListExpiredAuctions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// ListFilter 是列出拍賣時的篩選條件
type ListFilter struct {
	// Active 為 nil 時列出全部；true 只列出進行中；false 只列出已結束或已取消
	Active *bool
}

// LedgerStore 是讀取模型使用的查詢
type LedgerStore interface {
	GetAuction(ctx context.Context, id uuid.UUID) (models.Auction, error)
	ListAuctions(ctx context.Context, filter ListFilter, now time.Time) ([]models.Auction, error)
	// ListBids 依金額由高到低排序
	ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	// LikeCounts 與 ActiveCommentCounts 一次計算多場拍賣，沒有資料的拍賣不會出現在結果中
	LikeCounts(ctx context.Context, auctionIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	ActiveCommentCounts(ctx context.Context, auctionIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	HasLiked(ctx context.Context, auctionID, userID uuid.UUID) (bool, error)
	// ListComments 只列出未刪除的留言，由舊到新
	ListComments(ctx context.Context, auctionID uuid.UUID) ([]models.Comment, error)
}

// SocialStore 是喜歡與留言使用的持久層
type SocialStore interface {
	GetAuction(ctx context.Context, id uuid.UUID) (models.Auction, error)
	// CreateLike 已存在相同 (auction, user) 時回傳 ErrConflict
	CreateLike(ctx context.Context, like *models.Like) error
	// DeleteLike 回傳是否真的刪除了一筆資料
	DeleteLike(ctx context.Context, auctionID, userID uuid.UUID) (bool, error)
	CreateComment(ctx context.Context, comment *models.Comment) error
	// GetComment 找不到或已刪除時回傳 ErrNotFound
	GetComment(ctx context.Context, auctionID, commentID uuid.UUID) (models.Comment, error)
	UpdateCommentText(ctx context.Context, commentID uuid.UUID, text string) error
	MarkCommentDeleted(ctx context.Context, commentID uuid.UUID) error
	// ListComments 只列出未刪除的留言，由舊到新
	ListComments(ctx context.Context, auctionID uuid.UUID) ([]models.Comment, error)
}

// Notifier 接收拍賣事件並推送給觀看者
// 投遞是盡力而為，失敗不會影響已提交的操作
type Notifier interface {
	PublishPriceChanged(ctx context.Context, auctionID uuid.UUID, amount decimal.Decimal) error
	PublishStatusChanged(ctx context.Context, auctionID uuid.UUID, status models.AuctionStatus) error
}

// NopNotifier 丟棄所有事件
type NopNotifier struct{}

func (NopNotifier) PublishPriceChanged(context.Context, uuid.UUID, decimal.Decimal) error {
	return nil
}

func (NopNotifier) PublishStatusChanged(context.Context, uuid.UUID, models.AuctionStatus) error {
	return nil
}
