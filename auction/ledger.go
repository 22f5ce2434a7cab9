package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"auctionhall/models"
)

// AuctionSummary 是拍賣列表中的一筆資料
// Status 與 IsActive 依查詢當下的時間推導，不一定等於儲存的狀態
type AuctionSummary struct {
	ID            uuid.UUID            `json:"id"`
	SellerID      uuid.UUID            `json:"sellerId"`
	Title         string               `json:"title"`
	Description   string               `json:"description"`
	ImageURL      string               `json:"imageUrl"`
	StartingPrice decimal.Decimal      `json:"startingPrice"`
	HighestBid    *decimal.Decimal     `json:"highestBid"`
	EndTime       time.Time            `json:"endTime"`
	Status        models.AuctionStatus `json:"status"`
	IsActive      bool                 `json:"isActive"`
	BidCount      int64                `json:"bidCount"`
	LikeCount     int64                `json:"likeCount"`
	CommentCount  int64                `json:"commentCount"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

// AuctionView 是單一拍賣的詳細資料
type AuctionView struct {
	AuctionSummary
	UserHasLiked bool              `json:"userHasLiked"`
	Bids         []decimal.Decimal `json:"bids"`
	Comments     []models.Comment  `json:"comments"`
}

// Ledger 是拍賣的讀取模型，只做彙整，不檢查任何規則
type Ledger struct {
	store   LedgerStore
	options options
}

func NewLedger(store LedgerStore, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	return &Ledger{
		store:   store,
		options: newOptions("Ledger", opts),
	}, nil
}

func summarize(auction models.Auction, now time.Time, likes, comments map[uuid.UUID]int64) AuctionSummary {
	status := auction.StatusAt(now)
	summary := AuctionSummary{
		ID:            auction.ID,
		SellerID:      auction.SellerID,
		Title:         auction.Title,
		Description:   auction.Description,
		ImageURL:      auction.ImageURL,
		StartingPrice: auction.StartingPrice,
		EndTime:       auction.EndTime,
		Status:        status,
		IsActive:      status == models.AuctionStatusActive,
		BidCount:      auction.BidCount,
		LikeCount:     likes[auction.ID],
		CommentCount:  comments[auction.ID],
		CreatedAt:     auction.CreatedAt,
		UpdatedAt:     auction.UpdatedAt,
	}
	// 出價金額嚴格遞增，最新出價就是最高出價
	if auction.CurrentPrice.Valid {
		highest := auction.CurrentPrice.Decimal
		summary.HighestBid = &highest
	}
	return summary
}

// GetAuction 回傳拍賣的詳細資料；viewer 為 nil 代表匿名使用者
func (l *Ledger) GetAuction(ctx context.Context, auctionID uuid.UUID, viewer *uuid.UUID) (AuctionView, error) {
	const op = "GetAuction"
	auction, err := l.store.GetAuction(ctx, auctionID)
	if errors.Is(err, ErrNotFound) {
		return AuctionView{}, reject(ReasonNotFound, MsgAuctionNotFound)
	}
	if err != nil {
		return AuctionView{}, fmt.Errorf("[%s] Fail to get auction, err=%w", op, err)
	}
	ids := []uuid.UUID{auctionID}
	likes, err := l.store.LikeCounts(ctx, ids)
	if err != nil {
		return AuctionView{}, fmt.Errorf("[%s] Fail to count likes, err=%w", op, err)
	}
	comments, err := l.store.ActiveCommentCounts(ctx, ids)
	if err != nil {
		return AuctionView{}, fmt.Errorf("[%s] Fail to count comments, err=%w", op, err)
	}
	view := AuctionView{
		AuctionSummary: summarize(auction, l.options.clock(), likes, comments),
		Bids:           []decimal.Decimal{},
	}

	bids, err := l.store.ListBids(ctx, auctionID)
	if err != nil {
		return AuctionView{}, fmt.Errorf("[%s] Fail to list bids, err=%w", op, err)
	}
	for _, bid := range bids {
		view.Bids = append(view.Bids, bid.Amount)
	}
	if view.Comments, err = l.store.ListComments(ctx, auctionID); err != nil {
		return AuctionView{}, fmt.Errorf("[%s] Fail to list comments, err=%w", op, err)
	}
	if viewer != nil {
		if view.UserHasLiked, err = l.store.HasLiked(ctx, auctionID, *viewer); err != nil {
			return AuctionView{}, fmt.Errorf("[%s] Fail to check like, err=%w", op, err)
		}
	}
	return view, nil
}

// ListAuctions 依篩選條件列出拍賣，新建立的在前
func (l *Ledger) ListAuctions(ctx context.Context, filter ListFilter) ([]AuctionSummary, error) {
	const op = "ListAuctions"
	now := l.options.clock()
	auctions, err := l.store.ListAuctions(ctx, filter, now)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list auctions, err=%w", op, err)
	}
	ids := make([]uuid.UUID, 0, len(auctions))
	for _, auction := range auctions {
		ids = append(ids, auction.ID)
	}
	likes, err := l.store.LikeCounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to count likes, err=%w", op, err)
	}
	comments, err := l.store.ActiveCommentCounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to count comments, err=%w", op, err)
	}
	summaries := make([]AuctionSummary, 0, len(auctions))
	for _, auction := range auctions {
		summaries = append(summaries, summarize(auction, now, likes, comments))
	}
	return summaries, nil
}

// ListBids 依金額由高到低列出拍賣的出價
func (l *Ledger) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	const op = "ListBids"
	if _, err := l.store.GetAuction(ctx, auctionID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, reject(ReasonNotFound, MsgAuctionNotFound)
		}
		return nil, fmt.Errorf("[%s] Fail to get auction, err=%w", op, err)
	}
	bids, err := l.store.ListBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list bids, err=%w", op, err)
	}
	return bids, nil
}
