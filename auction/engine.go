package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"auctionhall/models"
)

// Receipt 是出價成功後回傳給呼叫者的收據
type Receipt struct {
	BidID     uuid.UUID       `json:"id"`
	AuctionID uuid.UUID       `json:"auctionId"`
	BidderID  uuid.UUID       `json:"bidderId"`
	Amount    decimal.Decimal `json:"amount"`
	BidCount  int64           `json:"bidCount"`
	CreatedAt time.Time       `json:"createdAt"`
}

// bidRequest 是一次出價的輸入
type bidRequest struct {
	bidderID uuid.UUID
	amount   decimal.Decimal
}

// admissionRule 檢查一項出價規則，不符合時回傳 *Rejection
type admissionRule func(auction models.Auction, req bidRequest, now time.Time) error

// admissionRules 依序執行，第一個不通過的規則決定拒絕原因：
// 存在與時間檢查先於身分檢查，身分檢查先於金額檢查
var admissionRules = []admissionRule{
	checkOpen,
	checkNotSeller,
	checkNotLeadingBidder,
	checkAmount,
}

func checkOpen(auction models.Auction, _ bidRequest, now time.Time) error {
	if auction.Status != models.AuctionStatusActive {
		return reject(ReasonAuctionClosed, MsgAuctionNotActive)
	}
	if !now.Before(auction.EndTime) {
		return reject(ReasonAuctionClosed, MsgAuctionEnded)
	}
	return nil
}

func checkNotSeller(auction models.Auction, req bidRequest, _ time.Time) error {
	if auction.SellerID == req.bidderID {
		return reject(ReasonSelfTrade, MsgSelfTrade)
	}
	return nil
}

func checkNotLeadingBidder(auction models.Auction, req bidRequest, _ time.Time) error {
	if auction.CurrentBidderID != nil && *auction.CurrentBidderID == req.bidderID {
		return reject(ReasonConsecutiveSelfBid, MsgConsecutiveSelfBid)
	}
	return nil
}

func checkAmount(auction models.Auction, req bidRequest, _ time.Time) error {
	if req.amount.GreaterThan(models.MaxAmount) {
		return reject(ReasonInvalidAmount, MsgAmountTooLarge)
	}
	if req.amount.GreaterThan(auction.FloorPrice()) {
		return nil
	}
	if auction.CurrentPrice.Valid {
		return reject(ReasonInsufficientAmount, MsgBelowCurrentBid)
	}
	return reject(ReasonInsufficientAmount, MsgBelowStartingPrice)
}

// Admit 依序執行所有出價規則
func Admit(auction models.Auction, bidderID uuid.UUID, amount decimal.Decimal, now time.Time) error {
	req := bidRequest{bidderID: bidderID, amount: amount}
	for _, rule := range admissionRules {
		if err := rule(auction, req, now); err != nil {
			return err
		}
	}
	return nil
}

// Engine 驗證並接受出價
// 同一場拍賣的出價在拍賣鎖內序列化，不同拍賣之間可以平行處理
type Engine struct {
	gateway Gateway
	locker  Locker
	options options
}

func NewEngine(gateway Gateway, locker Locker, opts ...Option) (*Engine, error) {
	if gateway == nil {
		return nil, errors.New("gateway cannot be nil")
	}
	if locker == nil {
		return nil, errors.New("locker cannot be nil")
	}
	return &Engine{
		gateway: gateway,
		locker:  locker,
		options: newOptions("BidEngine", opts),
	}, nil
}

// SubmitBid 對拍賣出價
//
// 回傳的錯誤可能是 *Rejection、ErrContention，或包裝了 ErrStorage 的錯誤。
// 成功提交後才推送價格變動事件，推送失敗只會記錄日誌。
func (e *Engine) SubmitBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount decimal.Decimal) (Receipt, error) {
	const op = "SubmitBid"
	amount = amount.Round(2)
	var receipt Receipt
	err := withAuctionLock(ctx, e.locker, e.gateway, auctionID, func(ctx context.Context, tx Tx) error {
		auction, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if errors.Is(err, ErrNotFound) {
			return reject(ReasonNotFound, MsgAuctionNotFound)
		}
		if err != nil {
			return err
		}
		now := e.options.clock()
		if err := Admit(auction, bidderID, amount, now); err != nil {
			return err
		}
		bid := models.Bid{
			ID:        e.options.newID(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			CreatedAt: now,
		}
		if err := tx.InsertBid(ctx, &bid); err != nil {
			if errors.Is(err, ErrDuplicateBid) {
				return reject(ReasonDuplicateBid, MsgDuplicateBid)
			}
			return err
		}
		if err := tx.UpdateAuctionPrice(ctx, auctionID, bid); err != nil {
			return err
		}
		receipt = Receipt{
			BidID:     bid.ID,
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			BidCount:  auction.BidCount + 1,
			CreatedAt: now,
		}
		return nil
	})
	if err != nil {
		var rejection *Rejection
		if errors.As(err, &rejection) || errors.Is(err, ErrContention) {
			return Receipt{}, err
		}
		return Receipt{}, fmt.Errorf("[%s] Fail to place bid, auction=%s, err=%w", op, auctionID, err)
	}

	e.options.logger.Info("Higher bid occurs",
		slog.String("auctionID", auctionID.String()),
		slog.String("bidder", bidderID.String()),
		slog.String("amount", amount.String()))
	if err := e.options.notifier.PublishPriceChanged(context.WithoutCancel(ctx), auctionID, amount); err != nil {
		e.options.logger.Warn("Fail to publish price change",
			slog.String("auctionID", auctionID.String()),
			slog.Any("error", err))
	}
	return receipt, nil
}
