package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"auctionhall/models"
)

// NewAuction 是建立拍賣時的輸入
type NewAuction struct {
	SellerID      uuid.UUID
	Title         string
	Description   string
	ImageURL      string
	StartingPrice decimal.Decimal
	EndTime       time.Time
}

// Lifecycle 管理拍賣狀態的轉換：active → ended（時間到）、active → cancelled（賣家取消）
// ended 與 cancelled 都是終態
type Lifecycle struct {
	gateway Gateway
	locker  Locker
	options options
}

func NewLifecycle(gateway Gateway, locker Locker, opts ...Option) (*Lifecycle, error) {
	if gateway == nil {
		return nil, errors.New("gateway cannot be nil")
	}
	if locker == nil {
		return nil, errors.New("locker cannot be nil")
	}
	return &Lifecycle{
		gateway: gateway,
		locker:  locker,
		options: newOptions("Lifecycle", opts),
	}, nil
}

// Open 建立一場進行中的拍賣
func (l *Lifecycle) Open(ctx context.Context, input NewAuction) (models.Auction, error) {
	const op = "Open"
	now := l.options.clock()
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return models.Auction{}, reject(ReasonValidation, MsgTitleRequired)
	}
	if !input.StartingPrice.IsPositive() {
		return models.Auction{}, reject(ReasonInvalidAmount, MsgStartingPriceNotValid)
	}
	if input.StartingPrice.Round(2).GreaterThan(models.MaxAmount) {
		return models.Auction{}, reject(ReasonInvalidAmount, MsgStartingPriceTooLarge)
	}
	if !input.EndTime.After(now) {
		return models.Auction{}, reject(ReasonValidation, MsgEndTimeNotInFuture)
	}
	auction := models.Auction{
		ID:            l.options.newID(),
		SellerID:      input.SellerID,
		Title:         title,
		Description:   input.Description,
		ImageURL:      input.ImageURL,
		StartingPrice: input.StartingPrice.Round(2),
		EndTime:       input.EndTime.UTC(),
		Status:        models.AuctionStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.gateway.CreateAuction(ctx, &auction); err != nil {
		return models.Auction{}, fmt.Errorf("[%s] Fail to create auction, err=%w", op, err)
	}
	return auction, nil
}

// Cancel 由賣家取消沒有出價且尚未結束的拍賣
// 出價次數的檢查與狀態寫入在同一個鎖與交易內，避免和出價競爭
func (l *Lifecycle) Cancel(ctx context.Context, auctionID, requesterID uuid.UUID) error {
	const op = "Cancel"
	err := withAuctionLock(ctx, l.locker, l.gateway, auctionID, func(ctx context.Context, tx Tx) error {
		auction, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if errors.Is(err, ErrNotFound) {
			return reject(ReasonNotFound, MsgAuctionNotFound)
		}
		if err != nil {
			return err
		}
		if auction.SellerID != requesterID {
			return reject(ReasonForbidden, MsgNotSeller)
		}
		bids, err := tx.CountBids(ctx, auctionID)
		if err != nil {
			return err
		}
		if bids > 0 || auction.StatusAt(l.options.clock()) != models.AuctionStatusActive {
			return reject(ReasonConflict, MsgCannotCancel)
		}
		return tx.SetAuctionStatus(ctx, auctionID, models.AuctionStatusCancelled)
	})
	if err != nil {
		var rejection *Rejection
		if errors.As(err, &rejection) || errors.Is(err, ErrContention) {
			return err
		}
		return fmt.Errorf("[%s] Fail to cancel auction, auction=%s, err=%w", op, auctionID, err)
	}

	l.options.logger.Info("Auction cancelled", slog.String("auctionID", auctionID.String()))
	l.publishStatus(ctx, auctionID, models.AuctionStatusCancelled)
	return nil
}

// Sweep 將已超過結束時間但儲存狀態仍為 active 的拍賣標記為 ended
// 讀取模型本來就會依時間推導 ended，這裡只是讓儲存的狀態跟上
func (l *Lifecycle) Sweep(ctx context.Context) (int, error) {
	const op = "Sweep"
	now := l.options.clock()
	ids, err := l.gateway.ListExpiredAuctions(ctx, now, l.options.sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("[%s] Fail to list expired auctions, err=%w", op, err)
	}
	ended := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return ended, ctx.Err()
		}
		changed := false
		err := withAuctionLock(ctx, l.locker, l.gateway, id, func(ctx context.Context, tx Tx) error {
			auction, err := tx.GetAuctionForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if auction.Status != models.AuctionStatusActive || now.Before(auction.EndTime) {
				return nil
			}
			changed = true
			return tx.SetAuctionStatus(ctx, id, models.AuctionStatusEnded)
		})
		if err != nil {
			// 下一輪掃描會再處理
			l.options.logger.Warn("Fail to end auction", slog.String("auctionID", id.String()), slog.Any("error", err))
			continue
		}
		if changed {
			ended++
			l.publishStatus(ctx, id, models.AuctionStatusEnded)
		}
	}
	return ended, nil
}

func (l *Lifecycle) publishStatus(ctx context.Context, auctionID uuid.UUID, status models.AuctionStatus) {
	if err := l.options.notifier.PublishStatusChanged(context.WithoutCancel(ctx), auctionID, status); err != nil {
		l.options.logger.Warn("Fail to publish status change",
			slog.String("auctionID", auctionID.String()),
			slog.Any("error", err))
	}
}
