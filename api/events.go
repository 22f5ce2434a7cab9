package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	internalS3 "auctionhall/adapters/s3"
)

const keepAliveInterval = 30 * time.Second

// snapshotEvent 是 SSE 連線建立後第一個送出的事件
type snapshotEvent struct {
	AuctionID  string  `json:"auctionId"`
	HighestBid *string `json:"highestBid"`
	BidCount   int64   `json:"bidCount"`
	Status     string  `json:"status"`
}

// Track auction events
// (GET /auctions/{id}/events)
func (impl *ServerImpl) GetAuctionEvents(c *gin.Context) {
	const op = "GetAuctionEvents"
	id, ok := auctionID(c)
	if !ok {
		return
	}
	// 先訂閱再讀取快照，讀取期間提交的出價才不會遺失；快照之後可能重複收到已反映的事件
	ch, err := impl.sseManager.Subscribe(id.String())
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	defer impl.sseManager.Unsubscribe(id.String(), ch)
	// 同時檢查拍賣是否存在
	view, err := impl.ledger.GetAuction(c.Request.Context(), id, nil)
	if err != nil {
		impl.respondError(c, op, err)
		return
	}

	// SSE請求合法，開始初始化串流
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snapshot := snapshotEvent{
		AuctionID: id.String(),
		BidCount:  view.BidCount,
		Status:    string(view.Status),
	}
	if view.HighestBid != nil {
		amount := view.HighestBid.StringFixed(2)
		snapshot.HighestBid = &amount
	}
	c.SSEvent("snapshot", snapshot)
	w.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(string(event.Kind), event)
			w.Flush()
		// 30秒沒有事件就發送一個註解，確保瀏覽器和Cloudflare不會斷開連線
		case <-ticker.C:
			if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
				impl.logger.Debug("Fail to write keep-alive", slog.Any("error", err))
				return
			}
			w.Flush()
		}
	}
}

type imageResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Upload an auction image
// (POST /images)
func (impl *ServerImpl) PostImage(c *gin.Context) {
	const op = "PostImage"
	image, err := impl.uploader.Upload(c.Request.Context(), mustUser(c), c.Request.Body)
	var invalid *internalS3.InvalidImageError
	var limit *internalS3.ReachLimitError
	switch {
	case err == nil:
	case errors.Is(err, internalS3.ErrRateLimited):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Message: "Too many uploads, retry later."})
		return
	case errors.As(err, &limit), errors.As(err, &invalid):
		badRequest(c, err.Error())
		return
	default:
		impl.respondError(c, op, err)
		return
	}
	c.Header("Location", image.Url)
	c.JSON(http.StatusCreated, imageResponse{ID: image.ID.String(), URL: image.Url})
}
