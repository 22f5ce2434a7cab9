package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"auctionhall/auction"
)

type errorResponse struct {
	Message string `json:"message"`
}

const (
	msgBusy            = "Auction is busy, please retry."
	msgInternal        = "Internal server error."
	msgInvalidBody     = "Invalid request body."
	msgInvalidIsActive = "Invalid query parameter for is_active."
)

var reasonStatus = map[auction.Reason]int{
	auction.ReasonNotFound:           http.StatusNotFound,
	auction.ReasonForbidden:          http.StatusForbidden,
	auction.ReasonConflict:           http.StatusConflict,
	auction.ReasonDuplicateBid:       http.StatusConflict,
	auction.ReasonAuctionClosed:      http.StatusBadRequest,
	auction.ReasonSelfTrade:          http.StatusBadRequest,
	auction.ReasonConsecutiveSelfBid: http.StatusBadRequest,
	auction.ReasonInsufficientAmount: http.StatusBadRequest,
	auction.ReasonInvalidAmount:      http.StatusBadRequest,
	auction.ReasonValidation:         http.StatusBadRequest,
}

// statusOf 將錯誤轉為 HTTP 狀態碼與回應訊息
func statusOf(err error) (int, string) {
	var rejection *auction.Rejection
	if errors.As(err, &rejection) {
		status, ok := reasonStatus[rejection.Reason]
		if !ok {
			status = http.StatusBadRequest
		}
		message := rejection.Message
		if message == "" {
			message = string(rejection.Reason)
		}
		return status, message
	}
	if errors.Is(err, auction.ErrContention) {
		return http.StatusServiceUnavailable, msgBusy
	}
	return http.StatusInternalServerError, msgInternal
}

// respondError 回應錯誤，非預期的錯誤會記錄日誌
func (impl *ServerImpl) respondError(c *gin.Context, op string, err error) {
	status, message := statusOf(err)
	if status >= http.StatusInternalServerError {
		impl.logger.Error("Request failed", slog.String("op", op), slog.Any("error", err))
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, errorResponse{Message: message})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Message: message})
}

// retryOnContention 拍賣鎖忙碌時重試一次
func retryOnContention(fn func() error) error {
	err := fn()
	if errors.Is(err, auction.ErrContention) {
		err = fn()
	}
	return err
}
