package auction

import (
	"errors"
	"fmt"
)

// Reason 是拒絕操作的分類
type Reason string

const (
	ReasonNotFound           Reason = "not_found"
	ReasonForbidden          Reason = "forbidden"
	ReasonConflict           Reason = "conflict"
	ReasonAuctionClosed      Reason = "auction_closed"
	ReasonSelfTrade          Reason = "self_trade"
	ReasonConsecutiveSelfBid Reason = "consecutive_self_bid"
	ReasonInsufficientAmount Reason = "insufficient_amount"
	ReasonInvalidAmount      Reason = "invalid_amount"
	ReasonDuplicateBid       Reason = "duplicate_bid"
	ReasonValidation         Reason = "validation"
)

// Rejection 表示操作因為資料或狀態而沒有執行，和傳輸層或儲存層的錯誤不同
// 呼叫者修正輸入後可以重新提交
type Rejection struct {
	Reason  Reason
	Message string
}

func (r *Rejection) Error() string {
	if r.Message == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

// Is 讓 errors.Is 以 Reason 比對，訊息不同的拒絕也會符合同一個哨兵錯誤
func (r *Rejection) Is(target error) bool {
	var other *Rejection
	if !errors.As(target, &other) {
		return false
	}
	return other.Reason == r.Reason
}

func reject(reason Reason, message string) *Rejection {
	return &Rejection{Reason: reason, Message: message}
}

// 哨兵錯誤，用於 errors.Is 判斷拒絕原因
var (
	ErrNotFound           = &Rejection{Reason: ReasonNotFound}
	ErrForbidden          = &Rejection{Reason: ReasonForbidden}
	ErrConflict           = &Rejection{Reason: ReasonConflict}
	ErrAuctionClosed      = &Rejection{Reason: ReasonAuctionClosed}
	ErrSelfTrade          = &Rejection{Reason: ReasonSelfTrade}
	ErrConsecutiveSelfBid = &Rejection{Reason: ReasonConsecutiveSelfBid}
	ErrInsufficientAmount = &Rejection{Reason: ReasonInsufficientAmount}
	ErrInvalidAmount      = &Rejection{Reason: ReasonInvalidAmount}
	ErrDuplicateBid       = &Rejection{Reason: ReasonDuplicateBid}
	ErrValidation         = &Rejection{Reason: ReasonValidation}
)

var (
	// ErrContention 表示無法在等待上限內取得拍賣的鎖，呼叫者可以重試
	ErrContention = errors.New("auction is busy, retry later")
	// ErrStorage 標記持久層的 I/O 錯誤，發生時交易已整筆回滾
	ErrStorage = errors.New("storage failure")
)

// 拒絕訊息
const (
	MsgAuctionNotFound       = "Auction not found."
	MsgAuctionNotActive      = "Auction is not active."
	MsgAuctionEnded          = "Auction has ended."
	MsgSelfTrade             = "You cannot bid on your own auction."
	MsgConsecutiveSelfBid    = "You cannot outbid on yourself."
	MsgBelowStartingPrice    = "Bid must exceed starting price."
	MsgBelowCurrentBid       = "Bid must exceed the current highest bid."
	MsgAmountTooLarge        = "Bid amount exceeds the maximum allowed."
	MsgDuplicateBid          = "You have already placed a bid of this amount."
	MsgNotSeller             = "You are not the seller of this auction."
	MsgCannotCancel          = "Auction cannot be canceled: it has bids or already ended."
	MsgStartingPriceNotValid = "Starting price must be positive."
	MsgStartingPriceTooLarge = "Starting price exceeds the maximum allowed."
	MsgEndTimeNotInFuture    = "End time must be in the future."
	MsgTitleRequired         = "Title is required."
	MsgAlreadyLiked          = "You have already liked this auction."
	MsgNotLiked              = "You have not liked this auction."
	MsgCommentNotFound       = "Comment not found."
	MsgCommentEmpty          = "Comment text is required."
	MsgNotCommentAuthor      = "You are not the author of this comment."
)
