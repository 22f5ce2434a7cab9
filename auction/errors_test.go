package auction

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRejection_Is(t *testing.T) {
	err := reject(ReasonSelfTrade, MsgSelfTrade)

	assert.ErrorIs(t, err, ErrSelfTrade)
	assert.NotErrorIs(t, err, ErrConsecutiveSelfBid)
	assert.ErrorIs(t, fmt.Errorf("[op] wrapped, err=%w", err), ErrSelfTrade)

	var rejection *Rejection
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &rejection))
	assert.Equal(t, MsgSelfTrade, rejection.Message)
}

func TestRejection_Error(t *testing.T) {
	assert.Equal(t, "not_found", ErrNotFound.Error())
	assert.Equal(t, "auction_closed: Auction has ended.", reject(ReasonAuctionClosed, MsgAuctionEnded).Error())
}
