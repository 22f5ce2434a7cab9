package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"auctionhall/auction"
)

type createAuctionRequest struct {
	Title         string          `json:"title"`
	Description   *string         `json:"description"`
	ImageURL      *string         `json:"imageUrl"`
	StartingPrice decimal.Decimal `json:"startingPrice"`
	EndTime       time.Time       `json:"endTime"`
}

type bidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type commentRequest struct {
	Text string `json:"commentText"`
}

func auctionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Message: auction.MsgAuctionNotFound})
		return uuid.Nil, false
	}
	return id, true
}

func commentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("commentID"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Message: auction.MsgCommentNotFound})
		return uuid.Nil, false
	}
	return id, true
}

// Create an auction
// (POST /auctions)
func (impl *ServerImpl) PostAuction(c *gin.Context) {
	const op = "PostAuction"
	var request createAuctionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}
	// 處理拍賣描述
	description := impl.htmlChecker.Sanitize(lo.FromPtr(request.Description))
	created, err := impl.lifecycle.Open(c.Request.Context(), auction.NewAuction{
		SellerID:      mustUser(c),
		Title:         impl.textChecker.Sanitize(request.Title),
		Description:   description,
		ImageURL:      lo.FromPtr(request.ImageURL),
		StartingPrice: request.StartingPrice,
		EndTime:       request.EndTime,
	})
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.Header("Location", "/auctions/"+created.ID.String())
	c.JSON(http.StatusCreated, created)
}

// List auctions
// (GET /auctions)
func (impl *ServerImpl) ListAuctions(c *gin.Context) {
	const op = "ListAuctions"
	var filter auction.ListFilter
	if raw, ok := c.GetQuery("is_active"); ok {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, msgInvalidIsActive)
			return
		}
		filter.Active = &active
	}
	summaries, err := impl.ledger.ListAuctions(c.Request.Context(), filter)
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// Get auction details
// (GET /auctions/{id})
func (impl *ServerImpl) GetAuction(c *gin.Context) {
	const op = "GetAuction"
	id, ok := auctionID(c)
	if !ok {
		return
	}
	view, err := impl.ledger.GetAuction(c.Request.Context(), id, viewer(c))
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// List bids of an auction
// (GET /auctions/{id}/bids)
func (impl *ServerImpl) ListBids(c *gin.Context) {
	const op = "ListBids"
	id, ok := auctionID(c)
	if !ok {
		return
	}
	bids, err := impl.ledger.ListBids(c.Request.Context(), id)
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, bids)
}

// Place a bid on an auction
// (POST /auctions/{id}/bids)
func (impl *ServerImpl) PostBid(c *gin.Context) {
	const op = "PostBid"
	id, ok := auctionID(c)
	if !ok {
		return
	}
	var request bidRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}
	userID := mustUser(c)
	var receipt auction.Receipt
	err := retryOnContention(func() error {
		var err error
		receipt, err = impl.engine.SubmitBid(c.Request.Context(), id, userID, request.Amount)
		return err
	})
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// Cancel an auction
// (POST /auctions/{id}/cancel)
func (impl *ServerImpl) CancelAuction(c *gin.Context) {
	const op = "CancelAuction"
	id, ok := auctionID(c)
	if !ok {
		return
	}
	userID := mustUser(c)
	err := retryOnContention(func() error {
		return impl.lifecycle.Cancel(c.Request.Context(), id, userID)
	})
	if errors.Is(err, auction.ErrConflict) {
		// 已有出價或已結束的拍賣視為請求錯誤
		_, message := statusOf(err)
		badRequest(c, message)
		return
	}
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Like an auction
// (POST /auctions/{id}/like)
func (impl *ServerImpl) LikeAuction(c *gin.Context) {
	const op = "LikeAuction"
	id, ok := auctionID(c)
	if !ok {
		return
	}
	like, err := impl.social.Like(c.Request.Context(), id, mustUser(c))
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, like)
}

// Unlike an auction
// (DELETE /auctions/{id}/like)
func (impl *ServerImpl) UnlikeAuction(c *gin.Context) {
	const op = "UnlikeAuction"
	id, ok := auctionID(c)
	if !ok {
		return
	}
	if err := impl.social.Unlike(c.Request.Context(), id, mustUser(c)); err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// List comments of an auction
// (GET /auctions/{id}/comments)
func (impl *ServerImpl) ListComments(c *gin.Context) {
	const op = "ListComments"
	id, ok := auctionID(c)
	if !ok {
		return
	}
	comments, err := impl.social.ListComments(c.Request.Context(), id)
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

// Add a comment
// (POST /auctions/{id}/comments)
func (impl *ServerImpl) PostComment(c *gin.Context) {
	const op = "PostComment"
	id, ok := auctionID(c)
	if !ok {
		return
	}
	var request commentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}
	comment, err := impl.social.AddComment(c.Request.Context(), id, mustUser(c), impl.textChecker.Sanitize(request.Text))
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// Edit a comment
// (PUT /auctions/{id}/comments/{commentID})
func (impl *ServerImpl) EditComment(c *gin.Context) {
	const op = "EditComment"
	id, ok := auctionID(c)
	if !ok {
		return
	}
	cid, ok := commentID(c)
	if !ok {
		return
	}
	var request commentRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, msgInvalidBody)
		return
	}
	comment, err := impl.social.EditComment(c.Request.Context(), id, cid, mustUser(c), impl.textChecker.Sanitize(request.Text))
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

// Delete a comment
// (DELETE /auctions/{id}/comments/{commentID})
func (impl *ServerImpl) DeleteComment(c *gin.Context) {
	const op = "DeleteComment"
	id, ok := auctionID(c)
	if !ok {
		return
	}
	cid, ok := commentID(c)
	if !ok {
		return
	}
	if err := impl.social.DeleteComment(c.Request.Context(), id, cid, mustUser(c)); err != nil {
		impl.respondError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}
