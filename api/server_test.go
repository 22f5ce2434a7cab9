package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"auctionhall/adapters/sse"
	"auctionhall/auction"
	"auctionhall/models"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "not found",
			err:         &auction.Rejection{Reason: auction.ReasonNotFound, Message: auction.MsgAuctionNotFound},
			wantStatus:  http.StatusNotFound,
			wantMessage: auction.MsgAuctionNotFound,
		},
		{
			name:        "forbidden",
			err:         &auction.Rejection{Reason: auction.ReasonForbidden, Message: auction.MsgNotSeller},
			wantStatus:  http.StatusForbidden,
			wantMessage: auction.MsgNotSeller,
		},
		{
			name:        "duplicate bid",
			err:         &auction.Rejection{Reason: auction.ReasonDuplicateBid, Message: auction.MsgDuplicateBid},
			wantStatus:  http.StatusConflict,
			wantMessage: auction.MsgDuplicateBid,
		},
		{
			name:        "insufficient amount",
			err:         &auction.Rejection{Reason: auction.ReasonInsufficientAmount, Message: auction.MsgBelowCurrentBid},
			wantStatus:  http.StatusBadRequest,
			wantMessage: auction.MsgBelowCurrentBid,
		},
		{
			name:        "wrapped rejection",
			err:         fmt.Errorf("wrap: %w", &auction.Rejection{Reason: auction.ReasonSelfTrade, Message: auction.MsgSelfTrade}),
			wantStatus:  http.StatusBadRequest,
			wantMessage: auction.MsgSelfTrade,
		},
		{
			name:        "contention",
			err:         auction.ErrContention,
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: msgBusy,
		},
		{
			name:        "storage",
			err:         fmt.Errorf("db down: %w", auction.ErrStorage),
			wantStatus:  http.StatusInternalServerError,
			wantMessage: msgInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, message := statusOf(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMessage, message)
		})
	}
}

func TestRetryOnContention(t *testing.T) {
	calls := 0
	err := retryOnContention(func() error {
		calls++
		if calls == 1 {
			return auction.ErrContention
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = retryOnContention(func() error {
		calls++
		return auction.ErrContention
	})
	assert.ErrorIs(t, err, auction.ErrContention)
	assert.Equal(t, 2, calls)

	calls = 0
	err = retryOnContention(func() error {
		calls++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, ServerConfig{})

	t.Run("missing token", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/auctions", uuid.Nil, map[string]any{"title": "x"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auctions", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("cookie token", func(t *testing.T) {
		seller := uuid.New()
		id := s.createAuction(t, seller, "100")
		req := httptest.NewRequest(http.MethodPost, "/auctions/"+id.String()+"/like", nil)
		req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: s.token(t, uuid.New())})
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	t.Run("anonymous read", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/auctions", uuid.Nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestPostAuction_Validation(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	seller := uuid.New()

	tests := []struct {
		name        string
		body        any
		wantMessage string
	}{
		{
			name:        "empty title",
			body:        map[string]any{"title": "  ", "startingPrice": "10", "endTime": testNow.Add(time.Hour)},
			wantMessage: auction.MsgTitleRequired,
		},
		{
			name:        "title with markup only",
			body:        map[string]any{"title": "<script>alert(1)</script>", "startingPrice": "10", "endTime": testNow.Add(time.Hour)},
			wantMessage: auction.MsgTitleRequired,
		},
		{
			name:        "non positive price",
			body:        map[string]any{"title": "Lamp", "startingPrice": "0", "endTime": testNow.Add(time.Hour)},
			wantMessage: auction.MsgStartingPriceNotValid,
		},
		{
			name:        "price above maximum",
			body:        map[string]any{"title": "Lamp", "startingPrice": "10000000000", "endTime": testNow.Add(time.Hour)},
			wantMessage: auction.MsgStartingPriceTooLarge,
		},
		{
			name:        "end time in the past",
			body:        map[string]any{"title": "Lamp", "startingPrice": "10", "endTime": testNow.Add(-time.Minute)},
			wantMessage: auction.MsgEndTimeNotInFuture,
		},
		{
			name:        "malformed body",
			body:        "{",
			wantMessage: msgInvalidBody,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/auctions", seller, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantMessage, decode[errorResponse](t, w).Message)
		})
	}
}

func TestPostAuction_SanitizesDescription(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	seller := uuid.New()
	w := s.do(t, http.MethodPost, "/auctions", seller, map[string]any{
		"title":         "Lamp",
		"description":   `<p onclick="steal()">Bright</p><script>alert(1)</script>`,
		"startingPrice": "10.005",
		"endTime":       testNow.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Auction](t, w)
	assert.Equal(t, "<p>Bright</p>", created.Description)
	assert.Equal(t, "/auctions/"+created.ID.String(), w.Header().Get("Location"))
	assert.Equal(t, seller, created.SellerID)
}

func TestBidFlow(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	seller, alice, bob := uuid.New(), uuid.New(), uuid.New()
	id := s.createAuction(t, seller, "100")
	path := "/auctions/" + id.String() + "/bids"

	w := s.do(t, http.MethodPost, path, alice, map[string]any{"amount": "120"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	receipt := decode[auction.Receipt](t, w)
	assert.True(t, decimal.NewFromInt(120).Equal(receipt.Amount))
	assert.Equal(t, int64(1), receipt.BidCount)

	tests := []struct {
		name        string
		user        uuid.UUID
		amount      any
		wantStatus  int
		wantMessage string
	}{
		{"below current", bob, "110", http.StatusBadRequest, auction.MsgBelowCurrentBid},
		{"consecutive", alice, "130", http.StatusBadRequest, auction.MsgConsecutiveSelfBid},
		{"seller", seller, "500", http.StatusBadRequest, auction.MsgSelfTrade},
		{"above maximum", bob, "10000000000", http.StatusBadRequest, auction.MsgAmountTooLarge},
		{"number amount", bob, 130, http.StatusCreated, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, path, tt.user, map[string]any{"amount": tt.amount})
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, decode[errorResponse](t, w).Message)
			}
		})
	}

	w = s.do(t, http.MethodGet, "/auctions/"+id.String(), uuid.Nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[auction.AuctionView](t, w)
	require.NotNil(t, view.HighestBid)
	assert.True(t, decimal.NewFromInt(130).Equal(*view.HighestBid))
	assert.Equal(t, int64(2), view.BidCount)
	assert.Len(t, view.Bids, 2)

	w = s.do(t, http.MethodGet, path, uuid.Nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	bids := decode[[]models.Bid](t, w)
	require.Len(t, bids, 2)
	assert.Equal(t, bob, bids[0].BidderID)
}

func TestBid_NotFound(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	user := uuid.New()

	w := s.do(t, http.MethodPost, "/auctions/"+uuid.NewString()+"/bids", user, map[string]any{"amount": "10"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, auction.MsgAuctionNotFound, decode[errorResponse](t, w).Message)

	w = s.do(t, http.MethodPost, "/auctions/not-a-uuid/bids", user, map[string]any{"amount": "10"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/auctions/"+uuid.NewString()+"/bids", uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBid_AfterEnd(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	id := s.createAuction(t, uuid.New(), "100")
	s.clock.Set(testNow.Add(time.Hour))

	w := s.do(t, http.MethodPost, "/auctions/"+id.String()+"/bids", uuid.New(), map[string]any{"amount": "150"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, auction.MsgAuctionEnded, decode[errorResponse](t, w).Message)
}

func TestListAuctions(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	seller := uuid.New()
	open := s.createAuction(t, seller, "10")
	cancelled := s.createAuction(t, seller, "10")
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/auctions/"+cancelled.String()+"/cancel", seller, nil).Code)

	ids := func(w *httptest.ResponseRecorder) []uuid.UUID {
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var out []uuid.UUID
		for _, summary := range decode[[]auction.AuctionSummary](t, w) {
			out = append(out, summary.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []uuid.UUID{open, cancelled}, ids(s.do(t, http.MethodGet, "/auctions", uuid.Nil, nil)))
	assert.Equal(t, []uuid.UUID{open}, ids(s.do(t, http.MethodGet, "/auctions?is_active=true", uuid.Nil, nil)))
	assert.Equal(t, []uuid.UUID{cancelled}, ids(s.do(t, http.MethodGet, "/auctions?is_active=false", uuid.Nil, nil)))

	w := s.do(t, http.MethodGet, "/auctions?is_active=maybe", uuid.Nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid query parameter for is_active.", decode[errorResponse](t, w).Message)
}

func TestCancelAuction(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	seller := uuid.New()

	t.Run("not seller", func(t *testing.T) {
		id := s.createAuction(t, seller, "10")
		w := s.do(t, http.MethodPost, "/auctions/"+id.String()+"/cancel", uuid.New(), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, auction.MsgNotSeller, decode[errorResponse](t, w).Message)
	})

	t.Run("has bids", func(t *testing.T) {
		id := s.createAuction(t, seller, "10")
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/auctions/"+id.String()+"/bids", uuid.New(), map[string]any{"amount": "11"}).Code)
		w := s.do(t, http.MethodPost, "/auctions/"+id.String()+"/cancel", seller, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, auction.MsgCannotCancel, decode[errorResponse](t, w).Message)
	})

	t.Run("success", func(t *testing.T) {
		id := s.createAuction(t, seller, "10")
		w := s.do(t, http.MethodPost, "/auctions/"+id.String()+"/cancel", seller, nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = s.do(t, http.MethodGet, "/auctions/"+id.String(), uuid.Nil, nil)
		view := decode[auction.AuctionView](t, w)
		assert.Equal(t, models.AuctionStatusCancelled, view.Status)
		assert.False(t, view.IsActive)

		// 已取消的拍賣不能出價
		w = s.do(t, http.MethodPost, "/auctions/"+id.String()+"/bids", uuid.New(), map[string]any{"amount": "20"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, auction.MsgAuctionNotActive, decode[errorResponse](t, w).Message)
	})
}

func TestLikesAndComments(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	seller, alice, bob := uuid.New(), uuid.New(), uuid.New()
	id := s.createAuction(t, seller, "10")
	base := "/auctions/" + id.String()

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, base+"/like", alice, nil).Code)
	w := s.do(t, http.MethodPost, base+"/like", alice, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, auction.MsgAlreadyLiked, decode[errorResponse](t, w).Message)

	w = s.do(t, http.MethodGet, base, alice, nil)
	view := decode[auction.AuctionView](t, w)
	assert.True(t, view.UserHasLiked)
	assert.Equal(t, int64(1), view.LikeCount)

	w = s.do(t, http.MethodGet, base, uuid.Nil, nil)
	assert.False(t, decode[auction.AuctionView](t, w).UserHasLiked)

	w = s.do(t, http.MethodDelete, base+"/like", bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, auction.MsgNotLiked, decode[errorResponse](t, w).Message)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, base+"/like", alice, nil).Code)

	w = s.do(t, http.MethodPost, base+"/comments", alice, map[string]any{"commentText": "<b>Nice</b> item"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	comment := decode[models.Comment](t, w)
	assert.Equal(t, "Nice item", comment.Text)
	commentPath := base + "/comments/" + comment.ID.String()

	w = s.do(t, http.MethodPost, base+"/comments", alice, map[string]any{"commentText": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, auction.MsgCommentEmpty, decode[errorResponse](t, w).Message)

	w = s.do(t, http.MethodPut, commentPath, bob, map[string]any{"commentText": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, auction.MsgNotCommentAuthor, decode[errorResponse](t, w).Message)

	w = s.do(t, http.MethodPut, commentPath, alice, map[string]any{"commentText": "Great item"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Great item", decode[models.Comment](t, w).Text)

	w = s.do(t, http.MethodGet, base+"/comments", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Comment](t, w), 1)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, commentPath, alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, base+"/comments/not-a-uuid", alice, nil).Code)

	w = s.do(t, http.MethodGet, base, uuid.Nil, nil)
	view = decode[auction.AuctionView](t, w)
	assert.Equal(t, int64(0), view.CommentCount)
	assert.Empty(t, view.Comments)
}

func TestSweeper(t *testing.T) {
	s := newTestServer(t, ServerConfig{
		Lifecycle: LifecycleConfig{SweepInterval: 10 * time.Millisecond},
	})
	id := s.createAuction(t, uuid.New(), "10")
	s.clock.Set(testNow.Add(2 * time.Hour))

	assert.Eventually(t, func() bool {
		stored, err := s.store.GetAuction(context.Background(), id)
		return err == nil && stored.Status == models.AuctionStatusEnded
	}, 2*time.Second, 10*time.Millisecond)
}

// readEvent 讀取下一個 SSE 事件的名稱與資料，略過 keep-alive 註解
func readEvent(t *testing.T, scanner *bufio.Scanner) (string, string) {
	t.Helper()
	var name, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && name != "":
			return name, data
		}
	}
	require.NoError(t, scanner.Err())
	t.Fatal("stream closed before event")
	return "", ""
}

func TestAuctionEvents(t *testing.T) {
	s := newTestServer(t, ServerConfig{})
	seller := uuid.New()
	id := s.createAuction(t, seller, "100")

	server := httptest.NewServer(s.router)
	defer server.Close()

	w := s.do(t, http.MethodGet, "/auctions/"+uuid.NewString()+"/events", uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/auctions/"+id.String()+"/events", nil)
	require.NoError(t, err)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(resp.Body)
	name, data := readEvent(t, scanner)
	assert.Equal(t, "snapshot", name)
	assert.Contains(t, data, `"highestBid":null`)

	w = s.do(t, http.MethodPost, "/auctions/"+id.String()+"/bids", uuid.New(), map[string]any{"amount": "120"})
	require.Equal(t, http.StatusCreated, w.Code)
	name, data = readEvent(t, scanner)
	assert.Equal(t, string(auction.EventPriceChanged), name)
	assert.Contains(t, data, `"amount":"120.00"`)

	w = s.do(t, http.MethodPost, "/auctions/"+id.String()+"/cancel", seller, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

// 先訂閱再讀取快照，兩者之間提交的出價會反映在快照中，不會遺失
func TestAuctionEvents_SubscribeBeforeSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	manager := sse.NewMockIConnectionManager[auction.Event](ctrl)
	manager.EXPECT().Start().AnyTimes()
	manager.EXPECT().Done().AnyTimes()
	s := newTestServer(t, ServerConfig{}, func(c *components) {
		c.sseManager = manager
	})
	id := s.createAuction(t, uuid.New(), "100")

	missing := uuid.New()
	gomock.InOrder(
		manager.EXPECT().Subscribe(missing.String()).Return(make(<-chan auction.Event), nil),
		manager.EXPECT().Unsubscribe(missing.String(), gomock.Any()),
	)
	w := s.do(t, http.MethodGet, "/auctions/"+missing.String()+"/events", uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	events := make(chan auction.Event)
	gomock.InOrder(
		manager.EXPECT().Subscribe(id.String()).
			DoAndReturn(func(string) (<-chan auction.Event, error) {
				_, err := s.impl.engine.SubmitBid(context.Background(), id, uuid.New(), decimal.NewFromInt(120))
				assert.NoError(t, err)
				return events, nil
			}),
		manager.EXPECT().Unsubscribe(id.String(), gomock.Any()),
	)

	server := httptest.NewServer(s.router)
	defer server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/auctions/"+id.String()+"/events", nil)
	require.NoError(t, err)
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	name, data := readEvent(t, bufio.NewScanner(resp.Body))
	assert.Equal(t, "snapshot", name)
	assert.Contains(t, data, `"highestBid":"120.00"`)
	assert.Contains(t, data, `"bidCount":1`)
}
