package auction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/mock/gomock"

	"auctionhall/models"
)

// memStore 是測試用的記憶體持久層
// 交易內的寫入先暫存，提交時才套用，讀取的是已提交的資料
type memStore struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]models.Auction
	bids     []models.Bid
	likes    []models.Like
	comments []models.Comment
}

func newMemStore() *memStore {
	return &memStore{auctions: make(map[uuid.UUID]models.Auction)}
}

func (s *memStore) put(a models.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = a
}

func (s *memStore) auction(id uuid.UUID) models.Auction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auctions[id]
}

func (s *memStore) bidsOf(auctionID uuid.UUID) []models.Bid {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Bid
	for _, b := range s.bids {
		if b.AuctionID == auctionID {
			out = append(out, b)
		}
	}
	return out
}

type memTx struct {
	store  *memStore
	writes []func(s *memStore)
	bids   []models.Bid
}

func (s *memStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range tx.writes {
		w(s)
	}
	return nil
}

func (tx *memTx) GetAuctionForUpdate(_ context.Context, id uuid.UUID) (models.Auction, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	a, ok := tx.store.auctions[id]
	if !ok {
		return models.Auction{}, ErrNotFound
	}
	return a, nil
}

func (tx *memTx) InsertBid(_ context.Context, bid *models.Bid) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	for _, pending := range [][]models.Bid{tx.store.bids, tx.bids} {
		for _, b := range pending {
			if b.AuctionID == bid.AuctionID && b.BidderID == bid.BidderID && b.Amount.Equal(bid.Amount) {
				return ErrDuplicateBid
			}
		}
	}
	copied := *bid
	tx.bids = append(tx.bids, copied)
	tx.writes = append(tx.writes, func(s *memStore) {
		s.bids = append(s.bids, copied)
	})
	return nil
}

func (tx *memTx) UpdateAuctionPrice(_ context.Context, id uuid.UUID, bid models.Bid) error {
	tx.writes = append(tx.writes, func(s *memStore) {
		a := s.auctions[id]
		a.CurrentPrice = decimal.NewNullDecimal(bid.Amount)
		a.CurrentBidID = &bid.ID
		a.CurrentBidderID = &bid.BidderID
		a.BidCount++
		s.auctions[id] = a
	})
	return nil
}

func (tx *memTx) SetAuctionStatus(_ context.Context, id uuid.UUID, status models.AuctionStatus) error {
	tx.writes = append(tx.writes, func(s *memStore) {
		a := s.auctions[id]
		a.Status = status
		s.auctions[id] = a
	})
	return nil
}

func (tx *memTx) CountBids(_ context.Context, auctionID uuid.UUID) (int64, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var n int64
	for _, b := range tx.store.bids {
		if b.AuctionID == auctionID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreateAuction(_ context.Context, a *models.Auction) error {
	s.put(*a)
	return nil
}

func (s *memStore) ListExpiredAuctions(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, a := range s.auctions {
		if a.Status == models.AuctionStatusActive && !now.Before(a.EndTime) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) GetAuction(_ context.Context, id uuid.UUID) (models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return models.Auction{}, ErrNotFound
	}
	return a, nil
}

func (s *memStore) ListAuctions(_ context.Context, filter ListFilter, now time.Time) ([]models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Auction
	for _, a := range s.auctions {
		active := a.StatusAt(now) == models.AuctionStatusActive
		if filter.Active != nil && *filter.Active != active {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ListBids(_ context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	out := s.bidsOf(auctionID)
	sort.Slice(out, func(i, j int) bool { return out[i].Amount.GreaterThan(out[j].Amount) })
	return out, nil
}

func (s *memStore) LikeCounts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]int64)
	for _, id := range ids {
		for _, l := range s.likes {
			if l.AuctionID == id {
				out[id]++
			}
		}
	}
	return out, nil
}

func (s *memStore) ActiveCommentCounts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]int64)
	for _, id := range ids {
		for _, c := range s.comments {
			if c.AuctionID == id && !c.IsDeleted {
				out[id]++
			}
		}
	}
	return out, nil
}

func (s *memStore) HasLiked(_ context.Context, auctionID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.likes {
		if l.AuctionID == auctionID && l.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListComments(_ context.Context, auctionID uuid.UUID) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Comment{}
	for _, c := range s.comments {
		if c.AuctionID == auctionID && !c.IsDeleted {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) CreateLike(_ context.Context, like *models.Like) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.likes {
		if l.AuctionID == like.AuctionID && l.UserID == like.UserID {
			return ErrConflict
		}
	}
	s.likes = append(s.likes, *like)
	return nil
}

func (s *memStore) DeleteLike(_ context.Context, auctionID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.likes {
		if l.AuctionID == auctionID && l.UserID == userID {
			s.likes = append(s.likes[:i], s.likes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CreateComment(_ context.Context, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, *comment)
	return nil
}

func (s *memStore) GetComment(_ context.Context, auctionID, commentID uuid.UUID) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comments {
		if c.ID == commentID && c.AuctionID == auctionID && !c.IsDeleted {
			return c, nil
		}
	}
	return models.Comment{}, ErrNotFound
}

func (s *memStore) UpdateCommentText(_ context.Context, commentID uuid.UUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.comments {
		if s.comments[i].ID == commentID {
			s.comments[i].Text = text
		}
	}
	return nil
}

func (s *memStore) MarkCommentDeleted(_ context.Context, commentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.comments {
		if s.comments[i].ID == commentID {
			s.comments[i].IsDeleted = true
		}
	}
	return nil
}

// newMockGateway 建立交易內操作都轉給 MockTx 的 MockGateway
// 每次 WithinTx 都會執行 fn，並回傳 fn 的錯誤
func newMockGateway(ctrl *gomock.Controller) (*MockGateway, *MockTx) {
	gateway := NewMockGateway(ctrl)
	tx := NewMockTx(ctrl)
	gateway.EXPECT().WithinTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fn func(Tx) error) error {
			return fn(tx)
		}).AnyTimes()
	return gateway, tx
}

// amountIs 比對 decimal 的數值，忽略精度差異
type amountIs string

func (m amountIs) Matches(x any) bool {
	switch v := x.(type) {
	case decimal.Decimal:
		return v.Equal(dec(string(m)))
	case models.Bid:
		return v.Amount.Equal(dec(string(m)))
	case *models.Bid:
		return v != nil && v.Amount.Equal(dec(string(m)))
	}
	return false
}

func (m amountIs) String() string {
	return "amount is " + string(m)
}

// fixedClock 回傳可調整的固定時間
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
