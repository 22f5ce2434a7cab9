package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"auctionhall/auction"
	"auctionhall/models"
)

var (
	_ auction.Gateway     = (*Store)(nil)
	_ auction.LedgerStore = (*Store)(nil)
	_ auction.SocialStore = (*Store)(nil)
	_ auction.Tx          = (*txStore)(nil)
)

// Store 以 gorm 實作拍賣的持久層
// 所有驅動程式的錯誤都會包裝 auction.ErrStorage
type Store struct {
	db *gorm.DB
}

// Open 連線到 PostgreSQL，schema 不為空時作為資料表前綴
func Open(dsn string, schemaName string) (*gorm.DB, error) {
	const op = "Open"
	cfg := &gorm.Config{
		TranslateError: true,
	}
	if schemaName != "" {
		cfg.NamingStrategy = schema.NamingStrategy{
			TablePrefix: schemaName + ".",
		}
	}
	db, err := gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	return db, nil
}

func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Store{db: db}, nil
}

// Migrate 依模型建立或更新資料表，正式環境應使用 atlas 產生的遷移
func (s *Store) Migrate(ctx context.Context) error {
	const op = "Migrate"
	if err := s.db.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return storageErr(op, "migrate models", err)
	}
	return nil
}

func storageErr(op, action string, err error) error {
	return fmt.Errorf("[%s] Fail to %s, err=%w: %w", op, action, auction.ErrStorage, err)
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx auction.Tx) error) error {
	const op = "WithinTx"
	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&txStore{db: tx})
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fnErr
	}
	return storageErr(op, "commit transaction", err)
}

type txStore struct {
	db *gorm.DB
}

func (t *txStore) GetAuctionForUpdate(ctx context.Context, id uuid.UUID) (models.Auction, error) {
	const op = "GetAuctionForUpdate"
	var a models.Auction
	result := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&a)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return models.Auction{}, auction.ErrNotFound
		}
		return models.Auction{}, storageErr(op, "lock auction", result.Error)
	}
	return a, nil
}

func (t *txStore) InsertBid(ctx context.Context, bid *models.Bid) error {
	const op = "InsertBid"
	if result := t.db.WithContext(ctx).Create(bid); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return auction.ErrDuplicateBid
		}
		return storageErr(op, "insert bid", result.Error)
	}
	return nil
}

func (t *txStore) UpdateAuctionPrice(ctx context.Context, id uuid.UUID, bid models.Bid) error {
	const op = "UpdateAuctionPrice"
	result := t.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_price":     bid.Amount,
			"current_bid_id":    bid.ID,
			"current_bidder_id": bid.BidderID,
			"bid_count":         gorm.Expr("bid_count + ?", 1),
		})
	if result.Error != nil {
		return storageErr(op, "update auction price", result.Error)
	}
	if result.RowsAffected == 0 {
		return auction.ErrNotFound
	}
	return nil
}

func (t *txStore) SetAuctionStatus(ctx context.Context, id uuid.UUID, status models.AuctionStatus) error {
	const op = "SetAuctionStatus"
	result := t.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return storageErr(op, "update auction status", result.Error)
	}
	if result.RowsAffected == 0 {
		return auction.ErrNotFound
	}
	return nil
}

func (t *txStore) CountBids(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	const op = "CountBids"
	var count int64
	if result := t.db.WithContext(ctx).Model(&models.Bid{}).Where("auction_id = ?", auctionID).Count(&count); result.Error != nil {
		return 0, storageErr(op, "count bids", result.Error)
	}
	return count, nil
}

func (s *Store) CreateAuction(ctx context.Context, a *models.Auction) error {
	const op = "CreateAuction"
	if result := s.db.WithContext(ctx).Create(a); result.Error != nil {
		return storageErr(op, "create auction", result.Error)
	}
	return nil
}

func (s *Store) ListExpiredAuctions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	const op = "ListExpiredAuctions"
	var ids []uuid.UUID
	result := s.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("status = ? AND end_time <= ?", models.AuctionStatusActive, now.UTC()).
		Order("end_time").
		Limit(limit).
		Pluck("id", &ids)
	if result.Error != nil {
		return nil, storageErr(op, "list expired auctions", result.Error)
	}
	return ids, nil
}

func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (models.Auction, error) {
	const op = "GetAuction"
	var a models.Auction
	if result := s.db.WithContext(ctx).Where("id = ?", id).First(&a); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return models.Auction{}, auction.ErrNotFound
		}
		return models.Auction{}, storageErr(op, "get auction", result.Error)
	}
	return a, nil
}

func (s *Store) ListAuctions(ctx context.Context, filter auction.ListFilter, now time.Time) ([]models.Auction, error) {
	const op = "ListAuctions"
	query := s.db.WithContext(ctx).Model(&models.Auction{})
	if filter.Active != nil {
		if *filter.Active {
			query = query.Where("status = ? AND end_time > ?", models.AuctionStatusActive, now.UTC())
		} else {
			query = query.Where("status <> ? OR end_time <= ?", models.AuctionStatusActive, now.UTC())
		}
	}
	var auctions []models.Auction
	result := query.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "created_at"}, Desc: true},
		{Column: clause.Column{Name: "id"}, Desc: false},
	}}).Find(&auctions)
	if result.Error != nil {
		return nil, storageErr(op, "list auctions", result.Error)
	}
	return auctions, nil
}

func (s *Store) ListBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	const op = "ListBids"
	bids := []models.Bid{}
	result := s.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "amount"}, Desc: true}).
		Find(&bids)
	if result.Error != nil {
		return nil, storageErr(op, "list bids", result.Error)
	}
	return bids, nil
}

type countRow struct {
	AuctionID uuid.UUID
	Count     int64
}

func (s *Store) countBy(ctx context.Context, model any, auctionIDs []uuid.UUID, scopes ...func(*gorm.DB) *gorm.DB) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(auctionIDs))
	if len(auctionIDs) == 0 {
		return counts, nil
	}
	var rows []countRow
	result := s.db.WithContext(ctx).
		Model(model).
		Scopes(scopes...).
		Select("auction_id, count(*) AS count").
		Where("auction_id IN ?", auctionIDs).
		Group("auction_id").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	for _, row := range rows {
		counts[row.AuctionID] = row.Count
	}
	return counts, nil
}

func (s *Store) LikeCounts(ctx context.Context, auctionIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	const op = "LikeCounts"
	counts, err := s.countBy(ctx, &models.Like{}, auctionIDs)
	if err != nil {
		return nil, storageErr(op, "count likes", err)
	}
	return counts, nil
}

func activeComments(db *gorm.DB) *gorm.DB {
	return db.Where("is_deleted = ?", false)
}

func (s *Store) ActiveCommentCounts(ctx context.Context, auctionIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	const op = "ActiveCommentCounts"
	counts, err := s.countBy(ctx, &models.Comment{}, auctionIDs, activeComments)
	if err != nil {
		return nil, storageErr(op, "count comments", err)
	}
	return counts, nil
}

func (s *Store) HasLiked(ctx context.Context, auctionID, userID uuid.UUID) (bool, error) {
	const op = "HasLiked"
	var count int64
	result := s.db.WithContext(ctx).
		Model(&models.Like{}).
		Where("auction_id = ? AND user_id = ?", auctionID, userID).
		Count(&count)
	if result.Error != nil {
		return false, storageErr(op, "count like", result.Error)
	}
	return count > 0, nil
}

func (s *Store) ListComments(ctx context.Context, auctionID uuid.UUID) ([]models.Comment, error) {
	const op = "ListComments"
	comments := []models.Comment{}
	result := s.db.WithContext(ctx).
		Scopes(activeComments).
		Where("auction_id = ?", auctionID).
		Order("created_at, id").
		Find(&comments)
	if result.Error != nil {
		return nil, storageErr(op, "list comments", result.Error)
	}
	return comments, nil
}

func (s *Store) CreateLike(ctx context.Context, like *models.Like) error {
	const op = "CreateLike"
	if result := s.db.WithContext(ctx).Create(like); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return auction.ErrConflict
		}
		return storageErr(op, "create like", result.Error)
	}
	return nil
}

func (s *Store) DeleteLike(ctx context.Context, auctionID, userID uuid.UUID) (bool, error) {
	const op = "DeleteLike"
	result := s.db.WithContext(ctx).
		Where("auction_id = ? AND user_id = ?", auctionID, userID).
		Delete(&models.Like{})
	if result.Error != nil {
		return false, storageErr(op, "delete like", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) CreateComment(ctx context.Context, comment *models.Comment) error {
	const op = "CreateComment"
	if result := s.db.WithContext(ctx).Create(comment); result.Error != nil {
		return storageErr(op, "create comment", result.Error)
	}
	return nil
}

func (s *Store) GetComment(ctx context.Context, auctionID, commentID uuid.UUID) (models.Comment, error) {
	const op = "GetComment"
	var comment models.Comment
	result := s.db.WithContext(ctx).
		Scopes(activeComments).
		Where("id = ? AND auction_id = ?", commentID, auctionID).
		First(&comment)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return models.Comment{}, auction.ErrNotFound
		}
		return models.Comment{}, storageErr(op, "get comment", result.Error)
	}
	return comment, nil
}

func (s *Store) UpdateCommentText(ctx context.Context, commentID uuid.UUID, text string) error {
	const op = "UpdateCommentText"
	result := s.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ?", commentID).
		Update("comment_text", text)
	if result.Error != nil {
		return storageErr(op, "update comment", result.Error)
	}
	return nil
}

func (s *Store) MarkCommentDeleted(ctx context.Context, commentID uuid.UUID) error {
	const op = "MarkCommentDeleted"
	result := s.db.WithContext(ctx).
		Model(&models.Comment{}).
		Where("id = ?", commentID).
		Update("is_deleted", true)
	if result.Error != nil {
		return storageErr(op, "delete comment", result.Error)
	}
	return nil
}

// CountImagesSince 回傳使用者在 since 之後上傳的圖片數量
func (s *Store) CountImagesSince(ctx context.Context, uploaderID uuid.UUID, since time.Time) (int64, error) {
	const op = "CountImagesSince"
	var count int64
	result := s.db.WithContext(ctx).
		Model(&models.Image{}).
		Where("uploader_id = ? AND created_at > ?", uploaderID, since.UTC()).
		Count(&count)
	if result.Error != nil {
		return 0, storageErr(op, "count images", result.Error)
	}
	return count, nil
}

func (s *Store) CreateImage(ctx context.Context, image *models.Image) error {
	const op = "CreateImage"
	if result := s.db.WithContext(ctx).Create(image); result.Error != nil {
		return storageErr(op, "create image", result.Error)
	}
	return nil
}
