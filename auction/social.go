package auction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"auctionhall/models"
)

// Social 處理喜歡與留言
// 這些操作沒有跨列的規則，不需要拍賣鎖，唯一性由資料庫保證
type Social struct {
	store   SocialStore
	options options
}

func NewSocial(store SocialStore, opts ...Option) (*Social, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	return &Social{
		store:   store,
		options: newOptions("Social", opts),
	}, nil
}

func (s *Social) ensureAuction(ctx context.Context, auctionID uuid.UUID) error {
	_, err := s.store.GetAuction(ctx, auctionID)
	if errors.Is(err, ErrNotFound) {
		return reject(ReasonNotFound, MsgAuctionNotFound)
	}
	return err
}

func (s *Social) Like(ctx context.Context, auctionID, userID uuid.UUID) (models.Like, error) {
	const op = "Like"
	if err := s.ensureAuction(ctx, auctionID); err != nil {
		return models.Like{}, wrapUnlessRejected(op, "get auction", err)
	}
	like := models.Like{
		ID:        s.options.newID(),
		AuctionID: auctionID,
		UserID:    userID,
		CreatedAt: s.options.clock(),
	}
	if err := s.store.CreateLike(ctx, &like); err != nil {
		if errors.Is(err, ErrConflict) {
			return models.Like{}, reject(ReasonConflict, MsgAlreadyLiked)
		}
		return models.Like{}, fmt.Errorf("[%s] Fail to create like, err=%w", op, err)
	}
	return like, nil
}

func (s *Social) Unlike(ctx context.Context, auctionID, userID uuid.UUID) error {
	const op = "Unlike"
	if err := s.ensureAuction(ctx, auctionID); err != nil {
		return wrapUnlessRejected(op, "get auction", err)
	}
	deleted, err := s.store.DeleteLike(ctx, auctionID, userID)
	if err != nil {
		return fmt.Errorf("[%s] Fail to delete like, err=%w", op, err)
	}
	if !deleted {
		return reject(ReasonNotFound, MsgNotLiked)
	}
	return nil
}

func (s *Social) AddComment(ctx context.Context, auctionID, userID uuid.UUID, text string) (models.Comment, error) {
	const op = "AddComment"
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, reject(ReasonValidation, MsgCommentEmpty)
	}
	if err := s.ensureAuction(ctx, auctionID); err != nil {
		return models.Comment{}, wrapUnlessRejected(op, "get auction", err)
	}
	now := s.options.clock()
	comment := models.Comment{
		ID:        s.options.newID(),
		AuctionID: auctionID,
		UserID:    userID,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateComment(ctx, &comment); err != nil {
		return models.Comment{}, fmt.Errorf("[%s] Fail to create comment, err=%w", op, err)
	}
	return comment, nil
}

// authorComment 取得留言並確認 userID 是作者
func (s *Social) authorComment(ctx context.Context, auctionID, commentID, userID uuid.UUID) (models.Comment, error) {
	comment, err := s.store.GetComment(ctx, auctionID, commentID)
	if errors.Is(err, ErrNotFound) {
		return models.Comment{}, reject(ReasonNotFound, MsgCommentNotFound)
	}
	if err != nil {
		return models.Comment{}, err
	}
	if comment.UserID != userID {
		return models.Comment{}, reject(ReasonForbidden, MsgNotCommentAuthor)
	}
	return comment, nil
}

func (s *Social) EditComment(ctx context.Context, auctionID, commentID, userID uuid.UUID, text string) (models.Comment, error) {
	const op = "EditComment"
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Comment{}, reject(ReasonValidation, MsgCommentEmpty)
	}
	comment, err := s.authorComment(ctx, auctionID, commentID, userID)
	if err != nil {
		return models.Comment{}, wrapUnlessRejected(op, "get comment", err)
	}
	if err := s.store.UpdateCommentText(ctx, commentID, text); err != nil {
		return models.Comment{}, fmt.Errorf("[%s] Fail to update comment, err=%w", op, err)
	}
	comment.Text = text
	comment.UpdatedAt = s.options.clock()
	return comment, nil
}

// DeleteComment 將留言標記為已刪除，資料本身保留
func (s *Social) DeleteComment(ctx context.Context, auctionID, commentID, userID uuid.UUID) error {
	const op = "DeleteComment"
	if _, err := s.authorComment(ctx, auctionID, commentID, userID); err != nil {
		return wrapUnlessRejected(op, "get comment", err)
	}
	if err := s.store.MarkCommentDeleted(ctx, commentID); err != nil {
		return fmt.Errorf("[%s] Fail to delete comment, err=%w", op, err)
	}
	return nil
}

// ListComments 列出未刪除的留言，由舊到新
func (s *Social) ListComments(ctx context.Context, auctionID uuid.UUID) ([]models.Comment, error) {
	const op = "ListComments"
	if err := s.ensureAuction(ctx, auctionID); err != nil {
		return nil, wrapUnlessRejected(op, "get auction", err)
	}
	comments, err := s.store.ListComments(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to list comments, err=%w", op, err)
	}
	return comments, nil
}

func wrapUnlessRejected(op, action string, err error) error {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return err
	}
	return fmt.Errorf("[%s] Fail to %s, err=%w", op, action, err)
}
