package models

import (
	"time"

	"github.com/google/uuid"
)

// Like 代表使用者對拍賣的喜歡，每個使用者對同一場拍賣只能有一筆
type Like struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create" json:"id"`
	AuctionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_like_auction_user;<-:create" json:"auctionId"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_like_auction_user;<-:create" json:"userId"`
	CreatedAt time.Time `gorm:"<-:create" json:"createdAt"`
}

// Comment 代表拍賣下的留言
// 刪除時只設定 IsDeleted，保留拍賣討論的紀錄
type Comment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create" json:"id"`
	AuctionID uuid.UUID `gorm:"type:uuid;not null;index;<-:create" json:"auctionId"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;<-:create" json:"userId"`
	Text      string    `gorm:"column:comment_text;type:text;not null" json:"commentText"`
	IsDeleted bool      `gorm:"not null;default:false" json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
