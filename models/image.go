package models

import (
	"time"

	"github.com/google/uuid"
)

// Image 代表上傳的拍賣圖片
// 包含圖片 URL 以及上傳者的使用者 ID
type Image struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;<-:create" json:"id"`
	UploaderID uuid.UUID `gorm:"type:uuid;not null;index;<-:create" json:"uploaderId"`
	Url        string    `gorm:"type:text;not null;<-:create" json:"url"`
	CreatedAt  time.Time `gorm:"<-:create" json:"createdAt"`
}

// All 回傳所有需要建立資料表的模型
func All() []any {
	return []any{&Auction{}, &Bid{}, &Like{}, &Comment{}, &Image{}}
}
