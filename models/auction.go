package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxAmount 是 numeric(12,2) 欄位能存放的最大金額，起標價與出價都不能超過
var MaxAmount = decimal.RequireFromString("9999999999.99")

// AuctionStatus 代表拍賣儲存的生命週期狀態
type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// Auction 代表拍賣系統中的拍賣
// 包含起標價、目前最高出價、出價次數、結束時間以及生命週期狀態
//
// CurrentPrice、CurrentBidID、CurrentBidderID、BidCount 只能由出價引擎更新；
// Status 只能由生命週期控制器更新。
type Auction struct {
	ID              uuid.UUID           `gorm:"type:uuid;primaryKey;<-:create" json:"id"`
	SellerID        uuid.UUID           `gorm:"type:uuid;not null;index;<-:create" json:"sellerId"`
	Title           string              `gorm:"type:varchar(255);not null" json:"title"`
	Description     string              `gorm:"type:text;not null" json:"description"`
	ImageURL        string              `gorm:"type:text;not null;default:''" json:"imageUrl"`
	StartingPrice   decimal.Decimal     `gorm:"type:numeric(12,2);not null;<-:create" json:"startingPrice"`
	CurrentPrice    decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"currentPrice"`
	CurrentBidID    *uuid.UUID          `gorm:"type:uuid" json:"currentBidId"`
	CurrentBidderID *uuid.UUID          `gorm:"type:uuid" json:"currentBidderId"`
	BidCount        int64               `gorm:"not null;default:0" json:"bidCount"`
	EndTime         time.Time           `gorm:"not null;index" json:"endTime"`
	Status          AuctionStatus       `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// StatusAt 回傳拍賣在指定時間點的實際狀態
// 已取消或已結束的狀態為終態；仍為 active 但已超過結束時間的拍賣視為 ended
func (a Auction) StatusAt(now time.Time) AuctionStatus {
	if a.Status != AuctionStatusActive {
		return a.Status
	}
	if !now.Before(a.EndTime) {
		return AuctionStatusEnded
	}
	return AuctionStatusActive
}

// FloorPrice 回傳下一筆出價必須超過的金額
func (a Auction) FloorPrice() decimal.Decimal {
	if a.CurrentPrice.Valid {
		return a.CurrentPrice.Decimal
	}
	return a.StartingPrice
}
