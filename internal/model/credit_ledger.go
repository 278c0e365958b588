package model

import (
	"time"
)

// 套餐标识
const (
	PlanFree    = "free"
	PlanBasic   = "basic"
	PlanPremium = "premium"
)

// CreditLedger 每个用户唯一的一条积分账本。
// Version 每次写入自增，所有条件更新都以它为准。
type CreditLedger struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	UserID         int64      `gorm:"not null;uniqueIndex" json:"user_id"`
	Plan           string     `gorm:"size:20;not null;default:free" json:"plan"`
	Balance        int        `gorm:"not null;default:0" json:"balance"`
	LastReset      time.Time  `gorm:"not null" json:"last_reset"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	Version        int64      `gorm:"not null;default:0" json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (CreditLedger) TableName() string {
	return "credit_ledgers"
}
