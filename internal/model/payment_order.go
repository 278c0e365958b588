package model

import (
	"time"
)

// 支付订单状态
const (
	OrderStatusPending  = "pending"
	OrderStatusConsumed = "consumed"
)

// PaymentOrder 网关下单时记录的订单归属。确认支付时以它为准，
// 每个订单只能生效一次。
type PaymentOrder struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	OrderID    string     `gorm:"size:64;not null;uniqueIndex" json:"order_id"`
	Provider   string     `gorm:"size:20;not null" json:"provider"`
	UserID     int64      `gorm:"not null;index" json:"user_id"`
	Plan       string     `gorm:"size:20;not null" json:"plan"`
	Amount     int64      `gorm:"not null" json:"amount"` // 最小货币单位
	Currency   string     `gorm:"size:3;not null" json:"currency"`
	Receipt    string     `gorm:"size:40" json:"receipt"`
	Status     string     `gorm:"size:20;not null;default:pending" json:"status"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (PaymentOrder) TableName() string {
	return "payment_orders"
}
