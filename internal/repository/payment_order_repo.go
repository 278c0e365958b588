package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/iris_server/internal/model"
)

var (
	ErrOrderNotFound = errors.New("payment order not found")
	// ErrOrderConsumed 订单已被确认过
	ErrOrderConsumed = errors.New("payment order already consumed")
)

type PaymentOrderRepository struct {
	db *gorm.DB
}

func NewPaymentOrderRepository(db *gorm.DB) *PaymentOrderRepository {
	return &PaymentOrderRepository{db: db}
}

func (r *PaymentOrderRepository) Create(ctx context.Context, order *model.PaymentOrder) error {
	if order.Status == "" {
		order.Status = model.OrderStatusPending
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *PaymentOrderRepository) GetByOrderID(ctx context.Context, orderID string) (*model.PaymentOrder, error) {
	var order model.PaymentOrder
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// MarkConsumed 仅当订单仍为 pending 时置为 consumed；并发确认只有一个能成功
func (r *PaymentOrderRepository) MarkConsumed(ctx context.Context, orderID string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.PaymentOrder{}).
		Where("order_id = ? AND status = ?", orderID, model.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":      model.OrderStatusConsumed,
			"consumed_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderConsumed
	}
	return nil
}

// Release 套餐生效失败时把订单退回 pending，允许用户重新确认
func (r *PaymentOrderRepository) Release(ctx context.Context, orderID string) error {
	return r.db.WithContext(ctx).Model(&model.PaymentOrder{}).
		Where("order_id = ? AND status = ?", orderID, model.OrderStatusConsumed).
		Updates(map[string]interface{}{
			"status":      model.OrderStatusPending,
			"consumed_at": nil,
		}).Error
}
