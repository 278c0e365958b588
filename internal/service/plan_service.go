package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/iris_server/internal/model"
	"github.com/qs3c/iris_server/internal/pkg/metrics"
	"github.com/qs3c/iris_server/internal/pkg/payment"
	"github.com/qs3c/iris_server/internal/pkg/queue"
	"github.com/qs3c/iris_server/internal/repository"
)

var (
	ErrOrderNotFound = errors.New("支付订单不存在")
	ErrOrderMismatch = errors.New("支付订单与当前用户或套餐不符")
	ErrOrderConsumed = errors.New("支付订单已使用")
)

// NotificationQueue 异步通知队列，可为 nil
type NotificationQueue interface {
	Push(ctx context.Context, msg *queue.NotificationMessage) error
}

type PlanService struct {
	credits  *CreditService
	orders   *repository.PaymentOrderRepository
	gateway  payment.Gateway
	currency string
	notifier NotificationQueue
}

func NewPlanService(
	credits *CreditService,
	orders *repository.PaymentOrderRepository,
	gateway payment.Gateway,
	currency string,
	notifier NotificationQueue,
) *PlanService {
	if currency == "" {
		currency = "INR"
	}
	return &PlanService{
		credits:  credits,
		orders:   orders,
		gateway:  gateway,
		currency: currency,
		notifier: notifier,
	}
}

// InitiateUpgrade 校验套餐与金额后在支付网关下单。校验失败时不会请求网关。
// amount 为主货币单位，下单时换算为最小单位。
func (s *PlanService) InitiateUpgrade(ctx context.Context, userID int64, planID string, amount int64) (*payment.Order, error) {
	catalog := s.credits.Catalog()
	if !catalog.IsPurchasable(planID) {
		return nil, ErrInvalidPlan
	}
	if amount != catalog.Price(planID) {
		return nil, ErrInvalidAmount
	}

	receipt := fmt.Sprintf("rcpt_%d_%08d", userID, time.Now().UnixMilli()%100000000)
	order, err := s.gateway.CreateOrder(ctx, amount*100, s.currency, receipt)
	if err != nil {
		metrics.PlanUpgrades.WithLabelValues("gateway_error", planID).Inc()
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	// 订单归属落库，确认时据此核对用户、套餐与金额
	record := &model.PaymentOrder{
		OrderID:  order.ID,
		Provider: order.Provider,
		UserID:   userID,
		Plan:     planID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  receipt,
	}
	if err := s.orders.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: save order: %w", ErrPersistence, err)
	}

	metrics.PlanUpgrades.WithLabelValues("initiated", planID).Inc()
	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"plan":     planID,
		"order_id": order.ID,
	}).Info("payment order created")

	return order, nil
}

// ConfirmUpgrade 支付成功后生效套餐。调用方负责确认支付已完成。
func (s *PlanService) ConfirmUpgrade(ctx context.Context, userID int64, planID string) (*model.CreditLedger, error) {
	if !s.credits.Catalog().IsPurchasable(planID) {
		return nil, ErrInvalidPlan
	}

	ledger, err := s.credits.ApplyPlanChange(ctx, userID, planID)
	if err != nil {
		return nil, err
	}
	metrics.PlanUpgrades.WithLabelValues("confirmed", planID).Inc()

	s.enqueue(ctx, &queue.NotificationMessage{
		Kind:      queue.KindPlanActivated,
		UserID:    userID,
		Plan:      planID,
		ExpiresAt: *ledger.ExpirationDate,
	})

	return ledger, nil
}

// VerifyAndConfirm 校验网关回传的支付凭据，通过后生效套餐。
// 凭据必须对应本人发起、套餐一致且未使用过的订单；每个订单只生效一次。
func (s *PlanService) VerifyAndConfirm(ctx context.Context, userID int64, planID string, c payment.Confirmation) (*model.CreditLedger, error) {
	catalog := s.credits.Catalog()
	if !catalog.IsPurchasable(planID) {
		return nil, ErrInvalidPlan
	}

	record, err := s.orders.GetByOrderID(ctx, c.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, s.rejected(planID, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load order: %w", ErrPersistence, err)
	}
	if record.UserID != userID || record.Plan != planID || record.Amount != catalog.Price(planID)*100 {
		logrus.WithFields(logrus.Fields{
			"user_id":     userID,
			"plan":        planID,
			"order_id":    record.OrderID,
			"order_user":  record.UserID,
			"order_plan":  record.Plan,
			"order_total": record.Amount,
		}).Warn("payment confirmation does not match order")
		return nil, s.rejected(planID, ErrOrderMismatch)
	}
	if record.Status == model.OrderStatusConsumed {
		return nil, s.rejected(planID, ErrOrderConsumed)
	}

	order := &payment.Order{
		ID:       record.OrderID,
		Provider: record.Provider,
		Amount:   record.Amount,
		Currency: record.Currency,
		Receipt:  record.Receipt,
	}
	if err := s.gateway.VerifyPayment(ctx, order, c); err != nil {
		metrics.PlanUpgrades.WithLabelValues("verify_failed", planID).Inc()
		if errors.Is(err, payment.ErrVerification) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	err = s.orders.MarkConsumed(ctx, record.OrderID, s.credits.Clock().Now())
	if errors.Is(err, repository.ErrOrderConsumed) {
		return nil, s.rejected(planID, ErrOrderConsumed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: consume order: %w", ErrPersistence, err)
	}

	ledger, err := s.ConfirmUpgrade(ctx, userID, planID)
	if err != nil {
		if rerr := s.orders.Release(context.WithoutCancel(ctx), record.OrderID); rerr != nil {
			logrus.WithFields(logrus.Fields{
				"user_id":  userID,
				"order_id": record.OrderID,
				"error":    rerr,
			}).Error("failed to release payment order")
		}
		return nil, err
	}
	return ledger, nil
}

// rejected 订单核对失败统一归为支付校验失败
func (s *PlanService) rejected(planID string, reason error) error {
	metrics.PlanUpgrades.WithLabelValues("verify_failed", planID).Inc()
	return fmt.Errorf("%w: %w", payment.ErrVerification, reason)
}

func (s *PlanService) enqueue(ctx context.Context, msg *queue.NotificationMessage) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Push(ctx, msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": msg.UserID,
			"kind":    msg.Kind,
			"error":   err,
		}).Warn("failed to enqueue notification")
	}
}
