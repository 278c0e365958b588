package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/iris_server/internal/credit"
	"github.com/qs3c/iris_server/internal/model"
	"github.com/qs3c/iris_server/internal/pkg/metrics"
	"github.com/qs3c/iris_server/internal/pkg/pubsub"
	"github.com/qs3c/iris_server/internal/repository"
)

var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrInsufficientCredit = errors.New("积分不足")
	ErrInvalidPlan        = errors.New("无效的套餐")
	ErrInvalidAmount      = errors.New("支付金额与套餐价格不符")
	ErrInvalidCredit      = errors.New("积分数量必须大于 0")
	ErrGateway            = errors.New("支付网关请求失败")
	ErrPersistence        = errors.New("积分账本读写失败")
)

// InsufficientCreditError 余额不足，携带当前余额与所需积分供前端展示付费提示
type InsufficientCreditError struct {
	Balance  int
	Required int
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("%s: balance %d, required %d", ErrInsufficientCredit.Error(), e.Balance, e.Required)
}

func (e *InsufficientCreditError) Unwrap() error {
	return ErrInsufficientCredit
}

// 同一账本上乐观锁冲突的最大重试次数
const maxCASAttempts = 10

// EventPublisher 账本变化通知，可为 nil
type EventPublisher interface {
	Publish(ctx context.Context, event *pubsub.CreditEvent) error
}

// PlanView GetPlan 的结果
type PlanView struct {
	Plan           string     `json:"plan"`
	Balance        int        `json:"balance"`
	DailyAllowance int        `json:"daily_allowance"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	NextReset      time.Time  `json:"next_reset"`
}

type CreditService struct {
	repo     *repository.CreditRepository
	identity IdentityResolver
	clock    *credit.Clock
	catalog  *credit.Catalog
	cycle    time.Duration
	events   EventPublisher
}

func NewCreditService(
	repo *repository.CreditRepository,
	identity IdentityResolver,
	clock *credit.Clock,
	catalog *credit.Catalog,
	cycleDays int,
	events EventPublisher,
) *CreditService {
	if cycleDays <= 0 {
		cycleDays = 30
	}
	return &CreditService{
		repo:     repo,
		identity: identity,
		clock:    clock,
		catalog:  catalog,
		cycle:    time.Duration(cycleDays) * 24 * time.Hour,
		events:   events,
	}
}

func (s *CreditService) Clock() *credit.Clock {
	return s.clock
}

func (s *CreditService) Catalog() *credit.Catalog {
	return s.catalog
}

// load 读取账本，不存在时校验身份后创建默认账本
func (s *CreditService) load(ctx context.Context, userID int64, now time.Time) (*model.CreditLedger, error) {
	ledger, err := s.repo.GetByUserID(ctx, userID)
	if err == nil {
		return ledger, nil
	}
	if !errors.Is(err, repository.ErrLedgerNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if err := s.identity.ResolveUser(ctx, userID); err != nil {
		return nil, err
	}

	ledger, err = s.repo.CreateIfAbsent(ctx, credit.NewLedger(userID, now, s.catalog))
	if err != nil {
		return nil, fmt.Errorf("%w: create ledger: %w", ErrPersistence, err)
	}
	return ledger, nil
}

// GetPlan 返回规范化后的套餐与余额。规范化的持久化失败不影响读取结果。
func (s *CreditService) GetPlan(ctx context.Context, userID int64) (*PlanView, error) {
	now := s.clock.Now()

	ledger, err := s.load(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	expected := ledger.Version
	outcome := credit.Normalize(ledger, now, s.clock, s.catalog)
	if outcome.Changed() {
		ledger = s.persistNormalized(ctx, ledger, expected, now)
		s.notifyNormalized(ctx, ledger, outcome)
	}

	return s.view(ledger, now), nil
}

// persistNormalized 尽力写回规范化结果。冲突说明别的请求已写入，重新读取并在内存中规范化；
// 其他错误只记录日志，调用方继续使用内存中的结果。
func (s *CreditService) persistNormalized(ctx context.Context, ledger *model.CreditLedger, expected int64, now time.Time) *model.CreditLedger {
	err := s.repo.CompareAndSwap(ctx, ledger, expected)
	if err == nil {
		return ledger
	}

	if errors.Is(err, repository.ErrVersionConflict) {
		fresh, rerr := s.repo.GetByUserID(ctx, ledger.UserID)
		if rerr == nil {
			credit.Normalize(fresh, now, s.clock, s.catalog)
			return fresh
		}
		err = rerr
	}

	logrus.WithFields(logrus.Fields{
		"user_id": ledger.UserID,
		"error":   err,
	}).Warn("failed to persist ledger normalization")
	return ledger
}

// Reserve 原子扣减 amount 积分。余额不足时返回 *InsufficientCreditError，账本余额不变。
func (s *CreditService) Reserve(ctx context.Context, userID int64, amount int) (*model.CreditLedger, error) {
	if amount <= 0 {
		return nil, ErrInvalidCredit
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		now := s.clock.Now()
		ledger, err := s.load(ctx, userID, now)
		if err != nil {
			metrics.CreditReservations.WithLabelValues("error").Inc()
			return nil, err
		}

		expected := ledger.Version
		outcome := credit.Normalize(ledger, now, s.clock, s.catalog)

		if ledger.Balance < amount {
			if outcome.Changed() {
				ledger = s.persistNormalized(ctx, ledger, expected, now)
			}
			metrics.CreditReservations.WithLabelValues("insufficient").Inc()
			return nil, &InsufficientCreditError{Balance: ledger.Balance, Required: amount}
		}

		ledger.Balance -= amount
		err = s.repo.CompareAndSwap(ctx, ledger, expected)
		if errors.Is(err, repository.ErrVersionConflict) {
			metrics.CreditReservations.WithLabelValues("conflict").Inc()
			continue
		}
		if err != nil {
			metrics.CreditReservations.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: reserve: %w", ErrPersistence, err)
		}

		metrics.CreditReservations.WithLabelValues("ok").Inc()
		metrics.CreditsReserved.Add(float64(amount))
		s.publish(ctx, &pubsub.CreditEvent{
			Type:    pubsub.EventBalanceChanged,
			UserID:  userID,
			Plan:    ledger.Plan,
			Balance: ledger.Balance,
		})
		return ledger, nil
	}

	metrics.CreditReservations.WithLabelValues("error").Inc()
	return nil, fmt.Errorf("%w: reserve: too many concurrent updates", ErrPersistence)
}

// Refund 原子加回 amount 积分，不截断到每日额度
func (s *CreditService) Refund(ctx context.Context, userID int64, amount int) error {
	if amount <= 0 {
		return ErrInvalidCredit
	}

	if err := s.repo.AddBalance(ctx, userID, amount); err != nil {
		metrics.CreditRefunds.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: refund: %w", ErrPersistence, err)
	}
	metrics.CreditRefunds.WithLabelValues("ok").Inc()

	if ledger, err := s.repo.GetByUserID(ctx, userID); err == nil {
		s.publish(ctx, &pubsub.CreditEvent{
			Type:    pubsub.EventBalanceChanged,
			UserID:  userID,
			Plan:    ledger.Plan,
			Balance: ledger.Balance,
		})
	}
	return nil
}

// ApplyPlanChange 切换套餐并满额发放，不论原余额多少
func (s *CreditService) ApplyPlanChange(ctx context.Context, userID int64, plan string) (*model.CreditLedger, error) {
	if _, ok := s.catalog.Lookup(plan); !ok {
		return nil, ErrInvalidPlan
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		now := s.clock.Now()
		ledger, err := s.load(ctx, userID, now)
		if err != nil {
			return nil, err
		}

		expected := ledger.Version
		credit.ApplyPlan(ledger, plan, now, s.cycle, s.catalog)

		err = s.repo.CompareAndSwap(ctx, ledger, expected)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: apply plan: %w", ErrPersistence, err)
		}

		s.publish(ctx, &pubsub.CreditEvent{
			Type:    pubsub.EventPlanActivated,
			UserID:  userID,
			Plan:    ledger.Plan,
			Balance: ledger.Balance,
		})
		return ledger, nil
	}

	return nil, fmt.Errorf("%w: apply plan: too many concurrent updates", ErrPersistence)
}

func (s *CreditService) view(ledger *model.CreditLedger, now time.Time) *PlanView {
	return &PlanView{
		Plan:           ledger.Plan,
		Balance:        ledger.Balance,
		DailyAllowance: s.catalog.Allowance(ledger.Plan),
		ExpirationDate: ledger.ExpirationDate,
		NextReset:      s.clock.NextMidnight(now),
	}
}

func (s *CreditService) notifyNormalized(ctx context.Context, ledger *model.CreditLedger, outcome credit.Outcome) {
	eventType := pubsub.EventDailyReset
	if outcome.Expired {
		eventType = pubsub.EventPlanExpired
	}
	s.publish(ctx, &pubsub.CreditEvent{
		Type:    eventType,
		UserID:  ledger.UserID,
		Plan:    ledger.Plan,
		Balance: ledger.Balance,
	})
}

func (s *CreditService) publish(ctx context.Context, event *pubsub.CreditEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": event.UserID,
			"type":    event.Type,
			"error":   err,
		}).Warn("failed to publish credit event")
	}
}
