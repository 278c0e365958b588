package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/qs3c/iris_server/internal/credit"
	"github.com/qs3c/iris_server/internal/model"
	"github.com/qs3c/iris_server/internal/pkg/lock"
	"github.com/qs3c/iris_server/internal/pkg/metrics"
	"github.com/qs3c/iris_server/internal/pkg/pubsub"
	"github.com/qs3c/iris_server/internal/pkg/queue"
	"github.com/qs3c/iris_server/internal/repository"
)

const (
	sweepLockPrefix = "credit:sweep:"
	sweepLockTTL    = 30 * time.Minute
)

// SweepResult 一次每日清扫的统计
type SweepResult struct {
	Day       string `json:"day"`
	Scanned   int64  `json:"scanned"`
	Reset     int64  `json:"reset"`
	Expired   int64  `json:"expired"`
	Unchanged int64  `json:"unchanged"`
	Failed    int64  `json:"failed"`
	Skipped   bool   `json:"skipped"` // 其他实例已在执行当天的清扫
}

type SweepOptions struct {
	BatchSize   int
	Concurrency int
}

// LedgerStore 清扫用到的账本读写
type LedgerStore interface {
	ListAfter(ctx context.Context, afterID int64, limit int) ([]model.CreditLedger, error)
	GetByUserID(ctx context.Context, userID int64) (*model.CreditLedger, error)
	CompareAndSwap(ctx context.Context, ledger *model.CreditLedger, expected int64) error
}

// SweepService 每日定时对所有账本执行过期检查与额度重置，不依赖用户访问
type SweepService struct {
	repo     LedgerStore
	clock    *credit.Clock
	catalog  *credit.Catalog
	rdb      *redis.Client // 为 nil 时不加跨实例锁
	events   EventPublisher
	notifier NotificationQueue
	opts     SweepOptions
}

func NewSweepService(
	repo LedgerStore,
	clock *credit.Clock,
	catalog *credit.Catalog,
	rdb *redis.Client,
	events EventPublisher,
	notifier NotificationQueue,
	opts SweepOptions,
) *SweepService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &SweepService{
		repo:     repo,
		clock:    clock,
		catalog:  catalog,
		rdb:      rdb,
		events:   events,
		notifier: notifier,
		opts:     opts,
	}
}

// RunDailyReset 以同一个 now 规范化全部账本。单个账本失败只记录日志，不影响其余账本。
// 重置以民用日为界：当天已被请求路径重置过的账本保持不变，因此白天手动执行
// 只会处理过期套餐和尚未跨日的账本，不会把当天已消耗的额度补满。
func (s *SweepService) RunDailyReset(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	now := s.clock.Now()
	result := &SweepResult{Day: s.clock.DayKey(now)}

	if s.rdb != nil {
		l, err := lock.Acquire(ctx, s.rdb, sweepLockPrefix+result.Day, sweepLockTTL)
		if errors.Is(err, lock.ErrNotAcquired) {
			logrus.WithField("day", result.Day).Info("daily reset already running elsewhere, skipping")
			result.Skipped = true
			return result, nil
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := l.Release(context.WithoutCancel(ctx)); err != nil {
				logrus.WithError(err).Warn("failed to release sweep lock")
			}
		}()
	}

	var scanned, reset, expired, unchanged, failed atomic.Int64
	var afterID int64

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch, err := s.repo.ListAfter(ctx, afterID, s.opts.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("%w: list ledgers: %w", ErrPersistence, err)
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Concurrency)
		for i := range batch {
			ledger := &batch[i]
			g.Go(func() error {
				scanned.Add(1)
				outcome, err := s.sweepOne(gctx, ledger, now)
				switch {
				case err != nil:
					failed.Add(1)
					metrics.SweepLedgers.WithLabelValues("failed").Inc()
					logrus.WithFields(logrus.Fields{
						"user_id": ledger.UserID,
						"error":   err,
					}).Error("daily reset failed for ledger")
				case outcome.Expired:
					expired.Add(1)
					metrics.SweepLedgers.WithLabelValues("expired").Inc()
				case outcome.Reset:
					reset.Add(1)
					metrics.SweepLedgers.WithLabelValues("reset").Inc()
				default:
					unchanged.Add(1)
					metrics.SweepLedgers.WithLabelValues("unchanged").Inc()
				}
				return nil
			})
		}
		_ = g.Wait()

		if len(batch) < s.opts.BatchSize {
			break
		}
	}

	result.Scanned = scanned.Load()
	result.Reset = reset.Load()
	result.Expired = expired.Load()
	result.Unchanged = unchanged.Load()
	result.Failed = failed.Load()

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	logrus.WithFields(logrus.Fields{
		"day":       result.Day,
		"scanned":   result.Scanned,
		"reset":     result.Reset,
		"expired":   result.Expired,
		"unchanged": result.Unchanged,
		"failed":    result.Failed,
		"elapsed":   time.Since(start).String(),
	}).Info("daily reset completed")

	return result, nil
}

// sweepOne 与请求路径相同的条件更新；冲突时重新读取最新状态再试
func (s *SweepService) sweepOne(ctx context.Context, ledger *model.CreditLedger, now time.Time) (credit.Outcome, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		expected := ledger.Version
		prevPlan := ledger.Plan
		outcome := credit.Normalize(ledger, now, s.clock, s.catalog)
		if !outcome.Changed() {
			return outcome, nil
		}

		err := s.repo.CompareAndSwap(ctx, ledger, expected)
		if err == nil {
			s.afterSweep(ctx, ledger, prevPlan, outcome)
			return outcome, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return outcome, err
		}

		ledger, err = s.repo.GetByUserID(ctx, ledger.UserID)
		if err != nil {
			return credit.Outcome{}, err
		}
	}
	return credit.Outcome{}, fmt.Errorf("ledger %d: too many concurrent updates", ledger.UserID)
}

// afterSweep 通知用户；过期邮件里的套餐是过期前的套餐
func (s *SweepService) afterSweep(ctx context.Context, ledger *model.CreditLedger, prevPlan string, outcome credit.Outcome) {
	eventType := pubsub.EventDailyReset
	if outcome.Expired {
		eventType = pubsub.EventPlanExpired
		if s.notifier != nil {
			err := s.notifier.Push(ctx, &queue.NotificationMessage{
				Kind:   queue.KindPlanExpired,
				UserID: ledger.UserID,
				Plan:   prevPlan,
			})
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"user_id": ledger.UserID,
					"error":   err,
				}).Warn("failed to enqueue plan expired notification")
			}
		}
	}

	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, &pubsub.CreditEvent{
		Type:    eventType,
		UserID:  ledger.UserID,
		Plan:    ledger.Plan,
		Balance: ledger.Balance,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": ledger.UserID,
			"error":   err,
		}).Warn("failed to publish sweep event")
	}
}
