package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/qs3c/iris_server/internal/credit"
	"github.com/qs3c/iris_server/internal/model"
	"github.com/qs3c/iris_server/internal/pkg/queue"
	"github.com/qs3c/iris_server/internal/repository"
)

var ErrUnknownKind = errors.New("unknown notification kind")

const defaultPopTimeout = 5 * time.Second

// Mailer 套餐通知邮件
type Mailer interface {
	SendPlanActivated(to, name, plan string, dailyCredits int, expiresAt time.Time) error
	SendPlanExpired(to, name, plan string, freeCredits int) error
}

// Source 通知任务来源
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.NotificationMessage, error)
}

// Notifier 消费通知队列并发送邮件
type Notifier struct {
	userRepo   *repository.UserRepository
	catalog    *credit.Catalog
	clock      *credit.Clock
	mailer     Mailer
	popTimeout time.Duration
}

func NewNotifier(userRepo *repository.UserRepository, catalog *credit.Catalog, clock *credit.Clock, mailer Mailer) *Notifier {
	return &Notifier{
		userRepo:   userRepo,
		catalog:    catalog,
		clock:      clock,
		mailer:     mailer,
		popTimeout: defaultPopTimeout,
	}
}

// Process 发送一条通知。用户已删除时直接丢弃。
func (n *Notifier) Process(ctx context.Context, msg *queue.NotificationMessage) error {
	user, err := n.userRepo.GetByID(msg.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithField("user_id", msg.UserID).Warn("notification dropped, user not found")
			return nil
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	switch msg.Kind {
	case queue.KindPlanActivated:
		expiresAt := msg.ExpiresAt.In(n.clock.Location())
		return n.mailer.SendPlanActivated(user.Email, user.Name, msg.Plan, n.catalog.Allowance(msg.Plan), expiresAt)
	case queue.KindPlanExpired:
		return n.mailer.SendPlanExpired(user.Email, user.Name, msg.Plan, n.catalog.Allowance(model.PlanFree))
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, msg.Kind)
	}
}

// Run 启动 workers 个消费协程，ctx 取消后全部退出
func (n *Notifier) Run(ctx context.Context, source Source, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(func() error {
			n.loop(ctx, source, workerID)
			return nil
		})
	}

	logrus.WithField("workers", workers).Info("notification workers started")
	err := g.Wait()
	logrus.Info("notification workers stopped")
	return err
}

func (n *Notifier) loop(ctx context.Context, source Source, workerID int) {
	log := logrus.WithField("worker", workerID)
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := source.Pop(ctx, n.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("failed to pop notification")
			continue
		}
		if msg == nil {
			continue // 超时，继续等待
		}

		entry := log.WithFields(logrus.Fields{
			"user_id": msg.UserID,
			"kind":    msg.Kind,
			"plan":    msg.Plan,
		})
		if err := n.Process(ctx, msg); err != nil {
			entry.WithError(err).Error("notification failed")
			continue
		}
		entry.Info("notification sent")
	}
}
