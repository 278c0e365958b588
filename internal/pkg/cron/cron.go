package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/iris_server/internal/service"
)

// DefaultSchedule 每天民用日零点
const DefaultSchedule = "0 0 * * *"

// Sweeper 每日重置任务
type Sweeper interface {
	RunDailyReset(ctx context.Context) (*service.SweepResult, error)
}

// Service 按配置时区调度每日积分重置
type Service struct {
	sweeper  Sweeper
	cron     *cron.Cron
	entry    cron.EntryID
	schedule string
	timeout  time.Duration
}

// NewService schedule 为标准五段 cron 表达式，按 loc 解释
func NewService(sweeper Sweeper, loc *time.Location, schedule string) (*Service, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	logger := cron.PrintfLogger(logrus.WithField("component", "cron"))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	s := &Service{
		sweeper:  sweeper,
		cron:     c,
		schedule: schedule,
		timeout:  30 * time.Minute,
	}

	entry, err := c.AddFunc(schedule, s.runScheduled)
	if err != nil {
		return nil, fmt.Errorf("invalid reset schedule %q: %w", schedule, err)
	}
	s.entry = entry

	return s, nil
}

// Start 启动定时任务
func (s *Service) Start() {
	s.cron.Start()
	logrus.WithFields(logrus.Fields{
		"schedule": s.schedule,
		"next":     s.Next().Format(time.RFC3339),
	}).Info("Cron service started (daily credit reset)")
}

// Stop 停止调度并等待正在执行的任务结束，ctx 到期后不再等待
func (s *Service) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logrus.Warn("Cron service stop timed out, sweep still running")
	}
	logrus.Info("Cron service stopped")
}

// Next 下一次执行时间
func (s *Service) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *Service) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.RunNow(ctx); err != nil {
		logrus.WithError(err).Error("Daily credit reset failed")
	}
}

// RunNow 立即执行一次重置（手动触发或补跑）
func (s *Service) RunNow(ctx context.Context) (*service.SweepResult, error) {
	logrus.Info("Starting daily credit reset...")
	return s.sweeper.RunDailyReset(ctx)
}
