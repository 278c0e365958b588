package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/iris_server/internal/app"
	"github.com/qs3c/iris_server/internal/pkg/cron"
	"github.com/qs3c/iris_server/internal/pkg/email"
	"github.com/qs3c/iris_server/internal/worker"
)

// sweeper 多实例部署时独立运行每日积分重置与通知邮件发送
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.Open(app.ConfigPath())
	if err != nil {
		logrus.Fatalf("Failed to start: %v", err)
	}
	defer core.Close()
	cfg := core.Config

	cronService, err := cron.NewService(core.SweepService(), core.Clock.Location(), cfg.Credits.ResetSchedule)
	if err != nil {
		logrus.Fatalf("Failed to init cron: %v", err)
	}
	cronService.Start()

	notifier := worker.NewNotifier(core.UserRepo, core.Catalog, core.Clock, email.NewService(&cfg.Email))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = notifier.Run(ctx, core.Queue, cfg.Queue.MaxWorkers)
	}()

	<-ctx.Done()
	logrus.Info("Received shutdown signal")

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cronService.Stop(stopCtx)
	<-done

	logrus.Info("Sweeper shutdown complete")
}
