package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/iris_server/internal/api"
	"github.com/qs3c/iris_server/internal/api/handler"
	"github.com/qs3c/iris_server/internal/api/validate"
	"github.com/qs3c/iris_server/internal/app"
	"github.com/qs3c/iris_server/internal/credit"
	"github.com/qs3c/iris_server/internal/pkg/cron"
	"github.com/qs3c/iris_server/internal/pkg/llm"
	"github.com/qs3c/iris_server/internal/pkg/oauth"
	"github.com/qs3c/iris_server/internal/pkg/payment"
	"github.com/qs3c/iris_server/internal/pkg/pubsub"
	"github.com/qs3c/iris_server/internal/pkg/storage"
	"github.com/qs3c/iris_server/internal/pkg/ws"
	"github.com/qs3c/iris_server/internal/repository"
	"github.com/qs3c/iris_server/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.Open(app.ConfigPath())
	if err != nil {
		logrus.Fatalf("Failed to start: %v", err)
	}
	defer core.Close()
	cfg := core.Config

	if err := validate.Register(core.Catalog); err != nil {
		logrus.Fatalf("Failed to register validators: %v", err)
	}

	// 对象存储（可选）
	var store storage.ObjectStore
	if s, err := storage.New(ctx, &cfg.Storage); err != nil {
		logrus.WithError(err).Warn("Object storage disabled, image messages and avatars will be rejected")
	} else {
		store = s
	}

	gateway, err := payment.New(&cfg.Payment)
	if err != nil {
		logrus.Fatalf("Failed to init payment gateway: %v", err)
	}

	// WebSocket Hub 订阅账本事件
	wsHub := ws.NewHub()
	go func() {
		if err := wsHub.Forward(ctx, pubsub.NewSubscriber(core.Redis)); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("Credit event subscription stopped")
		}
	}()

	// 初始化 Repository
	chatRepo := repository.NewChatRepository(core.DB)
	orderRepo := repository.NewPaymentOrderRepository(core.DB)

	// 初始化 Service
	google := oauth.NewGoogleOAuth(cfg.OAuth.Google.ClientID, cfg.OAuth.Google.ClientSecret, cfg.OAuth.Google.RedirectURI)
	authService := service.NewAuthService(core.UserRepo, core.Credits, google, &cfg.JWT)
	userService := service.NewUserService(core.UserRepo, store, cfg.Storage.MaxImageSize)
	planService := service.NewPlanService(core.Credits, orderRepo, gateway, cfg.Payment.Currency, core.Queue)
	chatService := service.NewChatService(
		chatRepo,
		service.NewMeteringService(core.Credits),
		llm.NewOpenAIClient(&cfg.AI),
		store,
		service.ChatOptions{
			Pricing: credit.Pricing{
				BaseMessageCost: cfg.Credits.BaseMessageCost,
				PerImageCost:    cfg.Credits.PerImageCost,
			},
			MaxImages:    cfg.Credits.MaxImages,
			MaxImageSize: cfg.Storage.MaxImageSize,
		},
	)

	// 初始化 Handler
	router := api.NewRouter(
		handler.NewAuthHandler(authService, oauth.NewStateStore(core.Redis)),
		handler.NewUserHandler(userService),
		handler.NewPlanHandler(core.Credits, planService),
		handler.NewChatHandler(chatService),
		handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins),
		handler.NewHealthHandler(core.DB, core.Redis),
		core.Credits,
		cfg,
	)

	// 单实例部署时在进程内执行每日重置，多实例时由 sweeper 负责
	var cronService *cron.Service
	if cfg.Credits.SweepInProcess {
		cronService, err = cron.NewService(core.SweepService(), core.Clock.Location(), cfg.Credits.ResetSchedule)
		if err != nil {
			logrus.Fatalf("Failed to init cron: %v", err)
		}
		cronService.Start()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
	if cronService != nil {
		cronService.Stop(shutdownCtx)
	}
	logrus.Info("Server shutdown complete")
}
