package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qs3c/iris_server/config"
	"github.com/qs3c/iris_server/internal/api/handler"
	"github.com/qs3c/iris_server/internal/api/middleware"
)

type Router struct {
	authHandler      *handler.AuthHandler
	userHandler      *handler.UserHandler
	planHandler      *handler.PlanHandler
	chatHandler      *handler.ChatHandler
	websocketHandler *handler.WebSocketHandler
	healthHandler    *handler.HealthHandler
	plans            middleware.PlanReader
	cfg              *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	planHandler *handler.PlanHandler,
	chatHandler *handler.ChatHandler,
	websocketHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
	plans middleware.PlanReader,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:      authHandler,
		userHandler:      userHandler,
		planHandler:      planHandler,
		chatHandler:      chatHandler,
		websocketHandler: websocketHandler,
		healthHandler:    healthHandler,
		plans:            plans,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.AccessLog())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", r.healthHandler.Check)
	if r.cfg.Metrics.Enabled {
		engine.Use(middleware.Metrics())
		engine.GET(r.cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
			auth.GET("/google", r.authHandler.GoogleAuth)
			auth.GET("/google/callback", r.authHandler.GoogleCallback)
		}

		// 公开接口 - 套餐目录
		api.GET("/plans/catalog", r.planHandler.Catalog)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			authenticated.GET("/auth/me", r.authHandler.Me)

			// 用户
			user := authenticated.Group("/user")
			{
				user.GET("/profile", r.userHandler.GetProfile)
				user.PUT("/profile", r.userHandler.UpdateProfile)
				user.POST("/avatar", r.userHandler.UploadAvatar)
			}

			// 套餐
			plans := authenticated.Group("/plans")
			{
				plans.GET("", r.planHandler.GetPlan)
				plans.POST("/subscribe", r.planHandler.Subscribe)
				plans.POST("/confirm", r.planHandler.Confirm)
			}

			// 会话
			chats := authenticated.Group("/chats")
			{
				chats.POST("", r.chatHandler.Create)
				chats.GET("", r.chatHandler.List)
				chats.GET("/:id", r.chatHandler.Get)
				chats.DELETE("/:id", r.chatHandler.Delete)
				chats.POST("/:id/messages", middleware.CreditGate(r.plans, r.cfg.Credits.BaseMessageCost), r.chatHandler.SendMessage)
			}
		}
	}

	return engine
}
