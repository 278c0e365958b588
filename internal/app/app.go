package app

import (
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/iris_server/config"
	"github.com/qs3c/iris_server/internal/credit"
	"github.com/qs3c/iris_server/internal/database"
	"github.com/qs3c/iris_server/internal/pkg/logger"
	"github.com/qs3c/iris_server/internal/pkg/pubsub"
	"github.com/qs3c/iris_server/internal/pkg/queue"
	"github.com/qs3c/iris_server/internal/repository"
	"github.com/qs3c/iris_server/internal/service"
)

// Core server、sweeper、creditctl 共用的依赖
type Core struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Clock     *credit.Clock
	Catalog   *credit.Catalog
	UserRepo  *repository.UserRepository
	Credits   *service.CreditService
	Publisher *pubsub.Publisher
	Queue     *queue.Queue
}

// ConfigPath CONFIG_PATH 环境变量优先，默认 config.yaml
func ConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

// Open 加载配置并连接数据库与 Redis
func Open(configPath string) (*Core, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Setup(&cfg.Log)

	clock, err := credit.NewClock(cfg.Credits.TimeZone)
	if err != nil {
		return nil, err
	}
	catalog, err := credit.NewCatalog(cfg.Credits.Plans)
	if err != nil {
		return nil, err
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logrus.Info("Database connected")

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		return nil, err
	}
	logrus.Info("Redis connected")

	userRepo := repository.NewUserRepository(db)
	publisher := pubsub.NewPublisher(rdb)

	return &Core{
		Config:    cfg,
		DB:        db,
		Redis:     rdb,
		Clock:     clock,
		Catalog:   catalog,
		UserRepo:  userRepo,
		Publisher: publisher,
		Queue:     queue.NewQueue(rdb, cfg.Queue.NotificationQueue),
		Credits: service.NewCreditService(
			repository.NewCreditRepository(db),
			service.NewUserIdentity(userRepo),
			clock,
			catalog,
			cfg.Credits.PlanCycleDays,
			publisher,
		),
	}, nil
}

// SweepService 每日重置任务
func (c *Core) SweepService() *service.SweepService {
	return service.NewSweepService(
		repository.NewCreditRepository(c.DB),
		c.Clock,
		c.Catalog,
		c.Redis,
		c.Publisher,
		c.Queue,
		service.SweepOptions{
			BatchSize:   c.Config.Credits.SweepBatchSize,
			Concurrency: c.Config.Credits.SweepConcurrency,
		},
	)
}

// Close 关闭数据库与 Redis 连接
func (c *Core) Close() {
	if sqlDB, err := c.DB.DB(); err == nil {
		sqlDB.Close()
	}
	c.Redis.Close()
}
