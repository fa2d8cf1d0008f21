package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kis-gateway/internal/config"
	"kis-gateway/internal/kis"
	"kis-gateway/internal/monitor"
	"kis-gateway/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 启动券商网关并阻塞到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	if a.cfg.App.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	monitorSvc, err := monitor.NewService(a.store, a.logger.Named("monitor"))
	if err != nil {
		return fmt.Errorf("初始化监控服务失败: %w", err)
	}

	client, err := kis.NewClient(a.cfg.Broker, a.logger.Named("kis"), kis.WithObserver(monitorSvc))
	if err != nil {
		return fmt.Errorf("初始化券商客户端失败: %w", err)
	}

	router := newRouter(&handler{
		gateway: client,
		quotes:  kis.NewQuoteService(client, a.cfg.Broker.MaxConcurrency, a.logger.Named("quotes")),
		events:  monitorSvc,
		health:  a.store,
		logger:  a.logger.Named("http"),
	})

	a.logger.Info("券商网关已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("broker_environment", a.cfg.Broker.Environment),
		zap.Int("port", a.cfg.Server.Port),
	)

	if err := serve(ctx, a.cfg.Server, router, a.logger); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}
	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}
