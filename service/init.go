/*
 * @module service/init
 * @description 服务初始化模块，负责配置加载、数据库连接、数据源、规则集、报告、通知、调度与健康检查的装配
 * @architecture 分层架构 - 服务层
 * @stateFlow 加载配置 -> 连接数据库并迁移 -> 连接 Redis(可选) -> 创建数据源 -> 加载规则集
 *            -> 创建异常检测服务 -> 启动调度器(可选) -> 注册健康检查
 * @rules 确保所有关键依赖初始化成功后才提供API服务；Redis 不可用时退化为无缓存与进程内锁
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres, github.com/go-redis/redis/v8, github.com/prometheus/client_golang
 * @refs main.go, api/routes.go, service/outlier/outlier_service.go
 */

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"redcap-outlier-service/service/config"
	"redcap-outlier-service/service/datasource"
	"redcap-outlier-service/service/distributed_lock"
	"redcap-outlier-service/service/models"
	"redcap-outlier-service/service/monitoring"
	"redcap-outlier-service/service/outlier"
	"redcap-outlier-service/service/rate_limiter"
	"redcap-outlier-service/service/report"
	"redcap-outlier-service/service/scheduler"
	"redcap-outlier-service/service/validation"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const healthCheckTimeout = 5 * time.Second

var (
	DB                   *gorm.DB
	GlobalConfig         *config.Config
	GlobalRedis          *redis.Client
	GlobalOutlierService *outlier.OutlierService
	GlobalScheduler      *scheduler.OutlierScheduler
	GlobalHealthChecker  *monitoring.HealthChecker
	GlobalRateLimiter    rate_limiter.Limiter
	globalNotifier       *report.Notifier
	globalProjectLoader  datasource.ProjectLoader
)

// Init 按配置初始化所有服务组件
func Init(ctx context.Context, cfg *config.Config) error {
	GlobalConfig = cfg

	if err := initDatabase(cfg); err != nil {
		return err
	}
	if err := runMigrations(); err != nil {
		return err
	}
	initRedis(ctx, cfg)

	if err := initServices(ctx, cfg); err != nil {
		return err
	}
	initHealthChecks()

	slog.Info("服务初始化完成", "project", cfg.ProjectID, "source", cfg.DataSource)
	return nil
}

// initDatabase 初始化数据库连接
func initDatabase(cfg *config.Config) error {
	var err error
	DB, err = gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("数据库连接失败: %w", err)
	}
	slog.Info("数据库连接成功")
	return nil
}

// runMigrations 运行数据库迁移
func runMigrations() error {
	slog.Info("开始运行数据库迁移...")
	if err := DB.AutoMigrate(&models.OutlierRun{}, &models.OutlierEntry{}); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	slog.Info("数据库表结构迁移完成")
	return nil
}

// initRedis Redis 可选，连接失败只告警
func initRedis(ctx context.Context, cfg *config.Config) {
	if cfg.Redis.Addr == "" {
		slog.Info("未配置 Redis，字典缓存与分布式锁不启用")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("Redis 连接失败，字典缓存与分布式锁不启用", "addr", cfg.Redis.Addr, "error", err)
		client.Close()
		return
	}
	GlobalRedis = client
	GlobalRateLimiter = rate_limiter.NewRedisRateLimiter(client)
	slog.Info("Redis 连接成功", "addr", cfg.Redis.Addr)
}

// initServices 初始化服务
func initServices(ctx context.Context, cfg *config.Config) error {
	loader, err := datasource.NewProjectLoader(ctx, cfg, GlobalRedis)
	if err != nil {
		return err
	}
	globalProjectLoader = loader

	ruleSet := validation.DefaultRuleSet()
	if cfg.RuleSetPath != "" {
		ruleSet, err = validation.LoadRuleSet(cfg.RuleSetPath)
		if err != nil {
			return err
		}
		slog.Info("规则集加载完成", "path", cfg.RuleSetPath, "version", ruleSet.Version, "rules", len(ruleSet.Rules))
	}

	globalNotifier = report.NewNotifierFromConfig(cfg.Notify)

	GlobalOutlierService = outlier.NewOutlierService(outlier.Options{
		ProjectID:        cfg.ProjectID,
		FilterToComplete: cfg.FilterToComplete,
		RuleSet:          ruleSet,
	}, outlier.Dependencies{
		Loader:   loader,
		Store:    report.NewReportStore(DB),
		Writer:   report.NewCSVWriter(cfg.ReportDir),
		Notifier: globalNotifier,
		Metrics:  monitoring.NewMetricsCollector(prometheus.DefaultRegisterer),
	})

	if cfg.Schedule != "" {
		var lock distributed_lock.DistributedLock = distributed_lock.NewLocalLock()
		if GlobalRedis != nil {
			lock = distributed_lock.NewRedisLock(GlobalRedis)
		}
		GlobalScheduler = scheduler.NewOutlierScheduler(func(ctx context.Context, trigger string) error {
			_, err := GlobalOutlierService.RunProject(ctx, trigger)
			return err
		}, lock, cfg.ProjectID, cfg.Redis.LockTTL)

		// 调度器启动失败不阻止 API 服务
		if err := GlobalScheduler.Start(cfg.Schedule); err != nil {
			slog.Error("启动调度器失败", "error", err)
			GlobalScheduler = nil
		}
	}
	return nil
}

// initHealthChecks 注册依赖健康检查
func initHealthChecks() {
	GlobalHealthChecker = monitoring.NewHealthChecker(healthCheckTimeout)

	GlobalHealthChecker.Register("database", true, func(ctx context.Context) error {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	GlobalHealthChecker.Register("datasource", true, globalProjectLoader.HealthCheck)
	if GlobalRedis != nil {
		GlobalHealthChecker.Register("redis", false, func(ctx context.Context) error {
			return GlobalRedis.Ping(ctx).Err()
		})
	}
}

// Shutdown 停止调度器并释放连接
func Shutdown(ctx context.Context) {
	if GlobalScheduler != nil {
		GlobalScheduler.Stop()
	}
	if err := globalNotifier.Close(); err != nil {
		slog.Warn("关闭通知发布者失败", "error", err)
	}
	if globalProjectLoader != nil {
		if err := globalProjectLoader.Close(ctx); err != nil {
			slog.Warn("关闭数据源失败", "error", err)
		}
	}
	if GlobalRedis != nil {
		GlobalRedis.Close()
	}
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	slog.Info("服务已关闭")
}
