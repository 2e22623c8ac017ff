/*
 * @module service/datasource/loader
 * @description 项目加载器统一接口，屏蔽 REDCap API 与文档库两种数据来源
 * @architecture 接口隔离原则 - 校验流程只依赖 ProjectLoader
 * @stateFlow 选择加载器 -> LoadCodebook -> LoadForms -> Project
 * @rules 字典与表单分开加载，便于字典单独缓存；加载器不得修改已返回的数据
 * @dependencies context, redcap-outlier-service/service/config
 * @refs redcap_client.go, mongo_loader.go, codebook_cache.go
 */

package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"redcap-outlier-service/service/config"
	"redcap-outlier-service/service/models"

	"github.com/go-redis/redis/v8"
)

// ErrExportMalformed 导出数据结构错误（缺少 record_id 等）
var ErrExportMalformed = errors.New("导出数据结构错误")

// ProjectLoader 项目加载器
type ProjectLoader interface {
	// LoadCodebook 加载项目字典
	LoadCodebook(ctx context.Context) ([]models.FieldMetadata, error)

	// LoadForms 按字典加载各表单数据
	LoadForms(ctx context.Context, codebook []models.FieldMetadata) (map[string]*models.Form, error)

	// HealthCheck 检查数据来源是否可达
	HealthCheck(ctx context.Context) error

	// Close 释放连接
	Close(ctx context.Context) error

	// GetType 数据来源类型
	GetType() string
}

// Project 一次加载得到的完整项目数据
type Project struct {
	Source   string
	Codebook []models.FieldMetadata
	Forms    map[string]*models.Form
	LoadedAt time.Time
	Duration time.Duration
}

// LoadProject 通过加载器读取字典和全部表单
func LoadProject(ctx context.Context, loader ProjectLoader) (*Project, error) {
	start := time.Now()

	codebook, err := loader.LoadCodebook(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载字典失败: %w", err)
	}

	forms, err := loader.LoadForms(ctx, codebook)
	if err != nil {
		return nil, fmt.Errorf("加载表单失败: %w", err)
	}

	project := &Project{
		Source:   loader.GetType(),
		Codebook: codebook,
		Forms:    forms,
		LoadedAt: start,
		Duration: time.Since(start),
	}

	slog.Info("项目加载完成", "source", project.Source, "fields", len(codebook), "forms", len(forms), "duration", project.Duration)
	return project, nil
}

// NewProjectLoader 根据配置创建加载器，配置了 Redis 时在外层包一层字典缓存
func NewProjectLoader(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (ProjectLoader, error) {
	var loader ProjectLoader

	switch cfg.DataSource {
	case config.SourceRedcap:
		loader = NewRedcapClient(cfg.Redcap)
	case config.SourceMongo:
		mongoLoader, err := NewMongoLoader(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		loader = mongoLoader
	default:
		return nil, fmt.Errorf("不支持的数据源类型: %s", cfg.DataSource)
	}

	if redisClient != nil {
		loader = NewCodebookCache(loader, redisClient, cacheKeyPrefix+cfg.ProjectID, cfg.Redis.CacheTTL)
	}

	return loader, nil
}
