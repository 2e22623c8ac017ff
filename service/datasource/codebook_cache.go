/*
 * @module service/datasource/codebook_cache
 * @description 项目字典 Redis 缓存，包装任意 ProjectLoader
 * @architecture 装饰器模式 - 只拦截 LoadCodebook，其余方法透传
 * @stateFlow GET 缓存 -> 命中则解码返回 / 未命中则加载并 SET(TTL)
 * @rules Redis 不可用时降级为直接加载，不影响校验运行；缓存内容为 JSON 编码的字段列表
 * @dependencies github.com/go-redis/redis/v8, encoding/json
 * @refs loader.go
 */

package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"redcap-outlier-service/service/models"

	"github.com/go-redis/redis/v8"
)

const cacheKeyPrefix = "redcap_outlier:codebook:"

// CodebookCache 字典缓存
type CodebookCache struct {
	inner  ProjectLoader
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewCodebookCache 创建字典缓存
func NewCodebookCache(inner ProjectLoader, client *redis.Client, key string, ttl time.Duration) *CodebookCache {
	return &CodebookCache{
		inner:  inner,
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

// GetType 透传内层类型
func (c *CodebookCache) GetType() string {
	return c.inner.GetType()
}

// LoadCodebook 优先读取缓存
func (c *CodebookCache) LoadCodebook(ctx context.Context) ([]models.FieldMetadata, error) {
	cached, err := c.client.Get(ctx, c.key).Bytes()
	switch {
	case err == nil:
		var codebook []models.FieldMetadata
		if err := json.Unmarshal(cached, &codebook); err == nil {
			slog.Debug("字典缓存命中", "key", c.key, "fields", len(codebook))
			return codebook, nil
		}
		slog.Warn("字典缓存内容无法解码，重新加载", "key", c.key)
	case errors.Is(err, redis.Nil):
		slog.Debug("字典缓存未命中", "key", c.key)
	default:
		slog.Warn("读取字典缓存失败，直接加载", "key", c.key, "error", err)
	}

	codebook, err := c.inner.LoadCodebook(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(codebook)
	if err != nil {
		return nil, fmt.Errorf("编码字典失败: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		slog.Warn("写入字典缓存失败", "key", c.key, "error", err)
	}

	return codebook, nil
}

// Invalidate 删除缓存的字典
func (c *CodebookCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("删除字典缓存失败: %w", err)
	}
	return nil
}

// LoadForms 透传
func (c *CodebookCache) LoadForms(ctx context.Context, codebook []models.FieldMetadata) (map[string]*models.Form, error) {
	return c.inner.LoadForms(ctx, codebook)
}

// HealthCheck 透传
func (c *CodebookCache) HealthCheck(ctx context.Context) error {
	return c.inner.HealthCheck(ctx)
}

// Close 透传
func (c *CodebookCache) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}
