/*
 * @module service/rate_limiter/redis_rate_limiter
 * @description 基于Redis的固定窗口限流，用于限制内联校验与手动触发运行的调用频率
 * @architecture 工具层 - 提供分布式限流能力
 * @stateFlow 构造窗口Key -> Lua 原子计数 -> 判断是否超限
 * @rules 使用Redis INCR和EXPIRE实现固定窗口限流；同一窗口内计数跨实例共享
 * @dependencies github.com/go-redis/redis/v8
 * @refs api/middleware/rate_limit.go, service/init.go
 */

package rate_limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const rateLimitKeyPrefix = "redcap_outlier:rate_limit"

// RateLimitResult 限流检查结果
type RateLimitResult struct {
	Allowed   bool  `json:"allowed"`
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetAt   int64 `json:"reset_at"` // Unix时间戳
}

// RateLimitRule 限流规则
type RateLimitRule struct {
	Scope       string // validate / run
	Window      time.Duration
	MaxRequests int
}

// Limiter 限流器接口
type Limiter interface {
	Allow(ctx context.Context, rule RateLimitRule, clientID string) (*RateLimitResult, error)
}

// RedisRateLimiter Redis限流器
type RedisRateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRateLimiter 基于已建立的 Redis 客户端创建限流器
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, now: time.Now}
}

var allowScript = redis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')
	local max_requests = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	if current >= max_requests then
		local ttl = redis.call('TTL', KEYS[1])
		if ttl < 0 then
			ttl = window
		end
		return {0, current, ttl}
	end

	local new_count = redis.call('INCR', KEYS[1])
	if new_count == 1 then
		redis.call('EXPIRE', KEYS[1], window)
	end

	local ttl = redis.call('TTL', KEYS[1])
	if ttl < 0 then
		ttl = window
	end
	return {1, new_count, ttl}
`)

// Allow 检查并计入一次请求
func (r *RedisRateLimiter) Allow(ctx context.Context, rule RateLimitRule, clientID string) (*RateLimitResult, error) {
	window := int64(rule.Window.Seconds())
	if window <= 0 || rule.MaxRequests <= 0 {
		return &RateLimitResult{Allowed: true, Limit: -1, Remaining: -1}, nil
	}

	key := r.buildKey(rule.Scope, clientID, window)
	result, err := allowScript.Run(ctx, r.client, []string{key}, rule.MaxRequests, window).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("限流检查失败: %w", err)
	}
	if len(result) != 3 {
		return nil, fmt.Errorf("限流检查失败: 脚本返回 %d 个值", len(result))
	}

	remaining := rule.MaxRequests - int(result[1])
	if remaining < 0 {
		remaining = 0
	}
	return &RateLimitResult{
		Allowed:   result[0] == 1,
		Limit:     rule.MaxRequests,
		Remaining: remaining,
		ResetAt:   r.now().Add(time.Duration(result[2]) * time.Second).Unix(),
	}, nil
}

// Reset 清除某个客户端在当前窗口的计数
func (r *RedisRateLimiter) Reset(ctx context.Context, rule RateLimitRule, clientID string) error {
	window := int64(rule.Window.Seconds())
	if window <= 0 {
		return nil
	}
	return r.client.Del(ctx, r.buildKey(rule.Scope, clientID, window)).Err()
}

// buildKey 按窗口编号构造Key
func (r *RedisRateLimiter) buildKey(scope, clientID string, window int64) string {
	currentWindow := r.now().Unix() / window
	return fmt.Sprintf("%s:%s:%s:%d", rateLimitKeyPrefix, scope, clientID, currentWindow)
}
