/*
 * @module api/middleware/rate_limit
 * @description 限流中间件，按客户端地址限制高开销接口的调用频率
 * @architecture 中间件模式 - HTTP请求拦截
 * @stateFlow 提取客户端地址 -> 限流检查 -> 写入限流头 -> 放行或返回 429
 * @rules 限流器为空时不限流；限流器出错时放行并记录告警
 * @dependencies net/http, github.com/go-chi/render, service/rate_limiter
 * @refs api/routes.go
 */

package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"redcap-outlier-service/service/rate_limiter"

	"github.com/go-chi/render"
)

// RateLimit 返回限流中间件
func RateLimit(limiter rate_limiter.Limiter, rule rate_limiter.RateLimitRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := limiter.Allow(r.Context(), rule, clientID(r))
			if err != nil {
				slog.Warn("限流检查失败，放行请求", "scope", rule.Scope, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if result.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))
			}
			if !result.Allowed {
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, map[string]interface{}{
					"status": http.StatusTooManyRequests,
					"msg":    "请求过于频繁，请稍后再试",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientID 客户端地址，RealIP 中间件已处理转发头
func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
