/*
 * @module service/monitoring/health_checker
 * @description 依赖健康检查器，汇总数据库、数据来源与缓存的可用性
 * @architecture 分层架构 - 基础设施层
 * @stateFlow 注册检查项 -> CheckAll 逐项执行(带超时) -> HealthStatus
 * @rules 任一关键依赖不可用时整体为 critical；非关键依赖不可用时为 warning
 * @dependencies context, sync, time
 * @refs api/controllers/health_controller.go
 */

package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"
)

// 健康状态
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

// CheckFunc 单项检查函数
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	critical bool
	fn       CheckFunc
}

// DependencyHealth 依赖健康状态
type DependencyHealth struct {
	Name         string        `json:"name"`
	Critical     bool          `json:"critical"`
	Available    bool          `json:"available"`
	ResponseTime time.Duration `json:"response_time"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// HealthStatus 整体健康状态
type HealthStatus struct {
	Overall      string             `json:"overall"`
	Timestamp    time.Time          `json:"timestamp"`
	Dependencies []DependencyHealth `json:"dependencies"`
}

// HealthChecker 健康检查器
type HealthChecker struct {
	mutex   sync.RWMutex
	checks  []check
	timeout time.Duration
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(timeout time.Duration) *HealthChecker {
	return &HealthChecker{timeout: timeout}
}

// Register 注册检查项
func (h *HealthChecker) Register(name string, critical bool, fn CheckFunc) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.checks = append(h.checks, check{name: name, critical: critical, fn: fn})
}

// CheckAll 并发执行全部检查
func (h *HealthChecker) CheckAll(ctx context.Context) *HealthStatus {
	h.mutex.RLock()
	checks := make([]check, len(h.checks))
	copy(checks, h.checks)
	h.mutex.RUnlock()

	results := make([]DependencyHealth, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c check) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := c.fn(checkCtx)
			results[i] = DependencyHealth{
				Name:         c.name,
				Critical:     c.critical,
				Available:    err == nil,
				ResponseTime: time.Since(start),
			}
			if err != nil {
				results[i].ErrorMessage = err.Error()
			}
		}(i, c)
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	status := &HealthStatus{Overall: StatusHealthy, Timestamp: time.Now(), Dependencies: results}
	for _, r := range results {
		if r.Available {
			continue
		}
		if r.Critical {
			status.Overall = StatusCritical
			break
		}
		status.Overall = StatusWarning
	}
	return status
}
