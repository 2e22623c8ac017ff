/*
 * @module api/controllers/health_controller
 * @description 健康检查控制器，提供存活与就绪检查
 * @architecture MVC架构 - 控制器层
 * @stateFlow HTTP请求处理流程
 * @rules /health 只反映进程存活；/ready 检查数据库、数据源与 Redis，关键依赖不可用时返回 503
 * @dependencies net/http, github.com/go-chi/render
 * @refs service/monitoring/health_checker.go
 */

package controllers

import (
	"net/http"
	"time"

	"redcap-outlier-service/service/monitoring"

	"github.com/go-chi/render"
)

const serviceName = "redcap-outlier-service"

// HealthController 健康检查控制器
type HealthController struct {
	checker *monitoring.HealthChecker
}

// NewHealthController 创建健康检查控制器实例，checker 为空时 /ready 只返回就绪
func NewHealthController(checker *monitoring.HealthChecker) *HealthController {
	return &HealthController{checker: checker}
}

// HealthResponse 健康检查响应结构
type HealthResponse struct {
	Status       string                        `json:"status" example:"ok"`
	Timestamp    time.Time                     `json:"timestamp" example:"2024-01-01T00:00:00Z"`
	Version      string                        `json:"version" example:"1.0.0"`
	Service      string                        `json:"service" example:"redcap-outlier-service"`
	Dependencies []monitoring.DependencyHealth `json:"dependencies,omitempty"`
}

// Health 健康检查
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Service:   serviceName,
	}

	render.JSON(w, r, response)
}

// Ready 就绪检查
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Service:   serviceName,
	}

	if c.checker != nil {
		status := c.checker.CheckAll(r.Context())
		response.Dependencies = status.Dependencies
		response.Timestamp = status.Timestamp
		if status.Overall == monitoring.StatusCritical {
			response.Status = "not_ready"
			render.Status(r, http.StatusServiceUnavailable)
		}
	}

	render.JSON(w, r, response)
}
