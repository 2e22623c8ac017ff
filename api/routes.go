/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render, api/middleware
 * @refs api/controllers/outlier_controller.go, service/init.go
 */

package api

import (
	"redcap-outlier-service/api/controllers"
	apimiddleware "redcap-outlier-service/api/middleware"
	"redcap-outlier-service/service"
	"redcap-outlier-service/service/rate_limiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由，需在 service.Init 之后调用
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController(service.GlobalHealthChecker)
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 异常检测
	r.Route("/outliers", func(r chi.Router) {
		outlierController := controllers.NewOutlierController(service.GlobalOutlierService, service.GlobalScheduler)
		limits := service.GlobalConfig.RateLimit

		r.With(apimiddleware.RateLimit(service.GlobalRateLimiter, rate_limiter.RateLimitRule{
			Scope: "validate", Window: limits.Window, MaxRequests: limits.MaxValidate,
		})).Post("/validate", outlierController.ValidateInline)
		r.Get("/ruleset", outlierController.GetRuleSet)
		r.Get("/rule-kinds", outlierController.GetRuleKinds)
		r.Get("/schedule", outlierController.GetSchedule)

		r.Route("/runs", func(r chi.Router) {
			r.With(apimiddleware.RateLimit(service.GlobalRateLimiter, rate_limiter.RateLimitRule{
				Scope: "run", Window: limits.Window, MaxRequests: limits.MaxRuns,
			})).Post("/", outlierController.TriggerRun)
			r.Get("/", outlierController.ListRuns)
			r.Get("/{id}", outlierController.GetRun)
			r.Get("/{id}/entries", outlierController.ListEntries)
		})
	})
}
