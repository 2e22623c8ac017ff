package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"redcap-outlier-service/api"
	_ "redcap-outlier-service/docs"
	"redcap-outlier-service/logger"
	"redcap-outlier-service/service"
	"redcap-outlier-service/service/config"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title REDCap 异常检测服务 API
// @version 1.0
// @description REDCap 临床数据异常检测服务，提供字典驱动的类型与范围校验、自定义规则、运行记录与异常明细查询
// @BasePath /swagger/redcap-outlier-service
func main() {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		slog.Error("加载配置失败", "error", err)
		os.Exit(1)
	}
	logger.InitLogger(cfg.LogLevel)

	ctx := context.Background()
	if err := service.Init(ctx, cfg); err != nil {
		slog.Error("服务初始化失败", "error", err)
		os.Exit(1)
	}
	defer service.Shutdown(ctx)

	mux := chi.NewRouter()

	// 如果有BASE_CONTEXT，则在该路径下挂载所有路由
	if cfg.BaseContext != "" {
		mux.Route(cfg.BaseContext, func(r chi.Router) {
			subMux := r.(*chi.Mux)
			api.InitRoute(subMux)
			r.Handle("/metrics", promhttp.Handler())
			r.Handle("/swagger*", httpSwagger.WrapHandler)
		})
	} else {
		api.InitRoute(mux)
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/swagger*", httpSwagger.WrapHandler)
	}

	s := daprd.NewServiceWithMux(":"+strconv.Itoa(cfg.ListenPort), mux)
	if err := s.Start(); err != nil && err != http.ErrServerClosed {
		slog.Error("服务启动失败", "error", err)
	}
}
