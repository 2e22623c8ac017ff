/*
 * @module service/monitoring/metrics_collector
 * @description 校验运行指标收集器，以 Prometheus 指标暴露运行次数、耗时与异常数量
 * @architecture 分层架构 - 基础设施层
 * @stateFlow 运行开始/结束 -> 计数器与直方图 -> /metrics 抓取
 * @rules 指标注册到调用方提供的 Registerer，测试使用独立注册表；标签只取低基数字段
 * @dependencies github.com/prometheus/client_golang
 * @refs service/outlier/outlier_service.go, main.go
 */

package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "redcap_outlier"

// MetricsCollector 指标收集器
type MetricsCollector struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	outliersTotal *prometheus.CounterVec
	lastOutliers  *prometheus.GaugeVec
	lastSuccess   *prometheus.GaugeVec
	runsInFlight  prometheus.Gauge
}

// NewMetricsCollector 创建并注册指标
func NewMetricsCollector(registerer prometheus.Registerer) *MetricsCollector {
	c := &MetricsCollector{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "校验运行次数",
		}, []string{"project", "trigger", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "校验运行耗时",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"project"}),
		outliersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "outliers_total",
			Help:      "累计发现的异常记录数",
		}, []string{"project", "form"}),
		lastOutliers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_outliers",
			Help:      "最近一次成功运行的异常记录数",
		}, []string{"project"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "最近一次成功运行的完成时间",
		}, []string{"project"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "runs_in_flight",
			Help:      "正在执行的校验运行数",
		}),
	}

	registerer.MustRegister(
		c.runsTotal,
		c.runDuration,
		c.outliersTotal,
		c.lastOutliers,
		c.lastSuccess,
		c.runsInFlight,
	)
	return c
}

// RunStarted 记录运行开始
func (c *MetricsCollector) RunStarted() {
	c.runsInFlight.Inc()
}

// RunSucceeded 记录成功运行；byForm 为各表单异常数
func (c *MetricsCollector) RunSucceeded(project, trigger string, duration time.Duration, byForm map[string]int) {
	c.runsInFlight.Dec()
	c.runsTotal.WithLabelValues(project, trigger, "success").Inc()
	c.runDuration.WithLabelValues(project).Observe(duration.Seconds())

	total := 0
	for form, count := range byForm {
		c.outliersTotal.WithLabelValues(project, form).Add(float64(count))
		total += count
	}
	c.lastOutliers.WithLabelValues(project).Set(float64(total))
	c.lastSuccess.WithLabelValues(project).SetToCurrentTime()
}

// RunFailed 记录失败运行
func (c *MetricsCollector) RunFailed(project, trigger string, duration time.Duration) {
	c.runsInFlight.Dec()
	c.runsTotal.WithLabelValues(project, trigger, "failed").Inc()
	c.runDuration.WithLabelValues(project).Observe(duration.Seconds())
}
