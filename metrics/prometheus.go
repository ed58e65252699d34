// Package metrics 封装独立的 Prometheus 注册表及局部波动率校准的标准指标.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了基于 Prometheus 的指标采集注册表及预定义的校准指标.
type Metrics struct {
	registry *prometheus.Registry // 内部独立的 Prometheus 注册中心

	CalibrationRuns     *prometheus.CounterVec   // 校准运行次数 (维度: source, status)
	CalibrationDuration *prometheus.HistogramVec // 校准耗时分布 (维度: source)
	ArbitrageViolations *prometheus.CounterVec   // 非致命诊断次数 (维度: kind)
	TreeLevels          *prometheus.GaugeVec     // 最近一次运行已完成的层数 (维度: source)
	WorkerTasks         *prometheus.CounterVec   // 工作池执行的任务数 (维度: pool)
	BuildInfo           *prometheus.GaugeVec
}

// NewMetrics 初始化并返回一个新的指标采集器.
// 它会自动注册 Go 运行时指标和进程指标.
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.CalibrationRuns = m.NewCounterVec(&prometheus.CounterOpts{
		Name: "localvol_calibration_runs_total",
		Help: "Total number of local volatility calibration runs",
	}, []string{"source", "status"})

	m.CalibrationDuration = m.NewHistogramVec(&prometheus.HistogramOpts{
		Name:    "localvol_calibration_duration_seconds",
		Help:    "Local volatility calibration latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"source"})

	m.ArbitrageViolations = m.NewCounterVec(&prometheus.CounterOpts{
		Name: "localvol_arbitrage_violations_total",
		Help: "Non-fatal diagnostics raised while building implied trees",
	}, []string{"kind"})

	m.TreeLevels = m.NewGaugeVec(&prometheus.GaugeOpts{
		Name: "localvol_tree_levels",
		Help: "Number of calibrated levels in the latest run",
	}, []string{"source"})

	m.WorkerTasks = m.NewCounterVec(&prometheus.CounterOpts{
		Name: "worker_pool_tasks_total",
		Help: "Number of tasks executed by worker pools",
	}, []string{"pool"})

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// NewCounterVec 创建并注册一个新的计数器指标.
func (m *Metrics) NewCounterVec(opts *prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(*opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标.
func (m *Metrics) NewGaugeVec(opts *prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(*opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标.
func (m *Metrics) NewHistogramVec(opts *prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(*opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Gatherer 返回底层注册表, 供测试与自定义导出使用.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler 返回用于暴露指标的 HTTP 处理器.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ExposeHttp 在指定端口启动一个独立的 HTTP 服务器用于暴露指标数据.
// 返回一个清理函数用于优雅关闭该服务器.
func (m *Metrics) ExposeHttp(port string) func() {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown metrics server", "error", err)
		}
	}
}
