// Package bootstrap 负责命令行程序的通用基础设施初始化: 配置、日志、追踪与指标.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/localvol/config"
	"github.com/wyfcoding/localvol/logging"
	"github.com/wyfcoding/localvol/metrics"
	"github.com/wyfcoding/localvol/tracing"
)

// Bootstrapper 处理通用基础设施的初始化, 并在 Shutdown 时按逆序释放.
type Bootstrapper struct {
	ServiceName string
	Version     string
	Logger      *logging.Logger
	Metrics     *metrics.Metrics

	lifecycle *Lifecycle
}

// New 创建一个新的引导器实例.
func New(serviceName, version string) *Bootstrapper {
	logger := logging.NewLogger(serviceName, "bootstrap")
	return &Bootstrapper{
		ServiceName: serviceName,
		Version:     version,
		Logger:      logger,
		lifecycle:   NewLifecycle(logger.Logger),
	}
}

// Initialize 加载配置文件, 并按配置中的日志设置重建 Logger.
func (b *Bootstrapper) Initialize(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		b.Logger.Error("failed to load config", "path", configPath, "error", err)
		return nil, err
	}

	b.Logger = logging.NewFromConfig(cfg.Log.LoggingConfig(b.ServiceName, "cli"))
	slog.SetDefault(b.Logger.Logger)
	b.lifecycle.logger = b.Logger.Logger

	config.RegisterReloadHook(func(next *config.Config) {
		b.Logger.Info("config reloaded", "version", next.Version, "log_level", next.Log.Level)
	})
	b.Logger.Info("config loaded", "path", configPath, "version", cfg.Version, "service_version", b.Version)
	config.PrintWithMask(cfg)
	return cfg, nil
}

// SetupTracing 初始化 OpenTelemetry 追踪器, 关闭动作登记到生命周期.
func (b *Bootstrapper) SetupTracing(cfg config.TracingConfig) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = b.ServiceName
	}
	shutdown, err := tracing.InitTracer(cfg)
	if err != nil {
		b.Logger.Error("failed to init tracer", "error", err)
		return
	}
	b.lifecycle.Append(Hook{Name: "tracer", OnStop: shutdown})
}

// SetupMetrics 创建指标注册表; 启用时登记一个暴露指标的 HTTP 服务.
func (b *Bootstrapper) SetupMetrics(cfg config.MetricsConfig) *metrics.Metrics {
	b.Metrics = metrics.NewMetrics(b.ServiceName)
	b.Metrics.RegisterBuildInfo(b.ServiceName, b.Version)
	if !cfg.Enabled {
		return b.Metrics
	}

	var stop func()
	b.lifecycle.Append(Hook{
		Name: "metrics-server",
		OnStart: func(context.Context) error {
			stop = b.Metrics.ExposeHttp(cfg.Port)
			b.Logger.Info("metrics endpoint exposed", "port", cfg.Port)
			return nil
		},
		OnStop: func(context.Context) error {
			if stop != nil {
				stop()
			}
			return nil
		},
	})
	return b.Metrics
}

// Start 启动已登记的组件.
func (b *Bootstrapper) Start(ctx context.Context) error {
	return b.lifecycle.Start(ctx)
}

// Shutdown 按登记的逆序关闭组件.
func (b *Bootstrapper) Shutdown(ctx context.Context) error {
	return b.lifecycle.Stop(ctx)
}
