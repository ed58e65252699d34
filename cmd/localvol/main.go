// Command localvol 从 TOML 配置中的市场曲面校准隐含三叉树局部波动率, 并打印查询网格上的结果.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wyfcoding/localvol/bootstrap"
)

const serviceName = "localvol"

// version 由 -ldflags "-X main.version=..." 注入.
var version = "dev"

func main() {
	configPath := flag.String("config", "configs/localvol.toml", "path to config file")
	asJSON := flag.Bool("json", false, "write the report as JSON")
	serve := flag.Bool("serve", false, "keep the metrics endpoint up after the report until interrupted")
	flag.Parse()

	os.Exit(realMain(*configPath, *asJSON, *serve))
}

func realMain(configPath string, asJSON, serve bool) int {
	b := bootstrap.New(serviceName, version)
	cfg, err := b.Initialize(configPath)
	if err != nil {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b.SetupTracing(cfg.Tracing)
	m := b.SetupMetrics(cfg.Metrics)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.Shutdown(shutdownCtx); err != nil {
			b.Logger.Error("shutdown failed", "error", err)
		}
	}()
	if err := b.Start(ctx); err != nil {
		return 1
	}

	rep, err := run(ctx, cfg, b.Logger, m)
	if err != nil {
		b.Logger.Error("calibration failed", "error", err)
		return 1
	}
	if asJSON {
		err = rep.WriteJSON(os.Stdout)
	} else {
		err = rep.WriteTable(os.Stdout)
	}
	if err != nil {
		b.Logger.Error("failed to write report", "error", err)
		return 1
	}

	if serve && cfg.Metrics.Enabled {
		b.Logger.Info("serving metrics until interrupted", "port", cfg.Metrics.Port)
		<-ctx.Done()
	}
	return 0
}
