package main

import (
	"context"
	"fmt"

	"github.com/wyfcoding/localvol/config"
	"github.com/wyfcoding/localvol/localvol"
	"github.com/wyfcoding/localvol/logging"
	"github.com/wyfcoding/localvol/metrics"
	"github.com/wyfcoding/localvol/surface"
)

// marketSurface 由配置中的散点构造市场曲面.
func marketSurface(c config.MarketConfig) (localvol.MarketSurface, error) {
	interp, err := c.GridInterpolator()
	if err != nil {
		return localvol.MarketSurface{}, err
	}
	s, err := surface.NewInterpolatedNodalSurface("market_"+c.Source, c.Times, c.Strikes, c.Values, interp)
	if err != nil {
		return localvol.MarketSurface{}, fmt.Errorf("build market surface: %w", err)
	}
	if c.Source == "price" {
		return localvol.PriceSurface(s), nil
	}
	return localvol.ImpliedVolatilitySurface(s), nil
}

func dupireSurface(ms localvol.MarketSurface, spot float64, rate, dividend localvol.RateFunction) surface.Surface {
	d := localvol.NewDupireCalculator()
	if ms.Kind == localvol.PriceKind {
		return d.LocalVolatilityFromPrice(ms.Surface, spot, rate, dividend)
	}
	return d.LocalVolatilityFromImpliedVolatility(ms.Surface, spot, rate, dividend)
}

func calculatorOptions(c config.CalibrationConfig, logger *logging.Logger, m *metrics.Metrics) []localvol.Option {
	return []localvol.Option{
		localvol.WithLogger(logger.WithModule("localvol")),
		localvol.WithMetrics(m),
		localvol.WithParallelism(c.Parallelism),
		localvol.WithBoundaryNodes(c.IncludeBoundary),
		localvol.WithPriceClamping(c.ClampPrices),
		localvol.WithBenchmarkCorrection(!c.DisableBenchmarkCorrection),
	}
}

// run 执行一次完整校准并生成报表.
func run(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*report, error) {
	ms, err := marketSurface(cfg.Market)
	if err != nil {
		return nil, err
	}
	interp, err := cfg.Calibration.GridInterpolator()
	if err != nil {
		return nil, err
	}
	calc, err := localvol.NewTrinomialTreeCalculator(cfg.Calibration.NSteps, cfg.Calibration.MaxTime, interp,
		calculatorOptions(cfg.Calibration, logger, m)...)
	if err != nil {
		return nil, err
	}

	spot := cfg.Market.Spot
	rate := localvol.ConstantRate(cfg.Market.FinancingRate)
	dividend := localvol.ConstantRate(cfg.Market.DividendRate)
	res, err := calc.Calibrate(ctx, ms, spot, rate, dividend)
	if err != nil {
		return nil, err
	}

	var dupire surface.Surface
	if cfg.Report.Dupire {
		dupire = dupireSurface(ms, spot, rate, dividend)
	}
	return buildReport(res, dupire, cfg.Report, spot, calc.Grid()), nil
}
