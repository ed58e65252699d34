// Package localvol 通过隐含三叉树 (Derman-Kani-Chriss) 从市场隐含波动率或期权价格曲面校准局部波动率曲面,
// 并提供基于有限差分的 Dupire 公式作为对照.
package localvol

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/localvol/interpolation"
	"github.com/wyfcoding/localvol/logging"
	"github.com/wyfcoding/localvol/metrics"
	"github.com/wyfcoding/localvol/surface"
	"github.com/wyfcoding/localvol/tracing"
	"github.com/wyfcoding/localvol/worker"
	"github.com/wyfcoding/localvol/xerrors"
)

const defaultReferenceVol = 0.2

type options struct {
	logger            *logging.Logger
	metrics           *metrics.Metrics
	parallelism       int
	includeBoundary   bool
	clampPrices       bool
	benchmark         bool
	defaultVol        float64
}

// Option 计算器选项.
type Option func(*options)

// WithLogger 设置日志记录器.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics 注入指标采集器.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithParallelism 层内节点求解的并发度, 小于等于 1 时顺序执行. 结果与并发度无关.
func WithParallelism(n int) Option {
	return func(o *options) { o.parallelism = n }
}

// WithBoundaryNodes 是否在输出样本中包含每层的上下边界节点.
func WithBoundaryNodes(include bool) Option {
	return func(o *options) { o.includeBoundary = include }
}

// WithPriceClamping 价格曲面直接给出负的看涨价格时截断到无套利下界并记录诊断, 而不是中止运行.
func WithPriceClamping(clamp bool) Option {
	return func(o *options) { o.clampPrices = clamp }
}

// WithBenchmarkCorrection 是否用常数波动率对照树修正格点偏差, 默认开启.
// 开启时常数波动率输入被精确还原.
func WithBenchmarkCorrection(enabled bool) Option {
	return func(o *options) { o.benchmark = enabled }
}

// WithDefaultReferenceVol 参考波动率完全不可得时使用的间距波动率.
func WithDefaultReferenceVol(vol float64) Option {
	return func(o *options) { o.defaultVol = vol }
}

// TrinomialTreeCalculator 隐含三叉树局部波动率计算器. 配置不可变, 可被多个协程并发使用.
type TrinomialTreeCalculator struct {
	grid         TimeGrid
	interpolator *interpolation.GridInterpolator2D
	opts         options
}

// NewTrinomialTreeCalculator 创建计算器. nSteps 为时间步数, maxTime 为树的最远期限,
// interpolator 用于把节点样本拟合为输出曲面.
func NewTrinomialTreeCalculator(nSteps int, maxTime float64, interpolator *interpolation.GridInterpolator2D, opts ...Option) (*TrinomialTreeCalculator, error) {
	grid, err := NewTimeGrid(nSteps, maxTime)
	if err != nil {
		return nil, err
	}
	if interpolator == nil {
		return nil, xerrors.ErrInvalidConfig.Derive().WithDetail("surface interpolator is nil")
	}
	o := options{parallelism: 1, benchmark: true, defaultVol: defaultReferenceVol}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	if !(o.defaultVol > 0) {
		return nil, xerrors.ErrInvalidConfig.Derive().
			WithDetail("default reference volatility must be positive").
			WithContext("value", o.defaultVol)
	}
	return &TrinomialTreeCalculator{grid: grid, interpolator: interpolator, opts: o}, nil
}

// Grid 返回时间网格.
func (c *TrinomialTreeCalculator) Grid() TimeGrid { return c.grid }

// Result 一次校准的完整产出.
type Result struct {
	RunID       string
	Source      SurfaceKind
	Tree        *Tree
	Samples     []Sample
	Diagnostics []Diagnostic
	Surface     *surface.InterpolatedNodalSurface
	State       RunState
}

// LocalVolatilityFromImpliedVolatility 由隐含波动率曲面 (期限, 行权价) 校准局部波动率曲面 (期限, 标的价格).
func (c *TrinomialTreeCalculator) LocalVolatilityFromImpliedVolatility(ctx context.Context, vol surface.Surface, spot float64, rate, dividend RateFunction) (*surface.InterpolatedNodalSurface, error) {
	res, err := c.Calibrate(ctx, ImpliedVolatilitySurface(vol), spot, rate, dividend)
	if err != nil {
		return nil, err
	}
	return res.Surface, nil
}

// LocalVolatilityFromPrice 由看涨期权价格曲面校准局部波动率曲面.
func (c *TrinomialTreeCalculator) LocalVolatilityFromPrice(ctx context.Context, price surface.Surface, spot float64, rate, dividend RateFunction) (*surface.InterpolatedNodalSurface, error) {
	res, err := c.Calibrate(ctx, PriceSurface(price), spot, rate, dividend)
	if err != nil {
		return nil, err
	}
	return res.Surface, nil
}

// Calibrate 构建隐含三叉树, 提取局部方差样本并拟合输出曲面.
// 失败时返回的 Result 仍携带已完成的部分与失败状态.
func (c *TrinomialTreeCalculator) Calibrate(ctx context.Context, ms MarketSurface, spot float64, rate, dividend RateFunction) (*Result, error) {
	runID := uuid.NewString()
	source := ms.Kind.String()
	logger := c.opts.logger.With("run_id", runID, "source", source)

	ctx, span := tracing.StartSpan(ctx, "localvol.Calibrate")
	defer span.End()
	tracing.AddTag(ctx, "run_id", runID)
	tracing.AddTag(ctx, "source", source)
	tracing.AddTag(ctx, "n_steps", c.grid.Steps())

	start := time.Now()
	logger.InfoContext(ctx, "local volatility calibration started",
		"n_steps", c.grid.Steps(), "max_time", c.grid.MaxTime(), "spot", spot, "parallelism", c.opts.parallelism)
	runLogger := &logging.Logger{Logger: logger, Service: c.opts.logger.Service, Module: c.opts.logger.Module}

	r := &run{
		calc:   c,
		state:  newRunState(c.grid.Steps(), runLogger),
		mkt:    market{spot: spot, rate: rate, dividend: dividend},
		diags:  &collector{},
		result: &Result{RunID: runID, Source: ms.Kind},
	}
	done := runLogger.LogDuration(ctx, "local volatility tree build", "n_steps", c.grid.Steps())
	err := r.execute(ctx, ms)
	done()

	res := r.result
	res.Diagnostics = r.diags.sorted()
	res.State = r.state.current()
	c.observe(ctx, source, res, err, time.Since(start))

	if err != nil {
		tracing.SetError(ctx, err)
		logger.ErrorContext(ctx, "local volatility calibration failed",
			"state", res.State.String(), "error", err, "duration", time.Since(start))
		return res, err
	}

	for kind, n := range countByKind(res.Diagnostics) {
		logger.WarnContext(ctx, "arbitrage diagnostics raised", "kind", kind, "count", n)
	}
	for _, d := range res.Diagnostics {
		logger.DebugContext(ctx, "arbitrage diagnostic", "error", d.Err())
	}
	logger.InfoContext(ctx, "local volatility calibration finished",
		"samples", len(res.Samples), "diagnostics", len(res.Diagnostics), "duration", time.Since(start))
	return res, nil
}

func (c *TrinomialTreeCalculator) observe(ctx context.Context, source string, res *Result, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	tracing.AddTag(ctx, "status", status)
	tracing.AddTag(ctx, "diagnostics", len(res.Diagnostics))

	m := c.opts.metrics
	if m == nil {
		return
	}
	m.CalibrationRuns.WithLabelValues(source, status).Inc()
	m.CalibrationDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	for _, d := range res.Diagnostics {
		m.ArbitrageViolations.WithLabelValues(string(d.Kind)).Inc()
	}
	if res.Tree != nil {
		m.TreeLevels.WithLabelValues(source).Set(float64(len(res.Tree.Levels) - 1))
	}
}

// run 单次校准的可变状态, 不跨运行共享.
type run struct {
	calc   *TrinomialTreeCalculator
	state  *runState
	mkt    market
	diags  *collector
	result *Result
}

func (r *run) execute(ctx context.Context, ms MarketSurface) (err error) {
	defer func() {
		if err != nil {
			r.state.fail(ctx, err)
		}
	}()

	c := r.calc
	if err := r.mkt.validate(c.grid); err != nil {
		return err
	}
	report := reporter(r.diags.add)
	oracle, err := newOracle(ms, r.mkt, c.opts, report)
	if err != nil {
		return err
	}
	lat := newLattice(c.grid, r.mkt, oracle, c.opts.defaultVol, report)

	pool := worker.NewPool(
		worker.WithName("localvol-level"),
		worker.WithSize(c.opts.parallelism),
		worker.WithLogger(c.opts.logger.Logger),
		worker.WithMetrics(c.opts.metrics),
	)
	cal := &calibrator{
		grid:    c.grid,
		mkt:     r.mkt,
		oracle:  oracle,
		lattice: lat,
		pool:    pool,
		report:  report,
	}

	tree := &Tree{Grid: c.grid, Levels: make([][]Node, 1, c.grid.Steps()+1)}
	tree.Levels[0] = []Node{{Level: 0, Index: 0, Spot: r.mkt.spot, StatePrice: 1}}
	r.result.Tree = tree
	if c.opts.benchmark {
		vol, err := lat.benchmarkVol()
		if err != nil {
			return err
		}
		cal.benchmark = NewImpliedVolOracle(surface.NewConstantSurface("BenchmarkVolatility", vol), r.mkt.spot, r.mkt.rate, r.mkt.dividend)
		tree.BenchmarkVol = vol
		tree.Benchmark = make([][]Node, 1, c.grid.Steps()+1)
		tree.Benchmark[0] = []Node{{Level: 0, Index: 0, Spot: r.mkt.spot, StatePrice: 1}}
	}

	for level := 0; level < c.grid.Steps(); level++ {
		if err := r.state.startLevel(ctx, level); err != nil {
			return xerrors.WrapInternal(err, "run state transition failed")
		}
		if err := r.calibrateLevel(ctx, cal, tree, level); err != nil {
			return err
		}
	}

	samples := make([]Sample, 0, sampleCount(c.grid.Steps(), c.opts.includeBoundary))
	for level := 0; level < c.grid.Steps(); level++ {
		samples = append(samples, extractLevel(tree, level, c.opts.includeBoundary)...)
	}
	r.result.Samples = samples
	if err := r.state.extracted(ctx); err != nil {
		return xerrors.WrapInternal(err, "run state transition failed")
	}

	surf, err := assemble(samples, c.interpolator)
	if err != nil {
		return err
	}
	r.result.Surface = surf
	if err := r.state.assembled(ctx); err != nil {
		return xerrors.WrapInternal(err, "run state transition failed")
	}
	return nil
}

func (r *run) calibrateLevel(ctx context.Context, cal *calibrator, tree *Tree, level int) error {
	ctx, span := tracing.StartSpan(ctx, "localvol.CalibrateLevel")
	defer span.End()
	tracing.AddTag(ctx, "level", level)

	var bench []Node
	if tree.Benchmark != nil {
		bench = tree.Benchmark[level]
	}
	res, err := cal.calibrateLevel(ctx, level, tree.Levels[level], bench)
	if err != nil {
		tracing.SetError(ctx, err)
		return err
	}
	tree.Levels = append(tree.Levels, res.next)
	if tree.Benchmark != nil {
		tree.Benchmark = append(tree.Benchmark, res.benchNext)
	}
	r.calc.opts.logger.DebugContext(ctx, "tree level calibrated",
		"run_id", r.result.RunID, "level", level, "nodes", len(res.next), "state_price_sum", tree.StatePriceSum(level+1))
	return nil
}
