package localvol

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/wyfcoding/localvol/algorithm/finance"
	"github.com/wyfcoding/localvol/metrics"
	"github.com/wyfcoding/localvol/surface"
	"github.com/wyfcoding/localvol/xerrors"
	"gonum.org/v1/gonum/floats"
)

func TestFlatImpliedVolatility(t *testing.T) {
	calc, err := NewTrinomialTreeCalculator(10, 1.0, timeSquareFlatGrid(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewTrinomialTreeCalculator failed: %v", err)
	}
	vol := surface.NewConstantSurface("flat", 0.15)
	lv, err := calc.LocalVolatilityFromImpliedVolatility(context.Background(), vol, 100, zeroRate(), zeroRate())
	if err != nil {
		t.Fatalf("calibration failed: %v", err)
	}

	if got, want := lv.ParameterCount(), sampleCount(10, false); got != want {
		t.Errorf("expected %d samples, got %d", want, got)
	}
	for i, z := range lv.ZValues() {
		if math.Abs(z-0.15) > 5e-5 {
			t.Errorf("sample %d: local vol %v, expected 0.15", i, z)
		}
	}
	if z := lv.ZValue(0.5, 100); math.Abs(z-0.15) > 5e-5 {
		t.Errorf("interpolated local vol %v, expected 0.15", z)
	}
}

// 不做对照树修正时, 闭式价格在有限步长下只能近似还原常数波动率.
func TestFlatImpliedVolatilityWithoutBenchmark(t *testing.T) {
	calc, err := NewTrinomialTreeCalculator(10, 1.0, timeSquareFlatGrid(), WithLogger(quietLogger()), WithBenchmarkCorrection(false))
	if err != nil {
		t.Fatalf("NewTrinomialTreeCalculator failed: %v", err)
	}
	res, err := calc.Calibrate(context.Background(), ImpliedVolatilitySurface(surface.NewConstantSurface("flat", 0.15)), 100, zeroRate(), zeroRate())
	if err != nil {
		t.Fatalf("calibration failed: %v", err)
	}
	if res.Tree.Benchmark != nil {
		t.Error("benchmark tree built although the correction is disabled")
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("flat input should not need repairs, got %d diagnostics", len(res.Diagnostics))
	}
	worst := 0.0
	for _, s := range res.Samples {
		worst = math.Max(worst, math.Abs(s.Volatility()-0.15))
	}
	if worst > 1.5e-2 || worst < 5e-5 {
		t.Errorf("uncorrected worst deviation %v outside the expected discretisation range", worst)
	}
}

func TestFlatPrice(t *testing.T) {
	const spot, vol = 100.0, 0.15
	prices := &surface.DeformedSurface{
		Name: "flat-price",
		Base: surface.NewConstantSurface("flat", vol),
		Deformation: func(tt, k float64) surface.ValueDerivatives {
			return surface.ValueDerivatives{Value: finance.BlackPrice(spot, k, tt, vol, true)}
		},
	}
	calc, err := NewTrinomialTreeCalculator(9, 1.0, timeSquareFlatGrid(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewTrinomialTreeCalculator failed: %v", err)
	}
	lv, err := calc.LocalVolatilityFromPrice(context.Background(), prices, spot, zeroRate(), zeroRate())
	if err != nil {
		t.Fatalf("calibration failed: %v", err)
	}
	for i, z := range lv.ZValues() {
		if math.Abs(z-vol) > 2e-2 {
			t.Errorf("sample %d: local vol %v, expected %v", i, z, vol)
		}
	}
}

func TestImpliedVolatilityAgainstDupire(t *testing.T) {
	vol := mustSurface(t, marketVols, smoothGrid())
	rate, div := ConstantRate(0.03), ConstantRate(0.01)

	calc, err := NewTrinomialTreeCalculator(29, 1.45, linearFlatGrid(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewTrinomialTreeCalculator failed: %v", err)
	}
	lv, err := calc.LocalVolatilityFromImpliedVolatility(context.Background(), vol, marketSpot, rate, div)
	if err != nil {
		t.Fatalf("calibration failed: %v", err)
	}
	dupire := NewDupireCalculator().LocalVolatilityFromImpliedVolatility(vol, marketSpot, rate, div)

	points := []struct{ t, k float64 }{
		{0.8, 0.7 * marketSpot}, {0.8, marketSpot}, {0.8, 1.1 * marketSpot}, {0.8, 1.65 * marketSpot},
		{1.1, 0.5 * marketSpot}, {1.1, 0.9 * marketSpot}, {1.1, marketSpot}, {1.1, 1.3 * marketSpot}, {1.1, 1.9 * marketSpot},
	}
	for _, p := range points {
		got, want := lv.ZValue(p.t, p.k), dupire.ZValue(p.t, p.k)
		if math.Abs(got-want) > 1e-2 {
			t.Errorf("t=%v k=%v: tree %v, dupire %v", p.t, p.k, got, want)
		}
	}
}

func TestPriceAgainstDupire(t *testing.T) {
	prices := mustSurface(t, marketPrices, nonnegativeGrid())
	rate, div := ConstantRate(0.003), ConstantRate(0.01)

	calc, err := NewTrinomialTreeCalculator(29, 1.45, linearFlatGrid(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewTrinomialTreeCalculator failed: %v", err)
	}
	// 外推区域的看跌价格由平价关系得到, 可能为负; 严格模式下也只记录诊断并修正对应节点.
	res, err := calc.Calibrate(context.Background(), PriceSurface(prices), marketSpot, rate, div)
	if err != nil {
		t.Fatalf("calibration failed: %v", err)
	}
	kinds := countByKind(res.Diagnostics)
	if kinds[ViolationPriceBounds] == 0 || kinds[ViolationProbabilityClamp] == 0 {
		t.Errorf("expected price bound and clamp diagnostics, got %v", kinds)
	}
	lv := res.Surface
	dupire := NewDupireCalculator().LocalVolatilityFromPrice(prices, marketSpot, rate, div)

	points := []struct{ t, k float64 }{
		{0.8, marketSpot}, {0.8, 1.1 * marketSpot},
		{1.1, 0.95 * marketSpot}, {1.1, marketSpot}, {1.1, 1.1 * marketSpot},
	}
	for _, p := range points {
		got, want := lv.ZValue(p.t, p.k), dupire.ZValue(p.t, p.k)
		if math.Abs(got-want) > 5e-2 {
			t.Errorf("t=%v k=%v: tree %v, dupire %v", p.t, p.k, got, want)
		}
	}
}

func TestTreeInvariants(t *testing.T) {
	vol := mustSurface(t, marketVols, smoothGrid())
	rate, div := ConstantRate(0.03), ConstantRate(0.01)
	for _, boundary := range []bool{false, true} {
		calc, err := NewTrinomialTreeCalculator(20, 1.0, linearFlatGrid(), WithLogger(quietLogger()), WithBoundaryNodes(boundary))
		if err != nil {
			t.Fatalf("NewTrinomialTreeCalculator failed: %v", err)
		}
		res, err := calc.Calibrate(context.Background(), ImpliedVolatilitySurface(vol), marketSpot, rate, div)
		if err != nil {
			t.Fatalf("calibration failed: %v", err)
		}
		if res.State.Phase != PhaseAssembled {
			t.Errorf("expected assembled state, got %s", res.State)
		}
		if res.RunID == "" {
			t.Error("expected a run id")
		}
		tree := res.Tree
		repaired := 0
		for n, level := range tree.Levels[:len(tree.Levels)-1] {
			for j, node := range level {
				if node.Repaired && (boundary || n == 0 || (j > 0 && j < len(level)-1)) {
					repaired++
				}
			}
		}
		if got, want := len(res.Samples), sampleCount(20, boundary)-repaired; got != want {
			t.Errorf("boundary=%v: expected %d samples, got %d", boundary, want, got)
		}
		for _, s := range res.Samples {
			if tree.Levels[s.Level][s.Node].Repaired {
				t.Errorf("sample taken from repaired node %d at level %d", s.Node, s.Level)
			}
		}
		if len(tree.Levels) != 21 {
			t.Fatalf("expected 21 levels, got %d", len(tree.Levels))
		}
		for n, level := range tree.Levels {
			if len(level) != 2*n+1 {
				t.Errorf("level %d has %d nodes", n, len(level))
			}
			df := math.Exp(-0.03 * tree.Grid.Time(n))
			if sum := tree.StatePriceSum(n); math.Abs(sum-df) > 1e-10 {
				t.Errorf("level %d: state prices sum to %v, expected %v", n, sum, df)
			}
			for j := 1; j < len(level); j++ {
				if !(level[j].Spot > level[j-1].Spot) {
					t.Errorf("level %d: spots not increasing at node %d", n, j)
				}
			}
			if n == len(tree.Levels)-1 {
				continue
			}
			// 下一层的内部节点就是本层各节点的远期, 中心节点即加权远期.
			next := tree.Levels[n+1]
			if c, w := next[n+1].Spot, tree.weightedForward(n); math.Abs(c/w-1) > 1e-10 {
				t.Errorf("level %d: centre %v, weighted forward %v", n+1, c, w)
			}
			for j, node := range level {
				if next[j+1].Spot != node.Forward {
					t.Errorf("level %d node %d: middle child %v differs from forward %v", n, j, next[j+1].Spot, node.Forward)
				}
			}
			for j, node := range level {
				for _, p := range []float64{node.Up, node.Middle, node.Down} {
					if p < 0 || p > 1 {
						t.Errorf("level %d node %d: probability %v outside [0,1]", n, j, p)
					}
				}
				if s := node.Up + node.Middle + node.Down; math.Abs(s-1) > 1e-10 {
					t.Errorf("level %d node %d: probabilities sum to %v", n, j, s)
				}
			}
		}
		for _, s := range res.Samples {
			if !(s.Variance >= 0) {
				t.Errorf("negative or NaN variance %v at level %d node %d", s.Variance, s.Level, s.Node)
			}
		}
	}
}

func TestParallelCalibrationIsDeterministic(t *testing.T) {
	vol := mustSurface(t, marketVols, smoothGrid())
	rate, div := ConstantRate(0.03), ConstantRate(0.01)

	run := func(parallelism int) *Result {
		calc, err := NewTrinomialTreeCalculator(25, 1.2, linearFlatGrid(),
			WithLogger(quietLogger()), WithParallelism(parallelism), WithMetrics(metrics.NewMetrics("localvol-test")))
		if err != nil {
			t.Fatalf("NewTrinomialTreeCalculator failed: %v", err)
		}
		res, err := calc.Calibrate(context.Background(), ImpliedVolatilitySurface(vol), marketSpot, rate, div)
		if err != nil {
			t.Fatalf("calibration failed: %v", err)
		}
		return res
	}

	seq, par := run(1), run(8)
	if !floats.Equal(seq.Surface.ZValues(), par.Surface.ZValues()) {
		t.Error("parallel and sequential local volatilities differ")
	}
	if !floats.Equal(seq.Surface.YValues(), par.Surface.YValues()) {
		t.Error("parallel and sequential node spots differ")
	}
	if len(seq.Diagnostics) != len(par.Diagnostics) {
		t.Fatalf("diagnostic counts differ: %d vs %d", len(seq.Diagnostics), len(par.Diagnostics))
	}
	for i := range seq.Diagnostics {
		// NaN 原始概率按文本比较
		if fmt.Sprintf("%+v", seq.Diagnostics[i]) != fmt.Sprintf("%+v", par.Diagnostics[i]) {
			t.Errorf("diagnostic %d differs: %+v vs %+v", i, seq.Diagnostics[i], par.Diagnostics[i])
		}
	}
}

func TestCalibrationRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	calc, err := NewTrinomialTreeCalculator(5, 1.0, linearFlatGrid(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewTrinomialTreeCalculator failed: %v", err)
	}

	t.Run("nan implied vol", func(t *testing.T) {
		nan := surface.Func(func(float64, float64) float64 { return math.NaN() })
		res, err := calc.Calibrate(ctx, ImpliedVolatilitySurface(nan), 100, zeroRate(), zeroRate())
		if !errors.Is(err, xerrors.ErrInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
		if res.State.Phase != PhaseFailed {
			t.Errorf("expected failed state, got %s", res.State)
		}
		xe, ok := xerrors.FromError(err)
		if !ok {
			t.Fatalf("expected *xerrors.Error, got %T", err)
		}
		if _, ok := xe.Context["strike"]; !ok {
			t.Errorf("expected strike in error context, got %v", xe.Context)
		}
	})

	t.Run("negative price", func(t *testing.T) {
		negative := surface.Func(func(tt, k float64) float64 {
			if k > 110 {
				return -1
			}
			return finance.BlackPrice(100, k, tt, 0.2, true)
		})
		res, err := calc.Calibrate(ctx, PriceSurface(negative), 100, zeroRate(), zeroRate())
		if !errors.Is(err, xerrors.ErrNegativePrice) || !errors.Is(err, xerrors.ErrInvalidInput) {
			t.Fatalf("expected negative price error, got %v", err)
		}
		if res.State.Phase != PhaseFailed {
			t.Errorf("expected failed state, got %s", res.State)
		}
	})

	t.Run("non-positive spot", func(t *testing.T) {
		_, err := calc.LocalVolatilityFromImpliedVolatility(ctx, surface.NewConstantSurface("flat", 0.2), 0, zeroRate(), zeroRate())
		if !errors.Is(err, xerrors.ErrInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})

	t.Run("nan rate", func(t *testing.T) {
		_, err := calc.LocalVolatilityFromImpliedVolatility(ctx, surface.NewConstantSurface("flat", 0.2), 100, ConstantRate(math.NaN()), zeroRate())
		if !errors.Is(err, xerrors.ErrInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := calc.LocalVolatilityFromImpliedVolatility(cctx, surface.NewConstantSurface("flat", 0.2), 100, zeroRate(), zeroRate())
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestNewTrinomialTreeCalculatorValidation(t *testing.T) {
	if _, err := NewTrinomialTreeCalculator(0, 1, linearFlatGrid()); !errors.Is(err, xerrors.ErrInvalidGrid) {
		t.Errorf("expected invalid grid for zero steps, got %v", err)
	}
	if _, err := NewTrinomialTreeCalculator(10, -1, linearFlatGrid()); !errors.Is(err, xerrors.ErrInvalidGrid) {
		t.Errorf("expected invalid grid for negative max time, got %v", err)
	}
	if _, err := NewTrinomialTreeCalculator(10, 1, nil); !errors.Is(err, xerrors.ErrInvalidConfig) {
		t.Errorf("expected invalid config for nil interpolator, got %v", err)
	}
}

func TestPriceClampingRecordsDiagnostics(t *testing.T) {
	negative := surface.Func(func(tt, k float64) float64 {
		if k > 110 {
			return -1e-4
		}
		return finance.BlackPrice(100, k, tt, 0.2, true)
	})
	calc, err := NewTrinomialTreeCalculator(8, 1.0, linearFlatGrid(), WithLogger(quietLogger()), WithPriceClamping(true))
	if err != nil {
		t.Fatalf("NewTrinomialTreeCalculator failed: %v", err)
	}
	res, err := calc.Calibrate(context.Background(), PriceSurface(negative), 100, zeroRate(), zeroRate())
	if err != nil {
		t.Fatalf("calibration failed: %v", err)
	}
	if countByKind(res.Diagnostics)[ViolationPriceBounds] == 0 {
		t.Error("expected price bound diagnostics")
	}
	if res.State.Phase != PhaseAssembled {
		t.Errorf("expected assembled state, got %s", res.State)
	}
}
