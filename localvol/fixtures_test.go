package localvol

import (
	"testing"

	"github.com/wyfcoding/localvol/interpolation"
	"github.com/wyfcoding/localvol/logging"
	"github.com/wyfcoding/localvol/surface"
)

// 三个行权价 × 四个期限的市场数据, 按行权价分组.
var (
	marketTimes = []float64{
		0.25, 0.50, 0.75, 1.00,
		0.25, 0.50, 0.75, 1.00,
		0.25, 0.50, 0.75, 1.00,
	}
	marketStrikes = []float64{
		0.8, 0.8, 0.8, 0.8,
		1.4, 1.4, 1.4, 1.4,
		2.0, 2.0, 2.0, 2.0,
	}
	marketVols = []float64{
		0.21, 0.17, 0.15, 0.14,
		0.17, 0.15, 0.14, 0.13,
		0.185, 0.16, 0.14, 0.13,
	}
	marketPrices = []float64{
		0.6024819282312833, 0.6049279456317715, 0.607338423139487, 0.6097138918063894,
		0.0507874597232295, 0.06581419934686354, 0.07752243330525914, 0.0856850744439275,
		2.598419834431295e-6, 5.691088908182669e-5, 1.4290312009415014e-4, 3.218460178780302e-4,
	}
)

const marketSpot = 1.40

func quietLogger() *logging.Logger {
	return logging.NewLogger("localvol-test", "localvol", "error")
}

func mustSurface(t *testing.T, zs []float64, interp *interpolation.GridInterpolator2D) *surface.InterpolatedNodalSurface {
	t.Helper()
	s, err := surface.NewInterpolatedNodalSurface("market", marketTimes, marketStrikes, zs, interp)
	if err != nil {
		t.Fatalf("failed to build market surface: %v", err)
	}
	return s
}

// smoothGrid 两个方向都用自然样条, 节点外延拓端点分段.
func smoothGrid() *interpolation.GridInterpolator2D {
	c := interpolation.Combine(interpolation.NaturalSpline, interpolation.InterpolatorExtrapolation, interpolation.InterpolatorExtrapolation)
	return interpolation.NewGridInterpolator2D(c, c)
}

// nonnegativeGrid 价格曲面用保形三次插值, 节点外延拓端点分段.
func nonnegativeGrid() *interpolation.GridInterpolator2D {
	c := interpolation.Combine(interpolation.NonnegativityPreservingCubic, interpolation.InterpolatorExtrapolation, interpolation.InterpolatorExtrapolation)
	return interpolation.NewGridInterpolator2D(c, c)
}

func linearFlatGrid() *interpolation.GridInterpolator2D {
	c := interpolation.Combine(interpolation.Linear, interpolation.Flat, interpolation.Flat)
	return interpolation.NewGridInterpolator2D(c, c)
}

func timeSquareFlatGrid() *interpolation.GridInterpolator2D {
	return interpolation.NewGridInterpolator2D(
		interpolation.Combine(interpolation.TimeSquare, interpolation.Flat, interpolation.Flat),
		interpolation.Combine(interpolation.Linear, interpolation.Flat, interpolation.Flat),
	)
}

func zeroRate() RateFunction { return ConstantRate(0) }
