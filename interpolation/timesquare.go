package interpolation

import (
	"math"

	algomath "github.com/wyfcoding/localvol/algorithm/math"
	"github.com/wyfcoding/localvol/xerrors"
	"gonum.org/v1/gonum/interp"
)

// timeSquareEps 小于该值的 x 视为零时刻.
const timeSquareEps = 1e-12

// TimeSquareInterpolator 对 x*y^2 (总方差) 线性插值, 再还原为 y.
// 适用于波动率的期限维度; 节点的 x 须非负, y 须非负.
type TimeSquareInterpolator struct{}

// TimeSquare 总方差线性插值器.
var TimeSquare Interpolator1D = TimeSquareInterpolator{}

func (TimeSquareInterpolator) Name() string { return "TimeSquare" }

// Bind 拟合总方差曲线.
func (TimeSquareInterpolator) Bind(xs, ys []float64) (Curve, error) {
	sx, sy, err := prepare(xs, ys)
	if err != nil {
		return nil, err
	}
	if sx[0] < 0 {
		return nil, errNegativeNode(sx[0])
	}
	for _, y := range sy {
		if y < 0 {
			return nil, errNegativeNode(y)
		}
	}
	if len(sx) == 1 {
		return constantCurve{x: sx[0], y: sy[0]}, nil
	}

	tv := make([]float64, len(sx))
	for i := range sx {
		tv[i] = sx[i] * sy[i] * sy[i]
	}
	c := &timeSquareCurve{xs: sx, ys: sy, tv: tv}
	_ = c.pl.Fit(sx, tv)
	return c, nil
}

type timeSquareCurve struct {
	pl interp.PiecewiseLinear
	xs []float64
	ys []float64
	tv []float64
}

func (c *timeSquareCurve) fromTotalVariance(x, v float64) float64 {
	if x < timeSquareEps {
		return c.ys[0]
	}
	return math.Sqrt(math.Max(v, 0) / x)
}

func (c *timeSquareCurve) Value(x float64) float64 {
	n := len(c.xs)
	switch {
	case x <= c.xs[0]:
		return c.ys[0]
	case x >= c.xs[n-1]:
		return c.ys[n-1]
	}
	return c.fromTotalVariance(x, c.pl.Predict(x))
}

func (c *timeSquareCurve) FirstDerivative(x float64) float64 {
	return algomath.FirstDerivative(c.Value, x, algomath.Bump(x), 0)
}

// Extend 按端点分段的总方差斜率线性延拓.
func (c *timeSquareCurve) Extend(x float64) float64 {
	i := segment(c.xs, x)
	slope := (c.tv[i+1] - c.tv[i]) / (c.xs[i+1] - c.xs[i])
	return c.fromTotalVariance(x, c.tv[i]+slope*(x-c.xs[i]))
}

func (c *timeSquareCurve) Range() (float64, float64) {
	return c.xs[0], c.xs[len(c.xs)-1]
}

func errNegativeNode(v float64) error {
	return xerrors.ErrInvalidInput.Derive().WithDetail("time-square nodes must be non-negative, got %g", v)
}
