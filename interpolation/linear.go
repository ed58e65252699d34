package interpolation

import (
	"gonum.org/v1/gonum/interp"
)

// LinearInterpolator 分段线性插值.
type LinearInterpolator struct{}

// Linear 分段线性插值器.
var Linear Interpolator1D = LinearInterpolator{}

func (LinearInterpolator) Name() string { return "Linear" }

// Bind 拟合分段线性曲线.
func (LinearInterpolator) Bind(xs, ys []float64) (Curve, error) {
	sx, sy, err := prepare(xs, ys)
	if err != nil {
		return nil, err
	}
	if len(sx) == 1 {
		return constantCurve{x: sx[0], y: sy[0]}, nil
	}
	return newLinearCurve(sx, sy), nil
}

type linearCurve struct {
	pl interp.PiecewiseLinear
	xs []float64
	ys []float64
}

func newLinearCurve(xs, ys []float64) *linearCurve {
	c := &linearCurve{xs: xs, ys: ys}
	// 节点已校验, Fit 对 PiecewiseLinear 恒返回 nil.
	_ = c.pl.Fit(xs, ys)
	return c
}

func (c *linearCurve) Value(x float64) float64 {
	return c.pl.Predict(x)
}

func (c *linearCurve) slope(i int) float64 {
	return (c.ys[i+1] - c.ys[i]) / (c.xs[i+1] - c.xs[i])
}

func (c *linearCurve) FirstDerivative(x float64) float64 {
	n := len(c.xs)
	if x < c.xs[0] || x > c.xs[n-1] {
		return 0
	}
	return c.slope(segment(c.xs, x))
}

func (c *linearCurve) Extend(x float64) float64 {
	i := segment(c.xs, x)
	return c.ys[i] + c.slope(i)*(x-c.xs[i])
}

func (c *linearCurve) Range() (float64, float64) {
	return c.xs[0], c.xs[len(c.xs)-1]
}
