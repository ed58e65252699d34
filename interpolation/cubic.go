package interpolation

import (
	"gonum.org/v1/gonum/interp"
)

// cubicKind 三次样条类型.
type cubicKind int

const (
	naturalCubic cubicKind = iota
	fritschButland
	akima
)

// CubicInterpolator 分段三次插值, 底层为 gonum 的样条实现.
type CubicInterpolator struct {
	kind cubicKind
}

var (
	// NaturalSpline 自然三次样条 (端点二阶导为零).
	NaturalSpline Interpolator1D = CubicInterpolator{kind: naturalCubic}
	// NonnegativityPreservingCubic Fritsch-Butland 保形三次插值, 非负数据插值结果仍非负.
	NonnegativityPreservingCubic Interpolator1D = CubicInterpolator{kind: fritschButland}
	// Akima Akima 样条.
	Akima Interpolator1D = CubicInterpolator{kind: akima}
)

func (ci CubicInterpolator) Name() string {
	switch ci.kind {
	case fritschButland:
		return "NonnegativityPreservingCubic"
	case akima:
		return "Akima"
	default:
		return "NaturalSpline"
	}
}

// Bind 拟合三次样条. 少于三个节点时退化为线性.
func (ci CubicInterpolator) Bind(xs, ys []float64) (Curve, error) {
	sx, sy, err := prepare(xs, ys)
	if err != nil {
		return nil, err
	}
	switch {
	case len(sx) == 1:
		return constantCurve{x: sx[0], y: sy[0]}, nil
	case len(sx) == 2:
		return newLinearCurve(sx, sy), nil
	}

	var p derivativeFitter
	switch ci.kind {
	case fritschButland:
		p = &interp.FritschButland{}
	case akima:
		p = &interp.AkimaSpline{}
	default:
		p = &interp.NaturalCubic{}
	}
	if err := p.Fit(sx, sy); err != nil {
		return nil, err
	}
	return &cubicCurve{p: p, xs: sx, ys: sy}, nil
}

type derivativeFitter interface {
	interp.Fitter
	interp.DerivativePredictor
}

type cubicCurve struct {
	p  derivativeFitter
	xs []float64
	ys []float64
}

func (c *cubicCurve) Value(x float64) float64 {
	return c.p.Predict(x)
}

func (c *cubicCurve) FirstDerivative(x float64) float64 {
	return c.p.PredictDerivative(x)
}

// Extend 用端点所在分段的 Hermite 形式延拓, 与该段三次多项式一致.
func (c *cubicCurve) Extend(x float64) float64 {
	i := segment(c.xs, x)
	a, b := c.xs[i], c.xs[i+1]
	return hermite(x, a, b, c.ys[i], c.ys[i+1], c.p.PredictDerivative(a), c.p.PredictDerivative(b))
}

func (c *cubicCurve) Range() (float64, float64) {
	return c.xs[0], c.xs[len(c.xs)-1]
}
