package interpolation

import (
	"fmt"
	"strings"

	"github.com/wyfcoding/localvol/xerrors"
)

// Extrapolator 定义节点范围外的求值策略.
type Extrapolator int

const (
	// Flat 取端点值.
	Flat Extrapolator = iota
	// LinearExtrapolation 以端点值和端点导数线性外推.
	LinearExtrapolation
	// InterpolatorExtrapolation 延拓端点分段多项式.
	InterpolatorExtrapolation
)

func (e Extrapolator) String() string {
	switch e {
	case LinearExtrapolation:
		return "Linear"
	case InterpolatorExtrapolation:
		return "Interpolator"
	default:
		return "Flat"
	}
}

// ParseExtrapolator 由名称解析外推策略.
func ParseExtrapolator(name string) (Extrapolator, error) {
	switch strings.ToLower(name) {
	case "", "flat":
		return Flat, nil
	case "linear":
		return LinearExtrapolation, nil
	case "interpolator":
		return InterpolatorExtrapolation, nil
	}
	return Flat, xerrors.ErrInvalidConfig.Derive().WithDetail("unknown extrapolator %q", name)
}

// CombinedInterpolatorExtrapolator 组合插值器与左右外推策略.
type CombinedInterpolatorExtrapolator struct {
	Interpolator Interpolator1D
	Left         Extrapolator
	Right        Extrapolator
}

// Combine 创建组合插值器.
func Combine(interpolator Interpolator1D, left, right Extrapolator) *CombinedInterpolatorExtrapolator {
	return &CombinedInterpolatorExtrapolator{Interpolator: interpolator, Left: left, Right: right}
}

func (c *CombinedInterpolatorExtrapolator) Name() string {
	return fmt.Sprintf("%s(%s,%s)", c.Interpolator.Name(), c.Left, c.Right)
}

// Bind 拟合底层曲线并挂上外推策略.
func (c *CombinedInterpolatorExtrapolator) Bind(xs, ys []float64) (Curve, error) {
	inner, err := c.Interpolator.Bind(xs, ys)
	if err != nil {
		return nil, err
	}
	return &combinedCurve{inner: inner, left: c.Left, right: c.Right}, nil
}

type combinedCurve struct {
	inner Curve
	left  Extrapolator
	right Extrapolator
}

func (c *combinedCurve) Value(x float64) float64 {
	lo, hi := c.inner.Range()
	switch {
	case x < lo:
		return c.extrapolate(c.left, lo, x)
	case x > hi:
		return c.extrapolate(c.right, hi, x)
	}
	return c.inner.Value(x)
}

func (c *combinedCurve) extrapolate(e Extrapolator, end, x float64) float64 {
	switch e {
	case LinearExtrapolation:
		return c.inner.Value(end) + c.inner.FirstDerivative(end)*(x-end)
	case InterpolatorExtrapolation:
		return c.inner.Extend(x)
	default:
		return c.inner.Value(end)
	}
}

func (c *combinedCurve) FirstDerivative(x float64) float64 {
	lo, hi := c.inner.Range()
	var e Extrapolator
	var end float64
	switch {
	case x < lo:
		e, end = c.left, lo
	case x > hi:
		e, end = c.right, hi
	default:
		return c.inner.FirstDerivative(x)
	}
	switch e {
	case LinearExtrapolation:
		return c.inner.FirstDerivative(end)
	case InterpolatorExtrapolation:
		h := 1e-6 * (1 + abs(x))
		return (c.inner.Extend(x+h) - c.inner.Extend(x-h)) / (2 * h)
	default:
		return 0
	}
}

func (c *combinedCurve) Extend(x float64) float64 { return c.inner.Extend(x) }

func (c *combinedCurve) Range() (float64, float64) { return c.inner.Range() }

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
