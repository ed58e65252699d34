// Package interpolation 提供一维插值/外推与二维网格插值能力.
// 一维插值基于 gonum/interp, 二维插值按 x 分组后逐维插值.
package interpolation

import (
	"math"
	"sort"
	"strings"

	"github.com/wyfcoding/localvol/xerrors"
	"gonum.org/v1/gonum/floats"
)

// Curve 是拟合后的一维曲线.
type Curve interface {
	// Value 返回 x 处的值. 节点范围外的行为由具体实现决定 (默认水平外推).
	Value(x float64) float64
	// FirstDerivative 返回 x 处的一阶导数.
	FirstDerivative(x float64) float64
	// Extend 返回端点所在分段多项式在 x 处的延拓值.
	Extend(x float64) float64
	// Range 返回节点的 x 范围.
	Range() (lo, hi float64)
}

// Interpolator1D 将节点拟合为曲线.
type Interpolator1D interface {
	Name() string
	Bind(xs, ys []float64) (Curve, error)
}

// prepare 校验并按 x 排序节点, 返回副本.
func prepare(xs, ys []float64) ([]float64, []float64, error) {
	if len(xs) == 0 {
		return nil, nil, xerrors.ErrEmptyData
	}
	if len(xs) != len(ys) {
		return nil, nil, xerrors.ErrDimMismatch.Derive().
			WithContext("xs", len(xs)).
			WithContext("ys", len(ys))
	}

	sx := make([]float64, len(xs))
	copy(sx, xs)
	inds := make([]int, len(xs))
	floats.Argsort(sx, inds)

	sy := make([]float64, len(ys))
	for i, idx := range inds {
		sy[i] = ys[idx]
	}

	for i := 1; i < len(sx); i++ {
		if !(sx[i] > sx[i-1]) {
			return nil, nil, xerrors.ErrNotIncreasing.Derive().WithContext("x", sx[i])
		}
	}
	for i := range sy {
		if math.IsNaN(sx[i]) || math.IsNaN(sy[i]) {
			return nil, nil, xerrors.ErrInvalidInput.Derive().WithDetail("NaN node at index %d", i)
		}
	}
	return sx, sy, nil
}

// segment 返回 x 所在区间左端点下标, 截断到 [0, n-2].
func segment(xs []float64, x float64) int {
	i := sort.SearchFloat64s(xs, x) - 1
	if i < 0 {
		return 0
	}
	if i > len(xs)-2 {
		return len(xs) - 2
	}
	return i
}

// hermite 在 [a, b] 上用端点值与导数构造三次多项式并在 x 处求值, x 可在区间外.
func hermite(x, a, b, ya, yb, ma, mb float64) float64 {
	h := b - a
	s := (x - a) / h
	s2 := s * s
	s3 := s2 * s
	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	h11 := s3 - s2
	return h00*ya + h10*h*ma + h01*yb + h11*h*mb
}

// constantCurve 单节点曲线.
type constantCurve struct {
	x, y float64
}

func (c constantCurve) Value(float64) float64           { return c.y }
func (c constantCurve) FirstDerivative(float64) float64 { return 0 }
func (c constantCurve) Extend(float64) float64          { return c.y }
func (c constantCurve) Range() (float64, float64)       { return c.x, c.x }

// ParseInterpolator 由名称解析一维插值器, 空串返回 Linear.
func ParseInterpolator(name string) (Interpolator1D, error) {
	switch strings.ToLower(name) {
	case "", "linear":
		return Linear, nil
	case "timesquare", "time_square":
		return TimeSquare, nil
	case "naturalspline", "natural_spline", "cubic":
		return NaturalSpline, nil
	case "nonnegativitypreservingcubic", "nonnegativity_preserving_cubic":
		return NonnegativityPreservingCubic, nil
	case "akima":
		return Akima, nil
	}
	return nil, xerrors.ErrInvalidConfig.Derive().WithDetail("unknown interpolator %q", name)
}
