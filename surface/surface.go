// Package surface 定义二维曲面 (期限 x 行权价) 及其常用实现.
package surface

import (
	"math"

	"github.com/wyfcoding/localvol/interpolation"
)

// Surface 二维曲面, x 通常为期限, y 为行权价或标的价格.
type Surface interface {
	ZValue(x, y float64) float64
}

// Func 将普通函数适配为 Surface.
type Func func(x, y float64) float64

// ZValue 实现 Surface.
func (f Func) ZValue(x, y float64) float64 { return f(x, y) }

// ConstantSurface 常数曲面.
type ConstantSurface struct {
	Name string
	Z    float64
}

// NewConstantSurface 创建常数曲面.
func NewConstantSurface(name string, z float64) ConstantSurface {
	return ConstantSurface{Name: name, Z: z}
}

// ZValue 实现 Surface.
func (s ConstantSurface) ZValue(float64, float64) float64 { return s.Z }

// ValueDerivatives 值及其对参数的导数.
type ValueDerivatives struct {
	Value       float64
	Derivatives []float64
}

// DeformedSurface 对底层曲面做逐点变换, 例如用定价函数将波动率曲面变形为价格曲面.
type DeformedSurface struct {
	Name        string
	Base        Surface
	Deformation func(x, y float64) ValueDerivatives
}

// ZValue 实现 Surface.
func (s *DeformedSurface) ZValue(x, y float64) float64 {
	return s.Deformation(x, y).Value
}

// ZValueAndDerivatives 返回值及导数.
func (s *DeformedSurface) ZValueAndDerivatives(x, y float64) ValueDerivatives {
	return s.Deformation(x, y)
}

// InterpolatedNodalSurface 由散点与二维插值器构成的曲面.
type InterpolatedNodalSurface struct {
	Name         string
	xs, ys, zs   []float64
	interpolator *interpolation.GridInterpolator2D
	bound        *interpolation.BoundGrid
}

// NewInterpolatedNodalSurface 拟合节点并创建曲面. 节点不要求有序.
func NewInterpolatedNodalSurface(name string, xs, ys, zs []float64, interpolator *interpolation.GridInterpolator2D) (*InterpolatedNodalSurface, error) {
	bound, err := interpolator.Bind(xs, ys, zs)
	if err != nil {
		return nil, err
	}
	return &InterpolatedNodalSurface{
		Name:         name,
		xs:           append([]float64(nil), xs...),
		ys:           append([]float64(nil), ys...),
		zs:           append([]float64(nil), zs...),
		interpolator: interpolator,
		bound:        bound,
	}, nil
}

// Evaluate 求值, 插值失败时原样返回插值器的错误.
func (s *InterpolatedNodalSurface) Evaluate(x, y float64) (float64, error) {
	return s.bound.Interpolate(x, y)
}

// ZValue 实现 Surface, 插值失败时返回 NaN.
func (s *InterpolatedNodalSurface) ZValue(x, y float64) float64 {
	z, err := s.bound.Interpolate(x, y)
	if err != nil {
		return math.NaN()
	}
	return z
}

// XValues 返回节点 x 坐标副本.
func (s *InterpolatedNodalSurface) XValues() []float64 { return append([]float64(nil), s.xs...) }

// YValues 返回节点 y 坐标副本.
func (s *InterpolatedNodalSurface) YValues() []float64 { return append([]float64(nil), s.ys...) }

// ZValues 返回节点值副本.
func (s *InterpolatedNodalSurface) ZValues() []float64 { return append([]float64(nil), s.zs...) }

// ParameterCount 节点个数.
func (s *InterpolatedNodalSurface) ParameterCount() int { return len(s.zs) }

// Interpolator 返回所用的二维插值器.
func (s *InterpolatedNodalSurface) Interpolator() *interpolation.GridInterpolator2D {
	return s.interpolator
}
