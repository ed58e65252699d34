package interpolation

import (
	"sort"

	"github.com/wyfcoding/localvol/xerrors"
)

// GridInterpolator2D 二维网格插值: 先对每个 x 截面沿 y 插值, 再沿 x 插值.
// 各截面的 y 节点可以不同 (伪网格).
type GridInterpolator2D struct {
	X Interpolator1D
	Y Interpolator1D
}

// NewGridInterpolator2D 创建二维网格插值器.
func NewGridInterpolator2D(x, y Interpolator1D) *GridInterpolator2D {
	return &GridInterpolator2D{X: x, Y: y}
}

// Name 返回插值器名称.
func (g *GridInterpolator2D) Name() string {
	return "Grid(" + g.X.Name() + "," + g.Y.Name() + ")"
}

// BoundGrid 拟合后的二维曲面.
type BoundGrid struct {
	xInterp Interpolator1D
	xs      []float64
	curves  []Curve
}

// Bind 将散点 (xs[i], ys[i], zs[i]) 按 x 分组拟合.
func (g *GridInterpolator2D) Bind(xs, ys, zs []float64) (*BoundGrid, error) {
	if len(xs) == 0 {
		return nil, xerrors.ErrEmptyData
	}
	if len(xs) != len(ys) || len(xs) != len(zs) {
		return nil, xerrors.ErrDimMismatch.Derive().
			WithContext("xs", len(xs)).
			WithContext("ys", len(ys)).
			WithContext("zs", len(zs))
	}

	groups := make(map[float64][]int)
	for i, x := range xs {
		groups[x] = append(groups[x], i)
	}
	keys := make([]float64, 0, len(groups))
	for x := range groups {
		keys = append(keys, x)
	}
	sort.Float64s(keys)

	b := &BoundGrid{xInterp: g.X, xs: keys, curves: make([]Curve, len(keys))}
	for k, x := range keys {
		idx := groups[x]
		gy := make([]float64, len(idx))
		gz := make([]float64, len(idx))
		for n, i := range idx {
			gy[n] = ys[i]
			gz[n] = zs[i]
		}
		curve, err := g.Y.Bind(gy, gz)
		if err != nil {
			return nil, err
		}
		b.curves[k] = curve
	}
	return b, nil
}

// Interpolate 求 (x, y) 处的值.
func (b *BoundGrid) Interpolate(x, y float64) (float64, error) {
	vals := make([]float64, len(b.xs))
	for k, c := range b.curves {
		vals[k] = c.Value(y)
	}
	curve, err := b.xInterp.Bind(b.xs, vals)
	if err != nil {
		return 0, err
	}
	return curve.Value(x), nil
}
