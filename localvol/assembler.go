package localvol

import (
	"github.com/wyfcoding/localvol/interpolation"
	"github.com/wyfcoding/localvol/surface"
	"github.com/wyfcoding/localvol/xerrors"
)

// SurfaceName 输出曲面的名称.
const SurfaceName = "LocalVolatility"

// assemble 将样本拟合为 (期限, 标的价格) -> 局部波动率 的曲面. 插值器拒绝样本时返回 ErrInterpolation, 原错误保留在 Cause 中.
func assemble(samples []Sample, interp *interpolation.GridInterpolator2D) (*surface.InterpolatedNodalSurface, error) {
	if len(samples) == 0 {
		return nil, xerrors.ErrEmptyData
	}
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	zs := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.Time
		ys[i] = s.Spot
		zs[i] = s.Volatility()
	}
	surf, err := surface.NewInterpolatedNodalSurface(SurfaceName, xs, ys, zs, interp)
	if err != nil {
		return nil, xerrors.ErrInterpolation.Derive().
			WithCause(err).
			WithContext("samples", len(samples))
	}
	return surf, nil
}
