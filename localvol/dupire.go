package localvol

import (
	"math"

	algomath "github.com/wyfcoding/localvol/algorithm/math"
	"github.com/wyfcoding/localvol/surface"
)

// DupireCalculator 以有限差分在输入曲面上直接计算 Dupire 局部波动率.
// 结果是对输入曲面的逐点变换, 不做任何离散化校准.
type DupireCalculator struct {
	// MinTime 小于该期限时直接返回输入隐含波动率 (价格输入时取 MinTime 处的值).
	MinTime float64
}

// NewDupireCalculator 创建 Dupire 计算器.
func NewDupireCalculator() *DupireCalculator {
	return &DupireCalculator{MinTime: 1e-6}
}

// LocalVolatilityFromImpliedVolatility 隐含波动率形式的 Dupire 公式.
func (d *DupireCalculator) LocalVolatilityFromImpliedVolatility(vol surface.Surface, spot float64, rate, dividend RateFunction) *surface.DeformedSurface {
	return &surface.DeformedSurface{
		Name: "DupireLocalVolatility",
		Base: vol,
		Deformation: func(t, k float64) surface.ValueDerivatives {
			return surface.ValueDerivatives{Value: d.fromImpliedVolatility(vol, spot, rate, dividend, t, k)}
		},
	}
}

// LocalVolatilityFromPrice 价格形式的 Dupire 公式, 输入为看涨期权价格曲面.
func (d *DupireCalculator) LocalVolatilityFromPrice(price surface.Surface, spot float64, rate, dividend RateFunction) *surface.DeformedSurface {
	return &surface.DeformedSurface{
		Name: "DupireLocalVolatility",
		Base: price,
		Deformation: func(t, k float64) surface.ValueDerivatives {
			return surface.ValueDerivatives{Value: d.fromPrice(price, rate, dividend, t, k)}
		},
	}
}

func (d *DupireCalculator) fromImpliedVolatility(vol surface.Surface, spot float64, rate, dividend RateFunction, t, k float64) float64 {
	sigma := vol.ZValue(t, k)
	if t < d.MinTime {
		return sigma
	}
	inK := func(x float64) float64 { return vol.ZValue(t, x) }
	inT := func(x float64) float64 { return vol.ZValue(x, k) }
	hK := algomath.Bump(k)
	hT := algomath.Bump(t)
	dSdK := algomath.FirstDerivative(inK, k, hK, 0)
	d2SdK2 := algomath.SecondDerivative(inK, k, hK, 0)
	dSdT := algomath.FirstDerivative(inT, t, hT, 0)

	rf := instantaneousForwardRate(rate, t)
	qf := instantaneousForwardRate(dividend, t)
	rootT := math.Sqrt(t)
	d1 := (math.Log(spot/k) + (rate(t)-dividend(t)+0.5*sigma*sigma)*t) / (sigma * rootT)

	num := sigma*sigma + 2*sigma*t*(dSdT+(rf-qf)*k*dSdK)
	a := 1 + k*d1*rootT*dSdK
	den := a*a + k*k*t*sigma*(d2SdK2-d1*rootT*dSdK*dSdK)
	return localVolFromRatio(num, den)
}

func (d *DupireCalculator) fromPrice(price surface.Surface, rate, dividend RateFunction, t, k float64) float64 {
	t = math.Max(t, d.MinTime)
	inK := func(x float64) float64 { return price.ZValue(t, x) }
	inT := func(x float64) float64 { return price.ZValue(x, k) }
	hK := algomath.Bump(k)
	hT := algomath.Bump(t)
	c := price.ZValue(t, k)
	dCdK := algomath.FirstDerivative(inK, k, hK, 0)
	d2CdK2 := algomath.SecondDerivative(inK, k, hK, 0)
	dCdT := algomath.FirstDerivative(inT, t, hT, 0)

	rf := instantaneousForwardRate(rate, t)
	qf := instantaneousForwardRate(dividend, t)
	num := dCdT + (rf-qf)*k*dCdK + qf*c
	den := 0.5 * k * k * d2CdK2
	return localVolFromRatio(num, den)
}

// localVolFromRatio 分母非正 (隐含密度为负) 时返回 NaN, 分子为负时截断为零.
func localVolFromRatio(num, den float64) float64 {
	if !(den > 0) {
		return math.NaN()
	}
	return math.Sqrt(math.Max(num, 0) / den)
}
