// Package finance - 期权定价算法（Black-Scholes / Black 模型）。
package finance

import (
	"math"

	"github.com/wyfcoding/localvol/algorithm/types"
	"github.com/wyfcoding/localvol/xerrors"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	ivTolerance     = 1e-12
	ivMaxIterations = 100
	ivLowerBound    = 1e-6
	ivUpperBound    = 5.0
)

// BlackScholesCalculator Black-Scholes 期权定价计算器。
// 利率与股息率均为到期日对应的连续复利零息率。
type BlackScholesCalculator struct{}

// NewBlackScholesCalculator 创建 Black-Scholes 计算器。
func NewBlackScholesCalculator() *BlackScholesCalculator {
	return &BlackScholesCalculator{}
}

// BlackPrice 远期形式的 Black 公式（未贴现）。
// expiry 或 vol 为零时返回内在价值。
func BlackPrice(forward, strike, expiry, vol float64, isCall bool) float64 {
	sign := 1.0
	if !isCall {
		sign = -1.0
	}
	if strike <= 0 {
		if isCall {
			return forward - strike
		}
		return 0
	}
	sigmaRootT := vol * math.Sqrt(expiry)
	if sigmaRootT < 1e-16 || forward <= 0 {
		return math.Max(sign*(forward-strike), 0)
	}
	d1 := math.Log(forward/strike)/sigmaRootT + 0.5*sigmaRootT
	d2 := d1 - sigmaRootT
	return sign * (forward*normCDF(sign*d1) - strike*normCDF(sign*d2))
}

// Price 计算欧式期权价格。
func (bsc *BlackScholesCalculator) Price(optionType types.OptionType, spot, strike, expiry, rate, div, vol float64) (float64, error) {
	if !optionType.Valid() {
		return 0, xerrors.ErrInvalidOptionType
	}
	if spot <= 0 || expiry < 0 || vol < 0 || math.IsNaN(vol) {
		return 0, xerrors.ErrInvalidInput
	}
	df := math.Exp(-rate * expiry)
	forward := spot * math.Exp((rate-div)*expiry)
	return df * BlackPrice(forward, strike, expiry, vol, optionType.IsCall()), nil
}

// Vega 计算 Vega（未做百分比缩放）。
func (bsc *BlackScholesCalculator) Vega(spot, strike, expiry, rate, div, vol float64) float64 {
	if expiry <= 0 || vol <= 0 || strike <= 0 {
		return 0
	}
	sqrtT := math.Sqrt(expiry)
	d1 := (math.Log(spot/strike) + (rate-div+0.5*vol*vol)*expiry) / (vol * sqrtT)
	return spot * math.Exp(-div*expiry) * normPDF(d1) * sqrtT
}

// ImpliedVolatility 计算隐含波动率。
// 先做 Newton 迭代，步长越界或 vega 过小时退回二分法。
func (bsc *BlackScholesCalculator) ImpliedVolatility(optionType types.OptionType, spot, strike, expiry, rate, div, marketPrice float64) (float64, error) {
	if !optionType.Valid() {
		return 0, xerrors.ErrInvalidOptionType
	}
	if spot <= 0 || strike <= 0 || expiry <= 0 || math.IsNaN(marketPrice) {
		return 0, xerrors.ErrInvalidInput
	}

	lowPrice, err := bsc.Price(optionType, spot, strike, expiry, rate, div, ivLowerBound)
	if err != nil {
		return 0, err
	}
	highPrice, err := bsc.Price(optionType, spot, strike, expiry, rate, div, ivUpperBound)
	if err != nil {
		return 0, err
	}
	if marketPrice < lowPrice || marketPrice > highPrice {
		return 0, xerrors.ErrMathConvergence
	}

	lo, hi := ivLowerBound, ivUpperBound
	sigma := 0.3
	for range ivMaxIterations {
		price, _ := bsc.Price(optionType, spot, strike, expiry, rate, div, sigma)
		diff := price - marketPrice
		if math.Abs(diff) < ivTolerance*math.Max(1, marketPrice) {
			return sigma, nil
		}
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}
		vega := bsc.Vega(spot, strike, expiry, rate, div, sigma)
		next := sigma - diff/vega
		if vega < 1e-14 || next <= lo || next >= hi {
			next = 0.5 * (lo + hi)
		}
		if math.Abs(next-sigma) < ivTolerance {
			return next, nil
		}
		sigma = next
	}
	return 0, xerrors.ErrMathConvergence
}

func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}
