package localvol

import (
	"math"

	algomath "github.com/wyfcoding/localvol/algorithm/math"
	"github.com/wyfcoding/localvol/xerrors"
)

// RateFunction 返回到期时间 t 对应的连续复利零息利率.
type RateFunction func(t float64) float64

// ConstantRate 常数利率.
func ConstantRate(r float64) RateFunction {
	return func(float64) float64 { return r }
}

// discountFactor exp(-r(t)*t).
func discountFactor(rate RateFunction, t float64) float64 {
	if t == 0 {
		return 1
	}
	return math.Exp(-rate(t) * t)
}

// instantaneousForwardRate d(r(t)*t)/dt.
func instantaneousForwardRate(rate RateFunction, t float64) float64 {
	integral := func(s float64) float64 { return rate(s) * s }
	return algomath.FirstDerivative(integral, t, algomath.Bump(t), 0)
}

// market 一次运行所需的标的与利率环境, 只读.
type market struct {
	spot     float64
	rate     RateFunction
	dividend RateFunction
}

func (m market) df(t float64) float64 { return discountFactor(m.rate, t) }

func (m market) dividendDF(t float64) float64 { return discountFactor(m.dividend, t) }

// forward t 时刻的远期价格.
func (m market) forward(t float64) float64 {
	return m.spot * m.dividendDF(t) / m.df(t)
}

// stepDiscount 从 t0 到 t1 的贴现因子.
func (m market) stepDiscount(t0, t1 float64) float64 {
	return m.df(t1) / m.df(t0)
}

// stepGrowth 从 t0 到 t1 的远期增长因子.
func (m market) stepGrowth(t0, t1 float64) float64 {
	return (m.df(t0) / m.df(t1)) * (m.dividendDF(t1) / m.dividendDF(t0))
}

// validate 检查现价与各网格时刻利率.
func (m market) validate(grid TimeGrid) error {
	if !(m.spot > 0) || math.IsInf(m.spot, 0) {
		return xerrors.ErrInvalidInput.Derive().
			WithDetail("spot must be positive").
			WithContext("spot", m.spot)
	}
	if m.rate == nil || m.dividend == nil {
		return xerrors.ErrInvalidInput.Derive().WithDetail("rate functions must not be nil")
	}
	for i := 0; i <= grid.Steps(); i++ {
		t := grid.Time(i)
		r, q := m.rate(t), m.dividend(t)
		if !algomath.IsFinite(r) || !algomath.IsFinite(q) {
			return xerrors.ErrInvalidInput.Derive().
				WithDetail("rate functions must be finite").
				WithContext("level", i).
				WithContext("time", t).
				WithContext("rate", r).
				WithContext("dividend", q)
		}
	}
	return nil
}
