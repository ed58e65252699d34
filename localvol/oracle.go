package localvol

import (
	"math"

	"github.com/wyfcoding/localvol/algorithm/finance"
	algomath "github.com/wyfcoding/localvol/algorithm/math"
	"github.com/wyfcoding/localvol/algorithm/types"
	"github.com/wyfcoding/localvol/surface"
	"github.com/wyfcoding/localvol/xerrors"
)

// OptionPriceOracle 返回 (期限, 行权价) 处的欧式期权价格 (贴现到 0 时刻).
// 校准器只依赖该接口, 不关心底层曲面是隐含波动率还是价格.
type OptionPriceOracle interface {
	Price(t, strike float64, isCall bool) (float64, error)
}

// VolatilityHint 可选能力: 直接给出 (期限, 行权价) 处的参考波动率, 用于确定格点间距.
// 未实现时格点层通过反解期权价格得到参考波动率.
type VolatilityHint interface {
	ReferenceVolatility(t, strike float64) (float64, error)
}

// SurfaceKind 市场曲面的类别.
type SurfaceKind int

const (
	// ImpliedVolatilityKind Black-Scholes 隐含波动率曲面.
	ImpliedVolatilityKind SurfaceKind = iota
	// PriceKind 欧式看涨期权价格曲面.
	PriceKind
)

func (k SurfaceKind) String() string {
	if k == PriceKind {
		return "price"
	}
	return "implied_vol"
}

// MarketSurface 带标签的市场曲面, x 为期限, y 为行权价.
type MarketSurface struct {
	Kind    SurfaceKind
	Surface surface.Surface
}

// ImpliedVolatilitySurface 包装隐含波动率曲面.
func ImpliedVolatilitySurface(s surface.Surface) MarketSurface {
	return MarketSurface{Kind: ImpliedVolatilityKind, Surface: s}
}

// PriceSurface 包装看涨期权价格曲面.
func PriceSurface(s surface.Surface) MarketSurface {
	return MarketSurface{Kind: PriceKind, Surface: s}
}

// reporter 接收非致命诊断, 需要并发安全.
type reporter func(Diagnostic)

func (r reporter) report(d Diagnostic) {
	if r != nil {
		r(d)
	}
}

// ImpliedVolOracle 从隐含波动率曲面取值后用 Black-Scholes 闭式解定价.
type ImpliedVolOracle struct {
	vol surface.Surface
	mkt market
	bs  *finance.BlackScholesCalculator
}

// NewImpliedVolOracle 创建隐含波动率定价器.
func NewImpliedVolOracle(vol surface.Surface, spot float64, rate, dividend RateFunction) *ImpliedVolOracle {
	return &ImpliedVolOracle{
		vol: vol,
		mkt: market{spot: spot, rate: rate, dividend: dividend},
		bs:  finance.NewBlackScholesCalculator(),
	}
}

// ReferenceVolatility 实现 VolatilityHint.
func (o *ImpliedVolOracle) ReferenceVolatility(t, strike float64) (float64, error) {
	return o.volatility(t, strike)
}

func (o *ImpliedVolOracle) volatility(t, strike float64) (float64, error) {
	v := o.vol.ZValue(t, strike)
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, xerrors.ErrInvalidInput.Derive().
			WithDetail("implied volatility surface returned an invalid value").
			WithContext("time", t).
			WithContext("strike", strike).
			WithContext("value", v)
	}
	return v, nil
}

// Price 实现 OptionPriceOracle.
func (o *ImpliedVolOracle) Price(t, strike float64, isCall bool) (float64, error) {
	vol, err := o.volatility(t, strike)
	if err != nil {
		return 0, err
	}
	price, err := o.bs.Price(types.OptionTypeOf(isCall), o.mkt.spot, strike, t, o.mkt.rate(t), o.mkt.dividend(t), vol)
	if err != nil {
		return 0, xerrors.Wrap(err, xerrors.ErrInvalidArg, "black-scholes pricing failed").
			WithContext("time", t).
			WithContext("strike", strike)
	}
	return price, nil
}

// PriceOracle 从看涨期权价格曲面取值, 看跌价格由平价关系得到.
type PriceOracle struct {
	prices surface.Surface
	mkt    market
	clamp  bool
	report reporter
}

// NewPriceOracle 创建价格定价器.
//
// 曲面直接给出的看涨价格为负时: clamp 为 true 截断到无套利下界并记录诊断, 否则视为输入错误.
// 其余越出无套利边界的价格 (例如由平价关系得到的负看跌价格) 原样返回并记录诊断,
// 由校准器修正对应节点, 不抹掉期权的时间价值.
func NewPriceOracle(prices surface.Surface, spot float64, rate, dividend RateFunction, clamp bool, report func(Diagnostic)) *PriceOracle {
	return &PriceOracle{
		prices: prices,
		mkt:    market{spot: spot, rate: rate, dividend: dividend},
		clamp:  clamp,
		report: report,
	}
}

// Price 实现 OptionPriceOracle.
func (o *PriceOracle) Price(t, strike float64, isCall bool) (float64, error) {
	call := o.prices.ZValue(t, strike)
	if !algomath.IsFinite(call) {
		return 0, xerrors.ErrInvalidInput.Derive().
			WithDetail("price surface returned a non-finite value").
			WithContext("time", t).
			WithContext("strike", strike).
			WithContext("value", call)
	}

	discountedSpot := o.mkt.spot * o.mkt.dividendDF(t)
	discountedStrike := strike * o.mkt.df(t)
	if call < 0 {
		if !o.clamp {
			return 0, xerrors.ErrNegativePrice.Derive().
				WithContext("time", t).
				WithContext("strike", strike).
				WithContext("value", call)
		}
		floor := math.Max(discountedSpot-discountedStrike, 0)
		o.bounds(t, strike, call, "negative call price clamped to its lower bound")
		call = floor
	}

	price := call
	lower := math.Max(discountedSpot-discountedStrike, 0)
	upper := discountedSpot
	if !isCall {
		price = call - discountedSpot + discountedStrike
		lower = math.Max(discountedStrike-discountedSpot, 0)
		upper = discountedStrike
	}
	if price < lower || price > upper {
		o.bounds(t, strike, price, "option price outside no-arbitrage bounds")
	}
	return price, nil
}

func (o *PriceOracle) bounds(t, strike, value float64, detail string) {
	reporter(o.report).report(Diagnostic{
		Kind:   ViolationPriceBounds,
		Level:  -1,
		Node:   -1,
		Time:   t,
		Strike: strike,
		Value:  value,
		Detail: detail,
	})
}

// newOracle 按曲面类别构造本次运行使用的定价器.
func newOracle(ms MarketSurface, mkt market, o options, report reporter) (OptionPriceOracle, error) {
	if ms.Surface == nil {
		return nil, xerrors.ErrInvalidInput.Derive().WithDetail("market surface is nil")
	}
	switch ms.Kind {
	case ImpliedVolatilityKind:
		return NewImpliedVolOracle(ms.Surface, mkt.spot, mkt.rate, mkt.dividend), nil
	case PriceKind:
		return NewPriceOracle(ms.Surface, mkt.spot, mkt.rate, mkt.dividend, o.clampPrices, report), nil
	}
	return nil, xerrors.ErrInvalidInput.Derive().
		WithDetail("unknown market surface kind").
		WithContext("kind", int(ms.Kind))
}
