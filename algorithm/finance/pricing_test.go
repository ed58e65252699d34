package finance

import (
	"errors"
	"math"
	"testing"

	"github.com/wyfcoding/localvol/algorithm/types"
	"github.com/wyfcoding/localvol/xerrors"
)

func TestBlackScholesPrice(t *testing.T) {
	bs := NewBlackScholesCalculator()
	// Hull 示例: S=42, K=40, r=10%, sigma=20%, T=0.5
	call, err := bs.Price(types.OptionTypeCall, 42, 40, 0.5, 0.1, 0, 0.2)
	if err != nil {
		t.Fatalf("Price failed: %v", err)
	}
	if math.Abs(call-4.7594) > 1e-3 {
		t.Errorf("call price %v, expected 4.7594", call)
	}
	put, _ := bs.Price(types.OptionTypePut, 42, 40, 0.5, 0.1, 0, 0.2)
	if math.Abs(put-0.8086) > 1e-3 {
		t.Errorf("put price %v, expected 0.8086", put)
	}
}

func TestPutCallParity(t *testing.T) {
	bs := NewBlackScholesCalculator()
	s, r, q, tt := 100.0, 0.03, 0.01, 1.3
	for _, k := range []float64{60, 100, 170} {
		c, _ := bs.Price(types.OptionTypeCall, s, k, tt, r, q, 0.35)
		p, _ := bs.Price(types.OptionTypePut, s, k, tt, r, q, 0.35)
		want := s*math.Exp(-q*tt) - k*math.Exp(-r*tt)
		if math.Abs(c-p-want) > 1e-10 {
			t.Errorf("k=%v: C-P = %v, expected %v", k, c-p, want)
		}
	}
}

func TestBlackPriceLimits(t *testing.T) {
	if v := BlackPrice(110, 100, 0, 0.2, true); v != 10 {
		t.Errorf("zero expiry call = %v, expected intrinsic 10", v)
	}
	if v := BlackPrice(110, 100, 1, 0, false); v != 0 {
		t.Errorf("zero vol put = %v, expected 0", v)
	}
	if v := BlackPrice(110, 0, 1, 0.2, true); v != 110 {
		t.Errorf("zero strike call = %v, expected forward", v)
	}
}

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	bs := NewBlackScholesCalculator()
	for _, vol := range []float64{0.05, 0.2, 0.8} {
		for _, k := range []float64{80, 100, 120} {
			ot := types.OptionTypeOf(k >= 100)
			price, _ := bs.Price(ot, 100, k, 0.75, 0.02, 0.01, vol)
			iv, err := bs.ImpliedVolatility(ot, 100, k, 0.75, 0.02, 0.01, price)
			if err != nil {
				t.Fatalf("vol=%v k=%v: ImpliedVolatility failed: %v", vol, k, err)
			}
			if math.Abs(iv-vol) > 1e-6 {
				t.Errorf("vol=%v k=%v: recovered %v", vol, k, iv)
			}
		}
	}
}

func TestImpliedVolatilityErrors(t *testing.T) {
	bs := NewBlackScholesCalculator()
	if _, err := bs.ImpliedVolatility(types.OptionType("straddle"), 100, 100, 1, 0, 0, 5); !errors.Is(err, xerrors.ErrInvalidOptionType) {
		t.Errorf("expected invalid option type, got %v", err)
	}
	if _, err := bs.ImpliedVolatility(types.OptionTypeCall, 100, 100, 1, 0, 0, math.NaN()); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if _, err := bs.ImpliedVolatility(types.OptionTypeCall, 100, 100, 1, 0, 0, 150); !errors.Is(err, xerrors.ErrMathConvergence) {
		t.Errorf("expected convergence failure above the upper bound, got %v", err)
	}
}
