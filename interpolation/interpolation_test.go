package interpolation

import (
	"errors"
	"math"
	"testing"

	"github.com/wyfcoding/localvol/xerrors"
)

func TestLinearInterpolator(t *testing.T) {
	c, err := Linear.Bind([]float64{2, 0, 1}, []float64{4, 0, 1})
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if v := c.Value(0.5); v != 0.5 {
		t.Errorf("Value(0.5) = %v, expected 0.5", v)
	}
	if v := c.Value(1.5); v != 2.5 {
		t.Errorf("Value(1.5) = %v, expected 2.5", v)
	}
	if d := c.FirstDerivative(1.5); d != 3 {
		t.Errorf("FirstDerivative(1.5) = %v, expected 3", d)
	}
	if v := c.Extend(3); v != 7 {
		t.Errorf("Extend(3) = %v, expected 7", v)
	}
}

func TestBindRejectsInvalidNodes(t *testing.T) {
	if _, err := Linear.Bind(nil, nil); !errors.Is(err, xerrors.ErrEmptyData) {
		t.Errorf("expected empty data error, got %v", err)
	}
	if _, err := Linear.Bind([]float64{1, 2}, []float64{1}); !errors.Is(err, xerrors.ErrDimMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
	if _, err := NaturalSpline.Bind([]float64{1, 1, 2}, []float64{1, 2, 3}); !errors.Is(err, xerrors.ErrNotIncreasing) {
		t.Errorf("expected not increasing error, got %v", err)
	}
	if _, err := TimeSquare.Bind([]float64{0.5, 1}, []float64{-0.1, 0.2}); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("expected invalid input for negative volatility, got %v", err)
	}
}

func TestCubicInterpolatorsReproduceNodes(t *testing.T) {
	xs := []float64{0.5, 1, 1.5, 2, 3}
	ys := []float64{0.3, 0.22, 0.2, 0.21, 0.25}
	for _, in := range []Interpolator1D{NaturalSpline, NonnegativityPreservingCubic, Akima} {
		c, err := in.Bind(xs, ys)
		if err != nil {
			t.Fatalf("%s: Bind failed: %v", in.Name(), err)
		}
		for i, x := range xs {
			if v := c.Value(x); math.Abs(v-ys[i]) > 1e-12 {
				t.Errorf("%s: Value(%v) = %v, expected %v", in.Name(), x, v, ys[i])
			}
		}
		lo, hi := c.Range()
		if lo != 0.5 || hi != 3 {
			t.Errorf("%s: Range = (%v, %v)", in.Name(), lo, hi)
		}
	}
}

func TestNaturalSplineExactForLinearData(t *testing.T) {
	c, err := NaturalSpline.Bind([]float64{0, 1, 2, 4}, []float64{1, 3, 5, 9})
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if v := c.Value(2.7); math.Abs(v-6.4) > 1e-12 {
		t.Errorf("Value(2.7) = %v, expected 6.4", v)
	}
	if d := c.FirstDerivative(3); math.Abs(d-2) > 1e-12 {
		t.Errorf("FirstDerivative(3) = %v, expected 2", d)
	}
	if v := c.Extend(5); math.Abs(v-11) > 1e-9 {
		t.Errorf("Extend(5) = %v, expected 11", v)
	}
}

func TestTimeSquareInterpolatesTotalVariance(t *testing.T) {
	c, err := TimeSquare.Bind([]float64{1, 2}, []float64{0.2, 0.3})
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	// 总方差 0.04 -> 0.18, 中点 0.11, 波动率 sqrt(0.11/1.5)
	want := math.Sqrt(0.11 / 1.5)
	if v := c.Value(1.5); math.Abs(v-want) > 1e-14 {
		t.Errorf("Value(1.5) = %v, expected %v", v, want)
	}
	if v := c.Value(0.5); v != 0.2 {
		t.Errorf("Value(0.5) = %v, expected flat 0.2", v)
	}
}

func TestExtrapolators(t *testing.T) {
	xs, ys := []float64{1, 2, 3}, []float64{1, 2, 4}
	cases := []struct {
		e      Extrapolator
		x      float64
		expect float64
	}{
		{Flat, 0, 1},
		{Flat, 5, 4},
		{LinearExtrapolation, 0, 0},
		{LinearExtrapolation, 4, 6},
		{InterpolatorExtrapolation, 4, 6},
	}
	for _, tc := range cases {
		c, err := Combine(Linear, tc.e, tc.e).Bind(xs, ys)
		if err != nil {
			t.Fatalf("Bind failed: %v", err)
		}
		if v := c.Value(tc.x); math.Abs(v-tc.expect) > 1e-12 {
			t.Errorf("%s at %v: got %v, expected %v", tc.e, tc.x, v, tc.expect)
		}
	}
}

func TestParseNames(t *testing.T) {
	for _, name := range []string{"", "Linear", "TimeSquare", "NaturalSpline", "NonnegativityPreservingCubic", "akima"} {
		if _, err := ParseInterpolator(name); err != nil {
			t.Errorf("ParseInterpolator(%q) failed: %v", name, err)
		}
	}
	if _, err := ParseInterpolator("Bogus"); !errors.Is(err, xerrors.ErrInvalidConfig) {
		t.Errorf("expected invalid config, got %v", err)
	}
	if e, err := ParseExtrapolator("interpolator"); err != nil || e != InterpolatorExtrapolation {
		t.Errorf("ParseExtrapolator(interpolator) = %v, %v", e, err)
	}
	if _, err := ParseExtrapolator("Exponential"); !errors.Is(err, xerrors.ErrInvalidConfig) {
		t.Errorf("expected invalid config, got %v", err)
	}
}

func TestGridInterpolator2D(t *testing.T) {
	// z = x + 10*y 在双线性插值下被精确再现
	xs := []float64{1, 1, 1, 2, 2, 2}
	ys := []float64{0, 1, 2, 0, 1, 2}
	zs := make([]float64, len(xs))
	for i := range xs {
		zs[i] = xs[i] + 10*ys[i]
	}
	g := NewGridInterpolator2D(Linear, Linear)
	b, err := g.Bind(xs, ys, zs)
	if err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	z, err := b.Interpolate(1.25, 0.5)
	if err != nil {
		t.Fatalf("Interpolate failed: %v", err)
	}
	if math.Abs(z-6.25) > 1e-12 {
		t.Errorf("Interpolate(1.25, 0.5) = %v, expected 6.25", z)
	}
	if g.Name() != "Grid(Linear,Linear)" {
		t.Errorf("unexpected name %q", g.Name())
	}
	if _, err := g.Bind(xs, ys[:2], zs); !errors.Is(err, xerrors.ErrDimMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}
