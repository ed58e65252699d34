package surface

import (
	"math"
	"testing"

	"github.com/wyfcoding/localvol/interpolation"
)

func TestConstantAndFuncSurface(t *testing.T) {
	c := NewConstantSurface("flat", 0.25)
	if c.ZValue(3, 100) != 0.25 {
		t.Errorf("constant surface returned %v", c.ZValue(3, 100))
	}
	f := Func(func(x, y float64) float64 { return x * y })
	if f.ZValue(2, 3) != 6 {
		t.Errorf("func surface returned %v", f.ZValue(2, 3))
	}
}

func TestDeformedSurface(t *testing.T) {
	base := NewConstantSurface("vol", 0.2)
	d := &DeformedSurface{
		Name: "variance",
		Base: base,
		Deformation: func(x, y float64) ValueDerivatives {
			v := base.ZValue(x, y)
			return ValueDerivatives{Value: v * v * x, Derivatives: []float64{2 * v * x}}
		},
	}
	if z := d.ZValue(2, 1); math.Abs(z-0.08) > 1e-15 {
		t.Errorf("deformed value %v, expected 0.08", z)
	}
	if vd := d.ZValueAndDerivatives(2, 1); len(vd.Derivatives) != 1 || math.Abs(vd.Derivatives[0]-0.8) > 1e-15 {
		t.Errorf("unexpected derivatives %+v", vd)
	}
}

func TestInterpolatedNodalSurface(t *testing.T) {
	xs := []float64{1, 1, 2, 2}
	ys := []float64{90, 110, 90, 110}
	zs := []float64{0.3, 0.2, 0.25, 0.15}
	lin := interpolation.Combine(interpolation.Linear, interpolation.Flat, interpolation.Flat)
	s, err := NewInterpolatedNodalSurface("vols", xs, ys, zs, interpolation.NewGridInterpolator2D(lin, lin))
	if err != nil {
		t.Fatalf("NewInterpolatedNodalSurface failed: %v", err)
	}
	if s.ParameterCount() != 4 {
		t.Errorf("ParameterCount = %d", s.ParameterCount())
	}
	if z := s.ZValue(1.5, 100); math.Abs(z-0.225) > 1e-12 {
		t.Errorf("ZValue(1.5, 100) = %v, expected 0.225", z)
	}
	if z := s.ZValue(5, 50); math.Abs(z-0.25) > 1e-12 {
		t.Errorf("flat extrapolation returned %v, expected 0.25", z)
	}

	// 返回的节点是副本
	got := s.ZValues()
	got[0] = 99
	if s.ZValues()[0] != 0.3 {
		t.Error("ZValues exposed internal storage")
	}
	if _, err := NewInterpolatedNodalSurface("bad", xs, ys[:3], zs, s.Interpolator()); err == nil {
		t.Error("expected error for mismatched node arrays")
	}
}
