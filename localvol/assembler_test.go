package localvol

import (
	"errors"
	"testing"

	"github.com/wyfcoding/localvol/xerrors"
)

func TestAssembleRejectsDuplicateSpots(t *testing.T) {
	if _, err := assemble(nil, linearFlatGrid()); !errors.Is(err, xerrors.ErrEmptyData) {
		t.Errorf("expected empty data, got %v", err)
	}

	samples := []Sample{
		{Time: 0.5, Spot: 100, Variance: 0.04},
		{Time: 0.5, Spot: 100, Variance: 0.05},
	}
	_, err := assemble(samples, linearFlatGrid())
	if !errors.Is(err, xerrors.ErrInterpolation) || !errors.Is(err, xerrors.ErrNotIncreasing) {
		t.Fatalf("expected interpolation failure caused by duplicate spots, got %v", err)
	}
	if xe, _ := xerrors.FromError(err); xe.Context["samples"] != 2 {
		t.Errorf("expected sample count in context, got %v", xe.Context)
	}
}
