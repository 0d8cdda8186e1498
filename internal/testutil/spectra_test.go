package testutil

import (
	"math"
	"testing"
)

func TestSyntheticPeakHeight(t *testing.T) {
	energy, counts := Synthetic(0, 0.01, 1000, 10, []Line{
		{Center: 5, FWHM: 0.2, Height: 1000},
	})

	idx := 500
	if energy[idx] != 5 {
		t.Fatalf("energy[500] = %v, want 5", energy[idx])
	}

	if math.Abs(counts[idx]-1010) > 1e-9 {
		t.Fatalf("counts at peak = %v, want 1010", counts[idx])
	}
}

func TestPoissonNoiseDeterministic(t *testing.T) {
	a := Flat(100, 50)
	b := Flat(100, 50)

	AddPoissonNoise(a, 42)
	AddPoissonNoise(b, 42)

	RequireSliceNearlyEqual(t, a, b, 0)

	for i, v := range a {
		if v < 0 || v != math.Trunc(v) {
			t.Fatalf("index %d: %v is not a non-negative integer", i, v)
		}
	}
}
