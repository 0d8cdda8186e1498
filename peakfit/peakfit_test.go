package peakfit

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-xrf/internal/testutil"
	"github.com/cwbudde/algo-xrf/peakshape"
)

func TestFitSingleRecoversGaussian(t *testing.T) {
	const (
		center = 6.40
		fwhm   = 0.12
		height = 5000.0
	)

	energy, counts := testutil.Synthetic(0.02, 0.01, 2000, 0, []testutil.Line{
		{Center: center, FWHM: fwhm, Height: height},
	})

	peak, err := FitSingle(energy, counts, center, Config{})
	if err != nil {
		t.Fatalf("FitSingle() error = %v", err)
	}

	testutil.RequireNear(t, "center", peak.Energy, center, 0.001)
	testutil.RequireWithin(t, "fwhm", peak.FWHM, fwhm, 0.01)
	testutil.RequireWithin(t, "amplitude", peak.Amplitude, height, 0.01)

	wantArea := height * (fwhm / peakshape.FWHMFactor) * math.Sqrt(2*math.Pi)
	testutil.RequireWithin(t, "area", peak.Area, wantArea, 0.01)

	if peak.RSquared < 0.999 {
		t.Fatalf("RSquared = %v, want ~1", peak.RSquared)
	}
}

func TestFitSingleOffCenterGuess(t *testing.T) {
	energy, counts := testutil.Synthetic(0.02, 0.01, 2000, 0, []testutil.Line{
		{Center: 8.05, FWHM: 0.16, Height: 1200},
	})

	// Nominal line energy 80 eV off the true center.
	peak, err := FitSingle(energy, counts, 7.97, Config{})
	if err != nil {
		t.Fatalf("FitSingle() error = %v", err)
	}

	testutil.RequireNear(t, "center", peak.Energy, 8.05, 0.005)
}

func TestFitSingleInsufficientPoints(t *testing.T) {
	energy := testutil.EnergyAxis(0.02, 0.01, 100)
	counts := make([]float64, 100)

	// Window around 50 keV lies entirely outside the axis.
	_, err := FitSingle(energy, counts, 50, Config{})
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("FitSingle() error = %v, want ErrInsufficientPoints", err)
	}
}

func TestFitSingleInputValidation(t *testing.T) {
	if _, err := FitSingle(nil, nil, 5, Config{}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("empty input error = %v, want ErrEmptyInput", err)
	}

	if _, err := FitSingle([]float64{1}, []float64{1, 2}, 5, Config{}); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("mismatch error = %v, want ErrLengthMismatch", err)
	}
}

func TestFitMultipleIsolatesFailures(t *testing.T) {
	energy, counts := testutil.Synthetic(0.02, 0.01, 2000, 0, []testutil.Line{
		{Center: 6.40, FWHM: 0.15, Height: 3000},
		{Center: 12.00, FWHM: 0.20, Height: 900},
	})

	peaks, skipped := FitMultiple(energy, counts, []float64{6.40, 50.0, 12.00}, Config{})

	if len(peaks) != 2 {
		t.Fatalf("fitted %d peaks, want 2", len(peaks))
	}

	if len(skipped) != 1 {
		t.Fatalf("skipped %d peaks, want 1", len(skipped))
	}

	if skipped[0].Center != 50.0 {
		t.Fatalf("skipped center = %v, want 50.0", skipped[0].Center)
	}

	if !errors.Is(skipped[0].Reason, ErrInsufficientPoints) {
		t.Fatalf("skip reason = %v, want ErrInsufficientPoints", skipped[0].Reason)
	}
}

func TestFitSingleCustomFWHMEstimate(t *testing.T) {
	energy, counts := testutil.Synthetic(0.02, 0.01, 2000, 0, []testutil.Line{
		{Center: 10.0, FWHM: 0.25, Height: 2000},
	})

	cfg := Config{
		FWHMEstimate: func(float64) float64 { return 0.25 },
	}

	peak, err := FitSingle(energy, counts, 10.0, cfg)
	if err != nil {
		t.Fatalf("FitSingle() error = %v", err)
	}

	testutil.RequireWithin(t, "fwhm", peak.FWHM, 0.25, 0.01)
}

func TestFindPeaks(t *testing.T) {
	counts := make([]float64, 100)
	testutil.AddGaussian(counts, testutil.EnergyAxis(0, 1, 100), testutil.Line{Center: 20, FWHM: 4, Height: 100})
	testutil.AddGaussian(counts, testutil.EnergyAxis(0, 1, 100), testutil.Line{Center: 60, FWHM: 4, Height: 50})
	testutil.AddGaussian(counts, testutil.EnergyAxis(0, 1, 100), testutil.Line{Center: 63, FWHM: 4, Height: 30})

	peaks := FindPeaks(counts, FindOptions{MinHeight: 10, MinDistance: 10})

	if len(peaks) != 2 {
		t.Fatalf("found %d peaks (%v), want 2", len(peaks), peaks)
	}

	if peaks[0] != 20 {
		t.Fatalf("first peak at %d, want 20", peaks[0])
	}

	// The 63-channel shoulder merges into the flank of the stronger
	// 60-channel peak, leaving a single maximum between them.
	if d := peaks[1] - 60; d < -2 || d > 2 {
		t.Fatalf("second peak at %d, want near 60", peaks[1])
	}
}

func TestFindPeaksProminence(t *testing.T) {
	counts := []float64{0, 1, 0.5, 1.2, 0, 10, 0}

	peaks := FindPeaks(counts, FindOptions{MinProminence: 5})

	if len(peaks) != 1 || peaks[0] != 5 {
		t.Fatalf("peaks = %v, want [5]", peaks)
	}
}
