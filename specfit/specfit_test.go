package specfit

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-xrf/background"
	"github.com/cwbudde/algo-xrf/internal/testutil"
	"github.com/cwbudde/algo-xrf/peakfit"
	"github.com/cwbudde/algo-xrf/spectrum"
	"github.com/cwbudde/algo-xrf/xline"
)

var testSource = xline.Static{
	"Mg": {{Element: "Mg", Line: "Ka1", EnergyKeV: 1.254, RelativeRate: 100}},
	"Ti": {
		{Element: "Ti", Line: "Ka1", EnergyKeV: 4.511, RelativeRate: 100},
		{Element: "Ti", Line: "Kb1", EnergyKeV: 4.932, RelativeRate: 15},
	},
	"Fe": {
		{Element: "Fe", Line: "Ka1", EnergyKeV: 6.404, RelativeRate: 100},
		{Element: "Fe", Line: "Kb1", EnergyKeV: 7.058, RelativeRate: 17},
	},
	"Cu": {
		{Element: "Cu", Line: "Ka1", EnergyKeV: 8.048, RelativeRate: 100},
		{Element: "Cu", Line: "Kb1", EnergyKeV: 8.905, RelativeRate: 17},
	},
	"Zn": {
		{Element: "Zn", Line: "Ka1", EnergyKeV: 8.639, RelativeRate: 100},
		{Element: "Zn", Line: "Kb1", EnergyKeV: 9.572, RelativeRate: 17},
	},
	"Zr": {
		{Element: "Zr", Line: "Ka1", EnergyKeV: 15.775, RelativeRate: 100},
		{Element: "Zr", Line: "Kb1", EnergyKeV: 17.668, RelativeRate: 15},
	},
}

func detectorFWHM(e float64) float64 {
	return math.Sqrt(0.120*0.120 + 2.355*2.355*0.0005*e)
}

// sixElementSpectrum synthesizes a noiseless alloy spectrum containing every
// line of the test source.
func sixElementSpectrum(t *testing.T) (spectrum.Spectrum, []string) {
	t.Helper()

	elements := []string{"Mg", "Ti", "Fe", "Cu", "Zn", "Zr"}

	var lines []testutil.Line

	for _, element := range elements {
		refs, err := testSource.Lines(element)
		if err != nil {
			t.Fatalf("Lines(%s) error = %v", element, err)
		}

		for _, ref := range refs {
			lines = append(lines, testutil.Line{
				Center: ref.EnergyKeV,
				FWHM:   detectorFWHM(ref.EnergyKeV),
				Height: 40 * ref.RelativeRate,
			})
		}
	}

	energy, counts := testutil.Synthetic(0.02, 0.01, 1900, 100, lines)

	spec, err := spectrum.New(energy, counts)
	if err != nil {
		t.Fatalf("spectrum.New() error = %v", err)
	}

	return spec, elements
}

func testConfig() Config {
	return Config{
		Source: testSource,
		// Clipping window wider than the broadest peak, so the continuum
		// estimate stays under the peaks.
		Background: background.Config{Iterations: 60},
		Peak:       peakfit.Config{FWHMEstimate: detectorFWHM},
	}
}

func TestFitRequiresSourceAndElements(t *testing.T) {
	spec, _ := sixElementSpectrum(t)

	if _, err := Fit(spec, []string{"Fe"}, Config{}); !errors.Is(err, ErrNoSource) {
		t.Fatalf("Fit() error = %v, want ErrNoSource", err)
	}

	if _, err := Fit(spec, nil, Config{Source: testSource}); !errors.Is(err, ErrNoElements) {
		t.Fatalf("Fit() error = %v, want ErrNoElements", err)
	}
}

func TestFitUnknownElement(t *testing.T) {
	spec, _ := sixElementSpectrum(t)

	_, err := Fit(spec, []string{"Uub"}, testConfig())
	if err == nil {
		t.Fatal("Fit(Uub) expected error")
	}

	var unknown *xline.UnknownElementError
	if !errors.As(err, &unknown) {
		t.Fatalf("error type = %T, want *UnknownElementError", err)
	}
}

func TestFitSixElementAlloy(t *testing.T) {
	spec, elements := sixElementSpectrum(t)

	result, err := Fit(spec, elements, testConfig())
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	// Twelve lines are present; nearly all must be recovered even where
	// Kb lines ride on the flank of their Ka neighbor.
	if len(result.Peaks) < 10 {
		t.Fatalf("fitted %d peaks (skipped %+v), want >= 10", len(result.Peaks), result.Skipped)
	}

	if result.RSquared < 0.95 {
		t.Fatalf("RSquared = %v, want > 0.95", result.RSquared)
	}

	if result.ChiSquaredReduced <= 0 {
		t.Fatalf("ChiSquaredReduced = %v, want positive", result.ChiSquaredReduced)
	}

	if len(result.Model) != spec.Channels() || len(result.Background) != spec.Channels() {
		t.Fatal("model and background must cover every channel")
	}

	// The Fe Ka center must land on the true line.
	found := false

	for _, peak := range result.Peaks {
		if peak.Element == "Fe" && peak.Line == "Ka1" {
			found = true

			testutil.RequireNear(t, "Fe Ka1 center", peak.Energy, 6.404, 0.005)
		}
	}

	if !found {
		t.Fatal("Fe Ka1 missing from fit")
	}
}

func TestQuantifyNormalizes(t *testing.T) {
	spec, elements := sixElementSpectrum(t)

	result, err := Fit(spec, elements, testConfig())
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	fractions := result.Quantify(nil)

	total := 0.0
	for _, f := range fractions {
		if f < 0 || f > 1 {
			t.Fatalf("fraction %v outside [0, 1]", f)
		}

		total += f
	}

	if math.Abs(total-1) > 1e-9 {
		t.Fatalf("fractions sum to %v, want 1", total)
	}

	// All lines share the same relative heights, so every element should
	// register; the tube element must drop out when excluded.
	withExclusion := result.Quantify(map[string]bool{"Zr": true})
	if _, present := withExclusion["Zr"]; present {
		t.Fatal("excluded element still quantified")
	}
}

func TestStatisticsHandComputed(t *testing.T) {
	counts := []float64{4, 9, 16}
	model := []float64{2, 12, 16}

	chi2, chi2Red, r2 := statistics(counts, model, 0)

	// chi2 = (4-2)^2/2 + (9-12)^2/12 + 0 = 2 + 0.75.
	if math.Abs(chi2-2.75) > 1e-12 {
		t.Fatalf("chi2 = %v, want 2.75", chi2)
	}

	// dof = 3 - 1 = 2.
	if math.Abs(chi2Red-1.375) > 1e-12 {
		t.Fatalf("chi2Red = %v, want 1.375", chi2Red)
	}

	// ssRes = 4+9 = 13; mean = 29/3; ssTot = sum((y-mean)^2).
	mean := 29.0 / 3
	ssTot := (4-mean)*(4-mean) + (9-mean)*(9-mean) + (16-mean)*(16-mean)
	wantR2 := 1 - 13/ssTot

	if math.Abs(r2-wantR2) > 1e-12 {
		t.Fatalf("r2 = %v, want %v", r2, wantR2)
	}
}
