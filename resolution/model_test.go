package resolution

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestParseKindRoundTrip(t *testing.T) {
	for _, kind := range Kinds() {
		parsed, err := ParseKind(kind.String())
		if err != nil {
			t.Fatalf("ParseKind(%q) error = %v", kind, err)
		}

		if parsed != kind {
			t.Fatalf("ParseKind(%q) = %v, want %v", kind, parsed, kind)
		}
	}

	if _, err := ParseKind("cubic"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("ParseKind(cubic) error = %v, want ErrUnknownModel", err)
	}
}

func TestDetectorModelMonotonic(t *testing.T) {
	m := DefaultModel()

	prev := 0.0

	for _, e := range []float64{0.5, 1, 2, 5, 10, 20, 40} {
		fwhm, err := m.Predict(e)
		if err != nil {
			t.Fatalf("Predict(%v) error = %v", e, err)
		}

		if fwhm <= 0 {
			t.Fatalf("Predict(%v) = %v, want positive", e, fwhm)
		}

		if fwhm <= prev {
			t.Fatalf("Predict(%v) = %v not above Predict at lower energy %v", e, fwhm, prev)
		}

		prev = fwhm
	}
}

func TestDetectorModelValue(t *testing.T) {
	m := &Model{
		Type:       KindDetector.String(),
		Parameters: map[string]float64{"fwhm_0": 0.120, "epsilon": 0.0005},
	}

	got, err := m.Predict(6.4)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	want := math.Sqrt(0.120*0.120 + 2.355*2.355*0.0005*6.4)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("Predict(6.4) = %v, want %v", got, want)
	}
}

func TestModelFamilies(t *testing.T) {
	tests := []struct {
		kind   Kind
		params []float64
		energy float64
		want   float64
	}{
		{KindLinear, []float64{0.1, 0.005}, 10, 0.15},
		{KindQuadratic, []float64{0.1, 0.005, 0.0001}, 10, 0.16},
		{KindExponential, []float64{0.1, 0.02}, 10, 0.1 * math.Exp(0.2)},
		{KindPower, []float64{0.1, 0.5}, 9, 0.3},
	}

	out := make([]float64, 1)

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			tt.kind.Eval(out, []float64{tt.energy}, tt.params)

			if math.Abs(out[0]-tt.want) > 1e-9 {
				t.Fatalf("Eval(%v) = %v, want %v", tt.energy, out[0], tt.want)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := &Model{
		Type:            KindDetector.String(),
		Parameters:      map[string]float64{"fwhm_0": 0.115, "epsilon": 0.0035},
		ParameterErrors: map[string]float64{"fwhm_0": 0.003, "epsilon": 0.0002},
		RSquared:        0.98,
		RMSE:            0.004,
		AIC:             -52.1,
		BIC:             -51.3,
		NPeaks:          8,
		EnergyRange:     [2]float64{1.25, 17.67},
		CalibrationDate: "2026-08-23T00:00:00Z",
	}

	path := filepath.Join(t.TempDir(), "fwhm.json")

	if err := m.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.Type != m.Type {
		t.Fatalf("Type = %q, want %q", loaded.Type, m.Type)
	}

	for name, want := range m.Parameters {
		if got := loaded.Parameters[name]; got != want {
			t.Fatalf("parameter %s = %v, want %v", name, got, want)
		}
	}

	if loaded.NPeaks != 8 || loaded.EnergyRange != m.EnergyRange {
		t.Fatalf("metadata mismatch: %+v", loaded)
	}

	before, err := m.Predict(6.4)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	after, err := loaded.Predict(6.4)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if before != after {
		t.Fatalf("Predict changed across round trip: %v vs %v", before, after)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("Load(missing) expected error")
	}
}

func TestPredictFuncFallsBack(t *testing.T) {
	bad := &Model{Type: "cubic", Parameters: map[string]float64{}}

	fwhm := bad.PredictFunc()(6.4)
	if fwhm <= 0 {
		t.Fatalf("fallback FWHM = %v, want positive", fwhm)
	}
}
