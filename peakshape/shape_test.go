package peakshape

import (
	"errors"
	"math"
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

	if _, err := ParseKind("sinc"); !errors.Is(err, ErrUnknownShape) {
		t.Fatalf("ParseKind(sinc) error = %v, want ErrUnknownShape", err)
	}
}

func TestLookupAll(t *testing.T) {
	for _, kind := range Kinds() {
		shape, err := Lookup(kind)
		if err != nil {
			t.Fatalf("Lookup(%v) error = %v", kind, err)
		}

		if shape.Kind() != kind {
			t.Fatalf("Lookup(%v).Kind() = %v", kind, shape.Kind())
		}

		if got := len(shape.ParamNames()); got != shape.NumParams() {
			t.Fatalf("%v: %d param names for %d params", kind, got, shape.NumParams())
		}
	}

	if _, err := Lookup(Kind(99)); !errors.Is(err, ErrUnknownShape) {
		t.Fatalf("Lookup(99) error = %v, want ErrUnknownShape", err)
	}
}

// numericArea integrates the profile with the trapezoid rule over a wide
// window around the center.
func numericArea(s Shape, params []float64, center, halfWidth float64) float64 {
	const n = 40000

	x := make([]float64, n)
	step := 2 * halfWidth / float64(n-1)

	for i := range x {
		x[i] = center - halfWidth + step*float64(i)
	}

	y := make([]float64, n)
	s.Eval(y, x, params)

	area := 0.0
	for i := 1; i < n; i++ {
		area += 0.5 * (y[i] + y[i-1]) * step
	}

	return area
}

func TestAnalyticAreas(t *testing.T) {
	tests := []struct {
		kind      Kind
		params    []float64
		halfWidth float64
		tol       float64 // relative, Lorentzian wings converge slowly
	}{
		{KindGaussian, []float64{100, 5, 0.1}, 3, 1e-6},
		{KindLorentzian, []float64{100, 5, 0.1}, 500, 2e-3},
		{KindVoigt, []float64{25, 5, 0.1, 0.02}, 500, 2e-3},
		{KindPseudoVoigt, []float64{100, 5, 0.1, 0.3}, 500, 2e-3},
		{KindHypermet, []float64{100, 5, 0.1, 0.2, 2}, 4, 1e-3},
		{KindTailGaussian, []float64{100, 5, 0.1, 0.2, 0.3}, 4, 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			shape, err := Lookup(tt.kind)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}

			want := shape.Area(tt.params)
			got := numericArea(shape, tt.params, tt.params[1], tt.halfWidth)

			if math.Abs(got-want)/want > tt.tol {
				t.Fatalf("area = %v, analytic %v", got, want)
			}
		})
	}
}

func TestGaussianFWHM(t *testing.T) {
	shape, err := Lookup(KindGaussian)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	params := []float64{100, 5, 0.1}
	fwhm := shape.FWHM(params)

	// The profile must reach half maximum at center +/- FWHM/2.
	y := make([]float64, 1)
	shape.Eval(y, []float64{5 + fwhm/2}, params)

	if math.Abs(y[0]-50) > 0.1 {
		t.Fatalf("value at half width = %v, want 50", y[0])
	}
}

func TestVoigtReducesToGaussian(t *testing.T) {
	voigt, err := Lookup(KindVoigt)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	gauss, err := Lookup(KindGaussian)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	// Tiny Lorentzian width: the Voigt profile approaches a Gaussian of
	// the same area.
	sigma := 0.1
	area := 25.0

	x := []float64{4.8, 4.9, 5.0, 5.1, 5.2}
	vy := make([]float64, len(x))
	gy := make([]float64, len(x))

	voigt.Eval(vy, x, []float64{area, 5, sigma, 1e-6})
	gauss.Eval(gy, x, []float64{area / (sigma * sqrt2Pi), 5, sigma})

	for i := range x {
		if math.Abs(vy[i]-gy[i]) > 1e-3*gy[2]+1e-9 {
			t.Fatalf("x=%v: voigt %v, gaussian %v", x[i], vy[i], gy[i])
		}
	}
}

func TestNonNegativeProfiles(t *testing.T) {
	x := make([]float64, 200)
	for i := range x {
		x[i] = float64(i) * 0.05
	}

	y := make([]float64, len(x))

	for _, kind := range Kinds() {
		shape, err := Lookup(kind)
		if err != nil {
			t.Fatalf("Lookup(%v) error = %v", kind, err)
		}

		params := shape.Guess(100, 5, 0.1)
		shape.Eval(y, x, params)

		for i, v := range y {
			if v < 0 || math.IsNaN(v) {
				t.Fatalf("%v: negative or NaN value %v at x=%v", kind, v, x[i])
			}
		}
	}
}

func TestBoundsContainGuess(t *testing.T) {
	for _, kind := range Kinds() {
		shape, err := Lookup(kind)
		if err != nil {
			t.Fatalf("Lookup(%v) error = %v", kind, err)
		}

		p0 := shape.Guess(100, 5, 0.1)
		lo, hi := shape.Bounds(100, 5, 0.1)

		if len(lo) != shape.NumParams() || len(hi) != shape.NumParams() {
			t.Fatalf("%v: bounds length mismatch", kind)
		}

		for i := range p0 {
			if p0[i] < lo[i] || p0[i] > hi[i] {
				t.Fatalf("%v: guess[%d]=%v outside [%v, %v]", kind, i, p0[i], lo[i], hi[i])
			}
		}
	}
}

func TestBoundsConfineAmplitude(t *testing.T) {
	for _, kind := range Kinds() {
		shape, err := Lookup(kind)
		if err != nil {
			t.Fatalf("Lookup(%v) error = %v", kind, err)
		}

		p0 := shape.Guess(100, 5, 0.1)
		lo, hi := shape.Bounds(100, 5, 0.1)

		// A free amplitude lets the optimizer park a peak on a stronger
		// neighbor; the box must bracket the observed local maximum.
		if lo[0] <= 0 || math.IsInf(hi[0], 1) {
			t.Fatalf("%v: amplitude bounds [%v, %v] unconstrained", kind, lo[0], hi[0])
		}

		if lo[0] > p0[0] || hi[0] < p0[0] {
			t.Fatalf("%v: guess amplitude %v outside [%v, %v]", kind, p0[0], lo[0], hi[0])
		}

		if hi[0] > 10*p0[0] {
			t.Fatalf("%v: amplitude ceiling %v far above guess %v", kind, hi[0], p0[0])
		}
	}
}

func TestFaddeevaKnownValues(t *testing.T) {
	// w(0) = 1; w(i) = exp(1)*erfc(1) ~= 0.42758.
	got := faddeeva(complex(0, 0))
	if math.Abs(real(got)-1) > 1e-3 || math.Abs(imag(got)) > 1e-3 {
		t.Fatalf("w(0) = %v, want 1", got)
	}

	got = faddeeva(complex(0, 1))
	if math.Abs(real(got)-0.42758) > 2e-3 {
		t.Fatalf("w(i) = %v, want 0.42758", got)
	}
}
