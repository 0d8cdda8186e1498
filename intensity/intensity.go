// Package intensity calibrates the detector intensity response against a
// reference spectrum of known composition. It refines the resolution
// parameters and a quadratic detection-efficiency curve simultaneously, by
// matching a fully synthetic spectrum to the measurement.
package intensity

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-xrf/internal/lsq"
	"github.com/cwbudde/algo-xrf/resolution"
	"github.com/cwbudde/algo-xrf/xline"
)

// Errors returned by Calibrate.
var (
	ErrNoLines        = errors.New("intensity: no emission lines to model")
	ErrEmptyInput     = errors.New("intensity: empty input")
	ErrLengthMismatch = errors.New("intensity: energy and counts length mismatch")
	ErrNoSignal       = errors.New("intensity: no channels above the noise floor")
)

// Electron rest energy in keV, for the Compton shift.
const electronRestKeV = 511.0

// Config controls the intensity calibration.
type Config struct {
	// Resolution seeds fwhm_0 and epsilon. When set, the optimizer is
	// confined to +/-20% around the calibrated values; when nil, the
	// default detector model seeds a wide search.
	Resolution *resolution.Model

	// TubeLines lists the excitation-source lines that reach the detector
	// by elastic (Rayleigh) scattering; each also produces a
	// Compton-shifted companion. Optional.
	TubeLines []xline.ElementLine

	// ScatterAngleDeg is the detector scattering angle used for the
	// Compton shift. Default 90.
	ScatterAngleDeg float64

	// NoiseFloor excludes channels at or below this many counts from the
	// objective. Default 10.
	NoiseFloor float64

	// Stride evaluates the objective on every Stride-th channel, trading
	// accuracy for speed on long spectra. Default 1 (every channel).
	Stride int

	// MaxIterations bounds the optimizer. Default 300.
	MaxIterations int
}

// DefaultConfig returns the standard calibration settings.
func DefaultConfig() Config {
	return Config{
		ScatterAngleDeg: 90,
		NoiseFloor:      10,
		Stride:          1,
		MaxIterations:   300,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()

	if cfg.ScatterAngleDeg <= 0 {
		cfg.ScatterAngleDeg = def.ScatterAngleDeg
	}

	if cfg.NoiseFloor <= 0 {
		cfg.NoiseFloor = def.NoiseFloor
	}

	if cfg.Stride <= 0 {
		cfg.Stride = def.Stride
	}

	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}

	return cfg
}

// Parameter vector layout for the optimizer.
const (
	pFWHM0 = iota
	pEpsilon
	pEffA
	pEffB
	pEffC
	pScale
	pScatter
	numParams
)

// Efficiency clip range. The quadratic efficiency curve is clamped so a
// runaway polynomial cannot zero out or explode a line.
const (
	effMin = 0.1
	effMax = 1.5
)

// comptonShift returns the energy of a photon of energy e (keV) after
// scattering through angle theta (degrees).
func comptonShift(e, thetaDeg float64) float64 {
	cosTheta := math.Cos(thetaDeg * math.Pi / 180)

	return e / (1 + e/electronRestKeV*(1-cosTheta))
}

// efficiency evaluates the clamped quadratic detection efficiency.
func efficiency(e, a, b, c float64) float64 {
	v := a + e*(b+e*c)
	if v < effMin {
		return effMin
	}

	if v > effMax {
		return effMax
	}

	return v
}

// synthesize writes the model spectrum for the given parameter vector:
// one Gaussian per characteristic line plus the tube scatter lines with
// their Compton companions.
func synthesize(dst, energy []float64, lines, tube []xline.ElementLine, p []float64, thetaDeg float64) {
	for i := range dst {
		dst[i] = 0
	}

	fwhm0, eps := p[pFWHM0], p[pEpsilon]
	a, b, c := p[pEffA], p[pEffB], p[pEffC]

	for _, line := range lines {
		height := p[pScale] * line.RelativeRate * efficiency(line.EnergyKeV, a, b, c)
		addGaussian(dst, energy, height, line.EnergyKeV, fwhm0, eps)
	}

	for _, line := range tube {
		height := p[pScatter] * line.RelativeRate * efficiency(line.EnergyKeV, a, b, c)
		addGaussian(dst, energy, height, line.EnergyKeV, fwhm0, eps)

		// Compton companion: shifted down and broadened by the spread of
		// scattering angles, approximated as 1.5x the detector width.
		shifted := comptonShift(line.EnergyKeV, thetaDeg)
		addGaussianWidth(dst, energy, 0.7*height, shifted,
			1.5*detectorFWHM(shifted, fwhm0, eps))
	}
}

func detectorFWHM(e, fwhm0, eps float64) float64 {
	const f = 2.355

	return math.Sqrt(fwhm0*fwhm0 + f*f*eps*e)
}

func addGaussian(dst, energy []float64, height, center, fwhm0, eps float64) {
	addGaussianWidth(dst, energy, height, center, detectorFWHM(center, fwhm0, eps))
}

func addGaussianWidth(dst, energy []float64, height, center, fwhm float64) {
	if height <= 0 || fwhm <= 0 {
		return
	}

	sigma := fwhm / 2.355
	inv := 1 / (2 * sigma * sigma)

	// Gaussians are negligible past five sigma; skip the rest of the axis.
	cutoff := 5 * sigma

	for i, e := range energy {
		d := e - center
		if d < -cutoff || d > cutoff {
			continue
		}

		dst[i] += height * math.Exp(-d*d*inv)
	}
}

// Calibrate fits the intensity response to a measured reference spectrum.
// lines holds the expected characteristic lines of the reference sample with
// their relative rates.
func Calibrate(energy, counts []float64, lines []xline.ElementLine, cfg Config) (*Result, error) {
	if len(energy) == 0 {
		return nil, ErrEmptyInput
	}

	if len(energy) != len(counts) {
		return nil, ErrLengthMismatch
	}

	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	cfg = normalizeConfig(cfg)

	res := cfg.Resolution
	if res == nil {
		res = resolution.DefaultModel()
	}

	p0, lower, upper, err := initialGuess(energy, counts, lines, res, cfg)
	if err != nil {
		return nil, err
	}

	// Subsample the axis and mask out noise-floor channels.
	var (
		xs, ys, ws []float64
	)

	for i := 0; i < len(energy); i += cfg.Stride {
		if counts[i] <= cfg.NoiseFloor {
			continue
		}

		xs = append(xs, energy[i])
		ys = append(ys, counts[i])
		ws = append(ws, 1/math.Sqrt(math.Max(counts[i], 1)))
	}

	if len(xs) < numParams {
		return nil, ErrNoSignal
	}

	model := make([]float64, len(xs))
	params := make([]float64, numParams)
	box := lsq.BoxTransform{Lower: lower, Upper: upper}

	objective := func(u []float64) float64 {
		box.FromUnboundedTo(params, u)
		synthesize(model, xs, lines, cfg.TubeLines, params, cfg.ScatterAngleDeg)

		cost := 0.0

		for i := range xs {
			r := (ys[i] - model[i]) * ws[i]
			cost += r * r
		}

		if math.IsNaN(cost) || math.IsInf(cost, 0) {
			return 1e10
		}

		return cost
	}

	problem := optimize.Problem{
		Func: objective,
		Grad: func(grad, u []float64) {
			fd.Gradient(grad, objective, u, nil)
		},
	}

	settings := &optimize.Settings{MajorIterations: cfg.MaxIterations}

	u0 := box.ToUnbounded(p0)

	opt, err := optimize.Minimize(problem, u0, settings, &optimize.LBFGS{})

	success := err == nil
	message := "converged"

	if err != nil {
		message = err.Error()
	}

	var final []float64
	if opt != nil {
		final = box.FromUnbounded(opt.X)
	} else {
		final = append([]float64(nil), p0...)
	}

	// Closed-form rescale of the overall intensity: with the shape fixed,
	// the best scale is the projection of the data onto the model.
	full := make([]float64, len(xs))
	synthesize(full, xs, lines, cfg.TubeLines, final, cfg.ScatterAngleDeg)

	mm := vecmath.DotProduct(full, full)
	if mm > 0 {
		rescale := vecmath.DotProduct(full, ys) / mm
		final[pScale] *= rescale
		final[pScatter] *= rescale
		synthesize(full, xs, lines, cfg.TubeLines, final, cfg.ScatterAngleDeg)
	}

	chi2, r2 := fitQuality(ys, full, ws)

	result := &Result{
		FWHM0:           final[pFWHM0],
		Epsilon:         final[pEpsilon],
		Efficiency:      [3]float64{final[pEffA], final[pEffB], final[pEffC]},
		IntensityScale:  final[pScale],
		ScatterScale:    final[pScatter],
		ChiSquared:      chi2,
		RSquared:        r2,
		Success:         success,
		Message:         message,
		FWHMModelType:   resolution.KindDetector.String(),
		FWHMCalibration: res.Type,
		CalibrationDate: time.Now().Format(time.RFC3339),
	}

	return result, nil
}

// initialGuess builds the starting parameter vector and its box constraints.
func initialGuess(energy, counts []float64, lines []xline.ElementLine, res *resolution.Model, cfg Config) (p0, lower, upper []float64, err error) {
	fwhm0 := res.Parameters["fwhm_0"]
	eps := res.Parameters["epsilon"]

	if fwhm0 <= 0 {
		fwhm0 = 0.120
	}

	if eps <= 0 {
		eps = 0.0035
	}

	p0 = make([]float64, numParams)
	lower = make([]float64, numParams)
	upper = make([]float64, numParams)

	p0[pFWHM0] = fwhm0
	p0[pEpsilon] = eps

	if cfg.Resolution != nil {
		// Trust the resolution calibration: refine within 20%.
		lower[pFWHM0] = math.Max(0.8*fwhm0, 0.020)
		upper[pFWHM0] = math.Min(1.2*fwhm0, 0.200)
		lower[pEpsilon] = math.Max(0.8*eps, 0.0005)
		upper[pEpsilon] = math.Min(1.2*eps, 0.010)
	} else {
		lower[pFWHM0], upper[pFWHM0] = 0.020, 0.200
		lower[pEpsilon], upper[pEpsilon] = 0.0005, 0.010
	}

	p0[pEffA], lower[pEffA], upper[pEffA] = 1.0, 0.5, 1.5
	p0[pEffB], lower[pEffB], upper[pEffB] = 0.0, -0.5, 0.5
	p0[pEffC], lower[pEffC], upper[pEffC] = 0.0, -0.1, 0.1

	// Seed the overall scale from the strongest channel against the
	// strongest expected line.
	maxCounts := 0.0
	for _, c := range counts {
		if c > maxCounts {
			maxCounts = c
		}
	}

	maxRate := 0.0
	for _, l := range lines {
		if l.RelativeRate > maxRate {
			maxRate = l.RelativeRate
		}
	}

	if maxRate <= 0 {
		return nil, nil, nil, ErrNoLines
	}

	scale := math.Max(maxCounts/maxRate, 1e-6)
	p0[pScale] = scale
	lower[pScale] = scale / 1e3
	upper[pScale] = scale * 1e3

	p0[pScatter] = 0.1 * scale
	lower[pScatter] = scale / 1e6
	upper[pScatter] = scale * 1e3

	return p0, lower, upper, nil
}

// fitQuality returns the weighted chi-squared and the unweighted R-squared
// of the model against the masked data.
func fitQuality(y, model, w []float64) (chi2, r2 float64) {
	mean := vecmath.Sum(y) / float64(len(y))

	ssRes := 0.0
	ssTot := 0.0

	for i := range y {
		r := y[i] - model[i]
		wr := r * w[i]
		chi2 += wr * wr
		ssRes += r * r
		d := y[i] - mean
		ssTot += d * d
	}

	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	return chi2, r2
}
