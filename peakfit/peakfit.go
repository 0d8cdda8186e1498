// Package peakfit fits parametric peak profiles to regions of an XRF
// spectrum. The fitter works on background-subtracted counts: each peak is
// fitted inside a window sized from the expected detector resolution at the
// line energy.
package peakfit

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-xrf/internal/lsq"
	"github.com/cwbudde/algo-xrf/peakshape"
)

// Errors returned by the fitter.
var (
	ErrInsufficientPoints = errors.New("peakfit: too few points in fit window")
	ErrEmptyInput         = errors.New("peakfit: empty input")
	ErrLengthMismatch     = errors.New("peakfit: energy and counts length mismatch")
)

// Config controls the fit windows and the profile used.
type Config struct {
	// Shape selects the peak profile. Default gaussian.
	Shape peakshape.Kind

	// FWHMEstimate predicts the detector FWHM (keV) at a given energy
	// (keV). It sizes fit windows and seeds the width guess. When nil, a
	// typical silicon drift detector response is assumed.
	FWHMEstimate func(energyKeV float64) float64

	// WindowFactor is the fit-window half width in FWHM units. Default 3.
	WindowFactor float64

	// LowEnergyWindowFactor replaces WindowFactor below LowEnergyCutoff,
	// where peaks are broad relative to their energy. Default 5.
	LowEnergyWindowFactor float64

	// LowEnergyCutoff in keV. Default 3.
	LowEnergyCutoff float64

	// MinPoints is the minimum number of channels a window must contain.
	// Default 5.
	MinPoints int

	// MaxIterations bounds the optimizer. Default 200.
	MaxIterations int
}

// DefaultConfig returns the Gaussian-profile defaults.
func DefaultConfig() Config {
	return Config{
		Shape:                 peakshape.KindGaussian,
		WindowFactor:          3,
		LowEnergyWindowFactor: 5,
		LowEnergyCutoff:       3,
		MinPoints:             5,
		MaxIterations:         200,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()

	if cfg.Shape == 0 {
		cfg.Shape = def.Shape
	}

	if cfg.FWHMEstimate == nil {
		cfg.FWHMEstimate = defaultFWHM
	}

	if cfg.WindowFactor <= 0 {
		cfg.WindowFactor = def.WindowFactor
	}

	if cfg.LowEnergyWindowFactor <= 0 {
		cfg.LowEnergyWindowFactor = def.LowEnergyWindowFactor
	}

	if cfg.LowEnergyCutoff <= 0 {
		cfg.LowEnergyCutoff = def.LowEnergyCutoff
	}

	if cfg.MinPoints <= 0 {
		cfg.MinPoints = def.MinPoints
	}

	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}

	return cfg
}

// defaultFWHM models a typical silicon drift detector:
// FWHM(E) = sqrt(fwhm0^2 + 2.355^2 * epsilon * E).
func defaultFWHM(energyKeV float64) float64 {
	const (
		fwhm0   = 0.120
		epsilon = 0.0035
	)

	f := peakshape.FWHMFactor

	return math.Sqrt(fwhm0*fwhm0 + f*f*epsilon*energyKeV)
}

// Peak is one fitted emission line.
type Peak struct {
	Element string
	Line    string

	Energy    float64 // fitted center, keV
	Amplitude float64 // profile amplitude parameter
	FWHM      float64 // keV
	Area      float64 // integrated counts

	Shape       peakshape.Kind
	Params      []float64
	ParamErrors []float64

	RSquared float64
}

// Skip records a requested peak that could not be fitted.
type Skip struct {
	Center float64
	Reason error
}

// FitSingle fits one peak near center (keV) on background-subtracted counts.
func FitSingle(energy, counts []float64, center float64, cfg Config) (Peak, error) {
	if len(energy) == 0 {
		return Peak{}, ErrEmptyInput
	}

	if len(energy) != len(counts) {
		return Peak{}, ErrLengthMismatch
	}

	cfg = normalizeConfig(cfg)

	shape, err := peakshape.Lookup(cfg.Shape)
	if err != nil {
		return Peak{}, err
	}

	fwhm := cfg.FWHMEstimate(center)
	sigma := fwhm / peakshape.FWHMFactor

	factor := cfg.WindowFactor
	if center < cfg.LowEnergyCutoff {
		factor = cfg.LowEnergyWindowFactor
	}

	lo, hi := windowIndices(energy, center, factor*fwhm)
	if hi-lo < cfg.MinPoints || hi-lo < shape.NumParams() {
		return Peak{}, fmt.Errorf("%w: %d channels near %.3f keV",
			ErrInsufficientPoints, hi-lo, center)
	}

	x := energy[lo:hi]
	y := counts[lo:hi]

	height := 0.0
	for _, v := range y {
		if v > height {
			height = v
		}
	}

	if height <= 0 {
		height = 1
	}

	p0 := shape.Guess(height, center, sigma)
	lower, upper := shape.Bounds(height, center, sigma)

	result, err := lsq.CurveFit(lsq.Problem{
		Model: shape.Eval,
		X:     x,
		Y:     y,
		Lower: lower,
		Upper: upper,
	}, p0, lsq.Settings{MaxIterations: cfg.MaxIterations})
	if err != nil {
		return Peak{}, fmt.Errorf("peakfit: fit failed at %.3f keV: %w", center, err)
	}

	peak := Peak{
		Energy:      result.Params[1],
		Amplitude:   result.Params[0],
		FWHM:        shape.FWHM(result.Params),
		Area:        shape.Area(result.Params),
		Shape:       cfg.Shape,
		Params:      result.Params,
		ParamErrors: result.ParamErrors,
		RSquared:    result.RSquared,
	}

	return peak, nil
}

// FitMultiple fits each requested center independently and collects failures
// instead of aborting: one noisy line must not take down the whole spectrum.
func FitMultiple(energy, counts []float64, centers []float64, cfg Config) ([]Peak, []Skip) {
	peaks := make([]Peak, 0, len(centers))

	var skipped []Skip

	for _, c := range centers {
		peak, err := FitSingle(energy, counts, c, cfg)
		if err != nil {
			skipped = append(skipped, Skip{Center: c, Reason: err})
			continue
		}

		peaks = append(peaks, peak)
	}

	return peaks, skipped
}

// windowIndices returns the half-open channel range covering
// [center-halfWidth, center+halfWidth] on an ascending energy axis.
func windowIndices(energy []float64, center, halfWidth float64) (lo, hi int) {
	loE := center - halfWidth
	hiE := center + halfWidth

	lo = 0
	for lo < len(energy) && energy[lo] < loE {
		lo++
	}

	hi = lo
	for hi < len(energy) && energy[hi] <= hiE {
		hi++
	}

	return lo, hi
}
