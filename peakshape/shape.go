// Package peakshape provides the parametric peak profiles used to model
// characteristic X-ray emission lines.
//
// Every profile is a pure function of an energy axis and a parameter vector;
// there is no global state. Profiles are addressed through the Shape
// interface and a registry keyed by Kind, so fitting code dispatches without
// switching on shape names.
//
// Parameter vectors follow a common convention: params[0] is the amplitude,
// params[1] the center energy (keV), params[2] the primary width (sigma or
// gamma, keV), followed by shape-specific parameters. Amplitudes are kept
// non-negative by fit bounds upstream, not inside the profile functions.
package peakshape

import (
	"errors"
	"fmt"
)

// FWHMFactor converts a Gaussian sigma to FWHM: FWHM = FWHMFactor * sigma.
const FWHMFactor = 2.355

// ErrUnknownShape is returned for a shape name or kind outside the registry.
var ErrUnknownShape = errors.New("peakshape: unknown shape")

// Kind identifies a peak profile.
type Kind int

const (
	// KindGaussian is the symmetric Gaussian profile.
	KindGaussian Kind = iota + 1

	// KindLorentzian is the Cauchy-Lorentz profile.
	KindLorentzian

	// KindVoigt is the Gaussian-Lorentzian convolution via the Faddeeva
	// function.
	KindVoigt

	// KindPseudoVoigt is the linear Gaussian-Lorentzian mix.
	KindPseudoVoigt

	// KindHypermet adds a one-sided exponential low-energy tail to a
	// Gaussian, modeling incomplete charge collection.
	KindHypermet

	// KindTailGaussian adds a wider, shifted Gaussian tail weighted by a
	// tail fraction.
	KindTailGaussian
)

var kindNames = map[Kind]string{
	KindGaussian:     "gaussian",
	KindLorentzian:   "lorentzian",
	KindVoigt:        "voigt",
	KindPseudoVoigt:  "pseudo_voigt",
	KindHypermet:     "hypermet",
	KindTailGaussian: "tail_gaussian",
}

// String returns the canonical shape name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a shape name to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownShape, name)
}

// Shape is one peak profile with its analytic properties and the initial
// guess / bound heuristics the fitter uses for it.
type Shape interface {
	// Kind identifies the profile.
	Kind() Kind

	// NumParams returns the parameter-vector length.
	NumParams() int

	// ParamNames returns the parameter names in vector order.
	ParamNames() []string

	// Eval writes the profile over x into dst. len(dst) == len(x).
	Eval(dst, x, params []float64)

	// Area returns the analytic integral of the profile.
	Area(params []float64) float64

	// FWHM returns the full width at half maximum of the profile.
	FWHM(params []float64) float64

	// Guess builds an initial parameter vector from the observed peak
	// height, candidate center (keV), and estimated Gaussian sigma (keV).
	Guess(height, center, sigma float64) []float64

	// Bounds returns the default per-parameter box constraints matching
	// Guess, keeping the optimizer off neighboring peaks.
	Bounds(height, center, sigma float64) (lo, hi []float64)
}

var registry = map[Kind]Shape{
	KindGaussian:     gaussianShape{},
	KindLorentzian:   lorentzianShape{},
	KindVoigt:        voigtShape{},
	KindPseudoVoigt:  pseudoVoigtShape{},
	KindHypermet:     hypermetShape{},
	KindTailGaussian: tailGaussianShape{},
}

// Lookup returns the Shape registered for kind.
func Lookup(kind Kind) (Shape, error) {
	s, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownShape, kind)
	}

	return s, nil
}

// Kinds returns all registered kinds in ascending order.
func Kinds() []Kind {
	return []Kind{
		KindGaussian, KindLorentzian, KindVoigt,
		KindPseudoVoigt, KindHypermet, KindTailGaussian,
	}
}
