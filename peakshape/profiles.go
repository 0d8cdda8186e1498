package peakshape

import "math"

const (
	sqrt2   = 1.4142135623730951
	sqrt2Pi = 2.5066282746310002

	// Default fit-window half widths, relative to the initial guess. The
	// amplitude box brackets the observed local maximum so the optimizer
	// cannot drift onto a stronger neighboring peak.
	centerTolKeV   = 0.2
	widthLoFactor  = 0.3
	widthHiFactor  = 3.0
	ampLoFactor    = 0.3
	ampHiFactor    = 2.0
	voigtGammaFrac = 0.15
)

type gaussianShape struct{}

func (gaussianShape) Kind() Kind           { return KindGaussian }
func (gaussianShape) NumParams() int       { return 3 }
func (gaussianShape) ParamNames() []string { return []string{"amplitude", "center", "sigma"} }

func (gaussianShape) Eval(dst, x, p []float64) {
	amp, center, sigma := p[0], p[1], p[2]
	for i, xi := range x {
		d := (xi - center) / sigma
		dst[i] = amp * math.Exp(-0.5*d*d)
	}
}

func (gaussianShape) Area(p []float64) float64 { return p[0] * p[2] * sqrt2Pi }
func (gaussianShape) FWHM(p []float64) float64 { return FWHMFactor * p[2] }

func (gaussianShape) Guess(height, center, sigma float64) []float64 {
	return []float64{height, center, sigma}
}

func (gaussianShape) Bounds(height, center, sigma float64) (lo, hi []float64) {
	lo = []float64{ampLoFactor * height, center - centerTolKeV, widthLoFactor * sigma}
	hi = []float64{ampHiFactor * height, center + centerTolKeV, widthHiFactor * sigma}

	return lo, hi
}

type lorentzianShape struct{}

func (lorentzianShape) Kind() Kind           { return KindLorentzian }
func (lorentzianShape) NumParams() int       { return 3 }
func (lorentzianShape) ParamNames() []string { return []string{"amplitude", "center", "gamma"} }

func (lorentzianShape) Eval(dst, x, p []float64) {
	amp, center, gamma := p[0], p[1], p[2]
	g2 := gamma * gamma

	for i, xi := range x {
		d := xi - center
		dst[i] = amp * g2 / (d*d + g2)
	}
}

func (lorentzianShape) Area(p []float64) float64 { return p[0] * p[2] * math.Pi }
func (lorentzianShape) FWHM(p []float64) float64 { return 2 * p[2] }

func (lorentzianShape) Guess(height, center, sigma float64) []float64 {
	// Match the half width of a Gaussian with the given sigma.
	return []float64{height, center, FWHMFactor * sigma / 2}
}

func (lorentzianShape) Bounds(height, center, sigma float64) (lo, hi []float64) {
	gamma := FWHMFactor * sigma / 2
	lo = []float64{ampLoFactor * height, center - centerTolKeV, widthLoFactor * gamma}
	hi = []float64{ampHiFactor * height, center + centerTolKeV, widthHiFactor * gamma}

	return lo, hi
}

type voigtShape struct{}

func (voigtShape) Kind() Kind     { return KindVoigt }
func (voigtShape) NumParams() int { return 4 }

func (voigtShape) ParamNames() []string {
	return []string{"amplitude", "center", "sigma", "gamma"}
}

// Eval computes amp * Re(w(z)) / (sigma*sqrt(2*pi)) with
// z = ((x-center) + i*gamma) / (sigma*sqrt(2)), so the amplitude equals the
// analytic area of the profile.
func (voigtShape) Eval(dst, x, p []float64) {
	amp, center, sigma, gamma := p[0], p[1], p[2], p[3]
	norm := amp / (sigma * sqrt2Pi)
	scale := 1 / (sigma * sqrt2)

	for i, xi := range x {
		z := complex((xi-center)*scale, gamma*scale)
		dst[i] = norm * real(faddeeva(z))
	}
}

func (voigtShape) Area(p []float64) float64 { return p[0] }

// FWHM uses the Olivero-Longbothum approximation, accurate to ~0.02%.
func (voigtShape) FWHM(p []float64) float64 {
	fg := FWHMFactor * p[2]
	fl := 2 * p[3]

	return 0.5346*fl + math.Sqrt(0.2166*fl*fl+fg*fg)
}

func (voigtShape) Guess(height, center, sigma float64) []float64 {
	// The profile is area-normalized; convert the observed height into an
	// area-scaled amplitude.
	return []float64{height * sigma * sqrt2Pi, center, sigma, voigtGammaFrac * sigma}
}

func (voigtShape) Bounds(height, center, sigma float64) (lo, hi []float64) {
	// The amplitude parameter is the area; scale the height box the same
	// way Guess does.
	area := height * sigma * sqrt2Pi
	lo = []float64{ampLoFactor * area, center - centerTolKeV, widthLoFactor * sigma, 0.001}
	hi = []float64{ampHiFactor * area, center + centerTolKeV, widthHiFactor * sigma, 2 * sigma}

	return lo, hi
}

type pseudoVoigtShape struct{}

func (pseudoVoigtShape) Kind() Kind     { return KindPseudoVoigt }
func (pseudoVoigtShape) NumParams() int { return 4 }

func (pseudoVoigtShape) ParamNames() []string {
	return []string{"amplitude", "center", "sigma", "eta"}
}

func (pseudoVoigtShape) Eval(dst, x, p []float64) {
	amp, center, sigma, eta := p[0], p[1], p[2], p[3]
	s2 := sigma * sigma

	for i, xi := range x {
		d := xi - center
		g := math.Exp(-0.5 * d * d / s2)
		l := s2 / (d*d + s2)
		dst[i] = amp * (eta*l + (1-eta)*g)
	}
}

func (pseudoVoigtShape) Area(p []float64) float64 {
	amp, sigma, eta := p[0], p[2], p[3]

	return amp * sigma * (eta*math.Pi + (1-eta)*sqrt2Pi)
}

func (pseudoVoigtShape) FWHM(p []float64) float64 { return FWHMFactor * p[2] }

func (pseudoVoigtShape) Guess(height, center, sigma float64) []float64 {
	return []float64{height, center, sigma, 0.3}
}

func (pseudoVoigtShape) Bounds(height, center, sigma float64) (lo, hi []float64) {
	lo = []float64{ampLoFactor * height, center - centerTolKeV, widthLoFactor * sigma, 0}
	hi = []float64{ampHiFactor * height, center + centerTolKeV, widthHiFactor * sigma, 1}

	return lo, hi
}

type hypermetShape struct{}

func (hypermetShape) Kind() Kind     { return KindHypermet }
func (hypermetShape) NumParams() int { return 5 }

func (hypermetShape) ParamNames() []string {
	return []string{"amplitude", "center", "sigma", "tail_amplitude", "tail_slope"}
}

func (hypermetShape) Eval(dst, x, p []float64) {
	amp, center, sigma, tailAmp, tailSlope := p[0], p[1], p[2], p[3], p[4]
	s2 := sigma * sigma

	for i, xi := range x {
		d := xi - center
		v := amp * math.Exp(-0.5*d*d/s2)
		if d < 0 {
			v += amp * tailAmp * math.Exp(tailSlope*d)
		}

		dst[i] = v
	}
}

func (hypermetShape) Area(p []float64) float64 {
	amp, sigma, tailAmp, tailSlope := p[0], p[2], p[3], p[4]

	area := amp * sigma * sqrt2Pi
	if tailSlope > 0 {
		area += amp * tailAmp / tailSlope
	}

	return area
}

func (hypermetShape) FWHM(p []float64) float64 { return FWHMFactor * p[2] }

func (hypermetShape) Guess(height, center, sigma float64) []float64 {
	return []float64{height, center, sigma, 0.1, 2.0}
}

func (hypermetShape) Bounds(height, center, sigma float64) (lo, hi []float64) {
	lo = []float64{ampLoFactor * height, center - centerTolKeV, widthLoFactor * sigma, 0, 0.5}
	hi = []float64{ampHiFactor * height, center + centerTolKeV, widthHiFactor * sigma, 0.5, 10}

	return lo, hi
}

type tailGaussianShape struct{}

func (tailGaussianShape) Kind() Kind     { return KindTailGaussian }
func (tailGaussianShape) NumParams() int { return 5 }

func (tailGaussianShape) ParamNames() []string {
	return []string{"amplitude", "center", "sigma", "tail_fraction", "tail_sigma"}
}

// Eval mixes the main Gaussian with a wider tail Gaussian shifted half a
// sigma toward low energy.
func (tailGaussianShape) Eval(dst, x, p []float64) {
	amp, center, sigma, tailFrac, tailSigma := p[0], p[1], p[2], p[3], p[4]
	tailCenter := center - 0.5*sigma
	s2 := sigma * sigma
	t2 := tailSigma * tailSigma

	for i, xi := range x {
		d := xi - center
		dt := xi - tailCenter
		main := (1 - tailFrac) * amp * math.Exp(-0.5*d*d/s2)
		tail := tailFrac * amp * math.Exp(-0.5*dt*dt/t2)
		dst[i] = main + tail
	}
}

func (tailGaussianShape) Area(p []float64) float64 {
	amp, sigma, tailFrac, tailSigma := p[0], p[2], p[3], p[4]

	return amp * sqrt2Pi * ((1-tailFrac)*sigma + tailFrac*tailSigma)
}

func (tailGaussianShape) FWHM(p []float64) float64 { return FWHMFactor * p[2] }

func (tailGaussianShape) Guess(height, center, sigma float64) []float64 {
	return []float64{height, center, sigma, 0.15, 3 * sigma}
}

func (tailGaussianShape) Bounds(height, center, sigma float64) (lo, hi []float64) {
	lo = []float64{ampLoFactor * height, center - centerTolKeV, widthLoFactor * sigma, 0, sigma}
	hi = []float64{ampHiFactor * height, center + centerTolKeV, widthHiFactor * sigma, 0.5, 10 * sigma}

	return lo, hi
}
