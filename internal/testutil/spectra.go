// Package testutil provides synthetic XRF spectra and tolerance assertions
// shared by the package tests.
package testutil

import (
	"math"
	"math/rand"
)

// Line is one synthetic emission line.
type Line struct {
	Center float64 // keV
	FWHM   float64 // keV
	Height float64 // counts at the peak
}

// EnergyAxis returns n channels evenly spaced from start with the given
// step, both in keV.
func EnergyAxis(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}

	return out
}

// Flat returns a constant continuum.
func Flat(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}

	return out
}

// ExponentialContinuum returns amplitude*exp(-energy/scale), the typical
// bremsstrahlung-like falling background.
func ExponentialContinuum(energy []float64, amplitude, scale float64) []float64 {
	out := make([]float64, len(energy))
	for i, e := range energy {
		out[i] = amplitude * math.Exp(-e/scale)
	}

	return out
}

// AddGaussian adds one Gaussian line to counts in place.
func AddGaussian(counts, energy []float64, line Line) {
	sigma := line.FWHM / 2.355
	inv := 1 / (2 * sigma * sigma)

	for i, e := range energy {
		d := e - line.Center
		counts[i] += line.Height * math.Exp(-d*d*inv)
	}
}

// Synthetic builds energy and counts for a spectrum with the given
// continuum and lines.
func Synthetic(start, step float64, n int, continuum float64, lines []Line) (energy, counts []float64) {
	energy = EnergyAxis(start, step, n)
	counts = Flat(continuum, n)

	for _, line := range lines {
		AddGaussian(counts, energy, line)
	}

	return energy, counts
}

// AddPoissonNoise replaces each count with a Poisson draw of that mean,
// seeded for reproducibility. Large means use the Gaussian approximation.
func AddPoissonNoise(counts []float64, seed int64) {
	rng := rand.New(rand.NewSource(seed))

	for i, mean := range counts {
		counts[i] = poisson(rng, mean)
	}
}

func poisson(rng *rand.Rand, mean float64) float64 {
	if mean <= 0 {
		return 0
	}

	if mean > 30 {
		v := mean + math.Sqrt(mean)*rng.NormFloat64()
		if v < 0 {
			v = 0
		}

		return math.Round(v)
	}

	// Knuth's method for small means.
	limit := math.Exp(-mean)
	k := 0
	p := 1.0

	for {
		p *= rng.Float64()
		if p <= limit {
			return float64(k)
		}

		k++
	}
}
