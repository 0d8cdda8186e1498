// Package spectrum provides the energy-dispersive spectrum value type shared
// by the background, fitting, and calibration packages.
//
// A Spectrum pairs a strictly increasing energy axis (keV) with the detector
// counts recorded at each channel. Spectra are treated as immutable once
// constructed: all consumers read them by reference and return new slices.
package spectrum

import (
	"errors"

	vecmath "github.com/cwbudde/algo-vecmath"
)

// Errors returned by spectrum construction.
var (
	ErrEmpty          = errors.New("spectrum: empty spectrum")
	ErrLengthMismatch = errors.New("spectrum: energy and counts length mismatch")
	ErrNotIncreasing  = errors.New("spectrum: energy axis must be strictly increasing")
	ErrNegativeCounts = errors.New("spectrum: counts must be non-negative")
)

// Spectrum holds an energy-indexed count array.
type Spectrum struct {
	Energy []float64 // keV, strictly increasing
	Counts []float64 // detector counts, non-negative
}

// New validates the channel data and returns a Spectrum.
// The slices are referenced, not copied; the caller retains ownership.
func New(energy, counts []float64) (Spectrum, error) {
	if len(energy) == 0 {
		return Spectrum{}, ErrEmpty
	}

	if len(energy) != len(counts) {
		return Spectrum{}, ErrLengthMismatch
	}

	for i := 1; i < len(energy); i++ {
		if energy[i] <= energy[i-1] {
			return Spectrum{}, ErrNotIncreasing
		}
	}

	for _, c := range counts {
		if c < 0 {
			return Spectrum{}, ErrNegativeCounts
		}
	}

	return Spectrum{Energy: energy, Counts: counts}, nil
}

// Channels returns the number of channels.
func (s Spectrum) Channels() int {
	return len(s.Energy)
}

// EnergyRange returns the first and last energy of the axis in keV.
func (s Spectrum) EnergyRange() (lo, hi float64) {
	if len(s.Energy) == 0 {
		return 0, 0
	}

	return s.Energy[0], s.Energy[len(s.Energy)-1]
}

// TotalCounts returns the sum over all channels.
func (s Spectrum) TotalCounts() float64 {
	if len(s.Counts) == 0 {
		return 0
	}

	return vecmath.Sum(s.Counts)
}

// MaxCounts returns the largest channel value and its index.
func (s Spectrum) MaxCounts() (value float64, index int) {
	if len(s.Counts) == 0 {
		return 0, -1
	}

	value = s.Counts[0]
	for i, c := range s.Counts {
		if c > value {
			value = c
			index = i
		}
	}

	return value, index
}

// Calibration returns the linear energy calibration (offset, gain) assuming
// uniform channel spacing, such that E = offset + gain*channel.
func (s Spectrum) Calibration() (offset, gain float64) {
	n := len(s.Energy)
	if n < 2 {
		return 0, 1
	}

	gain = (s.Energy[n-1] - s.Energy[0]) / float64(n-1)

	return s.Energy[0], gain
}

// Window returns the index range [lo, hi) of channels whose energy lies
// within ±width of center. The range may be empty.
func (s Spectrum) Window(center, width float64) (lo, hi int) {
	for lo = 0; lo < len(s.Energy) && s.Energy[lo] <= center-width; lo++ {
	}

	for hi = lo; hi < len(s.Energy) && s.Energy[hi] < center+width; hi++ {
	}

	return lo, hi
}
