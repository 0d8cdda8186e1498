// Package background separates the smooth continuum from the characteristic
// peaks of an XRF spectrum.
//
// Several independent estimation methods are provided; all of them return a
// background curve the same length as the input counts, clamped to be
// non-negative, so that Subtract never produces negative net counts.
package background

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Errors returned by Estimate.
var (
	ErrUnknownMethod  = errors.New("background: unknown method")
	ErrEmptyInput     = errors.New("background: empty input")
	ErrLengthMismatch = errors.New("background: energy and counts length mismatch")
)

// Method selects a background estimation algorithm.
type Method int

const (
	// MethodSNIP is statistics-sensitive non-linear iterative peak-clipping.
	MethodSNIP Method = iota + 1

	// MethodAsLS is asymmetric least squares baseline regression, the most
	// robust choice for XRF where peaks sit strictly above the continuum.
	MethodAsLS

	// MethodPolynomial is a least-squares polynomial fit, optionally
	// excluding caller-supplied peak regions.
	MethodPolynomial

	// MethodLinear interpolates between the mean of the first and last
	// channels of the spectrum.
	MethodLinear

	// MethodAdaptive is a moving-window low-percentile filter followed by
	// Gaussian smoothing; aggressive, for sparse or weak peaks.
	MethodAdaptive

	// MethodNone returns a zero curve.
	MethodNone
)

var methodNames = map[string]Method{
	"snip":       MethodSNIP,
	"asls":       MethodAsLS,
	"als":        MethodAsLS,
	"polynomial": MethodPolynomial,
	"linear":     MethodLinear,
	"adaptive":   MethodAdaptive,
	"none":       MethodNone,
}

// ParseMethod resolves a method name.
func ParseMethod(name string) (Method, error) {
	if m, ok := methodNames[name]; ok {
		return m, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// String returns the canonical method name.
func (m Method) String() string {
	switch m {
	case MethodSNIP:
		return "snip"
	case MethodAsLS:
		return "asls"
	case MethodPolynomial:
		return "polynomial"
	case MethodLinear:
		return "linear"
	case MethodAdaptive:
		return "adaptive"
	case MethodNone:
		return "none"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// Config holds the per-method tuning parameters.
type Config struct {
	Method Method

	// SNIP.
	Iterations int // clipping window count, default 20

	// AsLS.
	Lambda         float64 // smoothness, typically 1e3-1e7, default 1e5
	Asymmetry      float64 // peak weight p, typically 0.001-0.05, default 0.01
	AsLSIterations int     // reweighting passes, default 10

	// Polynomial.
	Degree int    // default 3
	Mask   []bool // true marks peak channels excluded from the fit; optional

	// Linear. Negative indices select the default first/last 5% averages;
	// leaving both at zero selects the defaults as well.
	StartIndex, EndIndex int

	// Adaptive.
	WindowSize int     // moving window, default 50 channels
	Percentile float64 // default 5
}

// DefaultConfig returns the SNIP defaults.
func DefaultConfig() Config {
	return Config{
		Method:         MethodSNIP,
		Iterations:     20,
		Lambda:         1e5,
		Asymmetry:      0.01,
		AsLSIterations: 10,
		Degree:         3,
		StartIndex:     -1,
		EndIndex:       -1,
		WindowSize:     50,
		Percentile:     5,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()

	if cfg.Method == 0 {
		cfg.Method = def.Method
	}

	if cfg.Iterations <= 0 {
		cfg.Iterations = def.Iterations
	}

	if cfg.Lambda <= 0 {
		cfg.Lambda = def.Lambda
	}

	if cfg.Asymmetry <= 0 || cfg.Asymmetry >= 1 {
		cfg.Asymmetry = def.Asymmetry
	}

	if cfg.AsLSIterations <= 0 {
		cfg.AsLSIterations = def.AsLSIterations
	}

	if cfg.Degree < 0 {
		cfg.Degree = def.Degree
	}

	// Both indices zero is the zero-value Config, not a pair of channel-0
	// anchors.
	if cfg.StartIndex == 0 && cfg.EndIndex == 0 {
		cfg.StartIndex = def.StartIndex
		cfg.EndIndex = def.EndIndex
	}

	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}

	if cfg.Percentile <= 0 || cfg.Percentile >= 100 {
		cfg.Percentile = def.Percentile
	}

	return cfg
}

// Estimate computes the continuum background under counts.
// energy and counts must have equal, positive length.
func Estimate(energy, counts []float64, cfg Config) ([]float64, error) {
	if len(counts) == 0 {
		return nil, ErrEmptyInput
	}

	if len(energy) != len(counts) {
		return nil, ErrLengthMismatch
	}

	cfg = normalizeConfig(cfg)

	switch cfg.Method {
	case MethodSNIP:
		return snip(counts, cfg.Iterations), nil
	case MethodAsLS:
		return asls(counts, cfg.Lambda, cfg.Asymmetry, cfg.AsLSIterations)
	case MethodPolynomial:
		return polynomial(energy, counts, cfg.Degree, cfg.Mask)
	case MethodLinear:
		return linear(energy, counts, cfg.StartIndex, cfg.EndIndex), nil
	case MethodAdaptive:
		return adaptive(counts, cfg.WindowSize, cfg.Percentile)
	case MethodNone:
		return make([]float64, len(counts)), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownMethod, cfg.Method)
	}
}

// Subtract returns counts minus background, clamped element-wise at zero.
func Subtract(counts, bg []float64) []float64 {
	out := make([]float64, len(counts))

	for i := range counts {
		v := counts[i]
		if i < len(bg) {
			v -= bg[i]
		}

		if v < 0 {
			v = 0
		}

		out[i] = v
	}

	return out
}

// snip runs the peak-clipping iteration on LLS-transformed counts.
// Larger clipping windows run first so narrow peaks are clipped last.
func snip(counts []float64, iterations int) []float64 {
	n := len(counts)
	bg := make([]float64, n)

	for i, c := range counts {
		if c <= 0 {
			c = 1
		}

		// Log-log-sqrt transform compresses the dynamic range so the
		// clipping treats weak and strong regions alike.
		bg[i] = math.Log(math.Log(math.Sqrt(c+1)+1) + 1)
	}

	for window := iterations; window >= 1; window-- {
		for i := window; i < n-window; i++ {
			avg := 0.5 * (bg[i-window] + bg[i+window])
			if avg < bg[i] {
				bg[i] = avg
			}
		}
	}

	for i, v := range bg {
		w := math.Exp(math.Exp(v)-1) - 1
		w = w*w - 1
		if w < 0 {
			w = 0
		}

		bg[i] = w
	}

	return bg
}

// linear interpolates between two anchor points. Negative indices select the
// default anchors: the mean of the first and last 5% of channels.
func linear(energy, counts []float64, startIdx, endIdx int) []float64 {
	n := len(counts)

	var startValue, startEnergy float64
	if startIdx < 0 || startIdx >= n {
		k := n / 20
		if k < 1 {
			k = 1
		}

		startValue = mean(counts[:k])
		startEnergy = mean(energy[:k])
	} else {
		startValue = counts[startIdx]
		startEnergy = energy[startIdx]
	}

	var endValue, endEnergy float64
	if endIdx < 0 || endIdx >= n {
		k := n - n/20
		if k >= n {
			k = n - 1
		}

		endValue = mean(counts[k:])
		endEnergy = mean(energy[k:])
	} else {
		endValue = counts[endIdx]
		endEnergy = energy[endIdx]
	}

	bg := make([]float64, n)

	slope := 0.0
	if endEnergy != startEnergy {
		slope = (endValue - startValue) / (endEnergy - startEnergy)
	}

	for i := range bg {
		v := startValue + slope*(energy[i]-startEnergy)
		if v < 0 {
			v = 0
		}

		bg[i] = v
	}

	return bg
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range x {
		sum += v
	}

	return sum / float64(len(x))
}

// percentileFilter returns the q-th percentile over a centered moving window.
func percentileFilter(counts []float64, window int, q float64) []float64 {
	n := len(counts)
	out := make([]float64, n)
	buf := make([]float64, 0, window)
	half := window / 2

	for i := range counts {
		lo := i - half
		if lo < 0 {
			lo = 0
		}

		hi := i + half + 1
		if hi > n {
			hi = n
		}

		buf = append(buf[:0], counts[lo:hi]...)
		sort.Float64s(buf)

		idx := int(math.Round(q / 100 * float64(len(buf)-1)))
		out[i] = buf[idx]
	}

	return out
}
