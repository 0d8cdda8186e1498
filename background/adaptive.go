package background

import (
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// adaptive runs a moving-window low-percentile filter to track the continuum
// under sparse peaks, then smooths the result with a Gaussian kernel whose
// sigma is a quarter of the window.
func adaptive(counts []float64, window int, pct float64) ([]float64, error) {
	filtered := percentileFilter(counts, window, pct)

	bg, err := gaussianSmooth(filtered, float64(window)/4)
	if err != nil {
		return nil, err
	}

	for i, v := range bg {
		if v < 0 {
			v = 0
		}

		bg[i] = v
	}

	return bg, nil
}

// gaussianSmooth convolves signal with a normalized Gaussian kernel via FFT.
// The signal is reflect-padded by the kernel half width so the ends are not
// pulled toward zero.
func gaussianSmooth(signal []float64, sigma float64) ([]float64, error) {
	n := len(signal)
	if sigma <= 0 || n == 0 {
		out := make([]float64, n)
		copy(out, signal)

		return out, nil
	}

	r := int(math.Ceil(4 * sigma))
	if r < 1 {
		r = 1
	}

	kernel := make([]float64, 2*r+1)
	sum := 0.0

	for i := range kernel {
		d := float64(i - r)
		kernel[i] = math.Exp(-0.5 * d * d / (sigma * sigma))
		sum += kernel[i]
	}

	for i := range kernel {
		kernel[i] /= sum
	}

	padded := reflectPad(signal, r)

	fftSize := nextPow2(len(padded) + len(kernel) - 1)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, err
	}

	sigFreq := make([]complex128, fftSize)
	kerFreq := make([]complex128, fftSize)
	buf := make([]complex128, fftSize)

	for i, v := range padded {
		buf[i] = complex(v, 0)
	}

	if err := plan.Forward(sigFreq, buf); err != nil {
		return nil, err
	}

	for i := range buf {
		buf[i] = 0
	}

	for i, v := range kernel {
		buf[i] = complex(v, 0)
	}

	if err := plan.Forward(kerFreq, buf); err != nil {
		return nil, err
	}

	for i := range sigFreq {
		sigFreq[i] *= kerFreq[i]
	}

	if err := plan.Inverse(buf, sigFreq); err != nil {
		return nil, err
	}

	// The full convolution places original sample i at offset i+2r: r from
	// the padding and r from the kernel center.
	out := make([]float64, n)
	for i := range out {
		out[i] = real(buf[i+2*r])
	}

	return out, nil
}

// reflectPad mirrors r samples around each end of signal.
func reflectPad(signal []float64, r int) []float64 {
	n := len(signal)
	out := make([]float64, n+2*r)

	for i := 0; i < r; i++ {
		j := r - i
		if j >= n {
			j = n - 1
		}

		out[i] = signal[j]
	}

	copy(out[r:], signal)

	for i := 0; i < r; i++ {
		j := n - 2 - i
		if j < 0 {
			j = 0
		}

		out[n+r+i] = signal[j]
	}

	return out
}

func nextPow2(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}

	return size
}
