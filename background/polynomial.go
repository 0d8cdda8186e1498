package background

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrMaskTooTight is returned when the mask leaves fewer points than the
// polynomial has coefficients.
var ErrMaskTooTight = errors.New("background: mask excludes too many channels")

// polynomial fits a degree-d polynomial in energy to the unmasked channels
// and evaluates it over the full axis. mask[i] == true excludes channel i
// (a peak region) from the fit; a nil mask fits all channels.
func polynomial(energy, counts []float64, degree int, mask []bool) ([]float64, error) {
	n := len(counts)
	cols := degree + 1

	kept := 0

	for i := 0; i < n; i++ {
		if len(mask) != n || !mask[i] {
			kept++
		}
	}

	if kept < cols {
		return nil, ErrMaskTooTight
	}

	// Center and scale the energy axis to keep the Vandermonde matrix
	// well conditioned at higher degrees.
	eMin, eMax := energy[0], energy[n-1]
	scale := eMax - eMin
	if scale == 0 {
		scale = 1
	}

	a := mat.NewDense(kept, cols, nil)
	b := mat.NewVecDense(kept, nil)

	row := 0

	for i := 0; i < n; i++ {
		if len(mask) == n && mask[i] {
			continue
		}

		t := (energy[i] - eMin) / scale
		v := 1.0

		for j := 0; j < cols; j++ {
			a.Set(row, j, v)
			v *= t
		}

		b.SetVec(row, counts[i])
		row++
	}

	var coef mat.VecDense
	if err := coef.SolveVec(a, b); err != nil {
		return nil, ErrSolveFailed
	}

	bg := make([]float64, n)

	for i := 0; i < n; i++ {
		t := (energy[i] - eMin) / scale
		v := 0.0

		for j := cols - 1; j >= 0; j-- {
			v = v*t + coef.AtVec(j)
		}

		if v < 0 {
			v = 0
		}

		bg[i] = v
	}

	return bg, nil
}
