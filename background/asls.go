package background

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrSolveFailed is returned when the baseline system cannot be factorized.
var ErrSolveFailed = errors.New("background: baseline solve failed")

// asls computes an asymmetric least squares baseline after Eilers and
// Boelens. Each pass solves (W + lambda*D'D) z = W y for the baseline z,
// where D is the second-difference operator, then reweights: channels above
// the baseline (peaks) get weight p, channels below get 1-p.
//
// D'D is pentadiagonal, so the system is solved with a banded Cholesky
// factorization in O(n) per pass.
func asls(counts []float64, lambda, p float64, niter int) ([]float64, error) {
	n := len(counts)
	if n < 3 {
		out := make([]float64, n)
		copy(out, counts)

		return out, nil
	}

	// lambda*D'D, stored as the three upper diagonals of a symmetric band.
	diag0 := make([]float64, n)
	diag1 := make([]float64, n)
	diag2 := make([]float64, n)

	for j := 0; j+2 < n; j++ {
		diag0[j] += lambda
		diag0[j+1] += 4 * lambda
		diag0[j+2] += lambda
		diag1[j] -= 2 * lambda
		diag1[j+1] -= 2 * lambda
		diag2[j] += lambda
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}

	band := make([]float64, n*3)
	rhs := mat.NewVecDense(n, nil)
	z := mat.NewVecDense(n, nil)

	var chol mat.BandCholesky

	for iter := 0; iter < niter; iter++ {
		for i := 0; i < n; i++ {
			band[i*3] = diag0[i] + w[i]
			band[i*3+1] = diag1[i]
			band[i*3+2] = diag2[i]
			rhs.SetVec(i, w[i]*counts[i])
		}

		a := mat.NewSymBandDense(n, 2, band)
		if ok := chol.Factorize(a); !ok {
			return nil, ErrSolveFailed
		}

		if err := chol.SolveVecTo(z, rhs); err != nil {
			return nil, ErrSolveFailed
		}

		for i := 0; i < n; i++ {
			if counts[i] > z.AtVec(i) {
				w[i] = p
			} else {
				w[i] = 1 - p
			}
		}
	}

	bg := make([]float64, n)
	for i := range bg {
		v := z.AtVec(i)
		if v < 0 {
			v = 0
		}

		bg[i] = v
	}

	return bg, nil
}
