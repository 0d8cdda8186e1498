package lsq

import "math"

// BoxTransform maps box-constrained parameters onto an unbounded space via a
// logistic squashing, so that unconstrained quasi-Newton minimizers can
// honor per-parameter bounds. A parameter with Lower == Upper is held fixed.
type BoxTransform struct {
	Lower, Upper []float64
}

// ToUnbounded maps bounded parameters p into unbounded coordinates u with
// p = lower + (upper-lower)*sigmoid(u). Values outside the box are clamped
// just inside it first.
func (t BoxTransform) ToUnbounded(p []float64) []float64 {
	u := make([]float64, len(p))

	for i := range p {
		lo, hi := t.Lower[i], t.Upper[i]
		if hi <= lo {
			u[i] = 0
			continue
		}

		frac := (p[i] - lo) / (hi - lo)
		frac = math.Min(math.Max(frac, 1e-9), 1-1e-9)
		u[i] = math.Log(frac / (1 - frac))
	}

	return u
}

// FromUnbounded maps unbounded coordinates back into the box.
func (t BoxTransform) FromUnbounded(u []float64) []float64 {
	p := make([]float64, len(u))
	t.FromUnboundedTo(p, u)

	return p
}

// FromUnboundedTo is the allocation-free variant of FromUnbounded.
func (t BoxTransform) FromUnboundedTo(dst, u []float64) {
	for i := range u {
		lo, hi := t.Lower[i], t.Upper[i]
		if hi <= lo {
			dst[i] = lo
			continue
		}

		dst[i] = lo + (hi-lo)/(1+math.Exp(-u[i]))
	}
}
