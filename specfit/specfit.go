// Package specfit decomposes a full XRF spectrum: it estimates the
// continuum, fits every expected emission line of the sample's elements,
// and reconstructs the model spectrum with goodness-of-fit statistics.
package specfit

import (
	"errors"
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-xrf/background"
	"github.com/cwbudde/algo-xrf/peakfit"
	"github.com/cwbudde/algo-xrf/peakshape"
	"github.com/cwbudde/algo-xrf/spectrum"
	"github.com/cwbudde/algo-xrf/xline"
)

// Errors returned by Fit.
var (
	ErrNoSource   = errors.New("specfit: no emission-line source configured")
	ErrNoElements = errors.New("specfit: no elements to fit")
)

// Config assembles the decomposition pipeline.
type Config struct {
	// Source resolves element symbols to their emission lines. Required.
	Source xline.Source

	// Background selects the continuum estimator. Zero value means SNIP.
	Background background.Config

	// Peak configures the per-line fitter. Zero value means Gaussian
	// profiles with the default detector response.
	Peak peakfit.Config

	// MinRelativeRate skips lines weaker than this fraction of the
	// element's strongest line. Default 0.05.
	MinRelativeRate float64
}

func normalizeConfig(cfg Config) Config {
	if cfg.MinRelativeRate <= 0 {
		cfg.MinRelativeRate = 0.05
	}

	return cfg
}

// Result is a decomposed spectrum.
type Result struct {
	// Background is the estimated continuum, one value per channel.
	Background []float64

	// Peaks holds the fitted lines, labeled with element and line name.
	Peaks []peakfit.Peak

	// Skipped records lines that fell outside the spectrum or failed to
	// fit.
	Skipped []peakfit.Skip

	// Model is the reconstruction: background plus every fitted peak.
	Model []float64

	ChiSquared        float64
	ChiSquaredReduced float64
	RSquared          float64
}

// Fit decomposes spec assuming the given elements are present.
func Fit(spec spectrum.Spectrum, elements []string, cfg Config) (*Result, error) {
	if cfg.Source == nil {
		return nil, ErrNoSource
	}

	if len(elements) == 0 {
		return nil, ErrNoElements
	}

	cfg = normalizeConfig(cfg)

	bg, err := background.Estimate(spec.Energy, spec.Counts, cfg.Background)
	if err != nil {
		return nil, fmt.Errorf("specfit: background: %w", err)
	}

	net := background.Subtract(spec.Counts, bg)
	eMin, eMax := spec.EnergyRange()

	result := &Result{Background: bg}

	var candidates []xline.ElementLine

	for _, element := range elements {
		lines, err := cfg.Source.Lines(element)
		if err != nil {
			return nil, fmt.Errorf("specfit: %w", err)
		}

		maxRate := 0.0
		for _, l := range lines {
			if l.RelativeRate > maxRate {
				maxRate = l.RelativeRate
			}
		}

		for _, line := range lines {
			if line.EnergyKeV < eMin || line.EnergyKeV > eMax {
				continue
			}

			if maxRate > 0 && line.RelativeRate < cfg.MinRelativeRate*maxRate {
				continue
			}

			candidates = append(candidates, line)
		}
	}

	// Fit the currently tallest line first and strip its profile from the
	// working counts, so weak lines are not fitted against the flanks of
	// strong neighbors sharing their window.
	working := make([]float64, len(net))
	copy(working, net)

	buf := make([]float64, len(net))

	for len(candidates) > 0 {
		next := tallestCandidate(spec.Energy, working, candidates)
		line := candidates[next]
		candidates = append(candidates[:next], candidates[next+1:]...)

		peak, err := peakfit.FitSingle(spec.Energy, working, line.EnergyKeV, cfg.Peak)
		if err != nil {
			result.Skipped = append(result.Skipped, peakfit.Skip{
				Center: line.EnergyKeV,
				Reason: err,
			})

			continue
		}

		peak.Element = line.Element
		peak.Line = line.Line
		result.Peaks = append(result.Peaks, peak)

		if shape, err := peakshape.Lookup(peak.Shape); err == nil {
			shape.Eval(buf, spec.Energy, peak.Params)

			for i := range working {
				working[i] -= buf[i]
			}
		}
	}

	result.Model = reconstruct(spec.Energy, bg, result.Peaks)
	result.ChiSquared, result.ChiSquaredReduced, result.RSquared =
		statistics(spec.Counts, result.Model, len(result.Peaks))

	return result, nil
}

// tallestCandidate returns the index of the line with the highest working
// counts at its nominal energy.
func tallestCandidate(energy, working []float64, candidates []xline.ElementLine) int {
	best := 0
	bestHeight := math.Inf(-1)

	for i, line := range candidates {
		h := working[nearestChannel(energy, line.EnergyKeV)]
		if h > bestHeight {
			best = i
			bestHeight = h
		}
	}

	return best
}

func nearestChannel(energy []float64, e float64) int {
	idx := 0
	for idx < len(energy)-1 && energy[idx] < e {
		idx++
	}

	if idx > 0 && e-energy[idx-1] < energy[idx]-e {
		return idx - 1
	}

	return idx
}

// reconstruct sums the background and every fitted profile over the axis.
func reconstruct(energy, bg []float64, peaks []peakfit.Peak) []float64 {
	model := make([]float64, len(energy))
	copy(model, bg)

	buf := make([]float64, len(energy))

	for _, peak := range peaks {
		shape, err := peakshape.Lookup(peak.Shape)
		if err != nil {
			continue
		}

		shape.Eval(buf, energy, peak.Params)
		vecmath.AddBlockInPlace(model, buf)
	}

	return model
}

// statistics computes Poisson chi-squared, its reduced form, and R-squared.
// Degrees of freedom: channels minus three parameters per peak minus one for
// the background.
func statistics(counts, model []float64, numPeaks int) (chi2, chi2Red, r2 float64) {
	n := len(counts)

	mean := vecmath.Sum(counts) / float64(n)

	ssRes := 0.0
	ssTot := 0.0

	for i := range counts {
		r := counts[i] - model[i]
		chi2 += r * r / math.Max(model[i], 1)
		ssRes += r * r
		d := counts[i] - mean
		ssTot += d * d
	}

	dof := n - (3*numPeaks + 1)
	if dof > 0 {
		chi2Red = chi2 / float64(dof)
	}

	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	return chi2, chi2Red, r2
}

// Quantify converts fitted peak areas into relative element fractions,
// summing each element's lines and normalizing. Elements in exclude (the
// tube anode, for instance) are dropped before normalizing.
func (r *Result) Quantify(exclude map[string]bool) map[string]float64 {
	areas := make(map[string]float64)
	total := 0.0

	for _, peak := range r.Peaks {
		if peak.Element == "" || exclude[peak.Element] {
			continue
		}

		if peak.Area <= 0 {
			continue
		}

		areas[peak.Element] += peak.Area
		total += peak.Area
	}

	if total == 0 {
		return areas
	}

	for element := range areas {
		areas[element] /= total
	}

	return areas
}
