package resolution

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-xrf/background"
	"github.com/cwbudde/algo-xrf/internal/lsq"
	"github.com/cwbudde/algo-xrf/peakfit"
	"github.com/cwbudde/algo-xrf/peakshape"
)

// Errors returned by the calibrator.
var (
	ErrInsufficientPeaks = errors.New("resolution: too few calibration peaks")
	ErrNoModels          = errors.New("resolution: no candidate models")
)

// Point is one accepted calibration measurement.
type Point struct {
	Energy float64 // line energy, keV
	FWHM   float64 // fitted width, keV
	Counts float64 // peak height after background subtraction
}

// Rejection records a candidate line that did not yield a usable width.
type Rejection struct {
	Energy float64
	Reason string
}

// Config tunes peak acceptance during calibration.
type Config struct {
	// SearchWindow is the half width (keV) around each nominal line energy
	// searched for the actual peak maximum. Default 0.3.
	SearchWindow float64

	// MinCounts rejects peaks weaker than this height. Default 80, raised
	// to MinCountsHighE above HighEnergyCutoff where the continuum is low
	// but escape artifacts are common.
	MinCounts      float64
	MinCountsHighE float64 // default 150

	// HighEnergyCutoff in keV. Default 10.
	HighEnergyCutoff float64

	// MinRSquared rejects poor single-peak fits. Default 0.85.
	MinRSquared float64

	// FWHMMin and FWHMMax bracket physically plausible widths in keV.
	// Defaults 0.080 and 0.300.
	FWHMMin, FWHMMax float64

	// OutlierSigma is the residual threshold for outlier removal against a
	// provisional detector-model fit. Default 3. Outlier removal needs
	// more than MinOutlierPoints accepted points. Default 5.
	OutlierSigma     float64
	MinOutlierPoints int

	// Background is the estimator applied before peak fitting.
	// Zero value means SNIP defaults.
	Background background.Config
}

// DefaultConfig returns the standard acceptance thresholds.
func DefaultConfig() Config {
	return Config{
		SearchWindow:     0.3,
		MinCounts:        80,
		MinCountsHighE:   150,
		HighEnergyCutoff: 10,
		MinRSquared:      0.85,
		FWHMMin:          0.080,
		FWHMMax:          0.300,
		OutlierSigma:     3,
		MinOutlierPoints: 5,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()

	if cfg.SearchWindow <= 0 {
		cfg.SearchWindow = def.SearchWindow
	}

	if cfg.MinCounts <= 0 {
		cfg.MinCounts = def.MinCounts
	}

	if cfg.MinCountsHighE <= 0 {
		cfg.MinCountsHighE = def.MinCountsHighE
	}

	if cfg.HighEnergyCutoff <= 0 {
		cfg.HighEnergyCutoff = def.HighEnergyCutoff
	}

	if cfg.MinRSquared <= 0 {
		cfg.MinRSquared = def.MinRSquared
	}

	if cfg.FWHMMin <= 0 {
		cfg.FWHMMin = def.FWHMMin
	}

	if cfg.FWHMMax <= 0 {
		cfg.FWHMMax = def.FWHMMax
	}

	if cfg.OutlierSigma <= 0 {
		cfg.OutlierSigma = def.OutlierSigma
	}

	if cfg.MinOutlierPoints <= 0 {
		cfg.MinOutlierPoints = def.MinOutlierPoints
	}

	return cfg
}

// Calibrator accumulates FWHM measurements from reference spectra and fits
// resolution models to them.
type Calibrator struct {
	cfg Config

	points  []Point
	rejects []Rejection
}

// NewCalibrator returns a calibrator with the given acceptance thresholds.
func NewCalibrator(cfg Config) *Calibrator {
	return &Calibrator{cfg: normalizeConfig(cfg)}
}

// Points returns the accepted measurements so far.
func (c *Calibrator) Points() []Point { return c.points }

// Rejections returns the diagnostics for lines that were not accepted.
func (c *Calibrator) Rejections() []Rejection { return c.rejects }

// AddPoint records an externally measured calibration point, bypassing the
// acceptance filters.
func (c *Calibrator) AddPoint(p Point) {
	c.points = append(c.points, p)
}

// AddReference measures the FWHM of each nominal line energy in a reference
// spectrum and accepts the ones passing the quality filters.
func (c *Calibrator) AddReference(energy, counts []float64, lines []float64) error {
	bg, err := background.Estimate(energy, counts, c.cfg.Background)
	if err != nil {
		return fmt.Errorf("resolution: background: %w", err)
	}

	net := background.Subtract(counts, bg)

	fitCfg := peakfit.Config{Shape: peakshape.KindGaussian}

	for _, nominal := range lines {
		center, height, ok := localMax(energy, net, nominal, c.cfg.SearchWindow)
		if !ok {
			c.reject(nominal, "outside spectrum range")
			continue
		}

		minCounts := c.cfg.MinCounts
		if nominal > c.cfg.HighEnergyCutoff {
			minCounts = c.cfg.MinCountsHighE
		}

		if height < minCounts {
			c.reject(nominal, fmt.Sprintf("weak peak: %.0f counts < %.0f", height, minCounts))
			continue
		}

		peak, err := peakfit.FitSingle(energy, net, center, fitCfg)
		if err != nil {
			c.reject(nominal, err.Error())
			continue
		}

		if peak.RSquared < c.cfg.MinRSquared {
			c.reject(nominal, fmt.Sprintf("poor fit: R2 %.3f", peak.RSquared))
			continue
		}

		if peak.FWHM <= c.cfg.FWHMMin || peak.FWHM >= c.cfg.FWHMMax {
			c.reject(nominal, fmt.Sprintf("implausible width: %.0f eV", peak.FWHM*1000))
			continue
		}

		c.points = append(c.points, Point{
			Energy: peak.Energy,
			FWHM:   peak.FWHM,
			Counts: height,
		})
	}

	return nil
}

func (c *Calibrator) reject(energy float64, reason string) {
	c.rejects = append(c.rejects, Rejection{Energy: energy, Reason: reason})
}

// localMax finds the strongest channel within +/-window keV of nominal.
func localMax(energy, counts []float64, nominal, window float64) (center, height float64, ok bool) {
	found := false

	for i, e := range energy {
		if e < nominal-window || e > nominal+window {
			continue
		}

		if !found || counts[i] > height {
			center = e
			height = counts[i]
			found = true
		}
	}

	return center, height, found
}

// RemoveOutliers fits a provisional detector model and drops points whose
// residual exceeds OutlierSigma standard deviations. It is a no-op when too
// few points are available for the residual spread to mean anything.
func (c *Calibrator) RemoveOutliers() []Point {
	if len(c.points) <= c.cfg.MinOutlierPoints {
		return nil
	}

	model, err := c.FitModel(KindDetector)
	if err != nil {
		return nil
	}

	k := KindDetector
	params := model.paramVector(k)

	resid := make([]float64, len(c.points))
	pred := make([]float64, 1)

	for i, p := range c.points {
		k.Eval(pred, []float64{p.Energy}, params)
		resid[i] = p.FWHM - pred[0]
	}

	center, sigma := residualSpread(resid)
	if sigma == 0 || math.IsNaN(sigma) {
		return nil
	}

	var removed []Point

	kept := c.points[:0]

	for i, p := range c.points {
		if math.Abs(resid[i]-center) > c.cfg.OutlierSigma*sigma {
			removed = append(removed, p)
			continue
		}

		kept = append(kept, p)
	}

	c.points = kept

	return removed
}

// residualSpread returns the median residual and a robust scale estimate
// derived from the median absolute deviation.
func residualSpread(resid []float64) (center, sigma float64) {
	sorted := make([]float64, len(resid))
	copy(sorted, resid)
	sort.Float64s(sorted)

	center = stat.Quantile(0.5, stat.Empirical, sorted, nil)

	dev := make([]float64, len(resid))
	for i, r := range resid {
		dev[i] = math.Abs(r - center)
	}

	sort.Float64s(dev)

	// 1.4826 scales the MAD to the standard deviation of a normal law.
	sigma = 1.4826 * stat.Quantile(0.5, stat.Empirical, dev, nil)
	if sigma == 0 {
		_, sigma = stat.MeanStdDev(resid, nil)
	}

	return center, sigma
}

// FitModel fits one model family to the accepted points.
func (c *Calibrator) FitModel(kind Kind) (*Model, error) {
	names := kind.ParamNames()
	if names == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownModel, kind)
	}

	if len(c.points) < 3 || len(c.points) < len(names) {
		return nil, fmt.Errorf("%w: %d points", ErrInsufficientPeaks, len(c.points))
	}

	n := len(c.points)
	x := make([]float64, n)
	y := make([]float64, n)
	eMin, eMax := math.Inf(1), math.Inf(-1)

	for i, p := range c.points {
		x[i] = p.Energy
		y[i] = p.FWHM
		eMin = math.Min(eMin, p.Energy)
		eMax = math.Max(eMax, p.Energy)
	}

	p0, lo, hi := kind.guess()

	result, err := lsq.CurveFit(lsq.Problem{
		Model: kind.Eval,
		X:     x,
		Y:     y,
		Lower: lo,
		Upper: hi,
	}, p0, lsq.Settings{})
	if err != nil {
		return nil, fmt.Errorf("resolution: fit %v model: %w", kind, err)
	}

	params := make(map[string]float64, len(names))
	paramErrs := make(map[string]float64, len(names))

	for i, name := range names {
		params[name] = result.Params[i]
		paramErrs[name] = result.ParamErrors[i]
	}

	k := float64(len(names))
	nf := float64(n)
	ss := math.Max(result.SSRes, 1e-300)

	model := &Model{
		Type:            kind.String(),
		Parameters:      params,
		ParameterErrors: paramErrs,
		RSquared:        result.RSquared,
		RMSE:            math.Sqrt(result.SSRes / nf),
		AIC:             nf*math.Log(ss/nf) + 2*k,
		BIC:             nf*math.Log(ss/nf) + k*math.Log(nf),
		NPeaks:          n,
		EnergyRange:     [2]float64{eMin, eMax},
		CalibrationDate: time.Now().Format(time.RFC3339),
	}

	return model, nil
}

// Comparison is one candidate model with its selection scores, ordered best
// first by CompareModels.
type Comparison struct {
	Model *Model
	Err   error // non-nil when the family could not be fitted
}

// CompareModels fits each candidate family and orders the successful fits by
// AIC, breaking ties with BIC. Families that fail to fit stay at the end
// with their error.
func (c *Calibrator) CompareModels(kinds ...Kind) ([]Comparison, error) {
	if len(kinds) == 0 {
		kinds = Kinds()
	}

	comparisons := make([]Comparison, 0, len(kinds))

	for _, kind := range kinds {
		model, err := c.FitModel(kind)
		comparisons = append(comparisons, Comparison{Model: model, Err: err})
	}

	// Insertion sort: failed fits sink, then AIC ascending, then BIC.
	for i := 1; i < len(comparisons); i++ {
		for j := i; j > 0 && lessComparison(comparisons[j], comparisons[j-1]); j-- {
			comparisons[j], comparisons[j-1] = comparisons[j-1], comparisons[j]
		}
	}

	if comparisons[0].Err != nil {
		return comparisons, comparisons[0].Err
	}

	return comparisons, nil
}

func lessComparison(a, b Comparison) bool {
	if (a.Err == nil) != (b.Err == nil) {
		return a.Err == nil
	}

	if a.Err != nil {
		return false
	}

	if a.Model.AIC != b.Model.AIC {
		return a.Model.AIC < b.Model.AIC
	}

	return a.Model.BIC < b.Model.BIC
}

// Calibrate removes outliers and returns the best model among the candidate
// families, defaulting to all of them.
func (c *Calibrator) Calibrate(kinds ...Kind) (*Model, error) {
	c.RemoveOutliers()

	comparisons, err := c.CompareModels(kinds...)
	if err != nil {
		return nil, err
	}

	return comparisons[0].Model, nil
}
