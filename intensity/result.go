package intensity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrBadResultFile is returned by Load for files Save did not write.
var ErrBadResultFile = errors.New("intensity: malformed calibration file")

// Result is a fitted intensity calibration, serializable to JSON.
type Result struct {
	FWHM0   float64 `json:"fwhm_0"`
	Epsilon float64 `json:"epsilon"`

	// Efficiency holds the quadratic detection-efficiency coefficients
	// [a, b, c] for eff(E) = a + b*E + c*E^2, clamped to [0.1, 1.5].
	Efficiency [3]float64 `json:"efficiency_params"`

	IntensityScale float64 `json:"intensity_scale"`
	ScatterScale   float64 `json:"scatter_scale"`

	ChiSquared float64 `json:"chi_squared"`
	RSquared   float64 `json:"r_squared"`

	Success bool   `json:"success"`
	Message string `json:"message"`

	FWHMModelType   string `json:"fwhm_model_type"`
	FWHMCalibration string `json:"fwhm_calibration"`
	CalibrationDate string `json:"calibration_date"`
}

// FWHM returns the calibrated detector FWHM (keV) at the given energy (keV).
func (r *Result) FWHM(energyKeV float64) float64 {
	return detectorFWHM(energyKeV, r.FWHM0, r.Epsilon)
}

// EfficiencyAt returns the clamped detection efficiency at the given energy.
func (r *Result) EfficiencyAt(energyKeV float64) float64 {
	return efficiency(energyKeV, r.Efficiency[0], r.Efficiency[1], r.Efficiency[2])
}

// Save writes the calibration as indented JSON.
func (r *Result) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("intensity: encode calibration: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("intensity: write calibration: %w", err)
	}

	return nil
}

// Load reads a calibration saved by Save and validates its parameters.
func Load(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("intensity: read calibration: %w", err)
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResultFile, err)
	}

	if r.FWHM0 <= 0 || r.Epsilon <= 0 ||
		math.IsNaN(r.FWHM0) || math.IsNaN(r.Epsilon) {
		return nil, fmt.Errorf("%w: non-physical detector parameters", ErrBadResultFile)
	}

	return &r, nil
}
