package intensity

import (
	"fmt"

	"github.com/cwbudde/algo-xrf/background"
	"github.com/cwbudde/algo-xrf/xline"
)

// measureWindowKeV is the half width searched for each line's local maximum.
const measureWindowKeV = 0.3

// MeasuredLines returns a copy of lines with RelativeRate replaced by the
// background-subtracted local maximum near each line energy. This is the
// quick calibration path: when no fundamental-parameters prediction is
// available, the expected intensities are read straight off the reference
// spectrum. Lines outside the energy axis are dropped.
func MeasuredLines(energy, counts []float64, lines []xline.ElementLine, bg background.Config) ([]xline.ElementLine, error) {
	if len(energy) == 0 {
		return nil, ErrEmptyInput
	}

	if len(energy) != len(counts) {
		return nil, ErrLengthMismatch
	}

	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	curve, err := background.Estimate(energy, counts, bg)
	if err != nil {
		return nil, fmt.Errorf("intensity: background: %w", err)
	}

	net := background.Subtract(counts, curve)

	measured := make([]xline.ElementLine, 0, len(lines))

	for _, line := range lines {
		height, ok := localMax(energy, net, line.EnergyKeV, measureWindowKeV)
		if !ok || height <= 0 {
			continue
		}

		line.RelativeRate = height
		measured = append(measured, line)
	}

	if len(measured) == 0 {
		return nil, fmt.Errorf("%w: none measurable", ErrNoLines)
	}

	return measured, nil
}

// localMax finds the strongest channel within +/-window keV of center.
func localMax(energy, counts []float64, center, window float64) (float64, bool) {
	height := 0.0
	found := false

	for i, e := range energy {
		if e < center-window || e > center+window {
			continue
		}

		if !found || counts[i] > height {
			height = counts[i]
			found = true
		}
	}

	return height, found
}
