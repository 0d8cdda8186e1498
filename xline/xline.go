// Package xline defines the element emission-line value type and the narrow
// interfaces through which external physics collaborators supply line data.
//
// The atomic-physics tables and the fundamental-parameters engine themselves
// live outside this module; the calibrators consume them as opaque oracles.
package xline

// ElementLine describes one characteristic emission line.
// Instances are read-only input data and are never mutated by this module.
type ElementLine struct {
	Element      string  // element symbol, e.g. "Fe"
	Line         string  // line name, e.g. "Ka1"
	EnergyKeV    float64 // emission energy in keV
	RelativeRate float64 // expected relative intensity, arbitrary units
}

// Source supplies reference emission lines for an element, typically backed
// by an atomic-physics table.
type Source interface {
	// Lines returns the known emission lines for the element symbol,
	// ordered by energy. An unknown element returns an error.
	Lines(element string) ([]ElementLine, error)
}

// Geometry describes the excitation/detection geometry handed to a
// fundamental-parameters predictor.
type Geometry struct {
	IncidentAngleDeg float64
	TakeoffAngleDeg  float64
}

// Predictor computes expected emission-line intensities from a sample
// composition. Implementations wrap a fundamental-parameters engine that
// handles matrix absorption and secondary/tertiary fluorescence; this module
// treats the computation as fully delegated.
type Predictor interface {
	// PredictIntensities returns one ElementLine per expected emission line,
	// with RelativeRate filled in, for the given composition (element symbol
	// to mass fraction) under the given excitation energy and geometry.
	PredictIntensities(composition map[string]float64, excitationKeV float64, geom Geometry) ([]ElementLine, error)
}

// Static is a fixed in-memory Source, useful for hardcoded reference-line
// tables and for tests.
type Static map[string][]ElementLine

// Lines implements Source.
func (s Static) Lines(element string) ([]ElementLine, error) {
	lines, ok := s[element]
	if !ok {
		return nil, &UnknownElementError{Element: element}
	}

	return lines, nil
}

// UnknownElementError reports a symbol missing from a Static source.
type UnknownElementError struct {
	Element string
}

func (e *UnknownElementError) Error() string {
	return "xline: unknown element " + e.Element
}
