// Package drift separates measured focal-plane motion into a calibrated
// component from the secondary relay objective (O2) and a residual component
// attributed to thermal expansion of the objective under study (O3), and
// fits the residual to a straight line in temperature.
//
// Units: depths and drifts are in µm, temperatures in °C, the reference
// length in mm. The slope is therefore µm/°C and the CLTE is 1/K.
package drift

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Error kinds reported by the fitter.
var (
	ErrInsufficientSamples = errors.New("at least two temperature samples are required")
	ErrDegenerateFit       = errors.New("temperature spread too small for a line fit")
	ErrInvalidReference    = errors.New("reference sample index out of range")
	ErrInvalidLength       = errors.New("reference length must be positive")
)

// Convention selects how absolute corrected depths are turned into shifts.
type Convention string

const (
	// ShiftFromMax expresses each sample as max(depth) - depth, so the
	// deepest focal plane has zero shift.
	ShiftFromMax Convention = "from_max"
	// ShiftFromMin expresses each sample as depth - min(depth).
	ShiftFromMin Convention = "from_min"
)

// Valid reports whether c is a known convention.
func (c Convention) Valid() bool {
	return c == ShiftFromMax || c == ShiftFromMin
}

// Default physical constants.
const (
	// DefaultCalibrationUmPerC is the measured focal drift of the O2
	// objective (Nikon 40x 0.95 air) per °C of O2 temperature.
	DefaultCalibrationUmPerC = 1.58
	// DefaultReferenceLengthMM is the mechanical length of the O3 objective.
	DefaultReferenceLengthMM = 108.15
)

// UmPerMM converts the reference length to the unit of the slope numerator.
const UmPerMM = 1e3

// Config holds the physical constants and baseline choices of a fit.
type Config struct {
	CalibrationUmPerC float64
	ReferenceLengthMM float64
	// ReferenceIndex is the sample whose O2 temperature defines zero known drift.
	ReferenceIndex int
	Convention     Convention
}

// DefaultConfig returns the constants used for the O3 objective study.
func DefaultConfig() Config {
	return Config{
		CalibrationUmPerC: DefaultCalibrationUmPerC,
		ReferenceLengthMM: DefaultReferenceLengthMM,
		Convention:        ShiftFromMax,
	}
}

// Observation is one temperature sample after focus detection.
type Observation struct {
	Temperature          float64 // averaged primary (stage) temperature, °C
	SecondaryTemperature float64 // averaged O2 temperature, °C
	FocalIndex           int
	FocalDepth           float64 // µm
}

// FocalEstimate is the per-sample drift decomposition.
type FocalEstimate struct {
	Index          int
	Depth          float64 // focal depth found in the data, µm
	KnownDrift     float64 // O2 drift relative to the reference sample, µm
	CorrectedDepth float64 // Depth + KnownDrift, µm
}

// KnownDrift returns the calibration drift of every sample relative to the
// reference sample. The reference entry is exactly zero.
func KnownDrift(secondary []float64, calibration float64, ref int) ([]float64, error) {
	if ref < 0 || ref >= len(secondary) {
		return nil, fmt.Errorf("index %d with %d samples: %w", ref, len(secondary), ErrInvalidReference)
	}
	out := make([]float64, len(secondary))
	base := secondary[ref]
	for i, t := range secondary {
		if i == ref {
			continue
		}
		out[i] = calibration * (t - base)
	}
	return out, nil
}

// Shift converts absolute depths into shifts under the given convention.
func Shift(depths []float64, c Convention) []float64 {
	out := make([]float64, len(depths))
	if len(depths) == 0 {
		return out
	}
	switch c {
	case ShiftFromMin:
		lo := floats.Min(depths)
		for i, d := range depths {
			out[i] = d - lo
		}
	default:
		hi := floats.Max(depths)
		for i, d := range depths {
			out[i] = hi - d
		}
	}
	return out
}

// CLTE converts an expansion rate in µm/°C into a coefficient of linear
// thermal expansion (1/K) for an element lengthMM long.
func CLTE(slopeUmPerC, lengthMM float64) (float64, error) {
	if !(lengthMM > 0) {
		return 0, fmt.Errorf("%g mm: %w", lengthMM, ErrInvalidLength)
	}
	return slopeUmPerC / (UmPerMM * lengthMM), nil
}

// Decompose computes the per-sample known drift and corrected depth.
func Decompose(obs []Observation, cfg Config) ([]FocalEstimate, error) {
	secondary := make([]float64, len(obs))
	for i, o := range obs {
		secondary[i] = o.SecondaryTemperature
	}
	known, err := KnownDrift(secondary, cfg.CalibrationUmPerC, cfg.ReferenceIndex)
	if err != nil {
		return nil, err
	}
	out := make([]FocalEstimate, len(obs))
	for i, o := range obs {
		out[i] = FocalEstimate{
			Index:          o.FocalIndex,
			Depth:          o.FocalDepth,
			KnownDrift:     known[i],
			CorrectedDepth: o.FocalDepth + known[i],
		}
	}
	return out, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
