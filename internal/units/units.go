// Package units provides shared constants and conversions for the length
// and expansion units used in focus drift reports.
package units

import "fmt"

// Length unit constants
const (
	NM = "nm"
	UM = "um"
	MM = "mm"
	M  = "m"
)

// Expansion coefficient unit constants
const (
	PerK    = "per_k"
	PPMPerK = "ppm_per_k"
)

// ValidLengthUnits contains all valid length unit values
var ValidLengthUnits = []string{NM, UM, MM, M}

// ValidExpansionUnits contains all valid expansion coefficient unit values
var ValidExpansionUnits = []string{PerK, PPMPerK}

// metres per unit
var lengthScale = map[string]float64{
	NM: 1e-9,
	UM: 1e-6,
	MM: 1e-3,
	M:  1,
}

// IsValidLength checks if the given unit is a known length unit
func IsValidLength(unit string) bool {
	_, ok := lengthScale[unit]
	return ok
}

// IsValidExpansion checks if the given unit is a known expansion unit
func IsValidExpansion(unit string) bool {
	return unit == PerK || unit == PPMPerK
}

// GetValidLengthUnitsString returns a comma-separated string of valid length units for error messages
func GetValidLengthUnitsString() string {
	return "nm, um, mm, m"
}

// ConvertLength converts a length between units.
func ConvertLength(v float64, from, to string) (float64, error) {
	f, ok := lengthScale[from]
	if !ok {
		return 0, fmt.Errorf("unknown length unit %q (valid: %s)", from, GetValidLengthUnitsString())
	}
	t, ok := lengthScale[to]
	if !ok {
		return 0, fmt.Errorf("unknown length unit %q (valid: %s)", to, GetValidLengthUnitsString())
	}
	if from == to {
		return v, nil
	}
	return v * f / t, nil
}

// ConvertExpansion converts a CLTE stored per kelvin to the target units.
// Unknown units return the per-kelvin value unchanged.
func ConvertExpansion(perK float64, targetUnits string) float64 {
	switch targetUnits {
	case PPMPerK:
		return perK * 1e6
	default:
		return perK
	}
}

// ExpansionLabel returns the display suffix for an expansion unit.
func ExpansionLabel(unit string) string {
	switch unit {
	case PPMPerK:
		return "ppm/K"
	default:
		return "1/K"
	}
}

// LengthLabel returns the display suffix for a length unit.
func LengthLabel(unit string) string {
	if unit == UM {
		return "µm"
	}
	return unit
}
