// Package units provides shared constants and validation for distance units
package units

import "fmt"

// Unit constants
const (
	Meters = "m"
	Feet   = "ft"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Meters, Feet}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m, ft"
}

// ConvertDistance converts a distance from meters to the target units.
// The database and the estimation pipeline always operate in meters.
func ConvertDistance(meters float64, targetUnits string) float64 {
	switch targetUnits {
	case Feet:
		return meters * 3.28084 // meters to feet
	case Meters:
		return meters // no conversion needed
	default:
		return meters // default to meters if unknown unit
	}
}

// AxisLabel builds a plot axis label with the unit suffix, e.g. "Forward (m)".
func AxisLabel(name, unit string) string {
	if !IsValid(unit) {
		unit = Meters
	}
	return fmt.Sprintf("%s (%s)", name, unit)
}
