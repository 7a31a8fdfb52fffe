// Package gain provides amplitude, power and decibel conversions.
package gain

import (
	"math"
)

// Constants for dB conversion
const (
	// MinDB is the minimum dB value (effectively -infinity)
	MinDB = -200.0

	// Reference amplitude for dB calculations
	RefAmplitude = 1.0
)

// LinearToDb converts a linear amplitude value to decibels.
// Returns MinDB for values <= 0.
func LinearToDb(linear float64) float64 {
	if linear <= 0 {
		return MinDB
	}
	return math.Max(MinDB, 20.0*math.Log10(linear/RefAmplitude))
}

// DbToLinear converts a decibel value to linear amplitude.
// Values <= MinDB return 0.
func DbToLinear(db float64) float64 {
	if db <= MinDB {
		return 0
	}
	return RefAmplitude * math.Pow(10.0, db/20.0)
}

// PowerToDb converts a mean-square power to decibels.
// Returns MinDB for values <= 0.
func PowerToDb(power float64) float64 {
	if power <= 0 {
		return MinDB
	}
	return math.Max(MinDB, 10.0*math.Log10(power))
}

// DbToPower converts decibels to mean-square power.
func DbToPower(db float64) float64 {
	if db <= MinDB {
		return 0
	}
	return math.Pow(10.0, db/10.0)
}

// LinearToDbFloor is LinearToDb with results below floor reported as floor.
func LinearToDbFloor(linear, floor float64) float64 {
	return math.Max(floor, LinearToDb(linear))
}

// PowerToDbFloor is PowerToDb with results below floor reported as floor.
func PowerToDbFloor(power, floor float64) float64 {
	return math.Max(floor, PowerToDb(power))
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ApplyDb returns a copy of buffer scaled by db decibels.
func ApplyDb(buffer []float64, db float64) []float64 {
	g := DbToLinear(db)
	out := make([]float64, len(buffer))
	for i, v := range buffer {
		out[i] = v * g
	}
	return out
}
