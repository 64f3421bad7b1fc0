// Package score holds the output range of a risk score and its normalization.
package score

import "github.com/shopspring/decimal"

// Bounds of a risk score.
const (
	Min = 0.0
	Max = 100.0
)

// Clamp limits x to [Min, Max].
func Clamp(x float64) float64 {
	if x < Min {
		return Min
	}
	if x > Max {
		return Max
	}
	return x
}

// Round2 rounds the shortest decimal form of x to two places, half away from zero.
// This is not banker's rounding on the binary value: 0.125 gives 0.13 and 42.135 gives 42.14.
func Round2(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

// Normalize clamps then rounds, the final step for both labels and predictions.
func Normalize(x float64) float64 {
	return Round2(Clamp(x))
}
