package shared

import "math"

// CentEpsilon is the tolerance used when comparing monetary amounts. Amounts
// are stored to two decimal places; anything below half a cent is rounding
// noise.
const CentEpsilon = 0.01

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// AmountsEqual reports whether two monetary amounts agree within a cent.
func AmountsEqual(a, b float64) bool {
	return math.Abs(a-b) < CentEpsilon
}
