package pnl

import (
	"math"

	"github.com/shopspring/decimal"
)

// SignificantDigits is the precision of every number in a report.
const SignificantDigits = 10

// tolerance is the threshold under which a value is considered zero.
const tolerance = 1e-9

// round rounds v to SignificantDigits significant digits.
// NaN and infinities become 0.
func round(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	magnitude := int32(math.Floor(math.Log10(math.Abs(v))))
	places := SignificantDigits - 1 - magnitude
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// div returns a/b, or 0 when the result is not a finite number.
func div(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return finite(a / b)
}

// finite returns v or 0 if v is NaN or infinite.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// isZero reports whether v is within tolerance of zero.
func isZero(v float64) bool { return math.Abs(v) <= tolerance }

// isClose reports whether a and b are within tolerance.
func isClose(a, b float64) bool { return isZero(a - b) }
