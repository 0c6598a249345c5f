package renderer

import (
	"fmt"
	"math"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// amount formats v in currency code with its symbol and fraction digits.
// Codes unknown to ISO 4217 fall back to two digits followed by the code.
func amount(v float64, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return fmt.Sprintf("%.2f %s", v, code)
	}
	minor := decimal.NewFromFloat(v).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return cur.Formatter().Format(minor)
}

// signed formats v like amount with an explicit sign, and "-" for zero.
func signed(v float64, code string) string {
	switch {
	case isZero(v):
		return "-"
	case v > 0:
		return "+" + amount(v, code)
	default:
		return amount(v, code)
	}
}

// percent formats a ratio as a signed percentage, "-" for zero.
func percent(v float64) string {
	if isZero(v) {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", v*100)
}

// quantity formats a position without trailing zeros.
func quantity(v float64) string {
	return decimal.NewFromFloat(v).Round(6).String()
}

func isZero(v float64) bool { return math.Abs(v) < 5e-7 }
