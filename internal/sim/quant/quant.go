// Package quant holds the quantized decimal policy used for every inventory
// quantity, payment and price that crosses an agent boundary.
//
// All conversions round half-up at Scale decimal places. Values handled here
// are non-negative; shopspring's Round is half-away-from-zero, which equals
// half-up on that domain.
package quant

import (
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for quantities and payments.
const Scale = 4

// PriceScale is the number of decimal places kept for quoted prices.
const PriceScale = 6

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)

	// Quantum is the smallest representable quantity step (10^-Scale).
	Quantum = decimal.New(1, -Scale)
)

// Q rounds d half-up to Scale places.
func Q(d decimal.Decimal) decimal.Decimal { return d.Round(Scale) }

// Price rounds p half-up to PriceScale places.
func Price(p decimal.Decimal) decimal.Decimal { return p.Round(PriceScale) }

// Floor truncates d to Scale places. Used where rounding up could overdraw.
func Floor(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return d.RoundFloor(Scale)
	}
	return d.Truncate(Scale)
}

// FromFloat converts a float to a quantity, rounding half-up. NaN and
// infinities collapse to zero.
func FromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Zero
	}
	return Q(decimal.NewFromFloat(f))
}

// PriceFromFloat converts a float price, rounding half-up at PriceScale.
func PriceFromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Zero
	}
	return Price(decimal.NewFromFloat(f))
}

// Int returns n as a quantity.
func Int(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

// Payment is the amount owed for qty units at price, rounded half-up.
func Payment(qty, price decimal.Decimal) decimal.Decimal {
	return Q(qty.Mul(price))
}

// Float returns d as a float64 for utility evaluation.
func Float(d decimal.Decimal) float64 { return d.InexactFloat64() }

// Parse parses a decimal string and quantizes it.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, err
	}
	return Q(d), nil
}

// Must is Parse for literals; it panics on malformed input.
func Must(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ParsePrice parses a decimal string at PriceScale.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, err
	}
	return Price(d), nil
}
