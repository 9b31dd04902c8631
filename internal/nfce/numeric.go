package nfce

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	quantityFallback = decimal.NewFromInt(1)
	priceFallback    = decimal.Zero
)

// ParseNumber converts a Brazilian-locale decimal string ("13,49") into a
// decimal. Only the first comma is treated as the decimal separator, so
// "1.234,56" does not parse and yields the fallback with low confidence.
func ParseNumber(raw string, fallback decimal.Decimal) Number {
	s := strings.TrimSpace(raw)
	s = strings.Replace(s, ",", ".", 1)
	if s == "" {
		return Number{Value: fallback, Confidence: Low}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{Value: fallback, Confidence: Low}
	}
	return Number{Value: d, Confidence: High}
}

// ParseQuantity parses an item quantity. Anything that is not a positive
// number becomes 1 with low confidence.
func ParseQuantity(raw string) Number {
	n := ParseNumber(raw, quantityFallback)
	if !n.Value.IsPositive() {
		return Number{Value: quantityFallback, Confidence: Low}
	}
	return n
}

// ParsePrice parses a unit or total price. Unparseable or negative values
// become 0 with low confidence.
func ParsePrice(raw string) Number {
	n := ParseNumber(raw, priceFallback)
	if n.Value.IsNegative() {
		return Number{Value: priceFallback, Confidence: Low}
	}
	return n
}
