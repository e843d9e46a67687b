package types

import (
	"github.com/shopspring/decimal"
)

// Price is an exact decimal amount. Offers are ranked and compared against
// max_price without float rounding.
type Price = decimal.Decimal

func init() {
	// peers parse prices as plain JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// NewPrice converts a float amount, as found in configuration or tests,
// to a Price.
func NewPrice(f float64) Price {
	return decimal.NewFromFloat(f)
}

// ParsePrice parses a decimal string such as "25" or "19.99".
func ParsePrice(s string) (Price, error) {
	return decimal.NewFromString(s)
}

// MustParsePrice is ParsePrice that panics on error.
func MustParsePrice(s string) Price {
	return decimal.RequireFromString(s)
}
