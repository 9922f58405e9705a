// Package money holds the presentation rules for currency amounts. Internal
// arithmetic never rounds; amounts are rounded only when rendered.
package money

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits shown for currency amounts.
const Scale = 2

// ErrEmpty is returned by Parse for blank input.
var ErrEmpty = errors.New("amount is empty")

// Format renders d with exactly Scale fractional digits, rounding half away
// from zero.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// Parse reads a user-entered amount. Surrounding whitespace is ignored and
// full precision is kept.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrEmpty
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse amount %q", s)
	}
	return d, nil
}
