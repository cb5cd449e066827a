// Package gst checks extracted amounts against the Australian GST rule:
// GST is one eleventh of the GST-inclusive amount.
package gst

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Status is the result of a GST check
type Status string

const (
	// OK means the GST is within a cent of amount / 11
	OK Status = "ok"
	// Mismatch means both values parsed but disagree
	Mismatch Status = "mismatch"
	// Unknown means one of the values is missing or not a number
	Unknown Status = "unknown"
)

var (
	eleven    = decimal.NewFromInt(11)
	tolerance = decimal.RequireFromString("0.01")
)

// Expected returns amount / 11 rounded to cents
func Expected(amount decimal.Decimal) decimal.Decimal {
	return amount.Div(eleven).Round(2)
}

// Check compares a GST-inclusive amount and a GST value as extracted, e.g. "$110.00" and "$10.00"
func Check(amountIncGST, gstValue string) Status {
	amount, ok := ParseAmount(amountIncGST)
	if !ok {
		return Unknown
	}
	gst, ok := ParseAmount(gstValue)
	if !ok {
		return Unknown
	}
	if Expected(amount).Sub(gst).Abs().LessThanOrEqual(tolerance) {
		return OK
	}
	return Mismatch
}

// ParseAmount reads a currency string such as "$1,234.50" or "AUD 12.00"
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.ToUpper(s), "AUD")
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
