// Package core provides money parsing and handling utilities.
//
// Amounts travel as decimal strings or JSON numbers from the backend and are
// kept in cents internally so that sums never accumulate float error.
package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseMoney converts a decimal string to Money with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Negative
// values are folded to their absolute value because direction is carried by
// the transaction type. Zero is rejected.
//
// Examples:
//
//	ParseMoney("12.34")  -> {1234}, nil
//	ParseMoney("12,345") -> {1235}, nil
//	ParseMoney("-5")     -> {500}, nil
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m := MoneyFromDecimal(d)
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// MoneyFromDecimal rounds d half-up to cents and drops the sign.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Abs().Shift(2).Round(0).IntPart()}
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Format renders cents in pt-BR currency style, e.g. "R$ 1.234,56".
func Format(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	units := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, r := range units {
		if i > 0 && (len(units)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + twoDigits(cents%100)
	if neg {
		return "-" + out
	}
	return out
}

func (m Money) String() string {
	return Format(m.Cents)
}

func twoDigits(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
