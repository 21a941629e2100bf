// Package money provides yen amounts as integer minor units, parsing of the
// amount notations found in Japanese accounting exports, and display
// formatting through go-money.
package money

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// JPY is the ISO-4217 code of the Japanese yen. Yen has no minor unit, so the
// integer amount is the yen value itself.
const JPY = "JPY"

var (
	// ErrEmptyAmount is returned when the amount text is blank.
	ErrEmptyAmount = errors.New("empty amount")
	// ErrInvalidAmount is returned when the text is not an integer amount.
	ErrInvalidAmount = errors.New("invalid amount")
)

// plainNumber is a signed decimal without exponent.
var plainNumber = regexp.MustCompile(`^[+-]?[0-9]+(\.[0-9]+)?$`)

// Money is a yen value.
type Money struct {
	m *money.Money
}

// Yen creates a Money value from an integer yen amount.
func Yen(amount int64) *Money {
	return &Money{m: money.New(amount, JPY)}
}

// Amount returns the amount in yen.
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Add returns m + other.
func (m *Money) Add(other *Money) *Money {
	if m == nil || m.m == nil {
		return other
	}
	if other == nil || other.m == nil {
		return m
	}
	sum, err := m.m.Add(other.m)
	if err != nil {
		// both operands are always JPY
		panic(err)
	}
	return &Money{m: sum}
}

// IsNegative returns true if the amount is less than zero.
func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Display formats the amount for people, e.g. "¥120,800".
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return Yen(0).Display()
	}
	return m.m.Display()
}

// Sum adds integer yen amounts.
func Sum(amounts ...int64) *Money {
	total := Yen(0)
	for _, a := range amounts {
		total = total.Add(Yen(a))
	}
	return total
}

// FormatYen is shorthand for Yen(amount).Display().
func FormatYen(amount int64) string {
	return Yen(amount).Display()
}

// ParseYen parses an amount as printed in Japanese accounting documents.
//
// Full-width digits and punctuation are folded, thousands separators,
// whitespace and currency marks (¥ ￥ 円) are removed. Negative amounts may be
// written with a leading minus sign, the triangle marks △ and ▲, or enclosed
// in parentheses. A fractional part is accepted only when it is zero, since
// yen amounts are whole numbers. Exponent notation such as "1e3" is invalid.
func ParseYen(s string) (int64, error) {
	clean := norm.NFKC.String(s)
	clean = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return -1
		case r == ',' || r == '¥' || r == '\\' || r == '円':
			return -1
		case r == '−' || r == '‐' || r == '―':
			return '-'
		}
		return r
	}, clean)
	if clean == "" {
		return 0, ErrEmptyAmount
	}

	negative := false
	switch {
	case strings.HasPrefix(clean, "△"), strings.HasPrefix(clean, "▲"):
		negative = true
		clean = clean[len("△"):]
	case strings.HasPrefix(clean, "(") && strings.HasSuffix(clean, ")"):
		negative = true
		clean = clean[1 : len(clean)-1]
	}
	if !plainNumber.MatchString(clean) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has a fractional part", ErrInvalidAmount, s)
	}
	if negative {
		if d.IsNegative() {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		d = d.Neg()
	}
	if !d.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return d.IntPart(), nil
}

// LooksLikeAmount reports whether s parses as an amount.
func LooksLikeAmount(s string) bool {
	_, err := ParseYen(s)
	return err == nil
}
