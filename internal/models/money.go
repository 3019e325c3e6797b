package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is a fixed-point amount in minor currency units (paise, cents).
// Amounts never pass through float64 on their way to the gateway or the DB.
type Money int64

func FromMinor(v int64) Money { return Money(v) }

// MinorUnits is the integer amount sent to payment gateways.
func (m Money) MinorUnits() int64 { return int64(m) }

func (m Money) Add(o Money) Money { return m + o }

func (m Money) Mul(qty int) Money { return m * Money(qty) }

// MaxAmount is the largest value a NUMERIC(10,2) column stores.
const MaxAmount Money = 99_999_999_99

var ErrAmountOutOfRange = errors.New("amount out of range")

// MulChecked is Mul for non-negative operands, failing instead of leaving
// the storable range.
func (m Money) MulChecked(qty int) (Money, error) {
	if m < 0 || qty < 0 {
		return 0, fmt.Errorf("%w: negative operand", ErrAmountOutOfRange)
	}
	if qty != 0 && m > MaxAmount/Money(qty) {
		return 0, fmt.Errorf("%w: %s x %d", ErrAmountOutOfRange, m, qty)
	}
	return m * Money(qty), nil
}

// AddChecked is Add for non-negative operands with the same bound.
func (m Money) AddChecked(o Money) (Money, error) {
	if m < 0 || o < 0 {
		return 0, fmt.Errorf("%w: negative operand", ErrAmountOutOfRange)
	}
	if m > MaxAmount-o {
		return 0, fmt.Errorf("%w: %s + %s", ErrAmountOutOfRange, m, o)
	}
	return m + o, nil
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// ParseMoney parses decimal strings such as "149.5", "149.50" or "150".
// More than two fractional digits is rejected rather than rounded.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		s = s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && !hasFrac {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if whole == "" {
		whole = "0"
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if len(frac) > 2 {
		// trailing zeros beyond the cents are harmless ("12.500" from NUMERIC(10,3))
		trimmed := strings.TrimRight(frac[2:], "0")
		if trimmed != "" {
			return 0, fmt.Errorf("amount %q has more than two decimal places", s)
		}
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if w > (math.MaxInt64-f)/100 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	v := w*100 + f
	if neg {
		v = -v
	}
	return Money(v), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both "149.50" and 149.50; numbers are parsed from
// their literal text so no binary rounding is involved.
func (m *Money) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = s
	}
	v, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Money) Value() (driver.Value, error) { return m.String(), nil }

func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = 0
		return nil
	case []byte:
		p, err := ParseMoney(string(v))
		if err != nil {
			return err
		}
		*m = p
		return nil
	case string:
		p, err := ParseMoney(v)
		if err != nil {
			return err
		}
		*m = p
		return nil
	case int64:
		*m = Money(v * 100)
		return nil
	case float64:
		*m = Money(math.Round(v * 100))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", src)
	}
}
