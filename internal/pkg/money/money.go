package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places persisted for monetary values.
// Columns are NUMERIC(20,2); arithmetic runs at full precision and is
// rounded to Scale exactly once, at the end of a computation.
const Scale = 2

// Money is a fixed-point decimal amount. The zero value is zero currency units.
type Money struct {
	d decimal.Decimal
}

func Zero() Money {
	return Money{d: decimal.Zero}
}

// FromString parses a decimal string like "12.50".
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money value %q: %w", s, err)
	}
	return Money{d: d}, nil
}

// MustFromString is FromString for trusted literals (config defaults, tests).
func MustFromString(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d}
}

func FromInt(units int64) Money {
	return Money{d: decimal.NewFromInt(units)}
}

func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Add(other Money) Money { return Money{d: m.d.Add(other.d)} }
func (m Money) Sub(other Money) Money { return Money{d: m.d.Sub(other.d)} }
func (m Money) Neg() Money            { return Money{d: m.d.Neg()} }

// Mul multiplies by an arbitrary decimal factor without rounding.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{d: m.d.Mul(factor)}
}

// Round rounds half-up to Scale decimal places.
func (m Money) Round() Money {
	return Money{d: m.d.Round(Scale)}
}

func (m Money) Cmp(other Money) int  { return m.d.Cmp(other.d) }
func (m Money) Equal(other Money) bool { return m.d.Equal(other.d) }
func (m Money) IsZero() bool         { return m.d.IsZero() }
func (m Money) IsNegative() bool     { return m.d.IsNegative() }
func (m Money) IsPositive() bool     { return m.d.IsPositive() }

// String renders with exactly Scale decimal places.
func (m Money) String() string {
	return m.d.StringFixed(Scale)
}

// MarshalJSON encodes as a JSON string to avoid float coercion in consumers.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money value %q: %w", s, err)
	}
	m.d = d
	return nil
}

// Value implements driver.Valuer for NUMERIC columns.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (m *Money) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		m.d = decimal.Zero
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		m.d = d
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		m.d = d
		return nil
	case int64:
		m.d = decimal.NewFromInt(v)
		return nil
	case float64:
		m.d = decimal.NewFromFloat(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Money", src)
	}
}
