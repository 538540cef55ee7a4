package reports

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a money or quantity figure returned by the backend. The backend
// sends numbers, numeric strings, empty strings or null for the same field;
// anything absent decodes to zero.
type Amount struct {
	value decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{value: d}
}

// AmountOf parses s, panicking on malformed input. Intended for literals.
func AmountOf(s string) Amount {
	return Amount{value: decimal.RequireFromString(s)}
}

// Decimal returns the underlying value.
func (a Amount) Decimal() decimal.Decimal {
	return a.value
}

func (a Amount) Add(b Amount) Amount { return Amount{value: a.value.Add(b.value)} }
func (a Amount) Sub(b Amount) Amount { return Amount{value: a.value.Sub(b.value)} }
func (a Amount) Neg() Amount         { return Amount{value: a.value.Neg()} }
func (a Amount) IsNegative() bool    { return a.value.IsNegative() }
func (a Amount) IsZero() bool        { return a.value.IsZero() }

// Equal compares by value, ignoring scale.
func (a Amount) Equal(b Amount) bool {
	return a.value.Equal(b.value)
}

// String renders the plain decimal.
func (a Amount) String() string {
	return a.value.String()
}

// Money renders the amount with grouping and two decimals.
func (a Amount) Money() string {
	return formatNumber(a.value, 2)
}

// Quantity renders the amount with grouping and no forced decimals.
func (a Amount) Quantity() string {
	places := -a.value.Exponent()
	if places < 0 {
		places = 0
	}
	return formatNumber(a.value, int(places))
}

// formatNumber groups the digits of the exact fixed-point text; going
// through float64 would lose digits on large totals.
func formatNumber(d decimal.Decimal, places int) string {
	text := d.StringFixed(int32(places))
	sign, digits := "", text
	if strings.HasPrefix(text, "-") {
		sign, digits = "-", text[1:]
	}
	whole, frac, hasFrac := strings.Cut(digits, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i := range len(whole) {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(whole[i])
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// MarshalJSON encodes the amount as a JSON string to keep precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.value.String() + `"`), nil
}

// UnmarshalJSON accepts numbers, numeric strings with optional thousands
// separators, empty strings and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		a.value = decimal.Zero
		return nil
	}
	text := strings.TrimSpace(strings.Trim(string(raw), `"`))
	text = strings.ReplaceAll(text, ",", "")
	if text == "" {
		a.value = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return fmt.Errorf("reports: amount %s: %w", raw, err)
	}
	a.value = d
	return nil
}

// SumAmounts adds the amount of every row. Missing values count as zero.
func SumAmounts[T any](rows []T, amount func(T) Amount) Amount {
	total := Amount{}
	for _, row := range rows {
		total = total.Add(amount(row))
	}
	return total
}
