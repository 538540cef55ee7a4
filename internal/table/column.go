// Package table filters, sorts, paginates and projects loaded report rows.
// It works on the full row set a query produced and never mutates it.
package table

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
)

// Align is the horizontal alignment of a column.
type Align string

const (
	AlignLeft   Align = "left"
	AlignRight  Align = "right"
	AlignCenter Align = "center"
)

// Column describes one field of a row type.
type Column[T any] struct {
	ID     string
	Header string
	// Value extracts the sortable value of the field.
	Value func(T) any
	// Cell optionally renders the field; the formatted Value is used otherwise.
	Cell func(T) string
	// Link optionally turns the cell into a link on screen.
	Link       func(T) string
	Searchable bool
	Sortable   bool
	Align      Align
	// Hidden hides the column until the viewer shows it.
	Hidden bool
}

// Text renders the cell of row.
func (c Column[T]) Text(row T) string {
	if c.Cell != nil {
		return c.Cell(row)
	}
	if c.Value == nil {
		return ""
	}
	return FormatValue(c.Value(row))
}

// FormatValue renders a raw column value as display text.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format("2006-01-02")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

type decimaler interface {
	Decimal() decimal.Decimal
}

func compareValues(col *collate.Collator, a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if da, ok := asDecimal(a); ok {
		if db, ok := asDecimal(b); ok {
			return da.Cmp(db)
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return col.CompareString(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	}
	return col.CompareString(FormatValue(a), FormatValue(b))
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case decimaler:
		return val.Decimal(), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int32:
		return decimal.NewFromInt32(val), true
	case int64:
		return decimal.NewFromInt(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case float64:
		return decimal.NewFromFloat(val), true
	}
	return decimal.Decimal{}, false
}
