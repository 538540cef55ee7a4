package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the wire format for report dates.
const DateLayout = "2006-01-02"

// Kind describes which parameters a report expects.
type Kind int

const (
	// KindNone reports take no parameters.
	KindNone Kind = iota
	// KindDate reports take a single from_date.
	KindDate
	// KindRange reports take from_date and to_date.
	KindRange
	// KindID reports are keyed by a record id.
	KindID
)

func (k Kind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindRange:
		return "range"
	case KindID:
		return "id"
	default:
		return "none"
	}
}

// ErrInvalidParams is wrapped by every validation failure.
var ErrInvalidParams = errors.New("query: invalid parameters")

// FieldError names the parameter that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e FieldError) Unwrap() error {
	return ErrInvalidParams
}

// Params is the user chosen filter record. It is comparable, so two values
// with equal fields are the same query.
type Params struct {
	FromDate string `json:"from_date,omitempty"`
	ToDate   string `json:"to_date,omitempty"`
	ID       int64  `json:"-"`
}

// Key renders the canonical cache key of the parameters.
func (p Params) Key() string {
	return "from=" + p.FromDate + "|to=" + p.ToDate + "|id=" + strconv.FormatInt(p.ID, 10)
}

// IsZero reports whether no parameter is set.
func (p Params) IsZero() bool {
	return p == Params{}
}

// Values encodes the params as URL query values.
func (p Params) Values() url.Values {
	values := url.Values{}
	if p.FromDate != "" {
		values.Set("from_date", p.FromDate)
	}
	if p.ToDate != "" {
		values.Set("to_date", p.ToDate)
	}
	if p.ID > 0 {
		values.Set("id", strconv.FormatInt(p.ID, 10))
	}
	return values
}

var validate = validator.New()

// Validate checks the params against the requirements of kind.
func (p Params) Validate(kind Kind) error {
	switch kind {
	case KindDate:
		return checkDate("from_date", p.FromDate)
	case KindRange:
		if err := checkDate("from_date", p.FromDate); err != nil {
			return err
		}
		if err := checkDate("to_date", p.ToDate); err != nil {
			return err
		}
		if p.FromDate > p.ToDate {
			return FieldError{Field: "to_date", Reason: "must not be before from_date"}
		}
	case KindID:
		if err := validate.Var(p.ID, "gt=0"); err != nil {
			return FieldError{Field: "id", Reason: "must be a positive number"}
		}
	}
	return nil
}

func checkDate(field, value string) error {
	if err := validate.Var(value, "required,datetime="+DateLayout); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "required" {
			return FieldError{Field: field, Reason: "is required"}
		}
		return FieldError{Field: field, Reason: "must be a date (YYYY-MM-DD)"}
	}
	return nil
}

// Parse reads params for kind from URL values. Missing values fall back to
// Defaults; malformed ones are reported as validation errors.
func Parse(values url.Values, kind Kind, now time.Time) (Params, error) {
	p := Defaults(kind, now)
	if v := strings.TrimSpace(values.Get("from_date")); v != "" {
		p.FromDate = v
	}
	if v := strings.TrimSpace(values.Get("to_date")); v != "" {
		p.ToDate = v
	}
	if v := strings.TrimSpace(values.Get("id")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return p, FieldError{Field: "id", Reason: "must be a positive number"}
		}
		p.ID = id
	}
	switch kind {
	case KindNone:
		p = Params{}
	case KindDate:
		p.ToDate, p.ID = "", 0
	case KindRange:
		p.ID = 0
	case KindID:
		p.FromDate, p.ToDate = "", ""
	}
	return p, p.Validate(kind)
}

// Defaults returns the params a screen starts with: today for single date
// reports, the current month to date for ranges.
func Defaults(kind Kind, now time.Time) Params {
	today := now.Format(DateLayout)
	switch kind {
	case KindDate:
		return Params{FromDate: today}
	case KindRange:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return Params{FromDate: first.Format(DateLayout), ToDate: today}
	default:
		return Params{}
	}
}
