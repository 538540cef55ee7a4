package table

import (
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// ViewState is the per table presentation state chosen by the viewer.
type ViewState struct {
	SortBy string
	Desc   bool
	// Hidden overrides the default visibility of columns by id.
	Hidden map[string]bool
	Filter string
	Page   int
}

// WithFilter replaces the filter and returns to the first page.
func (s ViewState) WithFilter(filter string) ViewState {
	s.Filter = filter
	s.Page = 0
	return s
}

// WithSort sorts by column; selecting the current column flips direction.
func (s ViewState) WithSort(column string) ViewState {
	if s.SortBy == column {
		s.Desc = !s.Desc
		return s
	}
	s.SortBy = column
	s.Desc = false
	return s
}

// WithPage moves to page.
func (s ViewState) WithPage(page int) ViewState {
	s.Page = page
	return s
}

// WithVisibility shows or hides column.
func (s ViewState) WithVisibility(column string, visible bool) ViewState {
	hidden := maps.Clone(s.Hidden)
	if hidden == nil {
		hidden = make(map[string]bool)
	}
	hidden[column] = !visible
	s.Hidden = hidden
	return s
}

// ParseViewState reads the state of the table identified by prefix.
func ParseViewState(values url.Values, prefix string) ViewState {
	state := ViewState{
		SortBy: values.Get(prefix + "sort"),
		Desc:   values.Get(prefix+"dir") == "desc",
		Filter: values.Get(prefix + "q"),
	}
	if page, err := strconv.Atoi(values.Get(prefix + "page")); err == nil && page > 1 {
		state.Page = page - 1
	}
	for _, id := range splitList(values.Get(prefix + "hide")) {
		state = state.WithVisibility(id, false)
	}
	for _, id := range splitList(values.Get(prefix + "show")) {
		state = state.WithVisibility(id, true)
	}
	return state
}

// Encode writes the state of the table identified by prefix into values.
func (s ViewState) Encode(values url.Values, prefix string) {
	for _, key := range []string{"sort", "dir", "q", "page", "hide", "show"} {
		values.Del(prefix + key)
	}
	if s.SortBy != "" {
		values.Set(prefix+"sort", s.SortBy)
		if s.Desc {
			values.Set(prefix+"dir", "desc")
		}
	}
	if s.Filter != "" {
		values.Set(prefix+"q", s.Filter)
	}
	if s.Page > 0 {
		values.Set(prefix+"page", strconv.Itoa(s.Page+1))
	}
	var hide, show []string
	for id, hidden := range s.Hidden {
		if hidden {
			hide = append(hide, id)
		} else {
			show = append(show, id)
		}
	}
	if len(hide) > 0 {
		slices.Sort(hide)
		values.Set(prefix+"hide", strings.Join(hide, ","))
	}
	if len(show) > 0 {
		slices.Sort(show)
		values.Set(prefix+"show", strings.Join(show, ","))
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Links builds query strings for the controls of one table while keeping
// every other query value, including the state of sibling tables.
type Links struct {
	Base   url.Values
	Prefix string
	State  ViewState
}

func (l Links) href(state ViewState) string {
	values := url.Values{}
	for key, vals := range l.Base {
		values[key] = slices.Clone(vals)
	}
	state.Encode(values, l.Prefix)
	return "?" + values.Encode()
}

// Sort links to the table sorted by column.
func (l Links) Sort(column string) string {
	return l.href(l.State.WithSort(column))
}

// Page links to the zero based page.
func (l Links) Page(page int) string {
	return l.href(l.State.WithPage(page))
}

// Toggle links to the table with column visibility flipped.
func (l Links) Toggle(column string, visible bool) string {
	return l.href(l.State.WithVisibility(column, !visible))
}

// FilterField is the query key of the filter input.
func (l Links) FilterField() string {
	return l.Prefix + "q"
}

// Hidden returns the query values a filter form must resubmit, minus the
// filter and page of this table.
func (l Links) Hidden() url.Values {
	values := url.Values{}
	for key, vals := range l.Base {
		values[key] = slices.Clone(vals)
	}
	l.State.WithFilter("").Encode(values, l.Prefix)
	values.Del(l.Prefix + "q")
	return values
}
