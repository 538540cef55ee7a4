package table

import (
	"math"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultPageSize is used when an engine is built without a page size.
const DefaultPageSize = 7

// Engine applies a ViewState to rows of type T.
type Engine[T any] struct {
	columns  []Column[T]
	pageSize int
}

// New constructs an engine over columns.
func New[T any](pageSize int, columns ...Column[T]) *Engine[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Engine[T]{columns: columns, pageSize: pageSize}
}

// Columns returns every column, hidden or not.
func (e *Engine[T]) Columns() []Column[T] {
	return e.columns
}

// PageSize returns the rows per page.
func (e *Engine[T]) PageSize() int {
	return e.pageSize
}

// Configure returns a copy with a different page size and default hidden
// columns. Zero pageSize keeps the current one.
func (e *Engine[T]) Configure(pageSize int, hidden []string) *Engine[T] {
	out := &Engine[T]{columns: slices.Clone(e.columns), pageSize: e.pageSize}
	if pageSize > 0 {
		out.pageSize = pageSize
	}
	if len(hidden) > 0 {
		for i := range out.columns {
			out.columns[i].Hidden = slices.Contains(hidden, out.columns[i].ID)
		}
	}
	return out
}

// Pager describes the page a View shows.
type Pager struct {
	Page      int
	PageSize  int
	PageCount int
	Filtered  int
	HasPrev   bool
	HasNext   bool
}

// Number is the one based page number for display.
func (p Pager) Number() int {
	if p.PageCount == 0 {
		return 0
	}
	return p.Page + 1
}

// NewPager computes pagination for total rows. page is clamped into range.
func NewPager(page, size, total int) Pager {
	if size <= 0 {
		size = DefaultPageSize
	}
	count := int(math.Ceil(float64(total) / float64(size)))
	if page >= count {
		page = count - 1
	}
	if page < 0 {
		page = 0
	}
	return Pager{
		Page:      page,
		PageSize:  size,
		PageCount: count,
		Filtered:  total,
		HasPrev:   page > 0,
		HasNext:   page < count-1,
	}
}

// View is the projection of rows through a ViewState.
type View[T any] struct {
	// Columns holds the visible columns in declaration order.
	Columns []Column[T]
	// Hideable holds every column with its current visibility.
	Hideable []Toggle
	Rows     []T
	Total    int
	Pager    Pager
	State    ViewState
}

// Toggle is a column visibility switch.
type Toggle struct {
	ID      string
	Header  string
	Visible bool
}

// Cells renders the visible cells of every row in the view.
func (v View[T]) Cells() [][]string {
	out := make([][]string, len(v.Rows))
	for i, row := range v.Rows {
		cells := make([]string, len(v.Columns))
		for j, col := range v.Columns {
			cells[j] = col.Text(row)
		}
		out[i] = cells
	}
	return out
}

// Apply filters, sorts and paginates rows.
func (e *Engine[T]) Apply(rows []T, state ViewState) View[T] {
	view := e.project(rows, state)
	view.Pager = NewPager(state.Page, e.pageSize, len(view.Rows))
	view.State.Page = view.Pager.Page
	start := view.Pager.Page * view.Pager.PageSize
	end := min(start+view.Pager.PageSize, len(view.Rows))
	if start > end {
		start = end
	}
	view.Rows = view.Rows[start:end]
	return view
}

// All filters and sorts rows without paginating, as exports need.
func (e *Engine[T]) All(rows []T, state ViewState) View[T] {
	view := e.project(rows, state)
	view.Pager = NewPager(0, max(len(view.Rows), 1), len(view.Rows))
	view.State.Page = 0
	return view
}

func (e *Engine[T]) project(rows []T, state ViewState) View[T] {
	view := View[T]{Total: len(rows), State: state}
	for _, col := range e.columns {
		visible := e.visible(col, state)
		view.Hideable = append(view.Hideable, Toggle{ID: col.ID, Header: col.Header, Visible: visible})
		if visible {
			view.Columns = append(view.Columns, col)
		}
	}
	filtered := e.filter(rows, state.Filter)
	view.Rows = e.sort(filtered, state)
	return view
}

func (e *Engine[T]) visible(col Column[T], state ViewState) bool {
	if hidden, ok := state.Hidden[col.ID]; ok {
		return !hidden
	}
	return !col.Hidden
}

func (e *Engine[T]) filter(rows []T, needle string) []T {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return slices.Clone(rows)
	}
	fold := cases.Fold()
	needle = fold.String(needle)
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		for _, col := range e.columns {
			if !col.Searchable {
				continue
			}
			if strings.Contains(fold.String(col.Text(row)), needle) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func (e *Engine[T]) sort(rows []T, state ViewState) []T {
	idx := slices.IndexFunc(e.columns, func(c Column[T]) bool {
		return c.ID == state.SortBy && c.Sortable && c.Value != nil
	})
	if idx < 0 {
		return rows
	}
	col := e.columns[idx]
	coll := collate.New(language.English, collate.IgnoreCase, collate.Numeric)
	slices.SortStableFunc(rows, func(a, b T) int {
		return compareValues(coll, col.Value(a), col.Value(b))
	})
	if state.Desc {
		slices.Reverse(rows)
	}
	return rows
}
