// Package layout holds the single presentation model of a report. Screens,
// print views, PDF and spreadsheet exports all render the same Document.
package layout

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tilesmart/tiles-admin/internal/query"
)

// Target selects how a Document is produced and rendered.
type Target string

const (
	TargetScreen Target = "screen"
	TargetJSON   Target = "json"
	TargetPrint  Target = "print"
	TargetPDF    Target = "pdf"
	TargetXLSX   Target = "xlsx"
)

// Paginated reports whether the target shows a single page of each table.
// Print and file exports carry every filtered row.
func (t Target) Paginated() bool {
	return t == TargetScreen || t == TargetJSON
}

// ParseTarget validates a target name.
func ParseTarget(raw string) (Target, error) {
	switch t := Target(raw); t {
	case TargetScreen, TargetJSON, TargetPrint, TargetPDF, TargetXLSX:
		return t, nil
	}
	return "", fmt.Errorf("layout: unknown target %q", raw)
}

// Orientation of printed pages.
type Orientation string

const (
	Portrait  Orientation = "P"
	Landscape Orientation = "L"
)

// Field is a labelled value shown above or below the tables.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Cell is one rendered table cell.
type Cell struct {
	Text string `json:"text"`
	Href string `json:"href,omitempty"`
}

// Column is a visible table column.
type Column struct {
	ID       string `json:"id"`
	Header   string `json:"header"`
	Align    string `json:"align,omitempty"`
	Sortable bool   `json:"sortable,omitempty"`
	Sorted   bool   `json:"sorted,omitempty"`
	Desc     bool   `json:"desc,omitempty"`
	SortURL  string `json:"-"`
}

// Toggle switches the visibility of one column.
type Toggle struct {
	ID      string `json:"id"`
	Header  string `json:"header"`
	Visible bool   `json:"visible"`
	URL     string `json:"-"`
}

// Footer is the totals row of a table, aligned with its visible columns.
type Footer struct {
	Cells []string `json:"cells"`
}

// Pager describes pagination of a table on screen.
type Pager struct {
	Page      int    `json:"page"`
	PageCount int    `json:"page_count"`
	Rows      int    `json:"rows"`
	HasPrev   bool   `json:"has_prev"`
	HasNext   bool   `json:"has_next"`
	PrevURL   string `json:"-"`
	NextURL   string `json:"-"`
}

// Table is one section of a report.
type Table struct {
	ID      string   `json:"id"`
	Title   string   `json:"title,omitempty"`
	Columns []Column `json:"columns"`
	Rows    [][]Cell `json:"rows"`
	Footer  *Footer  `json:"footer,omitempty"`
	Pager   Pager    `json:"pager"`
	Toggles []Toggle `json:"toggles,omitempty"`
	Total   int      `json:"total"`
	Filter  string   `json:"filter,omitempty"`
	// FilterField and FilterHidden drive the filter form of the table.
	FilterField  string     `json:"-"`
	FilterHidden url.Values `json:"-"`
}

// Empty reports whether no row survived filtering.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Headers returns the visible column headers.
func (t Table) Headers() []string {
	out := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		out[i] = col.Header
	}
	return out
}

// Document is a rendered report in any state.
type Document struct {
	Report      string       `json:"report"`
	Title       string       `json:"title"`
	Target      Target       `json:"target"`
	Kind        string       `json:"kind"`
	Params      query.Params `json:"params"`
	Status      query.Status `json:"status"`
	Notice      string       `json:"notice,omitempty"`
	Error       string       `json:"error,omitempty"`
	Retryable   bool         `json:"retryable,omitempty"`
	Fields      []Field      `json:"fields,omitempty"`
	Tables      []Table      `json:"tables,omitempty"`
	Summary     []Field      `json:"summary,omitempty"`
	Orientation Orientation  `json:"orientation,omitempty"`
	FetchedAt   time.Time    `json:"fetched_at,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	// Err is the failure behind Error, kept for classification.
	Err error `json:"-"`
}

// Ready reports whether the document carries loaded data.
func (d Document) Ready() bool {
	return d.Status == query.StatusSuccess
}

// RowCount is the number of body rows across every table.
func (d Document) RowCount() int {
	n := 0
	for _, t := range d.Tables {
		n += len(t.Rows)
	}
	return n
}

// NewFooter aligns totals keyed by column id with cols. label fills the
// first column when that column carries no total.
func NewFooter(cols []Column, label string, totals map[string]string) *Footer {
	if len(cols) == 0 {
		return nil
	}
	cells := make([]string, len(cols))
	for i, col := range cols {
		cells[i] = totals[col.ID]
	}
	if cells[0] == "" {
		cells[0] = label
	}
	return &Footer{Cells: cells}
}
