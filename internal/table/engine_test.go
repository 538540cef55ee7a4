package table

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	About  string
	Type   string
	Amount decimal.Decimal
}

func entryEngine(pageSize int) *Engine[entry] {
	return New(pageSize,
		Column[entry]{ID: "about", Header: "About", Value: func(e entry) any { return e.About }, Searchable: true, Sortable: true},
		Column[entry]{ID: "type", Header: "Type", Value: func(e entry) any { return e.Type }, Searchable: true, Sortable: true},
		Column[entry]{ID: "amount", Header: "Amount", Value: func(e entry) any { return e.Amount }, Sortable: true, Align: AlignRight,
			Cell: func(e entry) string { return e.Amount.StringFixed(2) }},
	)
}

func makeEntries(n int) []entry {
	rows := make([]entry, n)
	for i := range rows {
		rows[i] = entry{About: fmt.Sprintf("Invoice %d", i+1), Type: "cash", Amount: decimal.NewFromInt(int64(100 * (i + 1)))}
	}
	return rows
}

func TestApplyPaginatesFifteenRows(t *testing.T) {
	engine := entryEngine(0)
	rows := makeEntries(15)

	first := engine.Apply(rows, ViewState{})
	assert.Equal(t, 3, first.Pager.PageCount)
	assert.Len(t, first.Rows, 7)
	assert.False(t, first.Pager.HasPrev)
	assert.True(t, first.Pager.HasNext)
	assert.Equal(t, 1, first.Pager.Number())

	second := engine.Apply(rows, ViewState{Page: 1})
	assert.Len(t, second.Rows, 7)
	assert.True(t, second.Pager.HasPrev)
	assert.True(t, second.Pager.HasNext)

	last := engine.Apply(rows, ViewState{Page: 2})
	require.Len(t, last.Rows, 1)
	assert.Equal(t, "Invoice 15", last.Rows[0].About)
	assert.True(t, last.Pager.HasPrev)
	assert.False(t, last.Pager.HasNext)
	assert.Equal(t, 15, last.Total)
}

func TestApplyClampsPage(t *testing.T) {
	view := entryEngine(7).Apply(makeEntries(15), ViewState{Page: 9})
	assert.Equal(t, 2, view.Pager.Page)
	assert.Equal(t, 2, view.State.Page)
	assert.Len(t, view.Rows, 1)

	view = entryEngine(7).Apply(makeEntries(3), ViewState{Page: -4})
	assert.Equal(t, 0, view.Pager.Page)
}

func TestFilterWithoutMatchDisablesPager(t *testing.T) {
	view := entryEngine(7).Apply(makeEntries(15), ViewState{Filter: "no such thing"})
	assert.Empty(t, view.Rows)
	assert.Equal(t, 0, view.Pager.PageCount)
	assert.Equal(t, 0, view.Pager.Number())
	assert.False(t, view.Pager.HasPrev)
	assert.False(t, view.Pager.HasNext)
	assert.Equal(t, 15, view.Total)
}

func TestFilterIsCaseInsensitiveOverSearchableColumns(t *testing.T) {
	rows := []entry{
		{About: "Granite slab", Type: "Cheque"},
		{About: "Tiles", Type: "cash"},
		{About: "Transport", Type: "CASH", Amount: decimal.NewFromInt(250)},
	}
	engine := entryEngine(7)

	view := engine.Apply(rows, ViewState{Filter: "GRANITE"})
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "Granite slab", view.Rows[0].About)

	view = engine.Apply(rows, ViewState{Filter: "Cash"})
	assert.Len(t, view.Rows, 2)

	// amount is not searchable
	view = engine.Apply(rows, ViewState{Filter: "250"})
	assert.Empty(t, view.Rows)
}

func TestFilterMatchesHiddenColumns(t *testing.T) {
	rows := []entry{{About: "Tiles", Type: "cheque"}, {About: "Granite", Type: "cash"}}
	view := entryEngine(7).Apply(rows, ViewState{Filter: "cheque", Hidden: map[string]bool{"type": true}})
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "Tiles", view.Rows[0].About)
	assert.Len(t, view.Columns, 2)
}

func TestSortDescendingIsExactReverseOfAscending(t *testing.T) {
	rows := []entry{
		{About: "b", Amount: decimal.NewFromInt(20)},
		{About: "a", Amount: decimal.NewFromInt(10)},
		{About: "c", Amount: decimal.NewFromInt(20)},
		{About: "d", Amount: decimal.NewFromInt(5)},
		{About: "e", Amount: decimal.NewFromInt(10)},
	}
	engine := entryEngine(10)

	asc := engine.All(rows, ViewState{SortBy: "amount"}).Rows
	desc := engine.All(rows, ViewState{SortBy: "amount", Desc: true}).Rows
	require.Len(t, desc, len(asc))
	for i := range asc {
		assert.Equal(t, asc[i], desc[len(desc)-1-i])
	}
	assert.Equal(t, []string{"d", "a", "e", "b", "c"}, abouts(asc))
}

func TestSortNumericAwareAndUnsortedKeepsOrder(t *testing.T) {
	rows := []entry{{About: "Invoice 10"}, {About: "invoice 9"}, {About: "Invoice 1"}}
	engine := entryEngine(10)

	assert.Equal(t, []string{"Invoice 1", "invoice 9", "Invoice 10"}, abouts(engine.All(rows, ViewState{SortBy: "about"}).Rows))
	assert.Equal(t, []string{"Invoice 10", "invoice 9", "Invoice 1"}, abouts(engine.All(rows, ViewState{}).Rows))
	assert.Equal(t, []string{"Invoice 10", "invoice 9", "Invoice 1"}, abouts(engine.All(rows, ViewState{SortBy: "missing"}).Rows))
	assert.Equal(t, "Invoice 10", rows[0].About)
}

func TestHiddenColumnsAffectOnlyProjection(t *testing.T) {
	engine := entryEngine(7).Configure(0, []string{"type"})
	rows := makeEntries(3)

	view := engine.Apply(rows, ViewState{})
	assert.Equal(t, []string{"about", "amount"}, columnIDs(view.Columns))
	assert.Len(t, view.Rows, 3)
	require.Len(t, view.Hideable, 3)
	assert.False(t, view.Hideable[1].Visible)
	assert.Equal(t, []string{"Invoice 1", "100.00"}, view.Cells()[0])

	view = engine.Apply(rows, ViewState{}.WithVisibility("type", true).WithVisibility("amount", false))
	assert.Equal(t, []string{"about", "type"}, columnIDs(view.Columns))
}

func TestConfigureOverridesPageSize(t *testing.T) {
	base := entryEngine(0)
	custom := base.Configure(10, nil)
	assert.Equal(t, DefaultPageSize, base.PageSize())
	assert.Equal(t, 10, custom.PageSize())
	assert.Equal(t, 2, custom.Apply(makeEntries(15), ViewState{}).Pager.PageCount)
}

func TestAllReturnsEveryFilteredRow(t *testing.T) {
	view := entryEngine(7).All(makeEntries(15), ViewState{Filter: "invoice 1", Page: 2})
	// Invoice 1 and Invoice 10..15
	assert.Len(t, view.Rows, 7)
	assert.Equal(t, 1, view.Pager.PageCount)
	assert.False(t, view.Pager.HasNext)
}

func abouts(rows []entry) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.About
	}
	return out
}

func columnIDs(cols []Column[entry]) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.ID
	}
	return out
}
