package view

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilesmart/tiles-admin/internal/layout"
	"github.com/tilesmart/tiles-admin/internal/query"
	"github.com/tilesmart/tiles-admin/internal/shared"
)

func stockDoc() layout.Document {
	cols := []layout.Column{
		{ID: "product_type", Header: "Product", Sortable: true, SortURL: "?stocks.sort=product_type"},
		{ID: "close", Header: "Closing", Align: "right"},
	}
	return layout.Document{
		Report:      "stock",
		Title:       "Stock Report",
		Kind:        "date",
		Target:      layout.TargetScreen,
		Status:      query.StatusSuccess,
		Params:      query.Params{FromDate: "2024-03-01"},
		Orientation: layout.Landscape,
		GeneratedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Fields:      []layout.Field{{Label: "Date", Value: "2024-03-01"}},
		Tables: []layout.Table{{
			ID:           "stocks",
			Columns:      cols,
			Rows:         [][]layout.Cell{{{Text: "Granite <Black>", Href: "/reports/purchase?id=1"}, {Text: "1,200"}}},
			Footer:       layout.NewFooter(cols, "Total", map[string]string{"close": "1,200"}),
			Pager:        layout.Pager{Page: 1, PageCount: 2, Rows: 9, HasNext: true, NextURL: "?stocks.page=2"},
			Toggles:      []layout.Toggle{{ID: "close", Header: "Closing", Visible: true, URL: "?stocks.hide=close"}},
			Total:        9,
			FilterField:  "stocks.q",
			FilterHidden: url.Values{"from_date": {"2024-03-01"}},
		}},
	}
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderReportPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.Render(rec, "pages/report.html", TemplateData{
		Title:     "Stock Report",
		CSRFToken: "tok",
		SignedIn:  true,
		Flash:     &shared.FlashMessage{Kind: "error", Message: "CSV download failed"},
		Nav:       []NavItem{{Title: "Stock", Href: "/reports/stock", Active: true}},
		Data: ReportPage{
			Doc:     stockDoc(),
			Action:  "/reports/stock",
			Exports: []Link{{Label: "PDF", Href: "/reports/stock/pdf?from_date=2024-03-01"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Granite &lt;Black&gt;")
	assert.Contains(t, body, `href="/reports/purchase?id=1"`)
	assert.Contains(t, body, "CSV download failed")
	assert.Contains(t, body, `name="stocks.q"`)
	assert.Contains(t, body, `name="from_date" value="2024-03-01"`)
	assert.Contains(t, body, "Page 1 of 2")
	assert.Contains(t, body, "Next ›")
	assert.Contains(t, body, "<tfoot>")
}

func TestRenderReportError(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	doc := stockDoc()
	doc.Status = query.StatusError
	doc.Error = "The server could not be reached."
	doc.Retryable = true
	doc.Tables = nil

	rec := httptest.NewRecorder()
	require.NoError(t, engine.Render(rec, "pages/report.html", TemplateData{
		Title: "Stock Report", CSRFToken: "tok", SignedIn: true,
		Data: ReportPage{Doc: doc, Action: "/reports/stock", RetryURL: "/reports/stock/retry"},
	}))
	body := rec.Body.String()
	assert.Contains(t, body, "The server could not be reached.")
	assert.Contains(t, body, `action="/reports/stock/retry"`)
	assert.NotContains(t, body, "<table>")
}

func TestPrintHTMLShowsAllRowsWithoutControls(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	doc := stockDoc()
	doc.Target = layout.TargetPDF

	html, err := engine.PrintHTML(doc)
	require.NoError(t, err)
	assert.Contains(t, html, "size: A4 landscape")
	assert.Contains(t, html, "Granite &lt;Black&gt;")
	assert.Contains(t, html, "Stock Report")
	assert.NotContains(t, html, "stocks.q")
	assert.NotContains(t, html, "print.js")
	assert.NotContains(t, html, "href=")

	doc.Target = layout.TargetPrint
	html, err = engine.PrintHTML(doc)
	require.NoError(t, err)
	assert.Contains(t, html, "/static/print.js")
}
