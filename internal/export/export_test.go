package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jung-kurt/gofpdf"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tilesmart/tiles-admin/internal/backend"
	"github.com/tilesmart/tiles-admin/internal/layout"
	"github.com/tilesmart/tiles-admin/internal/query"
	"github.com/tilesmart/tiles-admin/report"
)

func ledgerDoc(rows int) layout.Document {
	cols := []layout.Column{
		{ID: "name", Header: "Account"},
		{ID: "amount", Header: "Amount", Align: "right"},
	}
	body := make([][]layout.Cell, rows)
	for i := range body {
		body[i] = []layout.Cell{{Text: fmt.Sprintf("Account %02d", i+1)}, {Text: "1,500.00"}}
	}
	return layout.Document{
		Report:      "trial-balance",
		Title:       "Trial Balance",
		Target:      layout.TargetPDF,
		Status:      query.StatusSuccess,
		Params:      query.Params{FromDate: "2024-01-01", ToDate: "2024-01-31"},
		Fields:      []layout.Field{{Label: "From", Value: "2024-01-01"}},
		Orientation: layout.Portrait,
		GeneratedAt: time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		Tables: []layout.Table{{
			ID:      "payment",
			Title:   "Ledger",
			Columns: cols,
			Rows:    body,
			Footer:  layout.NewFooter(cols, "Total", map[string]string{"amount": "9,000.00"}),
		}},
		Summary: []layout.Field{{Label: "Net Balance", Value: "1,000.00"}},
	}
}

func TestFilenameIncludesParameters(t *testing.T) {
	doc := ledgerDoc(1)
	assert.Equal(t, "trial_balance_2024-01-01_2024-01-31.pdf", Filename("trial_balance", doc, "pdf"))

	doc.Params = query.Params{ID: 42}
	assert.Equal(t, "purchase_42.xlsx", Filename("purchase", doc, "xlsx"))

	doc.Params = query.Params{}
	assert.Equal(t, "trial-balance.pdf", Filename("", doc, "pdf"))
}

func TestPDFRequiresLoadedDocument(t *testing.T) {
	doc := ledgerDoc(1)
	doc.Status = query.StatusError
	_, err := PDF(context.Background(), NativePDF{}, "tb", doc)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestNativePDFRepeatsHeaderAndNumbersPages(t *testing.T) {
	file, err := PDF(context.Background(), NativePDF{Uncompressed: true}, "trial_balance", ledgerDoc(60))
	require.NoError(t, err)
	assert.Equal(t, ContentTypePDF, file.ContentType)
	assert.Equal(t, "trial_balance_2024-01-01_2024-01-31.pdf", file.Name)

	out := string(file.Data)
	require.True(t, strings.HasPrefix(out, "%PDF"))
	assert.Contains(t, out, "Page 1 of 2")
	assert.Contains(t, out, "Page 2 of 2")
	assert.Equal(t, 2, strings.Count(out, "(Amount)"), "header drawn once per page")
	assert.Contains(t, out, "(9,000.00)")
}

func TestNativePDFEmptyTable(t *testing.T) {
	doc := ledgerDoc(0)
	data, err := NativePDF{Uncompressed: true}.RenderPDF(context.Background(), doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), "No matching rows")
	assert.Contains(t, string(data), "Page 1 of 1")
}

func TestFitTruncatesBeforeTranslating(t *testing.T) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", pdfFontSize)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	assert.Equal(t, tr("Noir"), fit(pdf, tr, "Noir", 30))

	out := fit(pdf, tr, "Granité Noir Extraordinaire Supérieur Poli", 30)
	assert.True(t, strings.HasPrefix(out, tr("Granité")), out)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.NotContains(t, out, "\uFFFD")
	assert.LessOrEqual(t, pdf.GetStringWidth(out), 30.0)
}

type stubPrinter struct{ doc layout.Document }

func (s *stubPrinter) PrintHTML(doc layout.Document) (string, error) {
	s.doc = doc
	return "<html>" + doc.Title + "</html>", nil
}

type stubConverter struct {
	html string
	opts report.RenderOptions
}

func (s *stubConverter) RenderHTML(_ context.Context, html string, opts report.RenderOptions) ([]byte, error) {
	s.html, s.opts = html, opts
	return []byte("%PDF-1.7"), nil
}

func TestGotenbergPDFPrintsLandscape(t *testing.T) {
	printer, converter := &stubPrinter{}, &stubConverter{}
	renderer, err := NewGotenbergPDF(printer, converter)
	require.NoError(t, err)

	doc := ledgerDoc(2)
	doc.Target = layout.TargetPrint
	doc.Orientation = layout.Landscape
	data, err := renderer.RenderPDF(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
	assert.Equal(t, "<html>Trial Balance</html>", converter.html)
	assert.True(t, converter.opts.Landscape)
	assert.Equal(t, layout.TargetPDF, printer.doc.Target)

	_, err = NewGotenbergPDF(nil, converter)
	require.Error(t, err)
}

func TestXLSXWritesSheetPerTable(t *testing.T) {
	doc := ledgerDoc(3)
	second := doc.Tables[0]
	second.ID = "other"
	doc.Tables = append(doc.Tables, second)

	file, err := XLSX("trial_balance", doc)
	require.NoError(t, err)
	assert.Equal(t, ContentTypeXLSX, file.ContentType)
	assert.Equal(t, "trial_balance_2024-01-01_2024-01-31.xlsx", file.Name)

	book, err := excelize.OpenReader(bytes.NewReader(file.Data))
	require.NoError(t, err)
	defer func() { _ = book.Close() }()
	assert.Equal(t, []string{"Ledger", "Ledger 2"}, book.GetSheetList())

	get := func(cell string) string {
		v, err := book.GetCellValue("Ledger", cell)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "Trial Balance", get("A1"))
	assert.Equal(t, "From", get("A2"))
	assert.Equal(t, "2024-01-01", get("B2"))
	assert.Equal(t, "Account", get("A4"))
	assert.Equal(t, "Amount", get("B4"))
	assert.Equal(t, "Account 01", get("A5"))
	assert.Equal(t, "1500", get("B5"))
	assert.Equal(t, "Total", get("A8"))
	assert.Equal(t, "9000", get("B8"))
	assert.Equal(t, "Net Balance", get("A10"))
}

func TestSheetNameSanitisesAndTruncates(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "Sales - Returns", sheetName(layout.Table{Title: "Sales / Returns"}, 0, used))
	long := strings.Repeat("x", 40)
	first := sheetName(layout.Table{Title: long}, 1, used)
	assert.Len(t, first, maxSheetName)
	second := sheetName(layout.Table{Title: long}, 2, used)
	assert.Len(t, second, maxSheetName)
	assert.True(t, strings.HasSuffix(second, " 2"))
	assert.Equal(t, "Table 4", sheetName(layout.Table{}, 3, used))
}

type stubDownloader struct {
	path        string
	body        any
	contentType string
	err         error
}

func (s *stubDownloader) Download(_ context.Context, _ backend.Credentials, path string, body any) ([]byte, string, error) {
	s.path, s.body = path, body
	return []byte("a,b\n1,2\n"), s.contentType, s.err
}

func TestCSVProxiesBackendDownload(t *testing.T) {
	d := &stubDownloader{}
	p := query.Params{FromDate: "2024-01-01", ToDate: "2024-01-31"}
	file, err := CSV(context.Background(), d, backend.Credentials{Token: "t"}, "/api/stock-download", "stock.csv", p)
	require.NoError(t, err)
	assert.Equal(t, "/api/stock-download", d.path)
	assert.Equal(t, p, d.body)
	assert.Equal(t, "stock.csv", file.Name)
	assert.Equal(t, ContentTypeCSV, file.ContentType)
	assert.Equal(t, "a,b\n1,2\n", string(file.Data))

	d.contentType = "text/csv; charset=utf-8"
	file, err = CSV(context.Background(), d, backend.Credentials{Token: "t"}, "/api/stock-download", "stock.csv", p)
	require.NoError(t, err)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
}

func TestCSVErrors(t *testing.T) {
	_, err := CSV(context.Background(), &stubDownloader{}, backend.Credentials{}, "", "x.csv", query.Params{})
	require.ErrorIs(t, err, ErrCSVUnavailable)

	boom := errors.New("boom")
	_, err = CSV(context.Background(), &stubDownloader{err: boom}, backend.Credentials{}, "/api/x", "x.csv", query.Params{})
	require.ErrorIs(t, err, boom)
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Minute), mr
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	job, err := store.Create(ctx, "alice", "stock", "stock.pdf")
	require.NoError(t, err)
	assert.Equal(t, JobPending, job.Status)
	assert.NotEmpty(t, job.ID)

	_, err = store.File(ctx, job.ID)
	require.ErrorIs(t, err, ErrJobState)

	job, err = store.MarkRunning(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobRunning, job.Status)
	_, err = store.MarkRunning(ctx, job.ID)
	require.ErrorIs(t, err, ErrJobState)

	job, err = store.Complete(ctx, job.ID, []byte("%PDF"))
	require.NoError(t, err)
	assert.True(t, job.Finished())

	file, err := store.File(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "stock.pdf", file.Name)
	assert.Equal(t, ContentTypePDF, file.ContentType)
	assert.Equal(t, "%PDF", string(file.Data))

	_, err = store.Fail(ctx, job.ID, "late")
	require.ErrorIs(t, err, ErrJobState)
}

func TestStoreFailAndExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	job, err := store.Create(ctx, "bob", "sales", "sales.pdf")
	require.NoError(t, err)
	job, err = store.Fail(ctx, job.ID, "renderer offline")
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)

	loaded, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "renderer offline", loaded.Error)
	assert.Equal(t, "bob", loaded.Owner)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, job.ID)
	require.ErrorIs(t, err, ErrJobNotFound)
}
