package export

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jung-kurt/gofpdf"

	"github.com/tilesmart/tiles-admin/internal/layout"
)

const (
	pdfMargin    = 12.0
	pdfFooterGap = 15.0
	pdfRowHeight = 6.0
	pdfFontSize  = 9.0
)

// NativePDF draws documents with gofpdf on A4 pages. Table headers repeat on
// every page and each page carries a "Page X of N" footer.
type NativePDF struct {
	// Uncompressed leaves page streams readable, which tests rely on.
	Uncompressed bool
}

// RenderPDF implements PDFRenderer.
func (n NativePDF) RenderPDF(_ context.Context, doc layout.Document) ([]byte, error) {
	orientation := string(doc.Orientation)
	if orientation == "" {
		orientation = string(layout.Portrait)
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetCompression(!n.Uncompressed)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfFooterGap)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-pdfFooterGap + 3)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, tr(doc.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", pdfFontSize)
	drawFields(pdf, tr, doc.Fields)
	pdf.CellFormat(0, 5, "Generated "+doc.GeneratedAt.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	for _, t := range doc.Tables {
		drawTable(pdf, tr, t)
		pdf.Ln(4)
	}
	if len(doc.Summary) > 0 {
		pdf.SetFont("Arial", "B", pdfFontSize)
		drawFields(pdf, tr, doc.Summary)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawFields(pdf *gofpdf.Fpdf, tr func(string) string, fields []layout.Field) {
	for _, f := range fields {
		pdf.CellFormat(35, 5, tr(f.Label+":"), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, tr(f.Value), "", 1, "L", false, 0, "")
	}
}

func drawTable(pdf *gofpdf.Fpdf, tr func(string) string, t layout.Table) {
	if len(t.Columns) == 0 {
		return
	}
	if t.Title != "" {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, tr(t.Title), "", 1, "L", false, 0, "")
	}
	widths := columnWidths(pdf, t)
	header := func() {
		pdf.SetFont("Arial", "B", pdfFontSize)
		pdf.SetFillColor(235, 235, 235)
		for i, col := range t.Columns {
			pdf.CellFormat(widths[i], pdfRowHeight, tr(col.Header), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", pdfFontSize)
	}
	row := func(cells []string, bold bool) {
		_, pageHeight := pdf.GetPageSize()
		if pdf.GetY()+pdfRowHeight > pageHeight-pdfFooterGap {
			pdf.AddPage()
			header()
		}
		if bold {
			pdf.SetFont("Arial", "B", pdfFontSize)
		}
		for i, col := range t.Columns {
			text := ""
			if i < len(cells) {
				text = fit(pdf, tr, cells[i], widths[i]-2)
			}
			pdf.CellFormat(widths[i], pdfRowHeight, text, "1", 0, pdfAlign(col.Align), false, 0, "")
		}
		pdf.Ln(-1)
		if bold {
			pdf.SetFont("Arial", "", pdfFontSize)
		}
	}

	header()
	if len(t.Rows) == 0 {
		row([]string{"No matching rows"}, false)
	}
	for _, cells := range t.Rows {
		texts := make([]string, len(cells))
		for i, c := range cells {
			texts[i] = c.Text
		}
		row(texts, false)
	}
	if t.Footer != nil {
		row(t.Footer.Cells, true)
	}
}

// columnWidths spreads the printable width by the longest text per column.
func columnWidths(pdf *gofpdf.Fpdf, t layout.Table) []float64 {
	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	available := pageWidth - left - right
	weights := make([]float64, len(t.Columns))
	total := 0.0
	for i, col := range t.Columns {
		longest := utf8.RuneCountInString(col.Header)
		for _, cells := range t.Rows {
			if i < len(cells) {
				longest = max(longest, utf8.RuneCountInString(cells[i].Text))
			}
		}
		if t.Footer != nil && i < len(t.Footer.Cells) {
			longest = max(longest, utf8.RuneCountInString(t.Footer.Cells[i]))
		}
		weights[i] = float64(min(max(longest, 6), 40))
		total += weights[i]
	}
	widths := make([]float64, len(weights))
	for i, w := range weights {
		widths[i] = available * w / total
	}
	return widths
}

// fit truncates UTF-8 text to width and returns it in the font encoding.
func fit(pdf *gofpdf.Fpdf, tr func(string) string, text string, width float64) string {
	if pdf.GetStringWidth(tr(text)) <= width {
		return tr(text)
	}
	runes := []rune(text)
	for len(runes) > 0 && pdf.GetStringWidth(tr(string(runes)+"...")) > width {
		runes = runes[:len(runes)-1]
	}
	return tr(string(runes) + "...")
}

func pdfAlign(align string) string {
	switch align {
	case "right":
		return "R"
	case "center":
		return "C"
	default:
		return "L"
	}
}
