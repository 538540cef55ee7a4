package export

import (
	"context"
	"fmt"

	"github.com/tilesmart/tiles-admin/internal/layout"
	"github.com/tilesmart/tiles-admin/report"
)

// HTMLPrinter renders the print view of a document.
type HTMLPrinter interface {
	PrintHTML(doc layout.Document) (string, error)
}

// HTMLConverter converts HTML to PDF.
type HTMLConverter interface {
	RenderHTML(ctx context.Context, html string, opts report.RenderOptions) ([]byte, error)
}

// GotenbergPDF prints the same HTML the print view shows through Gotenberg.
type GotenbergPDF struct {
	printer   HTMLPrinter
	converter HTMLConverter
}

// NewGotenbergPDF wires the print template with a converter.
func NewGotenbergPDF(printer HTMLPrinter, converter HTMLConverter) (*GotenbergPDF, error) {
	if printer == nil || converter == nil {
		return nil, fmt.Errorf("export: gotenberg renderer requires printer and converter")
	}
	return &GotenbergPDF{printer: printer, converter: converter}, nil
}

// RenderPDF implements PDFRenderer.
func (g *GotenbergPDF) RenderPDF(ctx context.Context, doc layout.Document) ([]byte, error) {
	doc.Target = layout.TargetPDF
	html, err := g.printer.PrintHTML(doc)
	if err != nil {
		return nil, fmt.Errorf("export: print html: %w", err)
	}
	return g.converter.RenderHTML(ctx, html, report.RenderOptions{Landscape: doc.Orientation == layout.Landscape})
}
