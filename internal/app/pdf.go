package app

import (
	"fmt"

	"github.com/tilesmart/tiles-admin/internal/export"
	"github.com/tilesmart/tiles-admin/report"
)

// NewPDFRenderer selects the PDF renderer named by PDF_RENDERER. The
// Gotenberg client is returned as well so its health can be exposed; it is
// nil for the native renderer.
func NewPDFRenderer(cfg *Config, printer export.HTMLPrinter) (export.PDFRenderer, *report.Client, error) {
	switch cfg.PDFRenderer {
	case PDFRendererGotenberg:
		client := report.NewClient(cfg.GotenbergURL)
		renderer, err := export.NewGotenbergPDF(printer, client)
		if err != nil {
			return nil, nil, err
		}
		return renderer, client, nil
	case PDFRendererNative, "":
		return export.NativePDF{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown pdf renderer %q", cfg.PDFRenderer)
	}
}
