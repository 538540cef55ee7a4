// Package export turns report documents into files: PDF, spreadsheets and
// CSV blobs produced by the backend.
package export

import (
	"context"
	"errors"
	"strings"

	"github.com/tilesmart/tiles-admin/internal/layout"
)

// Content types of exported files.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV  = "text/csv"
)

var (
	// ErrNotReady is returned when a document has no loaded data.
	ErrNotReady = errors.New("export: document not loaded")
	// ErrCSVUnavailable is returned for reports without a backend CSV endpoint.
	ErrCSVUnavailable = errors.New("export: csv not available for report")
)

// File is an export ready for download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// PDFRenderer renders a document to PDF bytes.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, doc layout.Document) ([]byte, error)
}

// Filename builds a download name from stem, the document parameters and ext.
func Filename(stem string, doc layout.Document, ext string) string {
	parts := []string{strings.TrimSpace(stem)}
	if parts[0] == "" {
		parts[0] = doc.Report
	}
	if doc.Params.FromDate != "" {
		parts = append(parts, doc.Params.FromDate)
	}
	if doc.Params.ToDate != "" {
		parts = append(parts, doc.Params.ToDate)
	}
	if doc.Params.ID > 0 {
		parts = append(parts, doc.Params.Values().Get("id"))
	}
	return strings.Join(parts, "_") + "." + ext
}

// PDF renders doc with r and names the file after stem.
func PDF(ctx context.Context, r PDFRenderer, stem string, doc layout.Document) (File, error) {
	if !doc.Ready() {
		return File{}, ErrNotReady
	}
	data, err := r.RenderPDF(ctx, doc)
	if err != nil {
		return File{}, err
	}
	return File{Name: Filename(stem, doc, "pdf"), ContentType: ContentTypePDF, Data: data}, nil
}
