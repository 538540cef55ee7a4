package view

import (
	"github.com/tilesmart/tiles-admin/internal/layout"
	"github.com/tilesmart/tiles-admin/internal/query"
)

// Link is a labelled href.
type Link struct {
	Label string
	Href  string
}

// ReportCard lists a report on the home page.
type ReportCard struct {
	Title       string
	Description string
	Href        string
}

// HomePage is the report index.
type HomePage struct {
	Reports []ReportCard
}

// LoginPage is the sign-in form.
type LoginPage struct {
	Username string
	Next     string
	Error    string
}

// ReportPage is a report screen.
type ReportPage struct {
	Doc layout.Document
	// Action is the path the parameter form submits to.
	Action string
	// ParamError explains rejected parameters.
	ParamError string
	RetryURL   string
	Exports    []Link
}

// Loading reports whether the fetch is still in flight.
func (p ReportPage) Loading() bool {
	return p.Doc.Status == query.StatusLoading
}

// ExportPage shows the progress of a background export.
type ExportPage struct {
	Report      string
	Filename    string
	Status      string
	Error       string
	DownloadURL string
	BackURL     string
}

// Pending reports whether the page should keep polling.
func (p ExportPage) Pending() bool {
	return p.Status == "pending" || p.Status == "running"
}
