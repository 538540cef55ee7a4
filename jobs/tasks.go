package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/tilesmart/tiles-admin/internal/layout"
)

const (
	// QueueExports is the queue large report exports run on.
	QueueExports = "exports"
	// TaskExportPDF renders a report document to PDF in the background.
	TaskExportPDF = "export:pdf"
)

// ExportPDFPayload carries the document to render and the export job that
// receives the file.
type ExportPDFPayload struct {
	JobID    string          `json:"job_id"`
	Document layout.Document `json:"document"`
}

// NewExportPDFTask constructs an Asynq task.
func NewExportPDFTask(payload ExportPDFPayload) (*asynq.Task, error) {
	if payload.JobID == "" {
		return nil, errors.New("jobs: export job id required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExportPDF, data), nil
}

// DecodeExportPDF reads the payload of an export task.
func DecodeExportPDF(t *asynq.Task) (ExportPDFPayload, error) {
	var payload ExportPDFPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return ExportPDFPayload{}, err
	}
	if payload.JobID == "" {
		return ExportPDFPayload{}, errors.New("jobs: export job id missing")
	}
	return payload, nil
}
