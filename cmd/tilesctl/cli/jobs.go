package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"

	"github.com/tilesmart/tiles-admin/jobs"
)

// QueueInspector is the part of asynq.Inspector the jobs commands use.
type QueueInspector interface {
	jobs.QueueInspector
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps inspection helpers for the export queue.
type JobsCLI struct {
	inspector QueueInspector
}

// NewJobsCLI wraps inspector.
func NewJobsCLI(inspector QueueInspector) *JobsCLI {
	return &JobsCLI{inspector: inspector}
}

// Stats reports the export queue counters.
func (c *JobsCLI) Stats() (jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.Stats(c.inspector)
}

// Failed lists exports that exhausted their retries.
func (c *JobsCLI) Failed(size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	tasks, err := c.inspector.ListArchivedTasks(jobs.QueueExports, asynq.PageSize(size), asynq.Page(1))
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, nil
	}
	return tasks, err
}

// WriteFailed prints one line per archived export task.
func WriteFailed(w io.Writer, tasks []*asynq.TaskInfo) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(w, labelStyle.Render("No failed exports"))
		return err
	}
	for _, task := range tasks {
		jobID := "?"
		if payload, err := jobs.DecodeExportPDF(asynq.NewTask(task.Type, task.Payload)); err == nil {
			jobID = payload.JobID
		}
		if _, err := fmt.Fprintf(w, "%s job=%s retried=%d error=%s\n", task.ID, jobID, task.Retried, task.LastErr); err != nil {
			return err
		}
	}
	return nil
}
