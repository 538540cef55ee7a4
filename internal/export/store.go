package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobStatus is the lifecycle state of an asynchronous export.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

var (
	// ErrJobNotFound is returned for unknown or expired jobs.
	ErrJobNotFound = errors.New("export: job not found")
	// ErrJobState is returned when a transition is not allowed.
	ErrJobState = errors.New("export: invalid job state")
)

// Job is an export rendered by the worker.
type Job struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	Report      string    `json:"report"`
	Status      JobStatus `json:"status"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Finished reports whether the job reached a terminal state.
func (j Job) Finished() bool {
	return j.Status == JobDone || j.Status == JobFailed
}

// Store keeps export jobs and their files in Redis until ttl elapses.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewStore constructs a job store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{client: client, ttl: ttl, prefix: "tiles:export:", now: time.Now}
}

func (s *Store) metaKey(id string) string { return s.prefix + id }
func (s *Store) dataKey(id string) string { return s.prefix + id + ":data" }

// Create registers a pending job for owner.
func (s *Store) Create(ctx context.Context, owner, report, filename string) (Job, error) {
	now := s.now().UTC()
	job := Job{
		ID:          uuid.NewString(),
		Owner:       owner,
		Report:      report,
		Status:      JobPending,
		Filename:    filename,
		ContentType: ContentTypePDF,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.save(ctx, job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Get loads a job.
func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	raw, err := s.client.Get(ctx, s.metaKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("export: load job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("export: decode job: %w", err)
	}
	return job, nil
}

// MarkRunning moves a pending job to running.
func (s *Store) MarkRunning(ctx context.Context, id string) (Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.Status != JobPending {
		return job, ErrJobState
	}
	job.Status = JobRunning
	return job, s.save(ctx, job)
}

// Complete stores the rendered file and marks the job done.
func (s *Store) Complete(ctx context.Context, id string, data []byte) (Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.Finished() {
		return job, ErrJobState
	}
	if err := s.client.Set(ctx, s.dataKey(id), data, s.ttl).Err(); err != nil {
		return Job{}, fmt.Errorf("export: store file: %w", err)
	}
	job.Status = JobDone
	job.Error = ""
	return job, s.save(ctx, job)
}

// Fail records the failure reason.
func (s *Store) Fail(ctx context.Context, id, reason string) (Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if job.Status == JobDone {
		return job, ErrJobState
	}
	job.Status = JobFailed
	job.Error = reason
	return job, s.save(ctx, job)
}

// File returns the finished export of a done job.
func (s *Store) File(ctx context.Context, id string) (File, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return File{}, err
	}
	if job.Status != JobDone {
		return File{}, ErrJobState
	}
	data, err := s.client.Get(ctx, s.dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return File{}, ErrJobNotFound
	}
	if err != nil {
		return File{}, fmt.Errorf("export: load file: %w", err)
	}
	return File{Name: job.Filename, ContentType: job.ContentType, Data: data}, nil
}

func (s *Store) save(ctx context.Context, job Job) error {
	job.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.metaKey(job.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("export: save job: %w", err)
	}
	return nil
}
