package jobs

import (
	"errors"
	"time"

	"github.com/jo-hoe/ytscribe/internal/common"
)

// ErrNotFound is returned when a job id is unknown to the store.
var ErrNotFound = errors.New("job not found")

// Status represents the lifecycle state of a transcription job.
type Status string

const (
	StatusQueued    Status = common.StatusQueued
	StatusRunning   Status = common.StatusRunning
	StatusCompleted Status = common.StatusCompleted
	StatusFailed    Status = common.StatusFailed
)

// Job describes one URL-to-transcript request and its latest observed progress.
type Job struct {
	ID           string     `json:"id"` // creation time in unix milliseconds
	URL          string     `json:"url"`
	Status       Status     `json:"status"`
	Step         string     `json:"step,omitempty"` // last wire step tag
	Progress     int        `json:"progress"`
	ErrorMessage *string    `json:"error,omitempty"`
	TextPath     *string    `json:"txt,omitempty"`
	JSONPath     *string    `json:"json,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Terminal reports whether the job has finished either way.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Store records job history. It is observational: the transcript artifacts on
// disk are the durable output, the store only answers "what happened".
type Store interface {
	CreateJob(job *Job) error
	MarkRunning(id string, startedAt time.Time) error
	UpdateProgress(id, step string, progress int) error
	SaveResult(id string, textPath, jsonPath string, completedAt time.Time) error
	SaveError(id string, errMsg string, completedAt time.Time) error
	GetJob(id string) (*Job, error)
	ListJobs(limit int) ([]*Job, error)
	Close() error
}
