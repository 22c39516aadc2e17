package domain

import "time"

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is possible from the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Progress checkpoints written by the orchestrator, in order.
const (
	ProgressAccepted      = 10
	ProgressSubmitted     = 30
	ProgressPredicted     = 60
	ProgressMaterializing = 70
	ProgressDone          = 100
)

// GenerationJob tracks the conversion of dish photographs into a 3D asset.
//
// ResultURL is set only when Status is completed and Error only when Status
// is failed.
type GenerationJob struct {
	ID          string
	DishID      string
	Status      JobStatus
	Progress    int
	InputImages []string
	ResultURL   string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Clone returns a deep copy so callers can hold a snapshot safely.
func (j *GenerationJob) Clone() *GenerationJob {
	if j == nil {
		return nil
	}
	out := *j
	out.InputImages = append([]string(nil), j.InputImages...)
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}
