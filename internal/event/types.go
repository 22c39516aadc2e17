package event

import "time"

type EventType string

const (
	EventJobCreated   EventType = "job.created"
	EventJobProgress  EventType = "job.progress"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
)

// JobEventTypes lists every job lifecycle event in emission order.
var JobEventTypes = []EventType{EventJobCreated, EventJobProgress, EventJobCompleted, EventJobFailed}

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// JobEvent is the payload of every job.* event.
type JobEvent struct {
	JobID     string `json:"jobId"`
	DishID    string `json:"dishId"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	ResultURL string `json:"resultUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}
