// Package queue provides the Redis-backed background job queue used to
// schedule insight recomputation and weekly digest delivery.
package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type (
	JobStatus   string
	JobPriority int
)

// Job is one unit of background work.
type Job struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Priority    JobPriority    `json:"priority"`
	Status      JobStatus      `json:"status"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	CreatedAt   time.Time      `json:"created_at"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

const (
	PriorityLow JobPriority = iota
	PriorityMedium
	PriorityHigh
)

// Known job types.
const (
	JobComputeInsight = "compute_insight"
	JobSendDigest     = "send_digest"
)

func NewJob(jobType string, payload map[string]any, priority JobPriority) *Job {
	return &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     payload,
		Priority:    priority,
		Status:      StatusPending,
		MaxRetries:  3,
		RetryCount:  0,
		CreatedAt:   time.Now(),
		ScheduledAt: time.Now(),
	}
}

func (j *Job) ToJSON() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func JobFromJSON(data string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (p JobPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}
