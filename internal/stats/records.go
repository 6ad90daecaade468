// Package stats turns raw family activity records into windowed metric
// snapshots. All functions are pure and operate on already-fetched data;
// callers own fetching, filtering of soft-deleted children, and persistence.
package stats

import "time"

type TaskStatus string

const (
	StatusActive         TaskStatus = "active"
	StatusReadyForReview TaskStatus = "ready_for_review"
	StatusApproved       TaskStatus = "approved"
	StatusRejected       TaskStatus = "rejected"
)

type EventType string

const (
	EventCompleted EventType = "completed"
	EventApproved  EventType = "approved"
	EventRejected  EventType = "rejected"
)

// TaskRecord is one assignment instance. Status transitions are owned by the
// approval workflow, not by this package.
type TaskRecord struct {
	ID            string     `json:"id"`
	ChildID       string     `json:"child_id"`
	Status        TaskStatus `json:"status"`
	RewardMinutes int        `json:"reward_minutes"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TaskEventRecord is used only to pair completed and approved timestamps per
// task for latency measurement.
type TaskEventRecord struct {
	AssignedTaskID string    `json:"assigned_task_id"`
	EventType      EventType `json:"event_type"`
	CreatedAt      time.Time `json:"created_at"`
}

type RedemptionRecord struct {
	ChildID      string    `json:"child_id"`
	MinutesSpent int       `json:"minutes_spent"`
	CreatedAt    time.Time `json:"created_at"`
}

type ChildSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OutcomeLink ties an assigned task to a behavior outcome defined by the family.
type OutcomeLink struct {
	AssignedTaskID string `json:"assigned_task_id"`
	OutcomeID      string `json:"outcome_id"`
}

// Input bundles one family's activity, already scoped to the family and
// excluding soft-deleted children.
type Input struct {
	Tasks              []TaskRecord
	Events             []TaskEventRecord
	Redemptions        []RedemptionRecord
	Children           []ChildSummary
	OutcomeLinks       []OutcomeLink
	ActiveOutcomeCount int

	// DailyGoal is the tasks-per-day target for the daily series;
	// zero means the default of one task per day.
	DailyGoal int

	// ChildFilter restricts the snapshot to a single child when non-empty.
	ChildFilter string
}
