// Package dashboard implements the web-based monitoring interface for queue metrics and job status.
package dashboard

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kinloop/kinloop/internal/httputil"
	"github.com/kinloop/kinloop/internal/queue"
)

type Dashboard struct {
	queue *queue.Queue
}

type Stats struct {
	TotalJobs       int            `json:"total_jobs"`
	PendingJobs     int            `json:"pending_jobs"`
	RunningJobs     int            `json:"running_jobs"`
	CompletedJobs   int            `json:"completed_jobs"`
	FailedJobs      int            `json:"failed_jobs"`
	JobsByType      map[string]int `json:"jobs_by_type"`
	AverageWaitTime string         `json:"average_wait_time"`
	LastUpdated     time.Time      `json:"last_updated"`
}

type JobHistory struct {
	JobID       string          `json:"job_id"`
	Type        string          `json:"type"`
	Status      queue.JobStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	Duration    string          `json:"duration"`
}

func NewDashboard(q *queue.Queue) *Dashboard {
	return &Dashboard{queue: q}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	jobs, err := d.queue.GetAllJobs()
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats := Stats{
		TotalJobs:   len(jobs),
		JobsByType:  make(map[string]int),
		LastUpdated: time.Now(),
	}

	var totalWaitTime time.Duration
	waitCount := 0

	for _, job := range jobs {
		switch job.Status {
		case queue.StatusPending:
			stats.PendingJobs++
		case queue.StatusRunning:
			stats.RunningJobs++
		case queue.StatusCompleted:
			stats.CompletedJobs++
		case queue.StatusFailed:
			stats.FailedJobs++
		}

		stats.JobsByType[job.Type]++

		if job.StartedAt != nil {
			waitTime := job.StartedAt.Sub(job.CreatedAt)
			totalWaitTime += waitTime
			waitCount++
		}
	}

	if waitCount > 0 {
		avgWait := totalWaitTime / time.Duration(waitCount)
		stats.AverageWaitTime = avgWait.Round(time.Millisecond).String()
	} else {
		stats.AverageWaitTime = "N/A"
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		httputil.WriteJSONError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

func (d *Dashboard) GetRecentJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := d.queue.GetAllJobs()
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	history := []JobHistory{}

	for _, job := range jobs {
		if job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.Before(cutoff) {
			continue
		}

		var duration string
		if job.StartedAt != nil {
			duration = job.CompletedAt.Sub(*job.StartedAt).Round(time.Millisecond).String()
		}

		history = append(history, JobHistory{
			JobID:       job.ID,
			Type:        job.Type,
			Status:      job.Status,
			CreatedAt:   job.CreatedAt,
			CompletedAt: job.CompletedAt,
			Duration:    duration,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(history); err != nil {
		httputil.WriteJSONError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
