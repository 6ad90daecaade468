// Package worker provides the background job processor that consumes and executes jobs from the queue.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kinloop/kinloop/internal/metrics"
	"github.com/kinloop/kinloop/internal/queue"
)

type JobHandler func(ctx context.Context, job *queue.Job) error

type Worker struct {
	id           string
	queue        *queue.Queue
	handlers     map[string]JobHandler
	stop         chan bool
	pollInterval time.Duration
	jobTimeout   time.Duration
}

func NewWorker(id string, q *queue.Queue) *Worker {
	return &Worker{
		id:           id,
		queue:        q,
		handlers:     make(map[string]JobHandler),
		stop:         make(chan bool),
		pollInterval: time.Second,
		jobTimeout:   30 * time.Second,
	}
}

func (w *Worker) RegisterHandler(jobType string, handler JobHandler) {
	w.handlers[jobType] = handler
}

func (w *Worker) SetPollInterval(d time.Duration) {
	w.pollInterval = d
}

func (w *Worker) Start() {
	log.Printf("Worker %s started", w.id)

	for {
		select {
		case <-w.stop:
			log.Printf("Worker %s stopped", w.id)
			return
		default:
			job, err := w.queue.Dequeue()
			if err != nil || job == nil {
				time.Sleep(w.pollInterval)
				continue
			}

			w.processJob(job)
		}
	}
}

func (w *Worker) processJob(job *queue.Job) {
	log.Printf("Worker %s processing job %s (type: %s)", w.id, job.ID, job.Type)

	start := time.Now()
	job.Status = queue.StatusRunning
	job.StartedAt = &start
	if err := w.queue.UpdateJob(job); err != nil {
		log.Printf("Failed to update job status to running: %v", err)
	}

	handler, exists := w.handlers[job.Type]
	if !exists {
		job.Status = queue.StatusFailed
		job.Error = fmt.Sprintf("no handler for job type: %s", job.Type)
		if err := w.queue.UpdateJob(job); err != nil {
			log.Printf("Failed to update job: %v", err)
		}
		metrics.RecordJobFailed(job.Type, time.Since(start))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	err := handler(ctx, job)
	cancel()

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err != nil {
		job.RetryCount++
		if job.RetryCount < job.MaxRetries {
			job.Status = queue.StatusPending
			job.ScheduledAt = time.Now().Add(time.Duration(job.RetryCount) * 10 * time.Second)
			if err := w.queue.Enqueue(job); err != nil {
				log.Printf("Failed to re-enqueue job: %v", err)
			}
			metrics.RecordJobRetried(job.Type)
			log.Printf("Job %s failed, will retry (%d/%d)", job.ID, job.RetryCount, job.MaxRetries)
		} else {
			job.Status = queue.StatusFailed
			job.Error = err.Error()
			if err := w.queue.UpdateJob(job); err != nil {
				log.Printf("Failed to update failed job: %v", err)
			}
			metrics.RecordJobFailed(job.Type, time.Since(start))
			log.Printf("Job %s failed permanently: %v", job.ID, err)
		}
	} else {
		job.Status = queue.StatusCompleted
		if err := w.queue.UpdateJob(job); err != nil {
			log.Printf("Failed to update completed job: %v", err)
		}
		metrics.RecordJobCompleted(job.Type, time.Since(start))
		log.Printf("Job %s completed successfully", job.ID)
	}
}

func (w *Worker) Stop() {
	w.stop <- true
}
