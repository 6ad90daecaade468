package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobsKey     = "jobs"
	jobQueueKey = "job_queue"
)

type Queue struct {
	client *redis.Client
	ctx    context.Context
}

func NewQueue(redisAddr string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Queue{
		client: client,
		ctx:    ctx,
	}, nil
}

// Enqueue stores the job and schedules it. Higher priority jobs sort ahead of
// lower priority ones due at the same time.
func (q *Queue) Enqueue(job *Job) error {
	jobJSON, err := job.ToJSON()
	if err != nil {
		return err
	}

	if err := q.client.HSet(q.ctx, jobsKey, job.ID, jobJSON).Err(); err != nil {
		return err
	}

	invertedPriority := float64(PriorityHigh - job.Priority)
	score := float64(job.ScheduledAt.Unix())*1000 + invertedPriority
	return q.client.ZAdd(q.ctx, jobQueueKey, redis.Z{
		Score:  score,
		Member: job.ID,
	}).Err()
}

// Dequeue pops the next due job, or returns nil when nothing is due.
func (q *Queue) Dequeue() (*Job, error) {
	now := time.Now().Unix()
	maxScore := float64(now)*1000 + float64(PriorityHigh-PriorityLow)

	results, err := q.client.ZRangeByScore(q.ctx, jobQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", maxScore),
		Count: 1,
	}).Result()

	if err != nil || len(results) == 0 {
		return nil, err
	}

	jobID := results[0]

	q.client.ZRem(q.ctx, jobQueueKey, jobID)

	jobJSON, err := q.client.HGet(q.ctx, jobsKey, jobID).Result()
	if err != nil {
		return nil, err
	}

	return JobFromJSON(jobJSON)
}

func (q *Queue) UpdateJob(job *Job) error {
	jobJSON, err := job.ToJSON()
	if err != nil {
		return err
	}
	return q.client.HSet(q.ctx, jobsKey, job.ID, jobJSON).Err()
}

func (q *Queue) GetJob(jobID string) (*Job, error) {
	jobJSON, err := q.client.HGet(q.ctx, jobsKey, jobID).Result()
	if err != nil {
		return nil, err
	}
	return JobFromJSON(jobJSON)
}

func (q *Queue) GetAllJobs() ([]*Job, error) {
	jobMap, err := q.client.HGetAll(q.ctx, jobsKey).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*Job, 0, len(jobMap))
	for _, jobJSON := range jobMap {
		job, err := JobFromJSON(jobJSON)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
