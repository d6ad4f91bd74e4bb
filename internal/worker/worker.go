// Package worker runs story generation asynchronously off a Redis list.
// Jobs survive a restart of the serving process; results are kept for a
// day for pickup.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vnmchuo/storyloom/internal/budget"
	"github.com/vnmchuo/storyloom/internal/pipeline"
	"github.com/vnmchuo/storyloom/internal/story"
)

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

var ErrJobNotFound = errors.New("job not found")

type Job struct {
	ID          string         `json:"id"`
	PrincipalID string         `json:"principal_id"`
	Tier        string         `json:"tier"`
	Request     *story.Request `json:"request"`
	Status      JobStatus      `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, *pipeline.Outcome, error)
	Process(ctx context.Context) error // starts the worker loop
}

const (
	queueKey = "jobs:stories"
	jobTTL   = 24 * time.Hour
	popWait  = 5 * time.Second
)

func jobKey(id string) string { return fmt.Sprintf("job:%s", id) }

type RedisQueue struct {
	rdb      *redis.Client
	pipeline *pipeline.Service
}

func NewRedisQueue(rdb *redis.Client, p *pipeline.Service) *RedisQueue {
	return &RedisQueue{rdb: rdb, pipeline: p}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = JobStatusPending
	job.CreatedAt = time.Now()

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	key := jobKey(job.ID)
	if err := q.rdb.HSet(ctx, key, "payload", payload, "status", string(JobStatusPending)).Err(); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	q.rdb.Expire(ctx, key, jobTTL)

	if err := q.rdb.LPush(ctx, queueKey, job.ID).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, jobID string) (*Job, *pipeline.Outcome, error) {
	fields, err := q.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, nil, err
	}
	if len(fields) == 0 {
		return nil, nil, ErrJobNotFound
	}

	var job Job
	if err := json.Unmarshal([]byte(fields["payload"]), &job); err != nil {
		return nil, nil, fmt.Errorf("decode job: %w", err)
	}
	job.Status = JobStatus(fields["status"])
	job.Error = fields["error"]

	var outcome *pipeline.Outcome
	if raw, ok := fields["result"]; ok && raw != "" {
		outcome = &pipeline.Outcome{}
		if err := json.Unmarshal([]byte(raw), outcome); err != nil {
			return nil, nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &job, outcome, nil
}

// Process blocks until the context is cancelled, popping and running one
// job at a time. Jobs go through the same admission and recording as
// synchronous requests.
func (q *RedisQueue) Process(ctx context.Context) error {
	log.Printf("worker: processing queue %s", queueKey)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		vals, err := q.rdb.BRPop(ctx, popWait, queueKey).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("worker: pop failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		q.run(ctx, vals[1])
	}
}

func (q *RedisQueue) run(ctx context.Context, jobID string) {
	job, _, err := q.Get(ctx, jobID)
	if err != nil {
		log.Printf("worker: job %s unreadable: %v", jobID, err)
		return
	}

	key := jobKey(jobID)
	q.rdb.HSet(ctx, key, "status", string(JobStatusRunning))

	p := budget.Principal{ID: job.PrincipalID, Tier: job.Tier}
	outcome, err := q.pipeline.Generate(ctx, p, job.Request)
	if err != nil {
		log.Printf("worker: job %s failed: %v", jobID, err)
		q.rdb.HSet(ctx, key, "status", string(JobStatusFailed), "error", err.Error())
		return
	}

	raw, err := json.Marshal(outcome)
	if err != nil {
		q.rdb.HSet(ctx, key, "status", string(JobStatusFailed), "error", err.Error())
		return
	}
	q.rdb.HSet(ctx, key, "status", string(JobStatusDone), "result", raw)
	log.Printf("worker: job %s served by %s", jobID, outcome.Strategy)
}
