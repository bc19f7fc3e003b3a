package buildqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zkgate/internal/apperrors"
)

const (
	queueKey     = "buildqueue:pending"
	jobKeyPrefix = "buildqueue:job:"
	leasedSet    = "buildqueue:leased"
)

// Queue is the Redis-backed FIFO job queue.
type Queue struct {
	redis *redis.Client
}

// New constructs a Queue.
func New(client *redis.Client) *Queue {
	return &Queue{redis: client}
}

// Enqueue stores the job record and pushes its id onto the pending list
// (RPUSH), preserving submission order — Pop drains with BLPOP from the
// opposite end.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if err := q.save(ctx, job); err != nil {
		return err
	}
	if err := q.redis.RPush(ctx, queueKey, job.ID).Err(); err != nil {
		return apperrors.ErrUnavailable.Wrap(fmt.Errorf("enqueue: %w", err))
	}
	return nil
}

// Pop blocks up to timeout waiting for a job id, loads its record, and
// returns it. It does not mark the job as building — callers must do that
// and persist the lease via Lease.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (Job, bool, error) {
	result, err := q.redis.BLPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, apperrors.ErrUnavailable.Wrap(fmt.Errorf("pop: %w", err))
	}
	// BLPop returns [key, value].
	jobID := result[1]
	job, found, err := q.Get(ctx, jobID)
	if err != nil {
		return Job{}, false, err
	}
	if !found {
		return Job{}, false, nil
	}
	return job, true, nil
}

// Lease claims a job for workerID and records the lease in the janitor's
// sorted set, scored by expiry time so it can scan for expired leases
// cheaply (ZRANGEBYSCORE) instead of scanning every job.
func (q *Queue) Lease(ctx context.Context, job Job, workerID string, leaseTTL time.Duration) error {
	job.MarkBuilding(workerID, leaseTTL)
	if err := q.save(ctx, job); err != nil {
		return err
	}
	score := float64(job.LeaseExpiresAt.UnixMilli())
	if err := q.redis.ZAdd(ctx, leasedSet, redis.Z{Score: score, Member: job.ID}).Err(); err != nil {
		return apperrors.ErrUnavailable.Wrap(fmt.Errorf("lease: %w", err))
	}
	return nil
}

// Complete marks a job completed and removes it from the leased set.
func (q *Queue) Complete(ctx context.Context, job Job, imageID, guestProgramPath string) error {
	job.MarkCompleted(imageID, guestProgramPath)
	if err := q.save(ctx, job); err != nil {
		return err
	}
	return q.unlease(ctx, job.ID)
}

// Fail marks a job failed and removes it from the leased set.
func (q *Queue) Fail(ctx context.Context, job Job, errText string) error {
	job.MarkFailed(errText)
	if err := q.save(ctx, job); err != nil {
		return err
	}
	return q.unlease(ctx, job.ID)
}

func (q *Queue) unlease(ctx context.Context, jobID string) error {
	if err := q.redis.ZRem(ctx, leasedSet, jobID).Err(); err != nil {
		return apperrors.ErrUnavailable.Wrap(fmt.Errorf("unlease: %w", err))
	}
	return nil
}

// ExpiredLeases returns job ids whose lease expired at or before asOf —
// candidates for the janitor to requeue.
func (q *Queue) ExpiredLeases(ctx context.Context, asOf time.Time) ([]string, error) {
	ids, err := q.redis.ZRangeByScore(ctx, leasedSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", asOf.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, apperrors.ErrUnavailable.Wrap(fmt.Errorf("expired leases: %w", err))
	}
	return ids, nil
}

// Requeue resets a job to queued (clearing its lease) and pushes it back
// onto the pending list — used by the janitor to recover crashed workers'
// jobs.
func (q *Queue) Requeue(ctx context.Context, jobID string) error {
	job, found, err := q.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !found {
		return q.unlease(ctx, jobID)
	}
	job.Status = StatusQueued
	job.WorkerID = ""
	job.LeaseExpiresAt = nil
	if err := q.save(ctx, job); err != nil {
		return err
	}
	if err := q.unlease(ctx, jobID); err != nil {
		return err
	}
	return q.redis.RPush(ctx, queueKey, jobID).Err()
}

// Get loads a job record by id.
func (q *Queue) Get(ctx context.Context, jobID string) (Job, bool, error) {
	blob, err := q.redis.Get(ctx, jobKeyPrefix+jobID).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, apperrors.ErrUnavailable.Wrap(fmt.Errorf("get job: %w", err))
	}
	var job Job
	if err := json.Unmarshal([]byte(blob), &job); err != nil {
		return Job{}, false, apperrors.ErrInternal.Wrap(fmt.Errorf("get job: corrupt record: %w", err))
	}
	return job, true, nil
}

func (q *Queue) save(ctx context.Context, job Job) error {
	blob, err := json.Marshal(job)
	if err != nil {
		return apperrors.ErrInternal.Wrap(err)
	}
	if err := q.redis.Set(ctx, jobKeyPrefix+job.ID, blob, 0).Err(); err != nil {
		return apperrors.ErrUnavailable.Wrap(fmt.Errorf("save job: %w", err))
	}
	return nil
}
