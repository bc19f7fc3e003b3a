package buildqueue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically requeues jobs whose lease has expired without
// reaching a terminal state — recovery for a worker that dies mid-build.
type Janitor struct {
	queue  *Queue
	period time.Duration
	log    *zap.Logger
}

// NewJanitor constructs a Janitor that sweeps every period.
func NewJanitor(queue *Queue, period time.Duration, log *zap.Logger) *Janitor {
	return &Janitor{queue: queue, period: period, log: log}
}

// Run blocks, sweeping on a ticker until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	expired, err := j.queue.ExpiredLeases(ctx, time.Now())
	if err != nil {
		j.log.Error("janitor: failed to list expired leases", zap.Error(err))
		return
	}
	for _, jobID := range expired {
		if err := j.queue.Requeue(ctx, jobID); err != nil {
			j.log.Error("janitor: failed to requeue job", zap.String("job_id", jobID), zap.Error(err))
			continue
		}
		j.log.Warn("janitor requeued job with expired lease", zap.String("job_id", jobID))
	}
}
