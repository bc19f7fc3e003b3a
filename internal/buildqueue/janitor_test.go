package buildqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"zkgate/internal/buildqueue"
)

func TestJanitor_RequeuesExpiredLease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := buildqueue.New(client)
	ctx := context.Background()

	job := sampleJob()
	require.NoError(t, q.Enqueue(ctx, job))
	popped, _, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Lease(ctx, popped, "worker-1", 10*time.Millisecond))

	mr.FastForward(50 * time.Millisecond)

	janitor := buildqueue.NewJanitor(q, 20*time.Millisecond, zap.NewNop())
	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	janitor.Run(runCtx)

	requeued, found, err := q.Get(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, buildqueue.StatusQueued, requeued.Status)
}
