package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/kestrel-games/arcade-gateway/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DequeuesHighestPriorityFirst(t *testing.T) {
	q := queue.New(queue.NewBackpressureController(100, 0.8, 0.6, 0.95), queue.NewDeduplicator(1000, time.Minute))

	require.NoError(t, q.Enqueue(&queue.Item{Priority: queue.PriorityLow, Payload: "low"}))
	require.NoError(t, q.Enqueue(&queue.Item{Priority: queue.PriorityNormal, Payload: "normal"}))
	require.NoError(t, q.Enqueue(&queue.Item{Priority: queue.PriorityCritical, Payload: "critical"}))
	require.NoError(t, q.Enqueue(&queue.Item{Priority: queue.PriorityHigh, Payload: "high"}))

	ctx := context.Background()
	order := []string{}
	for i := 0; i < 4; i++ {
		item, err := q.Dequeue(ctx)
		require.NoError(t, err)
		order = append(order, item.Payload.(string))
	}

	assert.Equal(t, []string{"critical", "high", "normal", "low"}, order)
}

func TestQueue_FIFOWithinSamePriority(t *testing.T) {
	q := queue.New(nil, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(&queue.Item{Priority: queue.PriorityNormal, Payload: i}))
	}
	for i := 0; i < 5; i++ {
		item, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, item.Payload.(int))
	}
}

func TestQueue_DeduplicatesByHash(t *testing.T) {
	q := queue.New(nil, queue.NewDeduplicator(100, time.Minute))
	require.NoError(t, q.Enqueue(&queue.Item{Priority: queue.PriorityNormal, Hash: "abc"}))
	require.NoError(t, q.Enqueue(&queue.Item{Priority: queue.PriorityNormal, Hash: "abc"}))

	assert.Equal(t, 1, q.Size())
}

func TestQueue_BackpressureRejectsNormalAndLowAtHighWatermark(t *testing.T) {
	bp := queue.NewBackpressureController(10, 0.8, 0.6, 0.95)
	q := queue.New(bp, nil)

	for i := 0; i < 8; i++ {
		require.NoError(t, q.Enqueue(&queue.Item{Priority: queue.PriorityNormal}))
	}

	assert.ErrorIs(t, q.Enqueue(&queue.Item{Priority: queue.PriorityNormal}), queue.ErrRejected)
	assert.ErrorIs(t, q.Enqueue(&queue.Item{Priority: queue.PriorityLow}), queue.ErrRejected)
	assert.True(t, bp.IsThrottling())
}

func TestQueue_BackpressureThrottleReleasesAtLowWatermark(t *testing.T) {
	bp := queue.NewBackpressureController(10, 0.8, 0.6, 0.95)
	q := queue.New(bp, nil)

	items := make([]*queue.Item, 0, 8)
	for i := 0; i < 8; i++ {
		item := &queue.Item{Priority: queue.PriorityNormal}
		require.NoError(t, q.Enqueue(item))
		items = append(items, item)
	}
	require.True(t, bp.IsThrottling())

	for i := 0; i < 2; i++ {
		_, err := q.Dequeue(context.Background())
		require.NoError(t, err)
	}

	assert.False(t, bp.IsThrottling())
	assert.NoError(t, q.Enqueue(&queue.Item{Priority: queue.PriorityNormal}))
}

func TestQueue_RetryDropsAfterMaxRetries(t *testing.T) {
	q := queue.New(nil, nil)
	item := &queue.Item{Priority: queue.PriorityNormal}

	for i := 0; i < queue.DefaultMaxRetries; i++ {
		assert.True(t, q.Retry(item))
	}
	assert.False(t, q.Retry(item))
}

func TestQueue_DequeueRespectsContextCancellation(t *testing.T) {
	q := queue.New(nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
