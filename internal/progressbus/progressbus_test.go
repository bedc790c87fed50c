package progressbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsuleforge/core/internal/domain"
)

func TestBus_Subscribe_ReceivesHistoryThenLive(t *testing.T) {
	b := New()
	defer b.Close()

	b.Publish(domain.ProgressEvent{ID: "1", Kind: domain.EventWorkflowStarted, WorkflowID: "wf-1"})
	b.Publish(domain.ProgressEvent{ID: "2", Kind: domain.EventTaskStarted, WorkflowID: "wf-1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	history, live, unsubscribe := b.Subscribe(ctx, "wf-1")
	defer unsubscribe()

	require.Len(t, history, 2)
	assert.Equal(t, "1", history[0].ID)
	assert.Equal(t, "2", history[1].ID)

	b.Publish(domain.ProgressEvent{ID: "3", Kind: domain.EventTaskCompleted, WorkflowID: "wf-1"})

	select {
	case e := <-live:
		assert.Equal(t, "3", e.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestBus_Publish_NeverBlocksOnSlowSubscriber(t *testing.T) {
	b := New()
	defer b.Close()
	b.subBuffer = 2 // shrink for the test; subscribers created after this point pick it up

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, live, unsubscribe := b.Subscribe(ctx, "wf-slow")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			b.Publish(domain.ProgressEvent{ID: "x", WorkflowID: "wf-slow"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	// Drain whatever made it through; the point is Publish returned promptly.
	for {
		select {
		case <-live:
		default:
			return
		}
	}
}

func TestBus_Subscribe_UnsubscribeOnContextCancel(t *testing.T) {
	b := New()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, live, _ := b.Subscribe(ctx, "wf-cancel")
	cancel()

	require.Eventually(t, func() bool {
		_, open := <-live
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestRing_PushWrapsAtCapacity(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 5; i++ {
		r.push(domain.ProgressEvent{ID: string(rune('a' + i))})
	}
	snap := r.snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "c", snap[0].ID)
	assert.Equal(t, "e", snap[2].ID)
}

func TestRing_PruneOlderThanDropsStaleEvents(t *testing.T) {
	r := newRing(5)
	now := time.Now()
	r.push(domain.ProgressEvent{ID: "old", Timestamp: now.Add(-2 * time.Hour)})
	r.push(domain.ProgressEvent{ID: "new", Timestamp: now})

	r.pruneOlderThan(func(e domain.ProgressEvent) bool { return e.Timestamp.Before(now.Add(-time.Hour)) })

	snap := r.snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "new", snap[0].ID)
}
