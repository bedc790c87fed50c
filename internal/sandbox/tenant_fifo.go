package sandbox

import (
	"container/list"
	"context"
	"sync"

	"github.com/capsuleforge/core/internal/metrics"
)

// tenantFIFO serializes execution admission per tenant: within one tenant,
// callers are released in the order they arrived, so a burst of requests
// from one tenant cannot jump ahead of an earlier caller from the same
// tenant once capacity frees up. Tenants are independent of one another.
type tenantFIFO struct {
	mu    sync.Mutex
	queue map[string]*list.List
}

func newTenantFIFO() *tenantFIFO {
	return &tenantFIFO{queue: make(map[string]*list.List)}
}

// acquire blocks until it is this caller's turn for tenantID, or ctx is
// cancelled. The returned release func must be called to let the next
// waiter (if any) proceed.
func (f *tenantFIFO) acquire(ctx context.Context, tenantID string) (release func(), err error) {
	f.mu.Lock()
	q, ok := f.queue[tenantID]
	if !ok {
		q = list.New()
		f.queue[tenantID] = q
	}
	turn := make(chan struct{})
	elem := q.PushBack(turn)
	isFirst := q.Front() == elem
	depth := q.Len()
	f.mu.Unlock()
	metrics.SandboxQueueDepth.WithLabelValues(tenantID).Set(float64(depth))

	if !isFirst {
		select {
		case <-turn:
		case <-ctx.Done():
			f.mu.Lock()
			q.Remove(elem)
			depth = q.Len()
			f.mu.Unlock()
			metrics.SandboxQueueDepth.WithLabelValues(tenantID).Set(float64(depth))
			return nil, ctx.Err()
		}
	}

	release = func() {
		f.mu.Lock()
		q.Remove(elem)
		depth := q.Len()
		if next := q.Front(); next != nil {
			close(next.Value.(chan struct{}))
		}
		empty := q.Len() == 0
		if empty {
			delete(f.queue, tenantID)
		}
		f.mu.Unlock()
		metrics.SandboxQueueDepth.WithLabelValues(tenantID).Set(float64(depth))
	}
	return release, nil
}
