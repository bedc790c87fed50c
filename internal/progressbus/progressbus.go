// Package progressbus implements the Progress Bus (C9): per-workflow
// publish/subscribe of progress events, with a bounded ring buffer for
// late subscribers and non-blocking delivery to live ones. Publishers
// never block on a slow subscriber; slow subscribers are evicted instead.
package progressbus

import (
	"context"
	"sync"
	"time"

	"github.com/capsuleforge/core/internal/domain"
)

const (
	defaultHistorySize  = 100
	defaultHistoryTTL   = time.Hour
	defaultSubBuffer    = 64
	defaultMaxMisses    = 3
	defaultJanitorEvery = time.Minute
)

type subscriber struct {
	ch     chan domain.ProgressEvent
	misses int
}

type topic struct {
	mu      sync.Mutex
	history *ring
	subs    map[uint64]*subscriber
}

// Bus is a process-local, per-workflow event hub.
type Bus struct {
	historySize  int
	historyTTL   time.Duration
	subBuffer    int
	maxMisses    int
	janitorEvery time.Duration

	mu        sync.Mutex
	topics    map[string]*topic
	nextSubID uint64

	stop chan struct{}
	once sync.Once
}

// New returns a Bus with the spec's default tuning (100-event history
// ring, 1h history retention, 64-deep per-subscriber buffer, eviction
// once more than 3 consecutive deliveries are missed) and starts its
// background janitor.
func New() *Bus {
	b := &Bus{
		historySize:  defaultHistorySize,
		historyTTL:   defaultHistoryTTL,
		subBuffer:    defaultSubBuffer,
		maxMisses:    defaultMaxMisses,
		janitorEvery: defaultJanitorEvery,
		topics:       make(map[string]*topic),
		stop:         make(chan struct{}),
	}
	go b.janitorLoop()
	return b
}

func (b *Bus) topicFor(workflowID string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[workflowID]
	if !ok {
		t = &topic{history: newRing(b.historySize), subs: make(map[uint64]*subscriber)}
		b.topics[workflowID] = t
	}
	return t
}

// Publish appends event to its workflow's history ring and fans it out to
// every live subscriber without blocking; a subscriber whose buffer is
// full is charged a miss rather than stalling the publisher.
func (b *Bus) Publish(event domain.ProgressEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	t := b.topicFor(event.WorkflowID)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.history.push(event)
	for _, sub := range t.subs {
		select {
		case sub.ch <- event:
			sub.misses = 0
		default:
			sub.misses++
		}
	}
}

// Subscribe registers a new listener for workflowID and returns the
// buffered history so far, a channel of live events delivered after that
// history, and an unsubscribe func the caller must call when done.
func (b *Bus) Subscribe(ctx context.Context, workflowID string) (history []domain.ProgressEvent, live <-chan domain.ProgressEvent, unsubscribe func()) {
	t := b.topicFor(workflowID)

	t.mu.Lock()
	history = t.history.snapshot()
	sub := &subscriber{ch: make(chan domain.ProgressEvent, b.subBuffer)}
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.mu.Unlock()
	t.subs[id] = sub
	t.mu.Unlock()

	unsubscribe = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if s, ok := t.subs[id]; ok {
			close(s.ch)
			delete(t.subs, id)
		}
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return history, sub.ch, unsubscribe
}

// History returns the currently buffered events for workflowID without
// subscribing to live ones.
func (b *Bus) History(workflowID string) []domain.ProgressEvent {
	t := b.topicFor(workflowID)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.snapshot()
}

func (b *Bus) janitorLoop() {
	ticker := time.NewTicker(b.janitorEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.runJanitor()
		case <-b.stop:
			return
		}
	}
}

func (b *Bus) runJanitor() {
	cutoff := time.Now().Add(-b.historyTTL)

	b.mu.Lock()
	workflowIDs := make([]string, 0, len(b.topics))
	for id := range b.topics {
		workflowIDs = append(workflowIDs, id)
	}
	b.mu.Unlock()

	for _, id := range workflowIDs {
		t := b.topicFor(id)
		t.mu.Lock()
		t.history.pruneOlderThan(func(e domain.ProgressEvent) bool { return e.Timestamp.Before(cutoff) })
		for subID, sub := range t.subs {
			if sub.misses > b.maxMisses {
				close(sub.ch)
				delete(t.subs, subID)
			}
		}
		empty := t.history.size == 0 && len(t.subs) == 0
		t.mu.Unlock()

		if empty {
			b.mu.Lock()
			delete(b.topics, id)
			b.mu.Unlock()
		}
	}
}

// Close stops the background janitor. It does not close subscriber
// channels; callers still own their own unsubscribe lifecycle.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.stop) })
}
