// Package costledger implements the Cost Ledger (C7): per-call LLM cost
// accounting against a pricing table, with fire-and-forget asynchronous
// persistence to the durable store and a bounded retry policy.
package costledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/metrics"
)

// recordStore is the subset of the durable store the ledger writes
// through. It is an interface so tests can substitute an in-memory fake
// instead of standing up the real NATS-backed store.
type recordStore interface {
	AppendLLMCostRecord(ctx context.Context, rec *domain.LLMCostRecord) error
}

const (
	defaultQueueDepth = 256
	maxWriteAttempts  = 3
	retryBaseDelay    = 100 * time.Millisecond
)

// Ledger computes and persists LLM usage costs. Record returns its cost
// figures synchronously; durable persistence happens on a background
// worker so callers never block on store latency.
type Ledger struct {
	store  recordStore
	logger *slog.Logger

	queue chan *domain.LLMCostRecord
	wg    sync.WaitGroup
}

// New starts a Ledger backed by store, with one background writer drains
// the async queue.
func New(store recordStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{
		store:  store,
		logger: logger,
		queue:  make(chan *domain.LLMCostRecord, defaultQueueDepth),
	}
	l.wg.Add(1)
	go l.drain()
	return l
}

// Record computes the cost of one LLM call and enqueues it for durable
// persistence. The returned record already carries final cost figures
// regardless of whether the async write has completed.
func (l *Ledger) Record(model, provider string, promptTokens, completionTokens int, workflowID, tenantID, userID, taskID string, latencyMS int64) *domain.LLMCostRecord {
	pricing, matched := PricingFor(model)
	rec := domain.NewLLMCostRecord(model, provider, promptTokens, completionTokens, pricing.InputPerMillion, pricing.OutputPerMillion)
	rec.ID = uuid.NewString()
	rec.WorkflowID = workflowID
	rec.TenantID = tenantID
	rec.UserID = userID
	rec.TaskID = taskID
	rec.LatencyMS = latencyMS
	rec.FallbackPricing = !matched
	rec.Timestamp = time.Now().UTC()

	metrics.CostLedgerPendingWrites.Inc()
	select {
	case l.queue <- rec:
	default:
		// Queue is saturated; write inline rather than drop the record.
		l.persistWithRetry(context.Background(), rec)
	}
	return rec
}

func (l *Ledger) drain() {
	defer l.wg.Done()
	for rec := range l.queue {
		l.persistWithRetry(context.Background(), rec)
	}
}

func (l *Ledger) persistWithRetry(ctx context.Context, rec *domain.LLMCostRecord) {
	defer metrics.CostLedgerPendingWrites.Dec()

	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		if err = l.store.AppendLLMCostRecord(ctx, rec); err == nil {
			return
		}
		if attempt < maxWriteAttempts {
			time.Sleep(retryBaseDelay * time.Duration(attempt))
		}
	}
	l.logger.Error("cost ledger: giving up persisting record after retries",
		"record_id", rec.ID, "model", rec.Model, "workflow_id", rec.WorkflowID, "error", err)
}

// Close stops accepting new records and blocks until the queue has fully
// drained or ctx is cancelled.
func (l *Ledger) Close(ctx context.Context) error {
	close(l.queue)
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
