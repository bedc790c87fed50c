// Package metrics holds the Prometheus collectors shared across
// components, registered once at process startup via promauto so that no
// component needs to carry its own registration lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "capsuleforge"

// CostLedgerPendingWrites is the count of cost records queued for
// persistence but not yet durably written (C7).
var CostLedgerPendingWrites = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "cost_ledger_pending_writes",
	Help:      "Number of LLM cost records queued for async persistence but not yet written.",
})

// PatternCacheHits and PatternCacheMisses count pattern cache lookups (C3).
var (
	PatternCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pattern_cache_hits_total",
		Help:      "Total pattern cache hits.",
	})
	PatternCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pattern_cache_misses_total",
		Help:      "Total pattern cache misses.",
	})
)

// SandboxQueueDepth reports the number of executions currently queued
// awaiting admission, labeled by tenant (C4).
var SandboxQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "sandbox_queue_depth",
	Help:      "Number of sandbox executions queued per tenant awaiting admission.",
}, []string{"tenant_id"})

// SchedulerBatchesTotal and SchedulerTasksTotal count scheduler activity
// (C10); SchedulerTasksTotal is labeled by terminal status.
var (
	SchedulerBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_batches_total",
		Help:      "Total batches executed by the task scheduler.",
	})
	SchedulerTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_tasks_total",
		Help:      "Total tasks executed by the task scheduler, labeled by terminal status.",
	}, []string{"status"})
)
