// Package store implements the Durable Store (C1): capsules, an
// append-only LLM usage ledger, workflow checkpoints, and request history,
// backed by NATS JetStream key-value buckets. All writes are transactional
// per row.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/capsuleforge/core/internal/config"
	"github.com/capsuleforge/core/internal/domain"
)

// ErrNotFound is returned when an entity is not found in a bucket.
var ErrNotFound = errors.New("entity not found")

// Bucket names, one per entity kind.
const (
	bucketCapsules            = "CAPSULEFORGE_CAPSULES"
	bucketLLMUsage            = "CAPSULEFORGE_LLM_USAGE"
	bucketWorkflowCheckpoints = "CAPSULEFORGE_WORKFLOW_CHECKPOINTS"
	bucketRequestHistory      = "CAPSULEFORGE_REQUEST_HISTORY"
)

// Store is the NATS JetStream-backed Durable Store.
type Store struct {
	conn           *nats.Conn
	embeddedServer *server.Server
	js             jetstream.JetStream

	capsules    jetstream.KeyValue
	llmUsage    jetstream.KeyValue
	checkpoints jetstream.KeyValue
	requests    jetstream.KeyValue
}

// Open connects to NATS (embedded or external, per cfg) and opens or
// creates every bucket the store needs.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	s := &Store{}

	if cfg.URL != "" && !cfg.Embedded {
		conn, err := nats.Connect(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		s.conn = conn
	} else {
		opts := &server.Options{
			Port:      -1,
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		}
		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("create embedded nats server: %w", err)
		}
		go ns.Start()
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return nil, fmt.Errorf("embedded nats server failed to start")
		}
		s.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return nil, fmt.Errorf("connect to embedded nats: %w", err)
		}
		s.conn = conn
	}

	js, err := jetstream.New(s.conn)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	s.js = js

	if s.capsules, err = getOrCreateBucket(ctx, js, bucketCapsules, "capsules, keyed by capsule id"); err != nil {
		return nil, err
	}
	if s.llmUsage, err = getOrCreateBucket(ctx, js, bucketLLMUsage, "append-only llm cost ledger"); err != nil {
		return nil, err
	}
	if s.checkpoints, err = getOrCreateBucket(ctx, js, bucketWorkflowCheckpoints, "workflow checkpoints, keyed by workflow id"); err != nil {
		return nil, err
	}
	if s.requests, err = getOrCreateBucket(ctx, js, bucketRequestHistory, "request history, keyed by request id"); err != nil {
		return nil, err
	}

	return s, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name, description string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: description,
		History:     5,
	})
}

// Close drains and closes the NATS connection and, if this store started
// one, shuts down the embedded server.
func (s *Store) Close() {
	if s.conn != nil {
		s.conn.Drain()
		s.conn.Close()
	}
	if s.embeddedServer != nil {
		s.embeddedServer.Shutdown()
	}
}

// PutCapsule stores a Capsule by id. Re-generation for the same request id
// always carries a fresh Capsule.ID, so this is always a fresh key, never
// an overwrite of an existing capsule.
func (s *Store) PutCapsule(ctx context.Context, c *domain.Capsule) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal capsule: %w", err)
	}
	if _, err := s.capsules.Put(ctx, c.ID, data); err != nil {
		return fmt.Errorf("put capsule: %w", err)
	}
	return nil
}

// GetCapsule retrieves a Capsule by id.
func (s *Store) GetCapsule(ctx context.Context, id string) (*domain.Capsule, error) {
	entry, err := s.capsules.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get capsule: %w", err)
	}
	var c domain.Capsule
	if err := json.Unmarshal(entry.Value(), &c); err != nil {
		return nil, fmt.Errorf("unmarshal capsule: %w", err)
	}
	return &c, nil
}

// AppendLLMCostRecord appends a cost record. Per invariant, cost records
// are append-only: this always Creates a new key (record.ID) and never
// overwrites an existing one.
func (s *Store) AppendLLMCostRecord(ctx context.Context, rec *domain.LLMCostRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cost record: %w", err)
	}
	if _, err := s.llmUsage.Create(ctx, rec.ID, data); err != nil {
		return fmt.Errorf("append cost record: %w", err)
	}
	return nil
}

// ListLLMCostRecords returns every cost record in the ledger matching
// tenantID and workflowID filters; empty strings match all.
func (s *Store) ListLLMCostRecords(ctx context.Context, tenantID, workflowID string) ([]*domain.LLMCostRecord, error) {
	keys, err := s.llmUsage.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list cost record keys: %w", err)
	}

	records := make([]*domain.LLMCostRecord, 0, len(keys))
	for _, key := range keys {
		entry, err := s.llmUsage.Get(ctx, key)
		if err != nil {
			continue
		}
		var rec domain.LLMCostRecord
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			continue
		}
		if tenantID != "" && rec.TenantID != tenantID {
			continue
		}
		if workflowID != "" && rec.WorkflowID != workflowID {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// PutCheckpoint writes the workflow checkpoint. Called after every batch
// completes.
func (s *Store) PutCheckpoint(ctx context.Context, cp *domain.WorkflowCheckpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if _, err := s.checkpoints.Put(ctx, cp.WorkflowID, data); err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves the latest checkpoint for a workflow id.
func (s *Store) GetCheckpoint(ctx context.Context, workflowID string) (*domain.WorkflowCheckpoint, error) {
	entry, err := s.checkpoints.Get(ctx, workflowID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	var cp domain.WorkflowCheckpoint
	if err := json.Unmarshal(entry.Value(), &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// PutRequest records a Request in request history, keyed by request id.
func (s *Store) PutRequest(ctx context.Context, req *domain.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if _, err := s.requests.Put(ctx, req.ID, data); err != nil {
		return fmt.Errorf("put request: %w", err)
	}
	return nil
}

// GetRequest retrieves a Request by id from history.
func (s *Store) GetRequest(ctx context.Context, id string) (*domain.Request, error) {
	entry, err := s.requests.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get request: %w", err)
	}
	var req domain.Request
	if err := json.Unmarshal(entry.Value(), &req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	return &req, nil
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
