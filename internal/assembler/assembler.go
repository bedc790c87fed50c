// Package assembler implements the Capsule Assembler (C12): it collates a
// workflow's Task Results into the terminal Capsule (or, when nothing
// succeeded, an error capsule), deriving a manifest, synthesizing a README
// when no task wrote one, and persisting the result to the Durable Store
// and, best-effort, the Vector Index.
package assembler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/capsuleforge/core/internal/domain"
)

// testMarkers are substrings in a task's description that mark it as a
// test-writing task even when its output kind was reported as plain code.
var testMarkers = []string{"test", "spec_", "_test"}

// CapsuleStore is the subset of the Durable Store the assembler writes to.
type CapsuleStore interface {
	PutCapsule(ctx context.Context, c *domain.Capsule) error
}

// IndexWriter is the subset of the Vector Index the assembler writes to,
// best-effort, as a secondary location for the same capsule's embeddings.
type IndexWriter interface {
	Upsert(ctx context.Context, capsuleID string, text string, metadata map[string]string) error
}

// Assembler builds Capsules from completed workflow state.
type Assembler struct {
	store  CapsuleStore
	index  IndexWriter
	logger *slog.Logger
}

// New returns an Assembler. index may be nil — Vector Index writes are
// always best-effort and are simply skipped without one configured.
func New(store CapsuleStore, index IndexWriter, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{store: store, index: index, logger: logger}
}

// Assemble partitions results into source/test/doc content, derives a
// manifest, computes the checksum, persists to the store (canonical path)
// and the index (best-effort secondary), and returns the finished Capsule.
// If zero code tasks succeeded it returns an error instead — callers
// should fall back to ErrorCapsule.
func (a *Assembler) Assemble(ctx context.Context, req *domain.Request, shared *domain.SharedContext, tasks []domain.Task, results map[string]*domain.TaskResult, report *domain.ValidationReport, analysis *domain.ConfidenceAnalysis) (*domain.Capsule, error) {
	taskByID := make(map[string]domain.Task, len(tasks))
	for _, t := range tasks {
		taskByID[t.ID] = t
	}

	source := map[string]string{}
	tests := map[string]string{}
	var docs strings.Builder
	successCount := 0
	codeFileIndex := 0

	ids := sortedResultIDs(results)
	for _, id := range ids {
		r := results[id]
		if r.Status != domain.TaskStatusCompleted {
			continue
		}
		successCount++
		t := taskByID[id]

		switch {
		case r.OutputKind == domain.OutputKindTests || (r.OutputKind == domain.OutputKindCode && isTestTask(t)):
			tests[testFileName(id, shared)] = clean(string(r.Payload))
		case r.OutputKind == domain.OutputKindCode:
			source[codeFileName(shared, codeFileIndex)] = clean(string(r.Payload))
			codeFileIndex++
		case r.OutputKind == domain.OutputKindDocs:
			docs.WriteString(clean(string(r.Payload)))
			docs.WriteString("\n")
		}
	}

	if len(source) == 0 {
		return nil, fmt.Errorf("assembler: zero code tasks succeeded")
	}

	documentation := docs.String()
	if documentation == "" {
		documentation = synthesizeReadme(req, shared)
	}

	manifest := buildManifest(req, shared)

	capsule := &domain.Capsule{
		ID:            uuid.NewString(),
		RequestID:     req.ID,
		SchemaVersion: 1,
		Manifest:      manifest,
		SourceCode:    source,
		Tests:         tests,
		Documentation: documentation,
		Validation:    report,
		Metadata:      buildMetadata(analysis, successCount, len(tasks)),
		CreatedAt:     time.Now().UTC(),
	}
	capsule.Checksum = checksum(capsule)

	if a.store != nil {
		if err := a.store.PutCapsule(ctx, capsule); err != nil {
			return nil, fmt.Errorf("assembler: persist capsule: %w", err)
		}
	}
	if a.index != nil {
		if err := a.index.Upsert(ctx, capsule.ID, indexableText(capsule), map[string]string{"request_id": req.ID, "language": shared.PrimaryLanguage}); err != nil {
			a.logger.Warn("assembler: vector index upsert failed, continuing", "capsule_id", capsule.ID, "error", err)
		}
	}

	return capsule, nil
}

// ErrorCapsule produces the terminal artifact for a workflow that ended
// with zero successful code tasks (or failed outright): diagnostics and a
// generated README describing what was attempted, in place of source.
func (a *Assembler) ErrorCapsule(req *domain.Request, results map[string]*domain.TaskResult, failures []string) *domain.ErrorCapsule {
	statuses := make(map[string]domain.TaskStatus, len(results))
	for id, r := range results {
		statuses[id] = r.Status
	}
	ec := &domain.ErrorCapsule{
		ID:           uuid.NewString(),
		RequestID:    req.ID,
		Reason:       "no code tasks completed successfully",
		Failures:     failures,
		TaskStatuses: statuses,
		README:       failureReadme(req, results, failures),
		CreatedAt:    time.Now().UTC(),
	}
	return ec
}

func isTestTask(t domain.Task) bool {
	if t.Type == domain.TaskTypeTestGeneration {
		return true
	}
	lower := strings.ToLower(t.Description)
	for _, marker := range testMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func codeFileName(shared *domain.SharedContext, index int) string {
	if index == 0 {
		return shared.MainFileName
	}
	dot := strings.LastIndex(shared.MainFileName, ".")
	if dot < 0 {
		return fmt.Sprintf("%s_%d", shared.MainFileName, index)
	}
	return fmt.Sprintf("%s_%d%s", shared.MainFileName[:dot], index, shared.MainFileName[dot:])
}

func testFileName(taskID string, shared *domain.SharedContext) string {
	dot := strings.LastIndex(shared.MainFileName, ".")
	ext := ".txt"
	if dot >= 0 {
		ext = shared.MainFileName[dot:]
	}
	return taskID + "_test" + ext
}

func buildManifest(req *domain.Request, shared *domain.SharedContext) domain.Manifest {
	return domain.Manifest{
		Name:         manifestName(req),
		Version:      "0.1.0",
		Language:     shared.PrimaryLanguage,
		Type:         "generated-service",
		Description:  req.Description,
		EntryPoint:   shared.MainFileName,
		Dependencies: shared.CommonImports,
		Resources:    domain.Resources{CPUCores: 0.5, MemoryMB: 256},
	}
}

func manifestName(req *domain.Request) string {
	name := strings.ToLower(title(req))
	name = strings.ReplaceAll(name, " ", "-")
	if name == "" {
		return req.ID
	}
	return name
}

func buildMetadata(analysis *domain.ConfidenceAnalysis, successCount, totalTasks int) domain.CapsuleMetadata {
	meta := domain.CapsuleMetadata{
		GenerationMetrics: map[string]float64{
			"successful_tasks": float64(successCount),
			"total_tasks":      float64(totalTasks),
		},
		QualityScores: map[string]float64{},
	}
	if analysis == nil {
		return meta
	}
	meta.QualityScores["overall"] = analysis.Overall
	for _, m := range analysis.Metrics {
		meta.QualityScores[string(m.Dimension)] = m.Score
	}
	return meta
}

func checksum(c *domain.Capsule) string {
	h := sha256.New()
	for _, name := range sortedKeys(c.SourceCode) {
		h.Write([]byte(name))
		h.Write([]byte(c.SourceCode[name]))
	}
	for _, name := range sortedKeys(c.Tests) {
		h.Write([]byte(name))
		h.Write([]byte(c.Tests[name]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func indexableText(c *domain.Capsule) string {
	var sb strings.Builder
	sb.WriteString(c.Manifest.Description)
	sb.WriteString("\n")
	sb.WriteString(c.Documentation)
	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedResultIDs(results map[string]*domain.TaskResult) []string {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
