// Package confidence implements the Confidence Engine (C8): eight
// dimensional analyzers that each score an artifact from 0.0 to 1.0, rolled
// up into a weighted overall score, a deployment recommendation, and a
// heuristic success-probability estimate.
package confidence

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/capsuleforge/core/internal/domain"
	"github.com/capsuleforge/core/internal/sandbox"
)

// dimensionWeights mirrors the relative importance given to each
// dimension when computing the overall weighted score.
var dimensionWeights = map[domain.ConfidenceDimension]float64{
	domain.DimensionSyntax:          0.15,
	domain.DimensionStructure:       0.10,
	domain.DimensionSecurity:        0.20,
	domain.DimensionPerformance:     0.10,
	domain.DimensionReliability:     0.15,
	domain.DimensionMaintainability: 0.10,
	domain.DimensionTestability:     0.10,
	domain.DimensionDeployability:   0.10,
}

// Input is everything one dimension analyzer may need: the candidate
// capsule, the Validation Mesh's report for it, and its sandbox execution
// result (nil if it was never run).
type Input struct {
	Capsule    domain.Capsule
	Validation *domain.ValidationReport
	Runtime    *sandbox.Result
}

func (in Input) allCode() string {
	var b strings.Builder
	for _, code := range in.Capsule.SourceCode {
		b.WriteString(code)
		b.WriteString("\n")
	}
	for _, code := range in.Capsule.Tests {
		b.WriteString(code)
		b.WriteString("\n")
	}
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Engine runs every dimensional analyzer and rolls the results up into a
// domain.ConfidenceAnalysis.
type Engine struct{}

// NewEngine returns a ready Engine. It carries no state: every analyzer is
// a pure function of its Input.
func NewEngine() *Engine {
	return &Engine{}
}

type analyzerFunc func(Input) domain.ConfidenceMetric

var analyzers = map[domain.ConfidenceDimension]analyzerFunc{
	domain.DimensionSyntax:          analyzeSyntax,
	domain.DimensionStructure:       analyzeStructure,
	domain.DimensionSecurity:        analyzeSecurity,
	domain.DimensionPerformance:     analyzePerformance,
	domain.DimensionReliability:     analyzeReliability,
	domain.DimensionMaintainability: analyzeMaintainability,
	domain.DimensionTestability:     analyzeTestability,
	domain.DimensionDeployability:   analyzeDeployability,
}

// Analyze runs all eight dimensions concurrently and produces the full
// analysis.
func (e *Engine) Analyze(ctx context.Context, in Input) *domain.ConfidenceAnalysis {
	metrics := make([]domain.ConfidenceMetric, len(domain.AllDimensions))

	g, _ := errgroup.WithContext(ctx)
	for i, dim := range domain.AllDimensions {
		i, dim := i, dim
		g.Go(func() error {
			metrics[i] = analyzers[dim](in)
			return nil
		})
	}
	_ = g.Wait() // analyzers never return an error; Wait only joins goroutines

	overall := weightedOverall(metrics)
	level := domain.LevelForScore(overall)
	humanReview := domain.RequiresHumanReview(overall, metrics)

	return &domain.ConfidenceAnalysis{
		Overall:              overall,
		Level:                level,
		Metrics:              metrics,
		Recommendation:       recommendationFor(level),
		RiskFactors:          riskFactors(metrics),
		MitigationStrategies: mitigationStrategies(metrics),
		HumanReviewRequired:  humanReview,
		SuccessProbability:   estimateSuccessProbability(in, metrics),
	}
}

func weightedOverall(metrics []domain.ConfidenceMetric) float64 {
	var totalScore, totalWeight float64
	for _, m := range metrics {
		totalScore += m.Score * m.Weight
		totalWeight += m.Weight
	}
	if totalWeight == 0 {
		return 0
	}
	return totalScore / totalWeight
}

func recommendationFor(level domain.ConfidenceLevel) string {
	switch level {
	case domain.LevelCritical:
		return "deploy immediately, minimal risk"
	case domain.LevelHigh:
		return "deploy with standard monitoring"
	case domain.LevelMedium:
		return "deploy with enhanced monitoring"
	case domain.LevelLow:
		return "human review required before deployment"
	default:
		return "block deployment, critical issues must be resolved"
	}
}

// riskFactors lists dimensions scoring below 0.5 plus every analyzer's
// recorded concerns, capped at 10 entries.
func riskFactors(metrics []domain.ConfidenceMetric) []string {
	var risks []string
	for _, m := range metrics {
		if m.Score < 0.5 {
			risks = append(risks, string(m.Dimension)+" score is low")
		}
		risks = append(risks, m.Concerns...)
	}
	if len(risks) > 10 {
		risks = risks[:10]
	}
	return risks
}

func mitigationStrategies(metrics []domain.ConfidenceMetric) []string {
	var strategies []string
	for _, m := range metrics {
		if m.Score >= 0.5 {
			continue
		}
		switch m.Dimension {
		case domain.DimensionSecurity:
			strategies = append(strategies, "run a security scan and manual code review before deploying")
		case domain.DimensionTestability:
			strategies = append(strategies, "add a test suite covering the generated entry points")
		case domain.DimensionReliability:
			strategies = append(strategies, "add error handling and structured logging")
		case domain.DimensionDeployability:
			strategies = append(strategies, "add a health check and resource limits to the manifest")
		}
	}
	return strategies
}

// estimateSuccessProbability is a simple additive heuristic, not a learned
// model: it starts from a neutral base and nudges up or down on a handful
// of strong signals.
func estimateSuccessProbability(in Input, metrics []domain.ConfidenceMetric) float64 {
	prob := 0.5

	allAbove := true
	for _, m := range metrics {
		if m.Score <= 0.7 {
			allAbove = false
			break
		}
	}
	if allAbove {
		prob += 0.3
	}

	if in.Runtime != nil && in.Runtime.Status == sandbox.StatusSuccess {
		prob += 0.2
	}
	if in.Validation != nil && in.Validation.Status == domain.CheckStatusPassed {
		prob += 0.1
	}

	for _, m := range metrics {
		if m.Dimension == domain.DimensionSecurity && m.Score < 0.5 {
			prob -= 0.2
		}
	}

	return clamp01(prob)
}
