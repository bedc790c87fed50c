// Package tier implements the Agent Tier Router (C6): mapping task
// complexity to a starting model tier, escalating through stronger tiers
// on failure, and never reselecting a tier that has already failed for a
// given (workflow, task) pair within one run.
package tier

import "github.com/capsuleforge/core/internal/domain"

// Tier is a strength/cost level of the model backend used for a task.
type Tier string

const (
	T0 Tier = "T0"
	T1 Tier = "T1"
	T2 Tier = "T2"
	T3 Tier = "T3"
)

// Ordered is the escalation order, weakest/cheapest first.
var Ordered = []Tier{T0, T1, T2, T3}

// ForComplexity returns the starting tier hint for a task complexity.
func ForComplexity(c domain.Complexity) Tier {
	switch c {
	case domain.ComplexityTrivial:
		return T0
	case domain.ComplexitySimple:
		return T0
	case domain.ComplexityMedium:
		return T1
	case domain.ComplexityComplex:
		return T3
	case domain.ComplexityMeta:
		return T3
	default:
		return T0
	}
}

// Next returns the tier immediately above t, and whether one exists.
func Next(t Tier) (Tier, bool) {
	for i, candidate := range Ordered {
		if candidate == t && i+1 < len(Ordered) {
			return Ordered[i+1], true
		}
	}
	return "", false
}
