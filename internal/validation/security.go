package validation

import (
	"fmt"
	"regexp"

	"github.com/capsuleforge/core/internal/domain"
)

// securityPattern is one static-scan rule: a pattern and the severity a
// match implies.
type securityPattern struct {
	name     string
	re       *regexp.Regexp
	severity domain.Severity
}

// securityPatterns covers the dangerous-sink families shared across the
// languages this system generates: arbitrary code execution, shell
// injection via a shell=True/os.system style call, and hardcoded secrets.
var securityPatterns = []securityPattern{
	{"eval-like-execution", regexp.MustCompile(`\b(eval|exec)\s*\(`), domain.SeverityCritical},
	{"shell-injection", regexp.MustCompile(`\b(os\.system|subprocess\.\w+\([^)]*shell\s*=\s*True|child_process\.exec)\b`), domain.SeverityHigh},
	{"hardcoded-secret", regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*["'][A-Za-z0-9+/=_-]{8,}["']`), domain.SeverityMedium},
	{"insecure-deserialization", regexp.MustCompile(`\b(pickle\.loads|yaml\.load\()\b`), domain.SeverityMedium},
}

// checkSecurity runs a static pattern scan. A high-or-critical-severity
// match fails the check outright; anything else surfaces as a warning.
func checkSecurity(a Artifact) domain.ValidationCheck {
	check := domain.ValidationCheck{Name: "security", Kind: "security", Status: domain.CheckStatusPassed}

	var worstSeverity domain.Severity
	var hits []string
	for _, p := range securityPatterns {
		if p.re.MatchString(a.Code) {
			hits = append(hits, p.name)
			if severityRank(p.severity) > severityRank(worstSeverity) {
				worstSeverity = p.severity
			}
		}
	}
	if len(hits) == 0 {
		return check
	}

	check.Severity = worstSeverity
	check.Message = fmt.Sprintf("matched %d security pattern(s): %v", len(hits), hits)
	if worstSeverity == domain.SeverityCritical || worstSeverity == domain.SeverityHigh {
		check.Status = domain.CheckStatusFailed
	} else {
		check.Status = domain.CheckStatusWarning
	}
	return check
}

func severityRank(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return 4
	case domain.SeverityHigh:
		return 3
	case domain.SeverityMedium:
		return 2
	case domain.SeverityLow:
		return 1
	default:
		return 0
	}
}
