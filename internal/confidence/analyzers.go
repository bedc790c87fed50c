package confidence

import (
	"fmt"
	"strings"

	"github.com/capsuleforge/core/internal/domain"
)

func metric(dim domain.ConfidenceDimension, score float64, evidence, concerns []string) domain.ConfidenceMetric {
	return domain.ConfidenceMetric{
		Dimension: dim,
		Score:     clamp01(score),
		Weight:    dimensionWeights[dim],
		Evidence:  evidence,
		Concerns:  concerns,
	}
}

func analyzeSyntax(in Input) domain.ConfidenceMetric {
	var evidence, concerns []string
	score := 1.0

	if in.Validation != nil {
		for _, check := range in.Validation.Checks {
			if check.Kind != "syntax" {
				continue
			}
			if check.Status == domain.CheckStatusPassed {
				evidence = append(evidence, "syntax check passed")
			} else {
				concerns = append(concerns, "syntax check failed: "+check.Message)
				score -= 0.5
			}
		}
	}
	if in.Runtime != nil && in.Runtime.ExitCode != 0 {
		concerns = append(concerns, "runtime exited non-zero")
		score -= 0.2
	}
	return metric(domain.DimensionSyntax, score, evidence, concerns)
}

func analyzeStructure(in Input) domain.ConfidenceMetric {
	var evidence, concerns []string
	score := 0.5

	if in.Capsule.Manifest.Name != "" {
		evidence = append(evidence, "capsule manifest present")
		score += 0.2
	} else {
		concerns = append(concerns, "no capsule manifest")
	}

	if in.Capsule.Documentation != "" {
		evidence = append(evidence, "documentation provided")
		score += 0.1
	} else {
		concerns = append(concerns, "no documentation")
	}

	if len(in.Capsule.Tests) > 0 {
		evidence = append(evidence, "tests included")
		score += 0.1
	} else {
		concerns = append(concerns, "no tests found")
	}

	if len(in.Capsule.Manifest.Dependencies) > 0 {
		evidence = append(evidence, "dependency manifest present")
		score += 0.1
	}

	return metric(domain.DimensionStructure, score, evidence, concerns)
}

// securityRiskPatterns mirrors the scan used by the Validation Mesh's
// security check, re-expressed as plain substrings for a coarser
// dimensional score rather than a hard pass/fail.
var securityRiskPatterns = []struct {
	pattern string
	label   string
}{
	{"eval(", "use of eval()"},
	{"exec(", "use of exec()"},
	{"pickle.loads", "unsafe deserialization"},
	{"shell=true", "shell injection risk"},
	{"os.system", "system command execution"},
	{"password", "hardcoded password"},
	{"secret", "hardcoded secret"},
	{"api_key", "hardcoded api key"},
}

func analyzeSecurity(in Input) domain.ConfidenceMetric {
	var evidence, concerns []string
	score := 1.0

	code := strings.ToLower(in.allCode())
	for _, risk := range securityRiskPatterns {
		if strings.Contains(code, risk.pattern) {
			concerns = append(concerns, risk.label)
			score -= 0.15
		}
	}

	if strings.Contains(code, "os.environ") || strings.Contains(code, "process.env") {
		evidence = append(evidence, "uses environment variables for configuration")
		score += 0.05
	}
	if strings.Contains(code, "validate") || strings.Contains(code, "sanitize") {
		evidence = append(evidence, "input validation present")
		score += 0.05
	}

	return metric(domain.DimensionSecurity, score, evidence, concerns)
}

func analyzePerformance(in Input) domain.ConfidenceMetric {
	var evidence, concerns []string
	score := 0.7

	if in.Runtime != nil {
		elapsed := in.Runtime.ElapsedMS
		switch {
		case elapsed > 0 && elapsed < 5000:
			evidence = append(evidence, "fast execution time")
			score += 0.1
		case elapsed > 30000:
			concerns = append(concerns, "slow execution time")
			score -= 0.1
		}

		switch {
		case in.Runtime.PeakMemoryMB > 0 && in.Runtime.PeakMemoryMB < 100:
			evidence = append(evidence, "low memory usage")
			score += 0.1
		case in.Runtime.PeakMemoryMB > 500:
			concerns = append(concerns, "high memory usage")
			score -= 0.1
		}
	}

	code := in.allCode()
	if strings.Contains(code, "time.Sleep") || strings.Contains(code, "time.sleep") {
		concerns = append(concerns, "blocking sleep calls found")
		score -= 0.05
	}
	if strings.Contains(code, "for {") && !strings.Contains(code, "break") {
		concerns = append(concerns, "unbounded loop detected")
		score -= 0.1
	}

	return metric(domain.DimensionPerformance, score, evidence, concerns)
}

func analyzeReliability(in Input) domain.ConfidenceMetric {
	var evidence, concerns []string
	score := 0.5

	code := in.allCode()
	if strings.Contains(code, "if err != nil") || (strings.Contains(code, "try:") && strings.Contains(code, "except")) {
		evidence = append(evidence, "error handling present")
		score += 0.2
	} else {
		concerns = append(concerns, "no error handling found")
	}

	if strings.Contains(code, "log.") || strings.Contains(code, "logger") || strings.Contains(code, "logging") {
		evidence = append(evidence, "logging implementation found")
		score += 0.1
	} else {
		concerns = append(concerns, "no logging implementation")
	}

	if in.Runtime != nil {
		if in.Runtime.Status == "success" {
			evidence = append(evidence, "successful runtime execution")
			score += 0.2
		} else {
			concerns = append(concerns, "runtime execution failed")
			score -= 0.2
		}
	}

	return metric(domain.DimensionReliability, score, evidence, concerns)
}

func analyzeMaintainability(in Input) domain.ConfidenceMetric {
	var evidence, concerns []string
	score := 0.5

	code := in.allCode()
	if strings.Contains(code, "// ") || strings.Contains(code, "# ") {
		evidence = append(evidence, "code comments present")
		score += 0.1
	}
	if strings.Contains(code, "func ") || strings.Contains(code, "def ") || strings.Contains(code, "function ") {
		evidence = append(evidence, "structured with functions")
		score += 0.1
	}
	if strings.Contains(code, "type ") || strings.Contains(code, "class ") {
		evidence = append(evidence, "structured with types")
		score += 0.1
	}

	complexityKeywords := []string{"if ", "for ", "while ", "switch ", "case "}
	complexity := 0
	for _, kw := range complexityKeywords {
		complexity += strings.Count(code, kw)
	}
	if complexity > 50 {
		concerns = append(concerns, fmt.Sprintf("high complexity detected (%d branch keywords)", complexity))
		score -= 0.1
	}

	return metric(domain.DimensionMaintainability, score, evidence, concerns)
}

var testFrameworkMarkers = []string{"testing.T", "pytest", "unittest", "jest", "mocha", "junit"}

func analyzeTestability(in Input) domain.ConfidenceMetric {
	var evidence, concerns []string
	score := 0.3

	if len(in.Capsule.Tests) > 0 {
		evidence = append(evidence, "tests included")
		score += 0.4

		if in.Validation != nil {
			for _, check := range in.Validation.Checks {
				if check.Kind != "runtime" {
					continue
				}
				if check.Status == domain.CheckStatusPassed {
					evidence = append(evidence, "tests pass successfully")
					score += 0.3
				} else {
					concerns = append(concerns, "tests are failing")
					score -= 0.1
				}
			}
		}
	} else {
		concerns = append(concerns, "no tests found")
	}

	code := in.allCode()
	for _, framework := range testFrameworkMarkers {
		if strings.Contains(code, framework) {
			evidence = append(evidence, "uses "+framework+" test framework")
			score += 0.05
			break
		}
	}

	return metric(domain.DimensionTestability, score, evidence, concerns)
}

func analyzeDeployability(in Input) domain.ConfidenceMetric {
	var evidence, concerns []string
	score := 0.3

	m := in.Capsule.Manifest
	if m.Name != "" {
		evidence = append(evidence, "deployment manifest present")
		score += 0.2

		if m.HealthCheck != nil {
			evidence = append(evidence, "health check configured")
			score += 0.1
		}
		if m.Resources != (domain.Resources{}) {
			evidence = append(evidence, "resource limits configured")
			score += 0.1
		}
		if len(m.Ports) > 0 {
			evidence = append(evidence, "ports configured")
			score += 0.1
		}
	} else {
		concerns = append(concerns, "no deployment manifest")
	}

	if _, ok := in.Capsule.SourceCode["Dockerfile"]; ok {
		evidence = append(evidence, "dockerfile present")
		score += 0.2
	} else {
		concerns = append(concerns, "no dockerfile found")
	}

	return metric(domain.DimensionDeployability, score, evidence, concerns)
}
