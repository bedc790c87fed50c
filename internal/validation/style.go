package validation

import (
	"go/format"
	"strings"

	"github.com/capsuleforge/core/internal/domain"
)

// checkStyle detects formatting drift. Go sources are compared against
// gofmt's canonical output; other languages get a lighter mixed-indentation
// heuristic, since the corpus carries no formatter for them.
func checkStyle(a Artifact) domain.ValidationCheck {
	check := domain.ValidationCheck{Name: "style", Kind: "style", Status: domain.CheckStatusPassed}

	if a.Language == "go" {
		formatted, err := format.Source([]byte(a.Code))
		if err != nil {
			// A format failure here is a syntax problem, not a style one;
			// the syntax validator already reports it, so don't double-count.
			return check
		}
		if string(formatted) != a.Code {
			check.Status = domain.CheckStatusWarning
			check.Severity = domain.SeverityLow
			check.Message = "source does not match gofmt canonical output"
		}
		return check
	}

	if hasMixedIndentation(a.Code) {
		check.Status = domain.CheckStatusWarning
		check.Severity = domain.SeverityLow
		check.Message = "mixed tabs and spaces in indentation"
	}
	return check
}

func hasMixedIndentation(code string) bool {
	sawTabIndent, sawSpaceIndent := false, false
	for _, line := range strings.Split(code, "\n") {
		if len(line) == 0 {
			continue
		}
		switch line[0] {
		case '\t':
			sawTabIndent = true
		case ' ':
			sawSpaceIndent = true
		}
	}
	return sawTabIndent && sawSpaceIndent
}
