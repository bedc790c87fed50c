package assembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/capsuleforge/core/internal/domain"
)

// synthesizeReadme builds a minimal README when no task produced
// documentation output, following the teacher's workflow-documents
// heading/section layout (title, then ordered sections).
func synthesizeReadme(req *domain.Request, shared *domain.SharedContext) string {
	var sb strings.Builder

	sb.WriteString("# ")
	sb.WriteString(title(req))
	sb.WriteString("\n\n")

	sb.WriteString("## Overview\n\n")
	sb.WriteString(req.Description)
	sb.WriteString("\n\n")

	sb.WriteString("## Language\n\n")
	sb.WriteString(shared.PrimaryLanguage)
	if shared.Framework != "" {
		sb.WriteString(" (")
		sb.WriteString(shared.Framework)
		sb.WriteString(")")
	}
	sb.WriteString("\n\n")

	if len(req.Requirements) > 0 {
		sb.WriteString("## Requirements\n\n")
		for _, r := range req.Requirements {
			sb.WriteString("- ")
			sb.WriteString(r)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Entry Point\n\n")
	sb.WriteString("`")
	sb.WriteString(shared.MainFileName)
	sb.WriteString("`\n")

	return sb.String()
}

// failureReadme describes what was attempted when a workflow fails,
// grounded on the error-capsule README requirement of the error handling
// design: per-task statuses plus collected error messages.
func failureReadme(req *domain.Request, results map[string]*domain.TaskResult, failures []string) string {
	var sb strings.Builder

	sb.WriteString("# ")
	sb.WriteString(title(req))
	sb.WriteString(" — generation failed\n\n")

	sb.WriteString("## What was attempted\n\n")
	sb.WriteString(req.Description)
	sb.WriteString("\n\n")

	if len(results) > 0 {
		sb.WriteString("## Task statuses\n\n")
		ids := make([]string, 0, len(results))
		for id := range results {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			r := results[id]
			sb.WriteString(fmt.Sprintf("- **%s:** %s", id, r.Status))
			if r.Error != "" {
				sb.WriteString(" — " + r.Error)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(failures) > 0 {
		sb.WriteString("## Errors\n\n")
		for _, f := range failures {
			sb.WriteString("- ")
			sb.WriteString(f)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func title(req *domain.Request) string {
	words := strings.Fields(req.Description)
	if len(words) == 0 {
		return req.ID
	}
	if len(words) > 6 {
		words = words[:6]
	}
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
