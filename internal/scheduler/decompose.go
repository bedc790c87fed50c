package scheduler

import (
	"strings"

	"github.com/capsuleforge/core/internal/domain"
)

// verbHints are crude signals of task complexity: descriptions naming more
// of these tend to ask for more distinct behaviors.
var verbHints = []string{
	"implement", "design", "build", "create", "add", "integrate", "support",
	"handle", "validate", "optimize", "refactor", "migrate", "expose",
}

// Decompose inspects a Request and synthesizes the canonical task set:
// implementation, test generation, and documentation, where test generation
// and documentation each depend on implementation. Returns a sealed
// DependencyGraph.
func Decompose(req *domain.Request) (*DependencyGraph, *domain.SharedContext, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	complexity := inferComplexity(req.Description)
	language := req.Language()
	if language == "" {
		language = "python"
	}

	shared := &domain.SharedContext{
		WorkflowID:      req.ID,
		PrimaryLanguage: language,
		MainFileName:    defaultMainFileName(language),
		Framework:       req.Framework(),
	}

	implTask := domain.Task{
		ID:           "implementation",
		Type:         domain.TaskTypeImplementation,
		Description:  req.Description,
		Complexity:   complexity,
		LanguageHint: language,
		ContextRef:   shared.WorkflowID,
	}
	testTask := domain.Task{
		ID:           "test_generation",
		Type:         domain.TaskTypeTestGeneration,
		Description:  "Write tests for: " + req.Description,
		Complexity:   downshift(complexity),
		DependsOn:    []string{implTask.ID},
		LanguageHint: language,
		ContextRef:   shared.WorkflowID,
	}
	docTask := domain.Task{
		ID:           "documentation",
		Type:         domain.TaskTypeDocumentation,
		Description:  "Document: " + req.Description,
		Complexity:   domain.ComplexitySimple,
		DependsOn:    []string{implTask.ID},
		LanguageHint: language,
		ContextRef:   shared.WorkflowID,
	}

	tasks := []domain.Task{implTask, testTask, docTask}
	for i := range tasks {
		if err := tasks[i].Validate(); err != nil {
			return nil, nil, err
		}
	}

	graph, err := NewDependencyGraph(tasks)
	if err != nil {
		return nil, nil, err
	}
	return graph, shared, nil
}

// inferComplexity estimates Complexity from description length and verb
// count, per the scheduler's decomposition rules.
func inferComplexity(description string) domain.Complexity {
	words := strings.Fields(description)
	verbCount := 0
	lower := strings.ToLower(description)
	for _, v := range verbHints {
		if strings.Contains(lower, v) {
			verbCount++
		}
	}

	switch {
	case len(words) <= 6 && verbCount <= 1:
		return domain.ComplexityTrivial
	case len(words) <= 15 && verbCount <= 2:
		return domain.ComplexitySimple
	case len(words) <= 40 && verbCount <= 4:
		return domain.ComplexityMedium
	default:
		return domain.ComplexityComplex
	}
}

// downshift lowers a complexity by one step; test generation is usually
// cheaper than the implementation it covers.
func downshift(c domain.Complexity) domain.Complexity {
	switch c {
	case domain.ComplexityComplex:
		return domain.ComplexityMedium
	case domain.ComplexityMedium:
		return domain.ComplexitySimple
	default:
		return domain.ComplexityTrivial
	}
}

func defaultMainFileName(language string) string {
	switch strings.ToLower(language) {
	case "python":
		return "main.py"
	case "go":
		return "main.go"
	case "javascript", "node":
		return "index.js"
	case "typescript":
		return "index.ts"
	case "java":
		return "Main.java"
	case "rust":
		return "main.rs"
	default:
		return "main.txt"
	}
}
