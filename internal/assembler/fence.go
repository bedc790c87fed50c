package assembler

import "strings"

// stripFences removes a single wrapping ``` fence (optionally tagged with a
// language, e.g. ```go) around an LLM-generated payload, the way
// llm/jsonutil.go strips ``` fences around JSON before parsing it — applied
// here to code instead.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return s
	}
	if strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return s
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}

// normalizeLineEndings converts CRLF and bare CR into LF.
func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// clean applies both transforms, the order the assembler requires them in
// before any payload is written into a Capsule.
func clean(s string) string {
	return normalizeLineEndings(stripFences(s))
}
