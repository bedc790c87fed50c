package validation

import (
	"fmt"
	"go/parser"
	"go/token"

	"github.com/capsuleforge/core/internal/domain"
)

// checkSyntax parses the artifact's source. Go sources get a real AST parse
// via go/parser; other languages fall back to a balanced-delimiter scan
// since the corpus carries no tree-sitter grammar for them.
func checkSyntax(a Artifact) domain.ValidationCheck {
	check := domain.ValidationCheck{Name: "syntax", Kind: "syntax"}

	if a.Language == "go" {
		fset := token.NewFileSet()
		if _, err := parser.ParseFile(fset, "artifact.go", a.Code, parser.AllErrors); err != nil {
			check.Status = domain.CheckStatusFailed
			check.Severity = domain.SeverityHigh
			check.Message = fmt.Sprintf("go parse error: %v", err)
			return check
		}
		check.Status = domain.CheckStatusPassed
		return check
	}

	if err := checkBalancedDelimiters(a.Code); err != nil {
		check.Status = domain.CheckStatusFailed
		check.Severity = domain.SeverityHigh
		check.Message = err.Error()
		return check
	}
	check.Status = domain.CheckStatusPassed
	return check
}

// checkBalancedDelimiters is a language-agnostic heuristic: unmatched
// brackets/parens/braces, or an unterminated string, are a strong syntax
// error signal even without a real grammar for the language.
func checkBalancedDelimiters(code string) error {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	inString := false
	var quote byte
	escaped := false

	for i := 0; i < len(code); i++ {
		ch := code[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			if ch == '\\' {
				escaped = true
			} else if ch == quote {
				inString = false
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			inString = true
			quote = ch
		case '(', '[', '{':
			stack = append(stack, ch)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[ch] {
				return fmt.Errorf("unbalanced delimiter %q at byte %d", ch, i)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if inString {
		return fmt.Errorf("unterminated string literal")
	}
	if len(stack) != 0 {
		return fmt.Errorf("%d unclosed delimiter(s)", len(stack))
	}
	return nil
}
