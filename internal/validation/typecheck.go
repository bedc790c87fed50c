package validation

import (
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"

	"github.com/capsuleforge/core/internal/domain"
)

// checkType runs a static type check. Per invariant this never fails the
// mesh outright: a type error is always a warning, not a failed check, so a
// plausible-but-unverified program can still proceed to runtime validation.
func checkType(a Artifact) domain.ValidationCheck {
	check := domain.ValidationCheck{Name: "type", Kind: "type", Status: domain.CheckStatusPassed}

	if a.Language != "go" {
		// No static type checker is wired for the other generated
		// languages; the mesh does not claim a pass it cannot verify.
		check.Status = domain.CheckStatusWarning
		check.Severity = domain.SeverityLow
		check.Message = "no static type checker available for this language"
		return check
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "artifact.go", a.Code, parser.AllErrors)
	if err != nil {
		// Unparseable source is the syntax validator's concern.
		return check
	}

	conf := types.Config{Importer: importer.Default(), Error: func(err error) {}}
	info := &types.Info{}
	_, terr := conf.Check("artifact", fset, []*ast.File{file}, info)
	if terr != nil {
		check.Status = domain.CheckStatusWarning
		check.Severity = domain.SeverityMedium
		check.Message = terr.Error()
	}
	return check
}
