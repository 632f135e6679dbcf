package validate

import (
	"regexp"

	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/diag"
	"github.com/jomini-lang/ck3lsp/scope"
	"github.com/jomini-lang/ck3lsp/token"
)

var scopeRefPattern = regexp.MustCompile(`scope:([A-Za-z_][A-Za-z_0-9]*)`)
var varRefPattern = regexp.MustCompile(`(?:^|[^A-Za-z_])(?:var|local_var|global_var):([A-Za-z_][A-Za-z_0-9]*)`)

type timingDef struct {
	phase scope.Phase
}

type timingRef struct {
	name  string
	phase scope.Phase
	rng   token.Range
	isVar bool
}

// checkScopeTiming implements the Golden Rule (§4.3): a scope: or
// variable reference in an earlier-phase block that is only ever
// defined (via save_scope_as / save_temporary_scope_as / set_variable)
// in a strictly later phase of the same event is a timing violation.
// The analysis is flow-insensitive within a phase: a definition behind
// an unevaluated branch still counts, so false negatives are preferred
// over false positives.
func (v *SchemaValidator) checkScopeTiming(event *ast.Block, out *[]diag.Diagnostic) {
	defs := map[string]scope.Phase{}
	var refs []timingRef

	var walk func(entries []*ast.Entry, phase scope.Phase)
	walk = func(entries []*ast.Entry, phase scope.Phase) {
		for _, e := range entries {
			childPhase := phase
			if p := scope.InPhase(e.Key); p != 0 {
				childPhase = p
			}

			if e.Key == "save_scope_as" || e.Key == "save_temporary_scope_as" {
				if s, ok := e.Value.(*ast.Scalar); ok {
					recordDef(defs, s.Text, childPhase)
				}
			}
			if e.Key == "set_variable" {
				if blk, ok := e.Value.(*ast.Block); ok {
					if nameEntry := findEntry(blk, "name"); nameEntry != nil {
						if s, ok := nameEntry.Value.(*ast.Scalar); ok {
							recordDef(defs, s.Text, childPhase)
						}
					}
				}
			}

			collectRefs(e.Key, e.KeyRange, childPhase, &refs)
			if s, ok := e.Value.(*ast.Scalar); ok {
				collectRefs(s.Text, s.ValRange, childPhase, &refs)
			}

			if blk, ok := e.Value.(*ast.Block); ok {
				walk(blk.Entries, childPhase)
			}
		}
	}
	walk(event.Entries, 0)

	for _, r := range refs {
		defPhase, ok := defs[r.name]
		if !ok || r.phase == 0 || defPhase <= r.phase {
			continue
		}
		code := "CK3552"
		if r.isVar {
			code = "CK3553"
		} else if r.phase == scope.PhaseTrigger {
			code = "CK3550"
		} else if r.phase == scope.PhaseDesc {
			code = "CK3551"
		}
		*out = append(*out, diag.Diagnostic{
			Range: r.rng, Severity: diag.Error, Code: code,
			Message: "referenced before it is defined along this event's phases",
		})
	}
}

func recordDef(defs map[string]scope.Phase, name string, phase scope.Phase) {
	if phase == 0 {
		return
	}
	if existing, ok := defs[name]; !ok || phase < existing {
		defs[name] = phase
	}
}

func collectRefs(text string, rng token.Range, phase scope.Phase, refs *[]timingRef) {
	if phase == 0 {
		return
	}
	for _, m := range scopeRefPattern.FindAllStringSubmatch(text, -1) {
		*refs = append(*refs, timingRef{name: m[1], phase: phase, rng: rng})
	}
	for _, m := range varRefPattern.FindAllStringSubmatch(text, -1) {
		*refs = append(*refs, timingRef{name: m[1], phase: phase, rng: rng, isVar: true})
	}
}

func findEntry(blk *ast.Block, key string) *ast.Entry {
	for _, e := range blk.Entries {
		if e.Key == key {
			return e
		}
	}
	return nil
}
