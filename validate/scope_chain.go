package validate

import (
	"strconv"
	"strings"

	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/diag"
	"github.com/jomini-lang/ck3lsp/scope"
)

// checkScopeChains walks event's tree tracking the current scope type (as
// the Scope Engine's link table sees it) and the saved-scope table built
// from save_scope_as / save_temporary_scope_as along the way, calling
// Engine.Resolve on every value that looks like a scope chain. This is
// the dedicated pass behind the CK32xx diagnostics and the "scope
// monotonicity" property: resolving the same chain against a superset of
// saved scopes never yields a less specific type.
func (v *SchemaValidator) checkScopeChains(event *ast.Block, rootScope string) []diag.Diagnostic {
	if v.ac.Engine == nil {
		return nil
	}
	var out []diag.Diagnostic
	table := scope.NewTable()

	var walk func(entries []*ast.Entry, curType string)
	walk = func(entries []*ast.Entry, curType string) {
		for _, e := range entries {
			if e.Key == "save_scope_as" || e.Key == "save_temporary_scope_as" {
				if s, ok := e.Value.(*ast.Scalar); ok {
					table.DefineOutermost(&scope.Saved{
						Name:        s.Text,
						Type:        curType,
						DefinedAt:   e.Range,
						IsTemporary: e.Key == "save_temporary_scope_as",
					})
				}
			}

			if s, ok := e.Value.(*ast.Scalar); ok && looksLikeScopeChain(s.Text) {
				if _, resolveErr := v.ac.Engine.Resolve(s.Text, curType, table, v.ac.Universals, s.ValRange); resolveErr != nil {
					out = append(out, diag.Diagnostic{
						Range: s.ValRange, Severity: diag.Error,
						Code:    scopeErrorCode(resolveErr.Kind),
						Message: resolveErr.Error(),
					})
				}
			}
			if looksLikeScopeChain(e.Key) && !strings.Contains(e.Key, ":") {
				if _, resolveErr := v.ac.Engine.Resolve(e.Key, curType, table, v.ac.Universals, e.KeyRange); resolveErr != nil {
					out = append(out, diag.Diagnostic{
						Range: e.KeyRange, Severity: diag.Error,
						Code:    scopeErrorCode(resolveErr.Kind),
						Message: resolveErr.Error(),
					})
				}
			}

			if blk, ok := e.Value.(*ast.Block); ok {
				nextType := curType
				if target, ok := v.ac.Catalog.ResolveLink(curType, e.Key); ok {
					nextType = target
				}
				table.Push()
				walk(blk.Entries, nextType)
				table.Pop()
			}
		}
	}
	walk(event.Entries, rootScope)
	return out
}

// looksLikeScopeChain is a conservative filter: multi-segment dotted
// identifiers, or any of the universal keywords, are treated as scope
// chains worth resolving. Plain field names and numeric/boolean literals
// are excluded to keep false positives rare.
func looksLikeScopeChain(s string) bool {
	switch s {
	case "root", "this", "prev", "from", "fromfrom", "yes", "no":
		return s != "yes" && s != "no"
	}
	if strings.HasPrefix(s, "scope:") {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return false
	}
	return strings.Contains(s, ".")
}

func scopeErrorCode(kind scope.ErrorKind) string {
	switch kind {
	case scope.UnknownLink:
		return "CK3201"
	case scope.LinkNotValidForScope:
		return "CK3202"
	case scope.UndefinedSavedScope:
		return "CK3203"
	default:
		return "CK3201"
	}
}
