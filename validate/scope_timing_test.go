package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/diag"
)

// TestCheckScopeTimingFlagsTriggerReferencingImmediateOnlyScope covers the
// CK3550 end-to-end scenario: a trigger block references scope:x, which is
// only ever saved inside the later-running immediate block.
func TestCheckScopeTimingFlagsTriggerReferencingImmediateOnlyScope(t *testing.T) {
	f := testFile()
	cat := testCatalog()
	v := &SchemaValidator{ac: testAC(cat)}

	trigger := blockEntry(f, "trigger", 0, 7, []*ast.Entry{
		scalarEntry(f, "exists", 8, 14, "scope:x", 17, 24),
	}, 8, 26)
	immediate := blockEntry(f, "immediate", 27, 36, []*ast.Entry{
		scalarEntry(f, "save_scope_as", 37, 50, "x", 53, 54),
	}, 37, 56)
	event := &ast.Block{Entries: []*ast.Entry{trigger, immediate}}

	var out []diag.Diagnostic
	v.checkScopeTiming(event, &out)

	require.True(t, hasCode(out, "CK3550"))
}

func TestCheckScopeTimingAllowsReferenceInSameOrLaterPhase(t *testing.T) {
	f := testFile()
	cat := testCatalog()
	v := &SchemaValidator{ac: testAC(cat)}

	immediate := blockEntry(f, "immediate", 0, 9, []*ast.Entry{
		scalarEntry(f, "save_scope_as", 10, 23, "x", 26, 27),
	}, 10, 29)
	option := blockEntry(f, "option", 30, 36, []*ast.Entry{
		scalarEntry(f, "name_text", 37, 46, "scope:x", 49, 56),
	}, 37, 58)
	event := &ast.Block{Entries: []*ast.Entry{immediate, option}}

	var out []diag.Diagnostic
	v.checkScopeTiming(event, &out)

	assert.Empty(t, out, "option runs after immediate, so scope:x is already defined")
}

func TestCheckScopeTimingFlagsVariableReferencedBeforeDefined(t *testing.T) {
	f := testFile()
	cat := testCatalog()
	v := &SchemaValidator{ac: testAC(cat)}

	desc := blockEntry(f, "desc", 0, 4, []*ast.Entry{
		scalarEntry(f, "triggered_desc", 5, 19, "var:my_value", 22, 34),
	}, 5, 36)
	immediate := blockEntry(f, "immediate", 37, 46, []*ast.Entry{
		blockEntry(f, "set_variable", 47, 59, []*ast.Entry{
			scalarEntry(f, "name", 60, 64, "my_value", 67, 75),
		}, 60, 77),
	}, 47, 79)
	event := &ast.Block{Entries: []*ast.Entry{desc, immediate}}

	var out []diag.Diagnostic
	v.checkScopeTiming(event, &out)

	require.True(t, hasCode(out, "CK3553"))
}

func TestCheckScopeTimingIgnoresReferencesOutsideAnyPhase(t *testing.T) {
	f := testFile()
	cat := testCatalog()
	v := &SchemaValidator{ac: testAC(cat)}

	// "scope:x" referenced at the top level of the event, outside any
	// phase-classified block, is not subject to the Golden Rule.
	top := scalarEntry(f, "some_field", 0, 10, "scope:x", 13, 20)
	event := &ast.Block{Entries: []*ast.Entry{top}}

	var out []diag.Diagnostic
	v.checkScopeTiming(event, &out)

	assert.Empty(t, out)
}
