package validate

import (
	"fmt"
	"strings"

	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/diag"
)

var iteratorPrefixes = []string{"any_", "every_", "random_", "ordered_"}

// genericRulesOnBlock applies the file-type-independent invariants to
// blk's direct entries: effect/trigger context, iterator prefixes,
// redundant triggers, control structure, opinion inline values, event
// guardrails, and the scope:a = scope:b comparison gotcha.
func (v *SchemaValidator) genericRulesOnBlock(blk *ast.Block, rc *RuleContext, out *[]diag.Diagnostic) {
	cat := v.ac.Catalog
	sawTriggerIf := false
	sawTriggerElse := false
	immediateCount := 0
	afterCount := 0

	for _, e := range blk.Entries {
		key := e.Key

		switch key {
		case "immediate":
			immediateCount++
			if immediateCount == 2 {
				*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Error, Code: "CK3760", Message: "only the first immediate block executes"})
			}
		case "after":
			afterCount++
			if afterCount == 2 {
				*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Error, Code: "CK3760", Message: "only the first after block executes"})
			}
		case "trigger_else":
			if !sawTriggerIf {
				*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Error, Code: "CK3510", Message: "trigger_else must be preceded by a trigger_if"})
			}
			if sawTriggerElse {
				*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Error, Code: "CK3510", Message: "only the first trigger_else runs; later ones are dead"})
			}
			sawTriggerElse = true
		case "trigger_if":
			sawTriggerIf = true
			sawTriggerElse = false
			if blkv, ok := e.Value.(*ast.Block); ok {
				if !hasKey(blkv, "limit") {
					*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Error, Code: "CK3511", Message: "trigger_if without a limit has no condition to test"})
				}
			}
		default:
			if key != "trigger_if" {
				sawTriggerIf = false
			}
		}

		if key == "trigger" {
			if blkv, ok := e.Value.(*ast.Block); ok {
				checkRedundantTrigger(blkv, out)
			}
		}

		if key == "add_opinion" {
			if blkv, ok := e.Value.(*ast.Block); ok {
				checkOpinionInline(blkv, e, out)
			}
		}

		if prefix, base, ok := splitIteratorPrefix(key); ok {
			checkIterator(e, prefix, base, rc, cat, out)
		}

		if rc.Role == RoleTrigger && cat.IsEffect(key) && !narrowAllowedInTrigger(key) {
			*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Error, Code: "CK3102", Message: fmt.Sprintf("%q is an effect and cannot appear in a trigger", key)})
		}
		if rc.Role == RoleEffect && cat.IsTrigger(key) && !narrowAllowedInEffect(key) {
			*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Error, Code: "CK3103", Message: fmt.Sprintf("%q is a trigger and cannot appear in an effect", key)})
		}

		if rc.Role == RoleTrigger {
			checkScopeComparison(e, out)
		}

		if (rc.Role == RoleEffect || rc.Role == RoleTrigger) &&
			!cat.IsEffect(key) && !cat.IsTrigger(key) && !isStructuralKeyword(key) && looksLikeCommand(key) &&
			(v.ac.ScriptedKnown == nil || !v.ac.ScriptedKnown(key)) {
			*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Warning, Code: "CK3101", Message: fmt.Sprintf("%q is not a recognized effect or trigger", key)})
		}
	}
}

// checkRedundantTrigger flags trigger = { always = yes|no }.
func checkRedundantTrigger(blk *ast.Block, out *[]diag.Diagnostic) {
	if len(blk.Entries) != 1 || blk.Entries[0].Key != "always" {
		return
	}
	s, ok := blk.Entries[0].Value.(*ast.Scalar)
	if !ok {
		return
	}
	switch s.Text {
	case "yes":
		*out = append(*out, diag.Diagnostic{Range: blk.Entries[0].Range, Severity: diag.Warning, Code: "CK3512", Message: "trigger = { always = yes } is redundant"})
	case "no":
		*out = append(*out, diag.Diagnostic{Range: blk.Entries[0].Range, Severity: diag.Error, Code: "CK3513", Message: "trigger = { always = no } can never fire"})
	}
}

func checkOpinionInline(blk *ast.Block, owner *ast.Entry, out *[]diag.Diagnostic) {
	hasNumericOpinion := false
	hasModifier := false
	for _, e := range blk.Entries {
		if e.Key == "modifier" {
			hasModifier = true
		}
		if e.Key == "opinion" {
			if s, ok := e.Value.(*ast.Scalar); ok && isNumericText(s.Text) {
				hasNumericOpinion = true
			}
		}
	}
	if hasNumericOpinion && !hasModifier {
		*out = append(*out, diag.Diagnostic{Range: owner.Range, Severity: diag.Error, Code: "CK3870", Message: "add_opinion with a literal opinion value must also reference a modifier"})
	}
}

func isNumericText(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '-' && i == 0 {
			continue
		}
		if r == '.' {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func splitIteratorPrefix(key string) (prefix, base string, ok bool) {
	for _, p := range iteratorPrefixes {
		if strings.HasPrefix(key, p) {
			return strings.TrimSuffix(p, "_"), strings.TrimPrefix(key, p), true
		}
	}
	return "", "", false
}

func checkIterator(e *ast.Entry, prefix, base string, rc *RuleContext, cat interface {
	ListValidIn(scopeType, listName string) bool
}, out *[]diag.Diagnostic) {
	if !cat.ListValidIn(rc.ScopeType, base) {
		*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Error, Code: "CK3976", Message: fmt.Sprintf("%q is not a valid list for scope %q", base, rc.ScopeType)})
		return
	}
	switch prefix {
	case "any":
		if rc.Role != RoleTrigger {
			*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Error, Code: "CK3976", Message: "any_* iterators may only appear in trigger context"})
		}
	case "every", "random":
		if rc.Role != RoleEffect {
			*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Error, Code: "CK3976", Message: prefix + "_* iterators may only appear in effect context"})
		}
	}
	blkv, ok := e.Value.(*ast.Block)
	if !ok {
		return
	}
	hasLimit := hasKey(blkv, "limit")
	switch prefix {
	case "random":
		if !hasLimit {
			*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Warning, Code: "CK3977", Message: "random_* without a limit may pick an unintended member"})
		}
	case "every":
		if !hasLimit {
			*out = append(*out, diag.Diagnostic{Range: e.KeyRange, Severity: diag.Info, Code: "CK3977", Message: "every_* without a limit applies to every member unconditionally"})
		}
	}
}

func checkScopeComparison(e *ast.Entry, out *[]diag.Diagnostic) {
	if !strings.HasPrefix(e.Key, "scope:") {
		return
	}
	s, ok := e.Value.(*ast.Scalar)
	if !ok || !strings.HasPrefix(s.Text, "scope:") {
		return
	}
	*out = append(*out, diag.Diagnostic{
		Range: e.Range, Severity: diag.Error, Code: "CK3871",
		Message: fmt.Sprintf("%s = %s compares identity, not scope; use %s = { this = %s }", e.Key, s.Text, e.Key, s.Text),
	})
}

func hasKey(blk *ast.Block, key string) bool {
	for _, e := range blk.Entries {
		if e.Key == key {
			return true
		}
	}
	return false
}

var structuralKeywords = map[string]bool{
	"limit": true, "trigger_if": true, "trigger_else_if": true, "trigger_else": true,
	"AND": true, "OR": true, "NOT": true, "NAND": true, "NOR": true,
	"else": true, "else_if": true, "if": true, "hidden_effect": true,
	"first_valid": true, "random_valid": true, "triggered_desc": true,
}

func isStructuralKeyword(key string) bool { return structuralKeywords[key] }

// looksLikeCommand filters out ordinary data fields (numbers, dotted
// scope chains as keys) so the unknown-effect/trigger check only fires
// on bare lowercase-with-underscore identifiers that resemble commands,
// keeping false positives on schema-owned fields rare.
func looksLikeCommand(key string) bool {
	if key == "" {
		return false
	}
	hasLetter := false
	for _, r := range key {
		if r >= '0' && r <= '9' {
			continue
		}
		if r >= 'a' && r <= 'z' {
			hasLetter = true
			continue
		}
		if r == '_' {
			continue
		}
		return false
	}
	return hasLetter
}

func narrowAllowedInTrigger(effect string) bool { return false }

func narrowAllowedInEffect(trigger string) bool {
	return trigger == "add_trait"
}

// roleForKey infers the Role a block entered via key should carry, purely
// from structural keyword names, independent of any schema. This lets the
// full-tree Generic Rules walk classify trigger/effect context at any
// nesting depth even when no schema governs the document, or the block
// sits under a key the schema never declared (an if/limit/iterator body
// several levels below the nearest schema field).
func roleForKey(key string, parent Role) Role {
	switch key {
	case "trigger", "is_shown", "is_valid", "limit", "trigger_if", "trigger_else_if", "trigger_else":
		return RoleTrigger
	case "immediate", "effect", "option", "after", "hidden_effect":
		return RoleEffect
	default:
		return parent
	}
}

// genericRulesOnTree drives genericRulesOnBlock over every block reachable
// from blk, exactly once per block, independent of whatever schema (if
// any) governs the document and independent of schema-field descent.
// Role is re-derived at each level from the entering key via roleForKey
// rather than inherited from a schema's nested_schema context, so blocks
// nested under non-schema keys are still visited.
func (v *SchemaValidator) genericRulesOnTree(blk *ast.Block, rc *RuleContext, out *[]diag.Diagnostic) {
	v.genericRulesOnBlock(blk, rc, out)
	for _, e := range blk.Entries {
		child, ok := e.Value.(*ast.Block)
		if !ok {
			continue
		}
		childRC := *rc
		childRC.Role = roleForKey(e.Key, rc.Role)
		v.genericRulesOnTree(child, &childRC, out)
	}
}
