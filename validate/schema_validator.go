package validate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/diag"
	"github.com/jomini-lang/ck3lsp/schema"
)

// SymbolSink receives symbol declarations discovered during schema
// validation, per §4.4 check 8. The Indexer implements this; the
// validator stays index-agnostic so the two packages don't import each
// other.
type SymbolSink interface {
	Declare(kind, name string, e *ast.Entry, filename string)
}

// SchemaValidator walks an AST against a matched top-level Schema,
// emitting diagnostics. It does not mutate the AST.
type SchemaValidator struct {
	ac       *AnalysisContext
	sink     SymbolSink
	filename string
}

// NewSchemaValidator returns a validator for one document's analysis.
func NewSchemaValidator(ac *AnalysisContext, sink SymbolSink, filename string) *SchemaValidator {
	return &SchemaValidator{ac: ac, sink: sink, filename: filename}
}

// Validate runs the full schema-driven pass starting at the document
// root against topSchema. It returns the schema-driven diagnostics
// (fields checked in name order within each block, so the order is
// deterministic), then the Generic Rules diagnostics, then the
// scope-chain diagnostics. rc carries the root block context
// (role/scope type) seeded by the Scope Engine prepass.
func (v *SchemaValidator) Validate(root *ast.Block, topSchema *schema.Schema, rc *RuleContext) []diag.Diagnostic {
	var out []diag.Diagnostic
	v.validateBlock(root, topSchema, rc, &out)
	// Generic Rules run as one independent full-tree walk, regardless of
	// whether topSchema is nil or how far schema-field descent reached.
	v.genericRulesOnTree(root, rc, &out)
	if topSchema != nil && topSchema.Context.RootScope != "" {
		out = append(out, v.checkScopeChains(root, topSchema.Context.RootScope)...)
	}
	return out
}

func (v *SchemaValidator) validateBlock(blk *ast.Block, sch *schema.Schema, rc *RuleContext, out *[]diag.Diagnostic) {
	if sch == nil {
		return
	}

	fv := blockView{blk: blk}

	names := make([]string, 0, len(sch.Fields))
	for name := range sch.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	// 1. Required-field check.
	for _, name := range names {
		fs := sch.Fields[name]
		if fs.Required.Kind == "always" && !fv.Has(name) {
			*out = append(*out, diag.Diagnostic{
				Range:    blk.BlkRange,
				Severity: diag.Error,
				Code:     "SCHEMA-001",
				Message:  fmt.Sprintf("missing required field %q", name),
			})
		}
	}

	// 2. Conditional required / forbidden / at-most-one rules.
	for _, r := range sch.Rules {
		switch {
		case r.Require != "":
			if schema.EvalPredicate(r.Predicate, fv) && !fv.Has(r.Require) {
				*out = append(*out, diag.Diagnostic{
					Range: blk.BlkRange, Severity: diag.Error,
					Code: ruleCode(r, "SCHEMA-002"),
					Message: ruleMessage(r, fmt.Sprintf("field %q is required when %s", r.Require, r.Predicate)),
				})
			}
		case r.Forbid != "":
			if schema.EvalPredicate(r.Predicate, fv) && fv.Has(r.Forbid) {
				*out = append(*out, diag.Diagnostic{
					Range: blk.BlkRange, Severity: diag.Error,
					Code: ruleCode(r, "SCHEMA-002"),
					Message: ruleMessage(r, fmt.Sprintf("field %q is forbidden when %s", r.Forbid, r.Predicate)),
				})
			}
		case len(r.AtMostOne) > 0:
			var present []string
			for _, f := range r.AtMostOne {
				if fv.Has(f) {
					present = append(present, f)
				}
			}
			if len(present) > 1 {
				*out = append(*out, diag.Diagnostic{
					Range: blk.BlkRange, Severity: diag.Error,
					Code: ruleCode(r, "SCHEMA-002"),
					Message: ruleMessage(r, fmt.Sprintf("at most one of %s may be present, found %s", strings.Join(r.AtMostOne, ", "), strings.Join(present, ", "))),
				})
			}
		}
	}
	for _, name := range names {
		fs := sch.Fields[name]
		if fs.Required.Kind == "if" && schema.EvalPredicate(fs.Required.Expr, fv) && !fv.Has(name) {
			*out = append(*out, diag.Diagnostic{
				Range: blk.BlkRange, Severity: diag.Error,
				Code:    "SCHEMA-002",
				Message: fmt.Sprintf("field %q is required when %s", name, fs.Required.Expr),
			})
		}
	}

	// Per present field: type/enum/pattern, duplicate policy, nested
	// recursion, symbol declaration.
	for _, name := range names {
		fs := sch.Fields[name]
		occurrences := entriesNamed(blk, name)
		if len(occurrences) == 0 {
			continue
		}
		v.checkDuplicatePolicy(occurrences, fs, out)
		for i, e := range occurrences {
			// last-wins: only the final occurrence is "live"; still type
			// check every occurrence so authors see errors on shadowed
			// copies too.
			v.checkTypeEnumPattern(e, fs, out)
			if fs.Type.Kind == "range" {
				v.checkRange(e, out)
			}
			if fs.NestedSchema != "" {
				if nb, ok := e.Value.(*ast.Block); ok {
					nested := v.ac.Registry.SchemaNamed(fs.NestedSchema)
					childRC := *rc
					if nested != nil {
						childRC.Role = roleFromContext(nested.Context.ThisBlockIs, rc.Role)
					}
					v.validateBlock(nb, nested, &childRC, out)
				}
			}
			if i == len(occurrences)-1 && sch.Symbol != nil && v.sink != nil && e.Key != "" {
				v.sink.Declare(sch.Symbol.Kind, e.Key, e, v.filename)
			}
		}
	}

	// 5. Field ordering (hint-level style check).
	if len(sch.FieldOrder) > 0 {
		v.checkFieldOrder(blk, sch.FieldOrder, out)
	}

	if sch.Symbol != nil && sch.Symbol.Kind == "Event" {
		v.checkEventStructure(blk, fv, out)
		v.checkScopeTiming(blk, out)
	}
}

func (v *SchemaValidator) checkDuplicatePolicy(occurrences []*ast.Entry, fs *schema.FieldSpec, out *[]diag.Diagnostic) {
	if len(occurrences) < 2 {
		return
	}
	switch fs.DuplicatePolicy {
	case "forbidden":
		for _, e := range occurrences[1:] {
			*out = append(*out, diag.Diagnostic{
				Range: e.KeyRange, Severity: diag.Error,
				Code:    "SCHEMA-006",
				Message: fmt.Sprintf("duplicate field %q is forbidden here", fs.Name),
			})
		}
	case "last-wins":
		for _, e := range occurrences[:len(occurrences)-1] {
			*out = append(*out, diag.Diagnostic{
				Range: e.KeyRange, Severity: diag.Info,
				Code:    "SCHEMA-007",
				Message: fmt.Sprintf("this %q is shadowed by a later occurrence", fs.Name),
			})
		}
	case "append":
		// no diagnostic
	}
}

func (v *SchemaValidator) checkTypeEnumPattern(e *ast.Entry, fs *schema.FieldSpec, out *[]diag.Diagnostic) {
	switch {
	case fs.Type.Kind == "block", fs.Type.Kind == "desc_block", fs.NestedSchema != "":
		// Any field typed as a block, or carrying a semantic block type
		// (desc_block) or a nested_schema, is block-shaped regardless of
		// what the bare Type.Kind string happens to be.
		if _, ok := e.Value.(*ast.Block); !ok {
			*out = append(*out, diag.Diagnostic{Range: e.Range, Severity: diag.Error, Code: "SCHEMA-003", Message: fmt.Sprintf("field %q must be a block", fs.Name)})
		}
		return
	case fs.Type.Kind == "range":
		// a range is a two-element list; checkRange validates it
		return
	case fs.Type.Kind == "list":
		if _, ok := e.Value.(*ast.List); !ok {
			if _, ok2 := e.Value.(*ast.Block); !ok2 {
				*out = append(*out, diag.Diagnostic{Range: e.Range, Severity: diag.Error, Code: "SCHEMA-003", Message: fmt.Sprintf("field %q must be a list", fs.Name)})
			}
		}
		return
	}

	s, ok := e.Value.(*ast.Scalar)
	if !ok {
		*out = append(*out, diag.Diagnostic{Range: e.Range, Severity: diag.Error, Code: "SCHEMA-003", Message: fmt.Sprintf("field %q must be a scalar value", fs.Name)})
		return
	}
	if fs.Type.Kind == "enum" && len(fs.Enum) > 0 {
		ok := false
		for _, allowed := range fs.Enum {
			if allowed == s.Text {
				ok = true
				break
			}
		}
		if !ok {
			*out = append(*out, diag.Diagnostic{Range: s.ValRange, Severity: diag.Error, Code: "SCHEMA-004", Message: fmt.Sprintf("%q is not one of %s", s.Text, strings.Join(fs.Enum, ", "))})
		}
	}
	if fs.Pattern != "" {
		re := v.ac.Registry.PatternNamed(fs.Pattern)
		if re != nil && !re.MatchString(s.Text) {
			*out = append(*out, diag.Diagnostic{Range: s.ValRange, Severity: diag.Error, Code: "SCHEMA-005", Message: fmt.Sprintf("%q does not match pattern %q", s.Text, fs.Pattern)})
		}
	}
	if fs.Type.Kind == "localization_key" && v.ac.LocalizationKnown != nil && !v.ac.LocalizationKnown(s.Text) {
		msg := fmt.Sprintf("localization key %q is not defined", s.Text)
		if v.ac.LocalizationSuggest != nil {
			if suggestion := v.ac.LocalizationSuggest(s.Text); suggestion != "" {
				msg += fmt.Sprintf("; did you mean %q?", suggestion)
			}
		}
		*out = append(*out, diag.Diagnostic{Range: s.ValRange, Severity: diag.Warning, Code: "CK3600", Message: msg})
	}
}

func (v *SchemaValidator) checkRange(e *ast.Entry, out *[]diag.Diagnostic) {
	lst, ok := e.Value.(*ast.List)
	if !ok || len(lst.Scalars) != 2 {
		*out = append(*out, diag.Diagnostic{Range: e.Range, Severity: diag.Error, Code: "SCHEMA-009", Message: "range field must contain exactly two numeric values"})
		return
	}
	lo, errLo := strconv.ParseFloat(lst.Scalars[0].Text, 64)
	hi, errHi := strconv.ParseFloat(lst.Scalars[1].Text, 64)
	if errLo != nil || errHi != nil {
		*out = append(*out, diag.Diagnostic{Range: e.Range, Severity: diag.Error, Code: "SCHEMA-009", Message: "range values must be numeric"})
		return
	}
	if lo > hi {
		*out = append(*out, diag.Diagnostic{Range: e.Range, Severity: diag.Error, Code: "SCHEMA-009", Message: "range minimum must not exceed maximum"})
	}
}

func (v *SchemaValidator) checkEventStructure(blk *ast.Block, fv blockView, out *[]diag.Diagnostic) {
	hidden := false
	if s, ok := fv.ScalarValue("hidden"); ok {
		hidden = s == "yes"
	}
	hasOption := fv.Has("option")
	hasDesc := fv.Has("desc")
	if hidden && hasOption {
		*out = append(*out, diag.Diagnostic{Range: blk.BlkRange, Severity: diag.Warning, Code: "CK3761", Message: "a hidden event's option blocks are never shown"})
	}
	if !hidden && !hasDesc {
		*out = append(*out, diag.Diagnostic{Range: blk.BlkRange, Severity: diag.Warning, Code: "CK3762", Message: "a non-hidden event should have a desc"})
	}
}

func (v *SchemaValidator) checkFieldOrder(blk *ast.Block, order []string, out *[]diag.Diagnostic) {
	rank := make(map[string]int, len(order))
	for i, name := range order {
		rank[name] = i
	}
	lastRank := -1
	for _, e := range blk.Entries {
		r, ok := rank[e.Key]
		if !ok {
			continue
		}
		if r < lastRank {
			*out = append(*out, diag.Diagnostic{
				Range: e.KeyRange, Severity: diag.Hint,
				Code:    "SCHEMA-008",
				Message: fmt.Sprintf("field %q appears after a later-ordered sibling", e.Key),
			})
		}
		lastRank = r
	}
}

func ruleCode(r schema.Rule, fallback string) string {
	if r.Code != "" {
		return r.Code
	}
	return fallback
}

func ruleMessage(r schema.Rule, fallback string) string {
	if r.Message != "" {
		return r.Message
	}
	return fallback
}

func roleFromContext(thisBlockIs string, parent Role) Role {
	switch thisBlockIs {
	case "effect":
		return RoleEffect
	case "trigger":
		return RoleTrigger
	case "mixed":
		return RoleMixed
	case "neutral":
		return RoleNeutral
	default:
		return parent
	}
}
