// Package schema loads declarative YAML schemas describing the structural,
// pattern, context, and ordering rules for each Jomini file type, and
// matches workspace files against them.
package schema

import "regexp"

// Requiredness describes when a field must be present.
type Requiredness struct {
	Kind string // "always", "if", or "never"
	Expr string // the predicate text, when Kind == "if"
}

// TypeSpec describes the expected shape of a field's value.
type TypeSpec struct {
	Kind string // "scalar", "block", "list", "range", "enum", or one of the
	// semantic scalar kinds: "localization_key", "scope_reference",
	// "saved_scope", "event_id", "bool"
}

// DuplicatePolicy controls what happens when a field key repeats within a
// block.
type DuplicatePolicy string

const (
	DuplicateForbidden DuplicatePolicy = "forbidden"
	DuplicateLastWins  DuplicatePolicy = "last-wins"
	DuplicateAppend    DuplicatePolicy = "append"
)

// FieldDocs carries editor-facing documentation for a field.
type FieldDocs struct {
	Description string
	Snippet     string
}

// FieldSpec is the compiled description of one field within a schema or
// nested schema.
type FieldSpec struct {
	Name           string
	Required       Requiredness
	Type           TypeSpec
	Pattern        string // name of a shared pattern, resolved via PatternNamed
	patternRe      *regexp.Regexp
	Enum           []string
	NestedSchema   string // name of another Schema to recurse into
	DuplicatePolicy DuplicatePolicy
	Deprecated     string
	Docs           FieldDocs
}

// Rule is a cross-field condition evaluated against a block's present
// fields. The predicate language is a small conjunction/disjunction of
// has(field), absent(field), and value(field)==literal terms; see
// EvalPredicate in predicate.go for the evaluator.
type Rule struct {
	// Require names a field that must be present when Predicate holds.
	// Forbid names a field that must be absent when Predicate holds.
	// AtMostOne lists fields of which at most one may be present
	// (Predicate is ignored for AtMostOne rules).
	Require    string
	Forbid     string
	AtMostOne  []string
	Predicate  string
	Code       string
	Message    string
}

// BlockContext describes what a block's contents mean: whether its
// identifiers are interpreted as effects, triggers, both, or neither.
type BlockContext struct {
	ThisBlockIs string // "effect", "trigger", "neutral", or "mixed"
	RootScope   string // scope type name the root of the document evaluates in
}

// SymbolDeclaration tells the indexer how top-level entries in a
// schema-matched file declare workspace symbols.
type SymbolDeclaration struct {
	Kind    string // e.g. "Event", "ScriptedEffect"
	IDFrom  string // "block_key" is the only source currently modeled
}

// Schema is the compiled, $extends-resolved, $variable-substituted form of
// one schema YAML document.
type Schema struct {
	Name         string
	Extends      string
	PathPatterns []string
	Context      BlockContext
	Fields       map[string]*FieldSpec
	FieldOrder   []string
	Rules        []Rule
	Symbol       *SymbolDeclaration

	// longestLiteralPrefix is precomputed at load time to break
	// path-pattern ties deterministically.
	longestLiteralPrefix int
	// declOrder records load order, the final tiebreaker.
	declOrder int
}
