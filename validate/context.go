// Package validate implements the Schema Validator and Generic Rules
// passes. SchemaValidator.Validate drives both: a schema-field-directed
// recursion for the schema-driven checks, plus one independent preorder
// walk of the entire tree for Generic Rules, so the latter applies below
// schema-declared nesting and even when no schema governs the document.
package validate

import (
	"github.com/jomini-lang/ck3lsp/catalog"
	"github.com/jomini-lang/ck3lsp/schema"
	"github.com/jomini-lang/ck3lsp/scope"
)

// Role classifies what a block's identifiers mean.
type Role string

const (
	RoleEffect  Role = "effect"
	RoleTrigger Role = "trigger"
	RoleNeutral Role = "neutral"
	RoleMixed   Role = "mixed"
)

// RuleContext is threaded through the shared walk by reference; Generic
// Rules checks read and update it as blocks are entered and left.
type RuleContext struct {
	Phase     scope.Phase
	ScopeType string
	Role      Role
	Catalog   *catalog.Catalog
}

// AnalysisContext is the full state threaded through one document's
// validation pass: the registry used to resolve nested schemas, the
// catalog, the scope engine, the universal scopes, and the index and
// localization lookups.
type AnalysisContext struct {
	Registry   *schema.Registry
	Catalog    *catalog.Catalog
	Engine     *scope.Engine
	Universals scope.Universals

	// ScriptedKnown reports whether name is a scripted effect or
	// scripted trigger defined anywhere in the workspace index. It is
	// consulted before CK3101 fires, so cross-file scripted commands
	// aren't flagged as unknown. Nil treats every name as unknown to
	// the index (used in isolated/unit-test validation).
	ScriptedKnown func(name string) bool

	// LocalizationKnown and LocalizationSuggest back the
	// `type: localization_key` check: a present key that LocalizationKnown
	// reports false for emits CK3600, annotated with
	// LocalizationSuggest's fuzzy match when one is found. Nil disables
	// the check entirely (used in isolated/unit-test validation).
	LocalizationKnown   func(key string) bool
	LocalizationSuggest func(key string) string
}
