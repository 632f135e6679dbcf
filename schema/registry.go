package schema

import (
	"regexp"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Registry is the compiled, immutable form of the schema directory, built
// once by Load. Nothing reloads it or swaps in a new one when schema files
// change; every analysis uses the Registry it was given at startup.
type Registry struct {
	schemas  []*Schema
	byName   map[string]*Schema
	patterns map[string]*regexp.Regexp
}

// AllSchemas returns every compiled schema, in declaration order. Used to
// enumerate symbol declarations during a full workspace scan.
func (r *Registry) AllSchemas() []*Schema {
	out := make([]*Schema, len(r.schemas))
	copy(out, r.schemas)
	return out
}

// SchemaNamed looks up a schema by name, e.g. to resolve a field's
// nested_schema reference.
func (r *Registry) SchemaNamed(name string) *Schema {
	return r.byName[name]
}

// PatternNamed resolves a shared named regex pattern for cross-schema
// pattern fields.
func (r *Registry) PatternNamed(name string) *regexp.Regexp {
	return r.patterns[name]
}

// SchemaFor returns the schema whose path_patterns best match a
// workspace-relative POSIX path, or nil if no schema applies (in which
// case the document is handled by generic rules and the scope engine
// only). Ties are broken by longest literal prefix, then by declaration
// order.
func (r *Registry) SchemaFor(relPath string) *Schema {
	var best *Schema
	for _, s := range r.schemas {
		if !matchesAny(s.PathPatterns, relPath) {
			continue
		}
		if best == nil || better(s, best) {
			best = s
		}
	}
	return best
}

func better(a, b *Schema) bool {
	if a.longestLiteralPrefix != b.longestLiteralPrefix {
		return a.longestLiteralPrefix > b.longestLiteralPrefix
	}
	return a.declOrder < b.declOrder
}

func matchesAny(patterns []string, relPath string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}

// SortSchemaNames returns the registry's schema names sorted, primarily
// useful for deterministic test output and diagnostics listings.
func (r *Registry) SortSchemaNames() []string {
	names := make([]string, 0, len(r.schemas))
	for _, s := range r.schemas {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}
