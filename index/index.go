// Package index maintains the workspace-wide symbol tables: events,
// scripted effects/triggers, script values, modifiers, traits, on-actions,
// and localization keys. It is the single writer of its own state; readers
// take an immutable snapshot so validation never blocks on index writes.
package index

import (
	"sort"
	"sync"

	"github.com/agext/levenshtein"

	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/diag"
	"github.com/jomini-lang/ck3lsp/token"
)

// Kind identifies the category of an indexed symbol.
type Kind string

const (
	KindEvent            Kind = "Event"
	KindScriptedEffect    Kind = "ScriptedEffect"
	KindScriptedTrigger   Kind = "ScriptedTrigger"
	KindScriptValue       Kind = "ScriptValue"
	KindModifier          Kind = "Modifier"
	KindOnAction          Kind = "OnAction"
	KindTrait             Kind = "Trait"
	KindLocalizationKey   Kind = "LocalizationKey"
	KindDecision          Kind = "Decision"
	KindStoryCycle        Kind = "StoryCycle"
)

// Site is one definition (or, for localization, declaration) location.
type Site struct {
	File  string
	Range token.Range
}

// Symbol is one entry under a (kind, qualifiedName) key, plus all the
// sites where it is defined. Multiple sites for the same (kind, name)
// mean a duplicate-definition condition; they are preserved rather than
// deduplicated so the diagnostic can point at every site.
type Symbol struct {
	Kind          Kind
	QualifiedName string
	Sites         []Site
}

// namespaceKey groups kinds that share a single fuzzy-suggestion
// namespace, mirroring the Indexer's localization-key lookup: suggestions
// only make sense within the same kind.
type namespaceKey struct {
	kind Kind
	name string
}

// Index is the workspace-wide, incrementally maintained symbol table. Its
// zero value is not usable; construct with New.
type Index struct {
	mu sync.RWMutex

	// symbols maps (kind,name) -> Symbol. Protected by mu for writers;
	// readers call Snapshot to get a point-in-time copy instead of
	// holding mu across a query.
	symbols map[namespaceKey]*Symbol

	// ownedBy tracks every (kind,name) a file has contributed sites to,
	// so a re-index of that file can cheaply retract exactly those
	// entries rather than rebuilding the whole table.
	ownedBy map[string]map[namespaceKey]bool
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		symbols: map[namespaceKey]*Symbol{},
		ownedBy: map[string]map[namespaceKey]bool{},
	}
}

// Declare implements validate.SymbolSink: it is called by the Schema
// Validator whenever a block declares a symbol per the schema's `symbols`
// block.
func (ix *Index) Declare(kind, name string, e *ast.Entry, filename string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.declareLocked(Kind(kind), name, Site{File: filename, Range: e.Range}, filename)
}

func (ix *Index) declareLocked(kind Kind, name string, site Site, filename string) {
	k := namespaceKey{kind, name}
	sym, ok := ix.symbols[k]
	if !ok {
		sym = &Symbol{Kind: kind, QualifiedName: name}
		ix.symbols[k] = sym
	}
	sym.Sites = append(sym.Sites, site)

	owned, ok := ix.ownedBy[filename]
	if !ok {
		owned = map[namespaceKey]bool{}
		ix.ownedBy[filename] = owned
	}
	owned[k] = true
}

// Retract drops every site belonging to filename across all symbols,
// the first step of the incremental re-index described in §4.6: "drop
// all symbols previously owned by that file, then re-extract".
func (ix *Index) Retract(filename string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	owned := ix.ownedBy[filename]
	for k := range owned {
		sym, ok := ix.symbols[k]
		if !ok {
			continue
		}
		kept := sym.Sites[:0]
		for _, s := range sym.Sites {
			if s.File != filename {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(ix.symbols, k)
		} else {
			sym.Sites = kept
		}
	}
	delete(ix.ownedBy, filename)
}

// Lookup returns the symbol for (kind, name), and whether it exists.
func (ix *Index) Lookup(kind Kind, name string) (*Symbol, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	sym, ok := ix.symbols[namespaceKey{kind, name}]
	return sym, ok
}

// Known reports whether any site defines (kind, name); used by the
// validator to resolve cross-file scripted-effect/trigger references
// before emitting CK3101.
func (ix *Index) Known(kind Kind, name string) bool {
	_, ok := ix.Lookup(kind, name)
	return ok
}

// ScriptedKnown adapts Known to validate.AnalysisContext.ScriptedKnown,
// treating a name as known if it is defined as either a scripted effect
// or a scripted trigger anywhere in the workspace.
func (ix *Index) ScriptedKnown(name string) bool {
	return ix.Known(KindScriptedEffect, name) || ix.Known(KindScriptedTrigger, name)
}

// Snapshot returns an immutable copy of every symbol, safe to hold and
// query without the writer's lock: completion, hover, and reference
// queries work off a Snapshot rather than the live Index.
func (ix *Index) Snapshot() *Snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[namespaceKey]*Symbol, len(ix.symbols))
	for k, v := range ix.symbols {
		cp := *v
		cp.Sites = append([]Site(nil), v.Sites...)
		out[k] = &cp
	}
	return &Snapshot{symbols: out}
}

// Snapshot is a read-only, point-in-time copy of the Index.
type Snapshot struct {
	symbols map[namespaceKey]*Symbol
}

// Lookup mirrors Index.Lookup against the frozen snapshot.
func (s *Snapshot) Lookup(kind Kind, name string) (*Symbol, bool) {
	sym, ok := s.symbols[namespaceKey{kind, name}]
	return sym, ok
}

// Names returns every name under kind, sorted, for completion listings.
func (s *Snapshot) Names(kind Kind) []string {
	var out []string
	for k := range s.symbols {
		if k.kind == kind {
			out = append(out, k.name)
		}
	}
	sort.Strings(out)
	return out
}

// DuplicateDiagnostics produces CK3404 for every (kind,name) with more
// than one defining site, one diagnostic per extra site, with a Related
// pointing back at the first definition.
func (s *Snapshot) DuplicateDiagnostics(kind Kind) []diag.Diagnostic {
	var out []diag.Diagnostic
	for k, sym := range s.symbols {
		if k.kind != kind || len(sym.Sites) < 2 {
			continue
		}
		first := sym.Sites[0]
		for _, site := range sym.Sites[1:] {
			out = append(out, diag.Diagnostic{
				Range:    site.Range,
				Severity: diag.Error,
				Code:     "CK3404",
				Message:  "duplicate definition of " + string(kind) + " " + sym.QualifiedName,
				Related: []diag.Related{{
					Range:   first.Range,
					Message: "first defined here",
				}},
			})
		}
	}
	return out
}

// FuzzySuggest returns the closest known name of kind to want within
// Levenshtein distance 2, or "" if none qualifies. The distance is plain
// Levenshtein: an adjacent transposition counts as two edits. Used for
// CK3600 ("missing localization key") and for unresolved event/scripted
// references more broadly.
func (s *Snapshot) FuzzySuggest(kind Kind, want string) string {
	best := ""
	bestDist := 3 // anything >= 3 does not qualify (distance <= 2 required)
	params := levenshtein.NewParams()
	for k := range s.symbols {
		if k.kind != kind {
			continue
		}
		d := levenshtein.Distance(want, k.name, params)
		if d < bestDist {
			bestDist = d
			best = k.name
		}
	}
	return best
}
