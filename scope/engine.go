// Package scope implements scope-chain resolution and the saved-scope /
// scope-timing analysis described as the Scope Engine: it tracks the
// "current subject" of a script block as script execution would see it,
// without ever executing the script.
package scope

import (
	"strings"

	"github.com/jomini-lang/ck3lsp/catalog"
	"github.com/jomini-lang/ck3lsp/token"
)

// ErrorKind classifies why a scope chain failed to resolve.
type ErrorKind int

const (
	_ ErrorKind = iota
	UnknownLink
	LinkNotValidForScope
	UndefinedSavedScope
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownLink:
		return "UnknownLink"
	case LinkNotValidForScope:
		return "LinkNotValidForScope"
	case UndefinedSavedScope:
		return "UndefinedSavedScope"
	default:
		return "Unknown"
	}
}

// Error reports a failed scope-chain resolution, identifying the exact
// chain segment responsible.
type Error struct {
	Kind    ErrorKind
	Segment string
	Range   token.Range
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Segment }

// Phase is the evaluation phase of an event block per the Golden Rule.
type Phase int

const (
	PhaseTrigger Phase = iota + 1
	PhaseDesc
	PhaseImmediate
	PhasePortrait
	PhaseOption
)

// Saved describes one saved-scope binding.
type Saved struct {
	Name        string
	Type        string // resulting scope type
	DefinedAt   token.Range
	IsTemporary bool
	Phase       Phase
}

// Universals carries the scope types inherited from the triggering
// context, supplied by the caller per §6. The Coordinator passes the zero
// value; it does not derive these from the invoking event or decision.
type Universals struct {
	Root      string
	From      string
	FromFrom  string
}

// Table is a lexically-scoped stack of saved-scope frames plus the
// event-wide (outermost) frame that save_scope_as writes into. Frames
// are pushed when the engine enters a block that opens a new scope
// context (a scope change or an iterator body) and popped on exit.
type Table struct {
	frames []map[string]*Saved
}

// NewTable returns a Table with a single outermost event frame.
func NewTable() *Table {
	return &Table{frames: []map[string]*Saved{{}}}
}

// Push opens a new lexical frame.
func (t *Table) Push() { t.frames = append(t.frames, map[string]*Saved{}) }

// Pop closes the innermost lexical frame.
func (t *Table) Pop() {
	if len(t.frames) > 1 {
		t.frames = t.frames[:len(t.frames)-1]
	}
}

// DefineOutermost inserts name into the outermost (event-wide) frame, per
// save_scope_as / save_temporary_scope_as semantics.
func (t *Table) DefineOutermost(s *Saved) {
	t.frames[0][s.Name] = s
}

// Lookup searches innermost-to-outermost for name.
func (t *Table) Lookup(name string) (*Saved, bool) {
	for i := len(t.frames) - 1; i >= 0; i-- {
		if s, ok := t.frames[i][name]; ok {
			return s, true
		}
	}
	return nil, false
}

// IsAvailable reports whether a saved scope defined at definedPhase is
// visible to a reference occurring at refPhase, per the Golden Rule:
// visibility requires the definition's phase to be less than or equal
// to the reference's phase along some path, phases being totally
// ordered trigger < desc < immediate < portrait < option.
func IsAvailable(definedPhase, refPhase Phase) bool {
	return definedPhase <= refPhase
}

// Engine resolves scope chains against the Definition Catalog.
type Engine struct {
	cat *catalog.Catalog
}

// New returns a scope Engine backed by cat.
func New(cat *catalog.Catalog) *Engine {
	return &Engine{cat: cat}
}

// CatalogFor returns the Definition Catalog backing this engine, so
// callers that already hold an Engine reference don't need to thread the
// Catalog through separately.
func (e *Engine) CatalogFor() *catalog.Catalog { return e.cat }

// Resolve walks chain (dot-separated, e.g. "liege.primary_title.holder",
// or "scope:actor.spouse") starting from currentType, consulting saved
// for scope: references and u for the universals root/from/fromfrom.
// chainRange is the full source range of the scalar, used to compute
// segment sub-ranges for diagnostics on a best-effort basis (exact
// column math is left to the caller, which has the raw text).
func (e *Engine) Resolve(chain string, currentType string, saved *Table, u Universals, chainRange token.Range) (string, *Error) {
	segs := strings.Split(chain, ".")
	cur := currentType

	for i, seg := range segs {
		switch {
		case seg == "root":
			cur = u.Root
		case seg == "this":
			// "this" does not change the current scope.
		case seg == "prev":
			// prev is resolved by the caller's traversal stack; absent a
			// stack here it is treated as the current type, which is a
			// conservative (false-positive-avoiding) approximation.
		case seg == "from":
			cur = u.From
		case seg == "fromfrom":
			cur = u.FromFrom
		case strings.HasPrefix(seg, "scope:"):
			name := strings.TrimPrefix(seg, "scope:")
			s, ok := saved.Lookup(name)
			if !ok {
				return "", &Error{Kind: UndefinedSavedScope, Segment: seg, Range: chainRange}
			}
			cur = s.Type
		default:
			st := e.cat.ScopeNamed(cur)
			if st == nil {
				return "", &Error{Kind: UnknownLink, Segment: seg, Range: chainRange}
			}
			target, ok := st.Links[seg]
			if !ok {
				if i == 0 && e.cat.ScopeNamed(seg) != nil {
					// A bare scope-type name at the head of a chain (rare,
					// but some link tables alias a type onto itself) is
					// accepted defensively rather than flagged.
					cur = seg
					continue
				}
				return "", &Error{Kind: LinkNotValidForScope, Segment: seg, Range: chainRange}
			}
			cur = target
		}
	}
	return cur, nil
}

// InPhase classifies a block by its governing keyword per the phase
// table: trigger/is_shown/is_valid/limit/triggered_desc.trigger are
// phase 1, desc is phase 2, immediate is phase 3, portrait positions are
// phase 4, option (and after) is phase 5. Unrecognized keys return 0
// (no phase), meaning the Golden Rule does not apply to that block.
func InPhase(blockKey string) Phase {
	switch blockKey {
	case "trigger", "is_shown", "is_valid", "limit":
		return PhaseTrigger
	case "desc", "first_valid", "random_valid":
		return PhaseDesc
	case "immediate":
		return PhaseImmediate
	case "left_portrait", "right_portrait", "lower_left_portrait", "lower_right_portrait", "lower_center_portrait":
		return PhasePortrait
	case "option", "after":
		return PhaseOption
	default:
		return 0
	}
}
