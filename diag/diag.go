// Package diag defines the Diagnostic type shared by every analysis phase:
// the schema validator, generic rules, the scope engine, and the indexer
// all emit diag.Diagnostic values, which the coordinator merges,
// deduplicates, and stable-sorts before publishing.
package diag

import (
	"sort"

	"github.com/jomini-lang/ck3lsp/token"
)

// Severity mirrors the LSP DiagnosticSeverity levels.
type Severity int

const (
	Error Severity = iota + 1
	Warning
	Info
	Hint
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Hint:
		return "hint"
	default:
		return "unknown"
	}
}

// Related is a secondary location contributing context to a Diagnostic,
// e.g. the other file in a duplicate-definition pair.
type Related struct {
	Range   token.Range
	Message string
}

// Edit is a single text replacement suggested as a fix for a Diagnostic.
type Edit struct {
	Range   token.Range
	NewText string
}

// Diagnostic is the unit of feedback surfaced to the editor. Codes are
// namespaced per §6 of the design (CK3xxxx, STORY-xxx, SCHEMA-xxx, ...).
type Diagnostic struct {
	Range    token.Range
	Severity Severity
	Code     string
	Message  string
	Related  []Related
	Fixes    []Edit
}

// key identifies a diagnostic for deduplication purposes: same range,
// same code.
type key struct {
	start, end int
	code       string
}

// MergeSort stable-sorts diagnostics by (range.start, code) and removes
// exact (range, code) duplicates, matching the deterministic ordering the
// schema validator and the coordinator both rely on.
func MergeSort(diags []Diagnostic) []Diagnostic {
	sort.SliceStable(diags, func(i, j int) bool {
		if c := diags[i].Range.Start.Compare(diags[j].Range.Start); c != 0 {
			return c < 0
		}
		return diags[i].Code < diags[j].Code
	})

	seen := make(map[key]bool, len(diags))
	out := diags[:0]
	for _, d := range diags {
		k := key{d.Range.Start.Offset(), d.Range.End.Offset(), d.Code}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	return out
}
