// Package perrors defines the shared, position-aware error type used by
// the parser and reused (wrapped) by later analysis phases before they are
// promoted into full diagnostics.
package perrors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jomini-lang/ck3lsp/token"
)

// Error is a single positioned parse error. Code is one of the parser's
// CK30xx/CK33xx diagnostic codes (see the diag package for the richer,
// editor-facing Diagnostic type built on top of these).
type Error struct {
	Pos     token.Pos
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Pos, e.Code, e.Message)
}

// List is an accumulator of Errors produced by a single parse. It is not
// safe for concurrent use; each parse owns its own List.
type List []*Error

// Add appends a new positioned error to the list.
func (l *List) Add(pos token.Pos, code, format string, args ...interface{}) {
	*l = append(*l, &Error{Pos: pos, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Sort orders the list by position, then by code, matching the stable
// ordering the schema validator later applies to its own diagnostics.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		if c := l[i].Pos.Compare(l[j].Pos); c != 0 {
			return c < 0
		}
		return l[i].Code < l[j].Code
	})
}

func (l List) Error() string {
	var b strings.Builder
	for i, e := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Error())
	}
	return b.String()
}

// Err returns nil if the list is empty, else the list itself as an error.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
