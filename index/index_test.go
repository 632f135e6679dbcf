package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/token"
)

func entryAt(f *token.File, a, b int) *ast.Entry {
	return &ast.Entry{Range: token.Range{Start: f.Pos(a), End: f.Pos(b)}}
}

func TestDeclareThenLookup(t *testing.T) {
	ix := New()
	f := token.NewFile("events/a.txt", make([]byte, 20))

	ix.Declare(string(KindEvent), "my_mod.0001", entryAt(f, 0, 10), "events/a.txt")

	sym, ok := ix.Lookup(KindEvent, "my_mod.0001")
	require.True(t, ok)
	assert.Len(t, sym.Sites, 1)
	assert.Equal(t, "events/a.txt", sym.Sites[0].File)
}

func TestRetractDropsOnlyThatFilesSites(t *testing.T) {
	ix := New()
	fa := token.NewFile("events/a.txt", make([]byte, 20))
	fb := token.NewFile("events/b.txt", make([]byte, 20))

	ix.Declare(string(KindEvent), "my_mod.0001", entryAt(fa, 0, 10), "events/a.txt")
	ix.Declare(string(KindEvent), "my_mod.0001", entryAt(fb, 0, 10), "events/b.txt")

	ix.Retract("events/a.txt")

	sym, ok := ix.Lookup(KindEvent, "my_mod.0001")
	require.True(t, ok, "symbol should survive since b.txt still defines it")
	require.Len(t, sym.Sites, 1)
	assert.Equal(t, "events/b.txt", sym.Sites[0].File)
}

func TestRetractRemovesSymbolEntirelyWhenLastSiteGone(t *testing.T) {
	ix := New()
	f := token.NewFile("events/a.txt", make([]byte, 20))
	ix.Declare(string(KindEvent), "my_mod.0001", entryAt(f, 0, 10), "events/a.txt")

	ix.Retract("events/a.txt")

	_, ok := ix.Lookup(KindEvent, "my_mod.0001")
	assert.False(t, ok)
}

func TestScriptedKnownChecksBothEffectAndTriggerKinds(t *testing.T) {
	ix := New()
	f := token.NewFile("common/scripted_effects/a.txt", make([]byte, 10))
	ix.Declare(string(KindScriptedEffect), "my_effect", entryAt(f, 0, 5), "common/scripted_effects/a.txt")

	assert.True(t, ix.ScriptedKnown("my_effect"))
	assert.False(t, ix.ScriptedKnown("not_declared"))
}

func TestDuplicateDiagnosticsCrossFile(t *testing.T) {
	ix := New()
	fa := token.NewFile("events/a.txt", make([]byte, 20))
	fb := token.NewFile("events/b.txt", make([]byte, 20))

	ix.Declare(string(KindEvent), "my_mod.0001", entryAt(fa, 0, 10), "events/a.txt")
	ix.Declare(string(KindEvent), "my_mod.0001", entryAt(fb, 0, 10), "events/b.txt")

	diags := ix.Snapshot().DuplicateDiagnostics(KindEvent)
	require.Len(t, diags, 1)
	assert.Equal(t, "CK3404", diags[0].Code)
	require.Len(t, diags[0].Related, 1)
}

func TestFuzzySuggestWithinEditDistanceTwo(t *testing.T) {
	ix := New()
	f := token.NewFile("localization/english/a.yml", make([]byte, 10))
	ix.Declare(string(KindLocalizationKey), "my_event.0001.title", entryAt(f, 0, 5), "localization/english/a.yml")

	// "titel" is "title" with two adjacent letters swapped: a substitution
	// plus a substitution (t-i-t-l-e -> t-i-t-e-l), edit distance 2.
	suggestion := ix.Snapshot().FuzzySuggest(KindLocalizationKey, "my_event.0001.titel")
	assert.Equal(t, "my_event.0001.title", suggestion)
}

func TestSnapshotIsIndependentOfLaterWrites(t *testing.T) {
	ix := New()
	f := token.NewFile("events/a.txt", make([]byte, 20))
	ix.Declare(string(KindEvent), "my_mod.0001", entryAt(f, 0, 10), "events/a.txt")

	snap := ix.Snapshot()
	ix.Declare(string(KindEvent), "my_mod.0002", entryAt(f, 10, 20), "events/a.txt")

	_, ok := snap.Lookup(KindEvent, "my_mod.0002")
	assert.False(t, ok, "snapshot must not observe writes made after it was taken")
}
