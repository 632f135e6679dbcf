package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jomini-lang/ck3lsp/catalog"
	"github.com/jomini-lang/ck3lsp/token"
)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		ScopeTypes: map[string]*catalog.ScopeType{
			"character": {
				Name:  "character",
				Links: map[string]string{"liege": "character", "primary_title": "title"},
				Lists: map[string]bool{"vassal": true},
			},
			"title": {
				Name:  "title",
				Links: map[string]string{"holder": "character"},
			},
		},
		Effects:  map[string]*catalog.Effect{},
		Triggers: map[string]*catalog.Trigger{},
	}
}

func dummyRange() token.Range {
	f := token.NewFile("x.txt", []byte("0123456789"))
	return token.Range{Start: f.Pos(0), End: f.Pos(5)}
}

func TestResolveSimpleChain(t *testing.T) {
	e := New(testCatalog())
	result, err := e.Resolve("liege.primary_title.holder", "character", NewTable(), Universals{}, dummyRange())
	require.Nil(t, err)
	assert.Equal(t, "character", result)
}

func TestResolveUnknownLink(t *testing.T) {
	e := New(testCatalog())
	_, err := e.Resolve("nonexistent_link", "character", NewTable(), Universals{}, dummyRange())
	require.NotNil(t, err)
	assert.Equal(t, LinkNotValidForScope, err.Kind)
}

func TestResolveUndefinedSavedScope(t *testing.T) {
	e := New(testCatalog())
	_, err := e.Resolve("scope:missing", "character", NewTable(), Universals{}, dummyRange())
	require.NotNil(t, err)
	assert.Equal(t, UndefinedSavedScope, err.Kind)
}

func TestResolveSavedScopeDefinedOutermostVisibleFromNestedFrame(t *testing.T) {
	e := New(testCatalog())
	table := NewTable()
	table.DefineOutermost(&Saved{Name: "t", Type: "title"})
	table.Push()
	defer table.Pop()

	result, err := e.Resolve("scope:t.holder", "character", table, Universals{}, dummyRange())
	require.Nil(t, err)
	assert.Equal(t, "character", result)
}

func TestResolveUniversalsRootFromFromFrom(t *testing.T) {
	e := New(testCatalog())
	u := Universals{Root: "title", From: "character", FromFrom: "title"}

	r1, err := e.Resolve("root", "character", NewTable(), u, dummyRange())
	require.Nil(t, err)
	assert.Equal(t, "title", r1)

	r2, err := e.Resolve("from", "title", NewTable(), u, dummyRange())
	require.Nil(t, err)
	assert.Equal(t, "character", r2)
}

func TestTableLookupInnermostShadowsOutermost(t *testing.T) {
	table := NewTable()
	table.DefineOutermost(&Saved{Name: "n", Type: "character"})
	table.Push()
	table.frames[len(table.frames)-1]["n"] = &Saved{Name: "n", Type: "title"}

	s, ok := table.Lookup("n")
	require.True(t, ok)
	assert.Equal(t, "title", s.Type)

	table.Pop()
	s, ok = table.Lookup("n")
	require.True(t, ok)
	assert.Equal(t, "character", s.Type)
}

func TestIsAvailableOrdersPhasesStrictly(t *testing.T) {
	assert.True(t, IsAvailable(PhaseImmediate, PhaseOption))
	assert.True(t, IsAvailable(PhaseImmediate, PhaseImmediate))
	assert.False(t, IsAvailable(PhaseOption, PhaseTrigger))
}

func TestInPhaseClassifiesBlockKeywords(t *testing.T) {
	assert.Equal(t, PhaseTrigger, InPhase("trigger"))
	assert.Equal(t, PhaseDesc, InPhase("desc"))
	assert.Equal(t, PhaseImmediate, InPhase("immediate"))
	assert.Equal(t, PhaseOption, InPhase("option"))
	assert.Equal(t, Phase(0), InPhase("not_a_phase_keyword"))
}
