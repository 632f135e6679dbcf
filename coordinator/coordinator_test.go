package coordinator

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jomini-lang/ck3lsp/catalog"
	"github.com/jomini-lang/ck3lsp/diag"
	"github.com/jomini-lang/ck3lsp/index"
	"github.com/jomini-lang/ck3lsp/schema"
	"github.com/jomini-lang/ck3lsp/scope"
	"github.com/jomini-lang/ck3lsp/validate"
)

// fakeSink records every publish so tests can assert on the most recent
// one without racing the debounce timer or analysis goroutine.
type fakeSink struct {
	mu    sync.Mutex
	calls []publishCall
}

type publishCall struct {
	uri     string
	version int32
	diags   []diag.Diagnostic
}

func (s *fakeSink) PublishDiagnostics(uri string, version int32, diags []diag.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, publishCall{uri, version, diags})
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSink) last() publishCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		ScopeTypes: map[string]*catalog.ScopeType{
			"character": {Name: "character", Links: map[string]string{"liege": "character"}},
		},
		Effects:  map[string]*catalog.Effect{"add_gold": {Name: "add_gold"}},
		Triggers: map[string]*catalog.Trigger{"is_alive": {Name: "is_alive"}},
	}
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "event.yaml"), []byte(`
name: event
path_patterns:
  - "events/**/*.txt"
symbols:
  kind: Event
  id_from: block_key
fields:
  type:
    required: always
    type: scalar
    duplicate_policy: forbidden
`), 0o644))
	reg, err := schema.Load(dir, nil, nil)
	require.NoError(t, err)
	return reg
}

func testCoordinator(t *testing.T) (*Coordinator, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	c := New(zap.NewNop(), testRegistry(t), scope.New(testCatalog()), index.New(), sink, 0)
	return c, sink
}

func TestOpenDocumentPublishesAfterDebounce(t *testing.T) {
	c, sink := testCoordinator(t)
	c.debounce = 10 * time.Millisecond

	c.OpenDocument("events/a.txt", []byte(`type = my_event`))

	require.Eventually(t, func() bool { return sink.count() >= 1 }, time.Second, 5*time.Millisecond)
	call := sink.last()
	assert.Equal(t, "events/a.txt", call.uri)
	assert.Equal(t, int32(1), call.version)
}

func TestChangeDocumentCancelsPendingDebounceAndKeepsLatestVersion(t *testing.T) {
	c, sink := testCoordinator(t)
	c.debounce = 30 * time.Millisecond

	c.ChangeDocument("events/a.txt", 1, []byte(`type = one`))
	// Replaces the still-pending timer; version 1 should never itself be
	// published since its timer is stopped before it fires.
	c.ChangeDocument("events/a.txt", 2, []byte(`type = two`))

	require.Eventually(t, func() bool { return sink.count() >= 1 }, time.Second, 5*time.Millisecond)
	// Give any (incorrect) stray version-1 timer a chance to also fire
	// before asserting there was exactly one publish.
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, int32(2), sink.last().version)
}

func TestSaveDocumentRunsImmediatelyBypassingDebounce(t *testing.T) {
	c, sink := testCoordinator(t)
	c.debounce = time.Hour // would never fire on its own within the test

	c.ChangeDocument("events/a.txt", 1, []byte(`type = my_event`))
	c.SaveDocument("events/a.txt")

	require.Eventually(t, func() bool { return sink.count() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestCloseDocumentRetractsDeclaredSymbolsFromIndex(t *testing.T) {
	c, sink := testCoordinator(t)
	c.debounce = 5 * time.Millisecond

	c.OpenDocument("events/a.txt", []byte(`type = my_event`))
	require.Eventually(t, func() bool { return sink.count() >= 1 }, time.Second, 5*time.Millisecond)
	require.True(t, c.Index().Known(index.KindEvent, "type"))

	c.CloseDocument("events/a.txt")
	assert.False(t, c.Index().Known(index.KindEvent, "type"))
	assert.Nil(t, c.LatestDiagnostics("events/a.txt"), "closing drops the document's task slot entirely")
}

func TestReanalyzeDependentsRerunsEveryOpenDocument(t *testing.T) {
	c, sink := testCoordinator(t)
	c.debounce = 5 * time.Millisecond

	c.OpenDocument("events/a.txt", []byte(`type = a_event`))
	c.OpenDocument("events/b.txt", []byte(`type = b_event`))
	require.Eventually(t, func() bool { return sink.count() >= 2 }, time.Second, 5*time.Millisecond)

	before := sink.count()
	c.ReanalyzeDependents("a_event")

	require.Eventually(t, func() bool { return sink.count() >= before+2 }, time.Second, 5*time.Millisecond)
}

func TestRunAnalysisPublishesTimeoutWhenDeadlineAlreadyPassed(t *testing.T) {
	c, sink := testCoordinator(t)
	c.timeout = 1 * time.Nanosecond
	c.debounce = 5 * time.Millisecond

	c.ChangeDocument("events/a.txt", 1, []byte(`type = my_event`))

	require.Eventually(t, func() bool { return sink.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "CK-internal", sink.last().diags[0].Code)
}

func TestLatestFileReturnsNilBeforeFirstAnalysis(t *testing.T) {
	c, _ := testCoordinator(t)
	assert.Nil(t, c.LatestFile("events/never-opened.txt"))
	assert.Nil(t, c.LatestDiagnostics("events/never-opened.txt"))
}

func TestAccessorsExposeSharedCollaborators(t *testing.T) {
	c, _ := testCoordinator(t)
	require.NotNil(t, c.Index())
	require.NotNil(t, c.Registry())
	require.NotNil(t, c.Engine())
	assert.NotNil(t, c.SchemaFor("events/a.txt"))
	assert.Nil(t, c.SchemaFor("common/unrelated.txt"))
}

func TestRunAnalysisAppliesGenericRulesEvenWhenNoSchemaMatches(t *testing.T) {
	c, sink := testCoordinator(t)
	c.debounce = 5 * time.Millisecond

	// "common/x.txt" matches no registered schema pattern (only
	// "events/**/*.txt" is registered), so SchemaFor returns nil. Generic
	// Rules must still run: any_vassal is not a valid list outside a
	// scope the Scope Engine actually resolved, which is always true when
	// no schema seeded a root scope type.
	c.OpenDocument("common/x.txt", []byte(`any_vassal = { limit = { is_alive = yes } }`))

	require.Eventually(t, func() bool { return sink.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Nil(t, c.SchemaFor("common/x.txt"))
	assert.True(t, hasDiagCode(sink.last().diags, "CK3976"), "generic rules must still flag an invalid iterator list even without a matched schema")
}

func hasDiagCode(diags []diag.Diagnostic, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestRoleFromMapsContextStrings(t *testing.T) {
	assert.Equal(t, validate.RoleEffect, roleFrom("effect"))
	assert.Equal(t, validate.RoleTrigger, roleFrom("trigger"))
	assert.Equal(t, validate.RoleMixed, roleFrom("mixed"))
	assert.Equal(t, validate.RoleNeutral, roleFrom(""))
}
