package lspserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jomini-lang/ck3lsp/catalog"
	"github.com/jomini-lang/ck3lsp/coordinator"
	"github.com/jomini-lang/ck3lsp/index"
	"github.com/jomini-lang/ck3lsp/schema"
	"github.com/jomini-lang/ck3lsp/scope"
	"github.com/jomini-lang/ck3lsp/token"
)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		ScopeTypes: map[string]*catalog.ScopeType{
			"character": {Name: "character"},
		},
		Effects:  map[string]*catalog.Effect{"add_gold": {Name: "add_gold"}},
		Triggers: map[string]*catalog.Trigger{"is_alive": {Name: "is_alive"}},
	}
}

func testCoordinator(t *testing.T) *coordinator.Coordinator {
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
	return coordinator.New(zap.NewNop(), reg, scope.New(testCatalog()), index.New(), nil, 0)
}

func rawParams(t *testing.T, v interface{}) *json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	raw := json.RawMessage(b)
	return &raw
}

func TestToWireRangeConvertsOneBasedToZeroBased(t *testing.T) {
	f := token.NewFile("x.txt", []byte("type = character_event"))
	r := token.Range{Start: f.Pos(0), End: f.Pos(4)}

	got := toWireRange(r)

	assert.Equal(t, 0, got.Start.Line)
	assert.Equal(t, 0, got.Start.Character)
	assert.Equal(t, 0, got.End.Line)
	assert.Equal(t, 4, got.End.Character)
}

func TestToWireRangeZeroValueForInvalidRange(t *testing.T) {
	got := toWireRange(token.Range{})
	assert.Equal(t, Range{}, got)
}

func TestHandleDidOpenThenDidSaveRunsAnalysisSynchronously(t *testing.T) {
	coord := testCoordinator(t)
	srv := New(coord, zap.NewNop())

	ctx := context.Background()
	_, err := srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didOpen",
		Params: rawParams(t, DidOpenParams{TextDocument: struct {
			URI     string `json:"uri"`
			Version int32  `json:"version"`
			Text    string `json:"text"`
		}{URI: "events/a.txt", Version: 1, Text: "type = my_event"}}),
	})
	require.NoError(t, err)

	_, err = srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didSave",
		Params: rawParams(t, DidSaveParams{TextDocument: TextDocumentIdentifier{URI: "events/a.txt"}}),
	})
	require.NoError(t, err)

	assert.NotNil(t, coord.LatestFile("events/a.txt"))
}

func TestHandleDidCloseDropsDocumentState(t *testing.T) {
	coord := testCoordinator(t)
	srv := New(coord, zap.NewNop())
	ctx := context.Background()

	_, err := srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didOpen",
		Params: rawParams(t, DidOpenParams{TextDocument: struct {
			URI     string `json:"uri"`
			Version int32  `json:"version"`
			Text    string `json:"text"`
		}{URI: "events/a.txt", Version: 1, Text: "type = my_event"}}),
	})
	require.NoError(t, err)
	_, err = srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didSave",
		Params: rawParams(t, DidSaveParams{TextDocument: TextDocumentIdentifier{URI: "events/a.txt"}}),
	})
	require.NoError(t, err)
	require.NotNil(t, coord.LatestFile("events/a.txt"))

	_, err = srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didClose",
		Params: rawParams(t, DidCloseParams{TextDocument: TextDocumentIdentifier{URI: "events/a.txt"}}),
	})
	require.NoError(t, err)

	assert.Nil(t, coord.LatestFile("events/a.txt"))
}

func TestHandleUnknownMethodReturnsNilWithoutError(t *testing.T) {
	coord := testCoordinator(t)
	srv := New(coord, zap.NewNop())

	res, err := srv.handle(context.Background(), nil, &jsonrpc2.Request{Method: "textDocument/foldingRange"})
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestCompletionFallsBackToAllEffectsAndTriggersOutsideAnyKnownContext(t *testing.T) {
	coord := testCoordinator(t)
	srv := New(coord, zap.NewNop())
	ctx := context.Background()

	_, err := srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didOpen",
		Params: rawParams(t, DidOpenParams{TextDocument: struct {
			URI     string `json:"uri"`
			Version int32  `json:"version"`
			Text    string `json:"text"`
		}{URI: "events/a.txt", Version: 1, Text: "type = my_event"}}),
	})
	require.NoError(t, err)
	_, err = srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didSave",
		Params: rawParams(t, DidSaveParams{TextDocument: TextDocumentIdentifier{URI: "events/a.txt"}}),
	})
	require.NoError(t, err)

	res, err := srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/completion",
		Params: rawParams(t, CompletionParams{TextDocument: TextDocumentIdentifier{URI: "events/a.txt"}}),
	})
	require.NoError(t, err)

	items, ok := res.([]CompletionItem)
	require.True(t, ok)
	var labels []string
	for _, it := range items {
		labels = append(labels, it.Label)
	}
	assert.Contains(t, labels, "add_gold")
	assert.Contains(t, labels, "is_alive")
	assert.Contains(t, labels, "type", "the matched schema's own field name is also offered")
}

func TestHoverReturnsNilWhenNoEntryIsResolvable(t *testing.T) {
	coord := testCoordinator(t)
	srv := New(coord, zap.NewNop())
	ctx := context.Background()

	_, err := srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didOpen",
		Params: rawParams(t, DidOpenParams{TextDocument: struct {
			URI     string `json:"uri"`
			Version int32  `json:"version"`
			Text    string `json:"text"`
		}{URI: "events/a.txt", Version: 1, Text: "type = my_event"}}),
	})
	require.NoError(t, err)
	_, err = srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didSave",
		Params: rawParams(t, DidSaveParams{TextDocument: TextDocumentIdentifier{URI: "events/a.txt"}}),
	})
	require.NoError(t, err)

	res, err := srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/hover",
		Params: rawParams(t, CompletionParams{TextDocument: TextDocumentIdentifier{URI: "events/a.txt"}, Position: Position{Line: 0, Character: 0}}),
	})
	require.NoError(t, err)
	assert.Nil(t, res, "posFromWire does not yet resolve a byte offset, so no entry is ever found")
}

func TestDocumentSymbolListsTopLevelEntriesWhenSchemaDeclaresSymbols(t *testing.T) {
	coord := testCoordinator(t)
	srv := New(coord, zap.NewNop())
	ctx := context.Background()

	_, err := srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didOpen",
		Params: rawParams(t, DidOpenParams{TextDocument: struct {
			URI     string `json:"uri"`
			Version int32  `json:"version"`
			Text    string `json:"text"`
		}{URI: "events/a.txt", Version: 1, Text: "type = my_event\nimmediate = { add_gold = 100 }"}}),
	})
	require.NoError(t, err)
	_, err = srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didSave",
		Params: rawParams(t, DidSaveParams{TextDocument: TextDocumentIdentifier{URI: "events/a.txt"}}),
	})
	require.NoError(t, err)

	res, err := srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/documentSymbol",
		Params: rawParams(t, struct {
			TextDocument TextDocumentIdentifier `json:"textDocument"`
		}{TextDocument: TextDocumentIdentifier{URI: "events/a.txt"}}),
	})
	require.NoError(t, err)

	syms, ok := res.([]DocumentSymbol)
	require.True(t, ok)
	require.Len(t, syms, 2)
	assert.Equal(t, "type", syms[0].Name)
	assert.Equal(t, "immediate", syms[1].Name)
}

func TestCodeActionReturnsEmptyWhenNoDiagnosticCarriesAFix(t *testing.T) {
	coord := testCoordinator(t)
	srv := New(coord, zap.NewNop())
	ctx := context.Background()

	_, err := srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didOpen",
		Params: rawParams(t, DidOpenParams{TextDocument: struct {
			URI     string `json:"uri"`
			Version int32  `json:"version"`
			Text    string `json:"text"`
		}{URI: "events/a.txt", Version: 1, Text: "type = my_event"}}),
	})
	require.NoError(t, err)
	_, err = srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/didSave",
		Params: rawParams(t, DidSaveParams{TextDocument: TextDocumentIdentifier{URI: "events/a.txt"}}),
	})
	require.NoError(t, err)

	res, err := srv.handle(ctx, nil, &jsonrpc2.Request{
		Method: "textDocument/codeAction",
		Params: rawParams(t, struct {
			TextDocument TextDocumentIdentifier `json:"textDocument"`
		}{TextDocument: TextDocumentIdentifier{URI: "events/a.txt"}}),
	})
	require.NoError(t, err)

	actions, ok := res.([]CodeAction)
	require.True(t, ok)
	assert.Empty(t, actions)
}
