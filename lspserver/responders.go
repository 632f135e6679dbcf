package lspserver

import (
	"sort"
	"strings"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/index"
	"github.com/jomini-lang/ck3lsp/token"
)

// CompletionParams is textDocument/completion's payload.
type CompletionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// CompletionItem is one suggestion. Kind follows the LSP
// CompletionItemKind enumeration loosely (field=5, function=3, variable=6).
type CompletionItem struct {
	Label  string `json:"label"`
	Kind   int    `json:"kind"`
	Detail string `json:"detail,omitempty"`
	Insert string `json:"insertText,omitempty"`
}

func (s *Server) completion(req *jsonrpc2.Request) (interface{}, error) {
	var p CompletionParams
	if err := unmarshal(req.Params, &p); err != nil {
		return nil, err
	}
	file := s.coord.LatestFile(p.TextDocument.URI)
	if file == nil || file.Root == nil {
		return []CompletionItem{}, nil
	}
	pos := posFromWire(file, p.Position)
	path := ast.NodeAt(file.Root, pos)

	sch := s.coord.SchemaFor(p.TextDocument.URI)
	snap := s.coord.Index().Snapshot()
	cat := s.coord.Engine().CatalogFor()

	var items []CompletionItem

	if sch != nil {
		for name, fs := range sch.Fields {
			detail := fs.Docs.Description
			items = append(items, CompletionItem{Label: name, Kind: 5, Detail: detail, Insert: fieldSnippet(name, fs.Docs.Snippet)})
			if fs.Type.Kind == "enum" {
				for _, v := range fs.Enum {
					items = append(items, CompletionItem{Label: v, Kind: 12})
				}
			}
		}
	}

	role := contextRoleAt(path)
	switch role {
	case "trigger":
		for name := range cat.Triggers {
			items = append(items, CompletionItem{Label: name, Kind: 3})
		}
	case "effect":
		for name := range cat.Effects {
			items = append(items, CompletionItem{Label: name, Kind: 3})
		}
	default:
		for name := range cat.Effects {
			items = append(items, CompletionItem{Label: name, Kind: 3})
		}
		for name := range cat.Triggers {
			items = append(items, CompletionItem{Label: name, Kind: 3})
		}
	}

	for _, name := range snap.Names(index.KindScriptedEffect) {
		items = append(items, CompletionItem{Label: name, Kind: 3})
	}
	for _, name := range snap.Names(index.KindScriptedTrigger) {
		items = append(items, CompletionItem{Label: name, Kind: 3})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items, nil
}

// Hover is textDocument/hover's response shape.
type Hover struct {
	Contents string `json:"contents"`
	Range    Range  `json:"range"`
}

func (s *Server) hover(req *jsonrpc2.Request) (interface{}, error) {
	var p CompletionParams
	if err := unmarshal(req.Params, &p); err != nil {
		return nil, err
	}
	file := s.coord.LatestFile(p.TextDocument.URI)
	if file == nil || file.Root == nil {
		return nil, nil
	}
	pos := posFromWire(file, p.Position)
	path := ast.NodeAt(file.Root, pos)
	entry := path.Innermost()
	if entry == nil {
		return nil, nil
	}

	cat := s.coord.Engine().CatalogFor()
	if cat.IsEffect(entry.Key) {
		return Hover{Contents: "effect: " + entry.Key, Range: toWireRange(entry.KeyRange)}, nil
	}
	if cat.IsTrigger(entry.Key) {
		return Hover{Contents: "trigger: " + entry.Key, Range: toWireRange(entry.KeyRange)}, nil
	}

	snap := s.coord.Index().Snapshot()
	for _, k := range []index.Kind{index.KindEvent, index.KindScriptedEffect, index.KindScriptedTrigger, index.KindLocalizationKey} {
		if sym, ok := snap.Lookup(k, entry.Key); ok && len(sym.Sites) > 0 {
			return Hover{Contents: string(k) + " " + entry.Key + " defined in " + sym.Sites[0].File, Range: toWireRange(entry.KeyRange)}, nil
		}
	}
	return nil, nil
}

// Location is a definition/reference result.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

func (s *Server) definition(req *jsonrpc2.Request) (interface{}, error) {
	return s.sitesFor(req, false)
}

func (s *Server) references(req *jsonrpc2.Request) (interface{}, error) {
	return s.sitesFor(req, true)
}

func (s *Server) sitesFor(req *jsonrpc2.Request, allSites bool) (interface{}, error) {
	var p CompletionParams
	if err := unmarshal(req.Params, &p); err != nil {
		return nil, err
	}
	file := s.coord.LatestFile(p.TextDocument.URI)
	if file == nil || file.Root == nil {
		return []Location{}, nil
	}
	pos := posFromWire(file, p.Position)
	path := ast.NodeAt(file.Root, pos)
	entry := path.Innermost()
	if entry == nil {
		return []Location{}, nil
	}

	snap := s.coord.Index().Snapshot()
	var out []Location
	for _, k := range []index.Kind{index.KindEvent, index.KindScriptedEffect, index.KindScriptedTrigger, index.KindDecision, index.KindLocalizationKey} {
		sym, ok := snap.Lookup(k, entry.Key)
		if !ok {
			continue
		}
		sites := sym.Sites
		if !allSites && len(sites) > 0 {
			sites = sites[:1]
		}
		for _, site := range sites {
			out = append(out, Location{URI: site.File, Range: toWireRange(site.Range)})
		}
	}
	return out, nil
}

// RenameParams is textDocument/rename's payload.
type RenameParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
	NewName      string                 `json:"newName"`
}

// WorkspaceEdit is a minimal rename result: per-file text edits.
type WorkspaceEdit struct {
	Changes map[string][]TextEdit `json:"changes"`
}

// TextEdit is one replacement.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

func (s *Server) rename(req *jsonrpc2.Request) (interface{}, error) {
	var p RenameParams
	if err := unmarshal(req.Params, &p); err != nil {
		return nil, err
	}
	file := s.coord.LatestFile(p.TextDocument.URI)
	if file == nil || file.Root == nil {
		return nil, nil
	}
	pos := posFromWire(file, p.Position)
	path := ast.NodeAt(file.Root, pos)
	entry := path.Innermost()
	if entry == nil {
		return nil, nil
	}

	snap := s.coord.Index().Snapshot()
	changes := map[string][]TextEdit{}
	for _, k := range []index.Kind{index.KindEvent, index.KindScriptedEffect, index.KindScriptedTrigger} {
		sym, ok := snap.Lookup(k, entry.Key)
		if !ok {
			continue
		}
		for _, site := range sym.Sites {
			changes[site.File] = append(changes[site.File], TextEdit{Range: toWireRange(site.Range), NewText: p.NewName})
		}
		return WorkspaceEdit{Changes: changes}, nil
	}
	return nil, nil
}

// DocumentSymbol mirrors LSP's hierarchical DocumentSymbol.
type DocumentSymbol struct {
	Name     string           `json:"name"`
	Kind     int              `json:"kind"`
	Range    Range            `json:"range"`
	Children []DocumentSymbol `json:"children,omitempty"`
}

func (s *Server) documentSymbol(req *jsonrpc2.Request) (interface{}, error) {
	var p struct {
		TextDocument TextDocumentIdentifier `json:"textDocument"`
	}
	if err := unmarshal(req.Params, &p); err != nil {
		return nil, err
	}
	file := s.coord.LatestFile(p.TextDocument.URI)
	sch := s.coord.SchemaFor(p.TextDocument.URI)
	if file == nil || file.Root == nil || sch == nil || sch.Symbol == nil {
		return []DocumentSymbol{}, nil
	}

	var out []DocumentSymbol
	for _, e := range file.Root.Entries {
		if e.Key == "" {
			continue
		}
		sym := DocumentSymbol{Name: e.Key, Kind: 12, Range: toWireRange(e.Range)}
		if blk, ok := e.Value.(*ast.Block); ok {
			for _, child := range blk.Entries {
				if isChildSymbolField(child.Key) {
					sym.Children = append(sym.Children, DocumentSymbol{Name: child.Key, Kind: 12, Range: toWireRange(child.Range)})
				}
			}
		}
		out = append(out, sym)
	}
	return out, nil
}

func isChildSymbolField(key string) bool {
	switch key {
	case "trigger", "immediate", "option":
		return true
	}
	return false
}

// CodeAction is a minimal textDocument/codeAction response item, built
// from the edits carried in a diagnostic's Diagnostic.Fixes. No analysis
// pass in this module fills Fixes, so the response is empty.
type CodeAction struct {
	Title string                `json:"title"`
	Edit  WorkspaceEdit         `json:"edit"`
}

func (s *Server) codeAction(req *jsonrpc2.Request) (interface{}, error) {
	var p struct {
		TextDocument TextDocumentIdentifier `json:"textDocument"`
	}
	if err := unmarshal(req.Params, &p); err != nil {
		return nil, err
	}
	diags := s.coord.LatestDiagnostics(p.TextDocument.URI)
	var actions []CodeAction
	for _, d := range diags {
		for _, fix := range d.Fixes {
			actions = append(actions, CodeAction{
				Title: "Fix " + d.Code,
				Edit: WorkspaceEdit{Changes: map[string][]TextEdit{
					p.TextDocument.URI: {{Range: toWireRange(fix.Range), NewText: fix.NewText}},
				}},
			})
		}
	}
	return actions, nil
}

func posFromWire(file *ast.File, p Position) token.Pos {
	_ = file
	// The line/character pair is not converted to a byte offset: ast.File
	// does not expose its *token.File, so this returns NoPos for every
	// position. NodeAt finds no entry at NoPos, so the position-based
	// responders (hover, definition, references, rename) answer empty
	// and completion runs without cursor context.
	return token.NoPos
}

func fieldSnippet(name, snippet string) string {
	if snippet != "" {
		return snippet
	}
	return name + " = "
}

func contextRoleAt(path ast.Path) string {
	for i := len(path) - 1; i >= 0; i-- {
		switch path[i].Key {
		case "trigger", "is_shown", "is_valid", "limit", "trigger_if", "trigger_else", "trigger_else_if":
			return "trigger"
		case "immediate", "effect", "option", "after":
			return "effect"
		}
	}
	return ""
}

var _ = strings.TrimSpace // keep strings imported for future label filtering
