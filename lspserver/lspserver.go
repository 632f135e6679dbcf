// Package lspserver is the thin LSP JSON-RPC transport collaborator
// described in §6: it decodes textDocument/* notifications and requests
// off stdio and forwards them to the Coordinator's narrow contract
// (open/change/close document, publish_diagnostics_sink, and the query
// methods), without embedding any analysis logic of its own.
package lspserver

import (
	"context"
	"encoding/json"
	"io"

	"github.com/sourcegraph/jsonrpc2"
	"go.uber.org/zap"

	"github.com/jomini-lang/ck3lsp/coordinator"
	"github.com/jomini-lang/ck3lsp/diag"
	"github.com/jomini-lang/ck3lsp/token"
)

// Position mirrors LSP's zero-based line/character position.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range mirrors LSP's start/end position pair.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextDocumentIdentifier carries a document URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// DidOpenParams is textDocument/didOpen's payload.
type DidOpenParams struct {
	TextDocument struct {
		URI     string `json:"uri"`
		Version int32  `json:"version"`
		Text    string `json:"text"`
	} `json:"textDocument"`
}

// DidChangeParams is textDocument/didChange's payload (full-document sync).
type DidChangeParams struct {
	TextDocument struct {
		URI     string `json:"uri"`
		Version int32  `json:"version"`
	} `json:"textDocument"`
	ContentChanges []struct {
		Text string `json:"text"`
	} `json:"contentChanges"`
}

// DidCloseParams is textDocument/didClose's payload.
type DidCloseParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DidSaveParams is textDocument/didSave's payload.
type DidSaveParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// PublishDiagnosticsParams is the one-way notification sent to the editor.
type PublishDiagnosticsParams struct {
	URI         string               `json:"uri"`
	Version     int32                `json:"version"`
	Diagnostics []wireDiagnostic     `json:"diagnostics"`
}

type wireDiagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// Server adapts a Coordinator to the jsonrpc2 stdio transport.
type Server struct {
	coord  *coordinator.Coordinator
	logger *zap.Logger
	conn   *jsonrpc2.Conn
}

// New returns a Server bound to coord, which may be nil if the
// Coordinator itself depends on this Server as its DiagnosticsSink; call
// Bind once the Coordinator exists to complete the wiring. Call Serve to
// run the stdio loop.
func New(coord *coordinator.Coordinator, logger *zap.Logger) *Server {
	return &Server{coord: coord, logger: logger}
}

// Bind attaches the Coordinator this Server dispatches textDocument/*
// requests to. Used when the Coordinator's own construction requires a
// DiagnosticsSink (this Server) before the Coordinator itself exists.
func (s *Server) Bind(coord *coordinator.Coordinator) {
	s.coord = coord
}

// Serve runs the JSON-RPC2 message loop over rwc (typically stdin and
// stdout joined into one io.ReadWriteCloser) until the connection closes or ctx is
// cancelled. It blocks until the connection ends.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	s.conn = jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))
	<-s.conn.DisconnectNotify()
	return nil
}

// PublishDiagnostics implements coordinator.DiagnosticsSink by sending a
// textDocument/publishDiagnostics notification.
func (s *Server) PublishDiagnostics(uri string, version int32, diags []diag.Diagnostic) {
	if s.conn == nil {
		return
	}
	wire := make([]wireDiagnostic, 0, len(diags))
	for _, d := range diags {
		wire = append(wire, wireDiagnostic{
			Range:    toWireRange(d.Range),
			Severity: int(d.Severity),
			Code:     d.Code,
			Message:  d.Message,
		})
	}
	_ = s.conn.Notify(context.Background(), "textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI: uri, Version: version, Diagnostics: wire,
	})
}

func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case "textDocument/didOpen":
		var p DidOpenParams
		if err := unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		s.coord.OpenDocument(p.TextDocument.URI, []byte(p.TextDocument.Text))
		return nil, nil

	case "textDocument/didChange":
		var p DidChangeParams
		if err := unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		if len(p.ContentChanges) == 0 {
			return nil, nil
		}
		text := p.ContentChanges[len(p.ContentChanges)-1].Text
		s.coord.ChangeDocument(p.TextDocument.URI, p.TextDocument.Version, []byte(text))
		return nil, nil

	case "textDocument/didSave":
		var p DidSaveParams
		if err := unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		s.coord.SaveDocument(p.TextDocument.URI)
		return nil, nil

	case "textDocument/didClose":
		var p DidCloseParams
		if err := unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		s.coord.CloseDocument(p.TextDocument.URI)
		return nil, nil

	case "textDocument/completion":
		return s.completion(req)
	case "textDocument/hover":
		return s.hover(req)
	case "textDocument/definition":
		return s.definition(req)
	case "textDocument/references":
		return s.references(req)
	case "textDocument/rename":
		return s.rename(req)
	case "textDocument/documentSymbol":
		return s.documentSymbol(req)
	case "textDocument/codeAction":
		return s.codeAction(req)

	default:
		if s.logger != nil {
			s.logger.Debug("unhandled method", zap.String("method", req.Method))
		}
		return nil, nil
	}
}

func unmarshal(raw *json.RawMessage, out interface{}) error {
	if raw == nil {
		return nil
	}
	return json.Unmarshal(*raw, out)
}

// toWireRange converts a 1-based token.Range (Position.Line/Column) into
// the zero-based line/character pairs the LSP wire format expects.
func toWireRange(r token.Range) Range {
	if !r.IsValid() {
		return Range{}
	}
	start := r.Start.Position()
	end := r.End.Position()
	return Range{
		Start: Position{Line: start.Line - 1, Character: start.Column - 1},
		End:   Position{Line: end.Line - 1, Character: end.Column - 1},
	}
}
