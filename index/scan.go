package index

import (
	"context"
	"path"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/diag"
	"github.com/jomini-lang/ck3lsp/parser"
	"github.com/jomini-lang/ck3lsp/schema"
	"github.com/jomini-lang/ck3lsp/token"
)

// Workspace is the narrow collaborator contract §6 describes, reduced to
// file discovery and reads; change watching lives in workspace.Watcher.
// The Scanner depends only on this interface, not on a concrete
// filesystem implementation, so tests can supply an in-memory Workspace.
type Workspace interface {
	ListFiles(root string) ([]string, error)
	ReadFile(uri string) ([]byte, error)
}

// Scanner performs the initial workspace-open scan and can be reused for
// a single-file incremental re-extract.
type Scanner struct {
	ix       *Index
	registry *schema.Registry
	ws       Workspace
}

// NewScanner returns a Scanner that populates ix using registry to
// determine which files own which symbol kinds.
func NewScanner(ix *Index, registry *schema.Registry, ws Workspace) *Scanner {
	return &Scanner{ix: ix, registry: registry, ws: ws}
}

// ScanWorkspace parses every file ListFiles returns for root (§4.6 step
// 1-3): .yml files as localization, all others as script, whose parse
// errors are returned as diagnostics. Files are not filtered by
// path_patterns or by a localization directory; script symbols are
// declared only from files a schema matches. Files are parsed
// concurrently on an errgroup-backed worker pool of GOMAXPROCS
// goroutines; index insertion itself is serialized through Index's own
// lock.
func (sc *Scanner) ScanWorkspace(ctx context.Context, root string) ([]diag.Diagnostic, error) {
	files, err := sc.ws.ListFiles(root)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	diagsCh := make(chan []diag.Diagnostic, len(files))

	for _, f := range files {
		f := f
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			ds, err := sc.scanOne(f)
			if err != nil {
				return nil // a file that cannot be read is skipped, not a scan failure
			}
			diagsCh <- ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(diagsCh)

	var all []diag.Diagnostic
	for ds := range diagsCh {
		all = append(all, ds...)
	}
	return all, nil
}

func (sc *Scanner) scanOne(uri string) ([]diag.Diagnostic, error) {
	if path.Ext(uri) == ".yml" {
		return sc.scanLocalization(uri)
	}

	src, err := sc.ws.ReadFile(uri)
	if err != nil {
		return nil, err
	}
	file, errs := parser.Parse(uri, src, parser.Options{IsKnownKeyword: nil})

	sch := sc.registry.SchemaFor(uri)
	if sch != nil && sch.Symbol != nil {
		for _, e := range file.Root.Entries {
			if e.Key == "" {
				continue
			}
			sc.ix.Declare(sch.Symbol.Kind, e.Key, e, uri)
		}
	}

	var out []diag.Diagnostic
	for _, pe := range errs {
		out = append(out, diag.Diagnostic{Range: token.Range{Start: pe.Pos, End: pe.Pos}, Severity: diag.Error, Code: pe.Code, Message: pe.Message})
	}
	return out, nil
}

// Reindex retracts uri's previously owned symbols and re-extracts them
// from freshly parsed content, the §4.6 "incremental update" path driven
// by the Coordinator on every document change.
func (sc *Scanner) Reindex(uri string, file *ast.File) {
	sc.ix.Retract(uri)
	sch := sc.registry.SchemaFor(uri)
	if sch == nil || sch.Symbol == nil || file == nil || file.Root == nil {
		return
	}
	for _, e := range file.Root.Entries {
		if e.Key == "" {
			continue
		}
		sc.ix.Declare(sch.Symbol.Kind, e.Key, e, uri)
	}
}
