// Package coordinator owns per-document analysis scheduling: debounced,
// cancellable parse+validate pipelines, and the query responders that
// answer completion/hover/definition/references/rename/document-symbol/
// code-action requests from the most recently completed analysis.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/diag"
	"github.com/jomini-lang/ck3lsp/index"
	"github.com/jomini-lang/ck3lsp/parser"
	"github.com/jomini-lang/ck3lsp/schema"
	"github.com/jomini-lang/ck3lsp/scope"
	"github.com/jomini-lang/ck3lsp/token"
	"github.com/jomini-lang/ck3lsp/validate"
)

// DefaultDebounce is the interval the Coordinator waits after an edit
// before scheduling a new analysis, per §4.7.
const DefaultDebounce = 250 * time.Millisecond

// DefaultTimeout aborts a runaway analysis per §5.
const DefaultTimeout = 5 * time.Second

// DiagnosticsSink is the one-way publish channel collaborator from §6.
type DiagnosticsSink interface {
	PublishDiagnostics(uri string, version int32, diags []diag.Diagnostic)
}

// analysis is the last completed result for one document; queries read
// this without blocking on any in-flight re-analysis.
type analysis struct {
	version int32
	file    *ast.File
	schema  *schema.Schema
	diags   []diag.Diagnostic
}

// docState is one document's task slot: it holds at most one in-flight
// analysis at a time, grounded on the teacher's filesMutex/files(uri)*File
// association pattern, generalized here to also own cancellation and
// debounce timers.
type docState struct {
	mu       sync.Mutex
	uri      string
	text     []byte
	version  int32
	cancel   context.CancelFunc
	timer    *time.Timer
	latest   *analysis
}

// Coordinator is the Analysis Coordinator.
type Coordinator struct {
	logger   *zap.Logger
	registry *schema.Registry
	engine   *scope.Engine
	ix       *index.Index
	sink     DiagnosticsSink
	debounce time.Duration
	timeout  time.Duration
	sem      chan struct{} // bounds concurrent per-document analyses

	mu    sync.Mutex
	files map[string]*docState
}

// New returns a Coordinator. poolSize bounds how many documents may be
// analyzed concurrently; zero or negative defaults to 4.
func New(logger *zap.Logger, registry *schema.Registry, engine *scope.Engine, ix *index.Index, sink DiagnosticsSink, poolSize int) *Coordinator {
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Coordinator{
		logger:   logger,
		registry: registry,
		engine:   engine,
		ix:       ix,
		sink:     sink,
		debounce: DefaultDebounce,
		timeout:  DefaultTimeout,
		sem:      make(chan struct{}, poolSize),
		files:    map[string]*docState{},
	}
}

func (c *Coordinator) ensure(uri string) *docState {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.files[uri]
	if !ok {
		d = &docState{uri: uri}
		c.files[uri] = d
	}
	return d
}

// OpenDocument implements the §6 document-lifecycle contract.
func (c *Coordinator) OpenDocument(uri string, text []byte) {
	c.ChangeDocument(uri, 1, text)
}

// ChangeDocument replaces the buffer for uri and (re)schedules analysis
// after the debounce interval, cancelling any already-running analysis
// for this document first.
func (c *Coordinator) ChangeDocument(uri string, version int32, text []byte) {
	d := c.ensure(uri)
	d.mu.Lock()
	d.text = text
	d.version = version
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(c.debounce, func() { c.runAnalysis(uri) })
	d.mu.Unlock()
}

// SaveDocument schedules an immediate (zero-debounce) analysis, per
// §4.7 ("0 for explicit save").
func (c *Coordinator) SaveDocument(uri string) {
	d := c.ensure(uri)
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	c.runAnalysis(uri)
}

// CloseDocument drops the document's task slot entirely.
func (c *Coordinator) CloseDocument(uri string) {
	c.mu.Lock()
	d, ok := c.files[uri]
	delete(c.files, uri)
	c.mu.Unlock()
	if ok {
		d.mu.Lock()
		if d.cancel != nil {
			d.cancel()
		}
		if d.timer != nil {
			d.timer.Stop()
		}
		d.mu.Unlock()
	}
	c.ix.Retract(uri)
}

// runAnalysis executes the §4.7 seven-step pipeline for one document.
// Concurrent analyses of different documents run in parallel, bounded by
// c.sem; within one document, analysis is strictly sequential since the
// debounce timer only ever has one pending callback.
func (c *Coordinator) runAnalysis(uri string) {
	d := c.ensure(uri)
	d.mu.Lock()
	text := d.text
	version := d.version
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	d.cancel = cancel
	d.mu.Unlock()
	defer cancel()

	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	select {
	case <-ctx.Done():
		c.publishTimeout(uri, version)
		return
	default:
	}

	// runID correlates this run's log lines across the pipeline steps,
	// since several documents may be analyzing concurrently.
	runID := uuid.New()
	if c.logger != nil {
		c.logger.Debug("analysis started", zap.String("uri", uri), zap.Stringer("run", runID))
	}

	// Step 1: parse.
	file, perrs := parser.Parse(uri, text, parser.Options{IsKnownKeyword: c.knownKeywordFn()})

	var diags []diag.Diagnostic
	for _, pe := range perrs {
		diags = append(diags, diag.Diagnostic{Range: token.Range{Start: pe.Pos, End: pe.Pos}, Severity: diag.Error, Code: pe.Code, Message: pe.Message})
	}

	// Step 2: resolve schema.
	sch := c.registry.SchemaFor(uri)

	if ctx.Err() != nil {
		return // cancelled between checkpoints; discard partial results
	}

	// Step 3: Scope-Engine prepass + step 4: validator walk. Runs
	// unconditionally: when sch is nil (no schema matched this document),
	// Validate still runs its full-tree Generic Rules pass, per the
	// unmatched-document data flow.
	rc := &validate.RuleContext{Role: validate.RoleNeutral, Catalog: c.engine.CatalogFor()}
	if sch != nil {
		rc.ScopeType = sch.Context.RootScope
		rc.Role = roleFrom(sch.Context.ThisBlockIs)
	}
	ac := &validate.AnalysisContext{
		Registry:      c.registry,
		Catalog:       rc.Catalog,
		Engine:        c.engine,
		ScriptedKnown: c.ix.ScriptedKnown,
		LocalizationKnown: func(key string) bool {
			return c.ix.Known(index.KindLocalizationKey, key)
		},
		LocalizationSuggest: func(key string) string {
			return c.ix.Snapshot().FuzzySuggest(index.KindLocalizationKey, key)
		},
	}
	v := validate.NewSchemaValidator(ac, c.ix, uri)
	diags = append(diags, v.Validate(file.Root, sch, rc)...)

	if ctx.Err() != nil {
		return
	}

	// Step 5: merge, stable sort, dedup.
	diags = diag.MergeSort(diags)

	d.mu.Lock()
	d.latest = &analysis{version: version, file: file, schema: sch, diags: diags}
	d.mu.Unlock()

	// Step 6: publish.
	if c.sink != nil {
		c.sink.PublishDiagnostics(uri, version, diags)
	}

	// Step 7: hand off index delta.
	c.reindex(uri, file, sch)
}

func (c *Coordinator) reindex(uri string, file *ast.File, sch *schema.Schema) {
	c.ix.Retract(uri)
	if sch == nil || sch.Symbol == nil || file == nil || file.Root == nil {
		return
	}
	for _, e := range file.Root.Entries {
		if e.Key == "" {
			continue
		}
		c.ix.Declare(sch.Symbol.Kind, e.Key, e, uri)
	}
}

func (c *Coordinator) publishTimeout(uri string, version int32) {
	if c.logger != nil {
		c.logger.Warn("analysis timed out", zap.String("uri", uri))
	}
	if c.sink != nil {
		c.sink.PublishDiagnostics(uri, version, []diag.Diagnostic{{
			Severity: diag.Error,
			Code:     "CK-internal",
			Message:  "analysis exceeded the per-document timeout and was aborted",
		}})
	}
}

func (c *Coordinator) knownKeywordFn() func(string) bool {
	return func(s string) bool {
		return c.engine.CatalogFor().IsKnownKeyword(s)
	}
}

// LatestDiagnostics returns the most recently published diagnostics for
// uri, or nil if no analysis has completed yet.
func (c *Coordinator) LatestDiagnostics(uri string) []diag.Diagnostic {
	d := c.ensure(uri)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latest == nil {
		return nil
	}
	return d.latest.diags
}

// LatestFile returns the most recently parsed AST for uri, for query
// responders that need an AST path (completion, hover, document symbols).
func (c *Coordinator) LatestFile(uri string) *ast.File {
	d := c.ensure(uri)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latest == nil {
		return nil
	}
	return d.latest.file
}

// ReanalyzeDependents re-runs analysis for every open document whose last
// analysis referenced qualifiedName, per §4.7's workspace-wide
// reanalysis trigger. Dependency tracking is coarse, as specified: it
// simply reanalyzes every open document, which is correct (if not
// maximally efficient) since analysis is idempotent and cheap relative
// to a full workspace scan.
func (c *Coordinator) ReanalyzeDependents(qualifiedName string) {
	c.mu.Lock()
	uris := make([]string, 0, len(c.files))
	for uri := range c.files {
		uris = append(uris, uri)
	}
	c.mu.Unlock()
	for _, uri := range uris {
		c.runAnalysis(uri)
	}
}

// Index exposes the workspace Indexer for query responders built on top
// of the Coordinator (completion, hover, definition, references, rename,
// document symbols).
func (c *Coordinator) Index() *index.Index { return c.ix }

// Registry exposes the active Schema Registry for query responders that
// need a document's matched schema (e.g. completion's field-name union).
func (c *Coordinator) Registry() *schema.Registry { return c.registry }

// Engine exposes the Scope Engine and its backing Catalog for query
// responders that resolve scope chains or enumerate catalog entries.
func (c *Coordinator) Engine() *scope.Engine { return c.engine }

// SchemaFor returns the schema matched against uri, or nil.
func (c *Coordinator) SchemaFor(uri string) *schema.Schema { return c.registry.SchemaFor(uri) }

func roleFrom(thisBlockIs string) validate.Role {
	switch thisBlockIs {
	case "effect":
		return validate.RoleEffect
	case "trigger":
		return validate.RoleTrigger
	case "mixed":
		return validate.RoleMixed
	default:
		return validate.RoleNeutral
	}
}
