// Package workspace is the concrete filesystem collaborator behind the
// Indexer's and Coordinator's narrow Workspace contracts: it discovers
// the script and localization files that make up a mod, reads their
// bytes, and watches the tree for the out-of-editor writes that Paradox's
// own tools (and other editors) make so the Analysis Coordinator can
// reanalyze without waiting for an explicit didChange.
package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// scriptExts are the file extensions ScanWorkspace's ListFiles considers
// part of the mod tree. ".txt" covers the bulk of Jomini script files;
// ".yml" is localization.
var scriptExts = map[string]bool{
	".txt": true,
	".yml": true,
}

// FS is the real, os-backed Workspace implementation, satisfying
// index.Workspace (ListFiles, ReadFile) without importing the index
// package, so the dependency points from index -> (interface only) and
// workspace -> os, never the reverse.
type FS struct{}

// New returns an FS workspace. There is no state to hold: every call
// reads directly from disk.
func New() *FS { return &FS{} }

// ListFiles walks root and returns every file with a recognized
// extension, as a filesystem path (the Jomini convention of using plain
// paths rather than file:// URIs, matching how the rest of this module
// treats "uri" as an opaque document identifier).
func (FS) ListFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if scriptExts[strings.ToLower(filepath.Ext(p))] {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadFile reads a single file's bytes by its path.
func (FS) ReadFile(uri string) ([]byte, error) {
	return os.ReadFile(uri)
}

// ChangeSink receives a filesystem-observed change for a document not
// currently open in the editor. It mirrors the subset of Coordinator's
// API a background watcher needs.
type ChangeSink interface {
	ChangeDocument(uri string, version int32, text []byte)
	CloseDocument(uri string)
}

// Watcher watches a mod's script/localization tree for out-of-editor
// writes (e.g. the user running Paradox's own tools, or a git checkout)
// and forwards them to a ChangeSink, debounced the way the teacher's
// directory watcher debounces rapid saves.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	sink        ChangeSink
	logger      *zap.Logger
	debounceDur time.Duration
	pending     map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewWatcher creates a Watcher that will forward changes under root to
// sink once Start is called.
func NewWatcher(sink ChangeSink, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		sink:        sink,
		logger:      logger,
		debounceDur: 300 * time.Millisecond,
		pending:     map[string]time.Time{},
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start adds root (recursively) to the watch set and begins the event
// loop in a background goroutine. It returns once the initial directories
// are registered; Stop must be called to release the OS watch handles.
func (w *Watcher) Start(ctx context.Context, root string) error {
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			if addErr := w.watcher.Add(p); addErr != nil && w.logger != nil {
				w.logger.Warn("workspace: failed to watch directory", zap.String("dir", p), zap.Error(addErr))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.run(ctx)
	return nil
}

// Stop halts the event loop and closes the underlying OS watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("workspace watcher error", zap.Error(err))
			}
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	ext := strings.ToLower(filepath.Ext(ev.Name))
	if !scriptExts[ext] {
		return
	}
	if ev.Op&fsnotify.Remove != 0 || ev.Op&fsnotify.Rename != 0 {
		w.sink.CloseDocument(ev.Name)
		return
	}
	if ev.Op&fsnotify.Write == 0 && ev.Op&fsnotify.Create == 0 {
		return
	}
	w.mu.Lock()
	w.pending[ev.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	now := time.Now()
	w.mu.Lock()
	var ready []string
	for name, at := range w.pending {
		if now.Sub(at) >= w.debounceDur {
			ready = append(ready, name)
			delete(w.pending, name)
		}
	}
	w.mu.Unlock()

	for _, name := range ready {
		text, err := os.ReadFile(name)
		if err != nil {
			continue // file vanished between the event and the debounce firing
		}
		w.sink.ChangeDocument(name, 0, text)
	}
}
