package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFilesFindsScriptAndLocalizationExtensionsOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("type = a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("l_english:"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/main"), 0o644))

	fs := New()
	files, err := fs.ListFiles(dir)
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	sort.Strings(names)
	assert.Equal(t, []string{"a.txt", "b.yml"}, names)
}

func TestReadFileReturnsBytes(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(p, []byte("type = a"), 0o644))

	fs := New()
	got, err := fs.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "type = a", string(got))
}

type fakeSink struct {
	changed []string
	closed  []string
}

func (s *fakeSink) ChangeDocument(uri string, version int32, text []byte) {
	s.changed = append(s.changed, uri)
}

func (s *fakeSink) CloseDocument(uri string) {
	s.closed = append(s.closed, uri)
}

func TestWatcherHandleIgnoresUnrecognizedExtensions(t *testing.T) {
	sink := &fakeSink{}
	w := &Watcher{sink: sink, debounceDur: time.Millisecond, pending: map[string]time.Time{}}

	w.handle(fsnotify.Event{Name: "image.png", Op: fsnotify.Write})

	assert.Empty(t, w.pending)
}

func TestWatcherHandleQueuesWriteForDebounce(t *testing.T) {
	sink := &fakeSink{}
	w := &Watcher{sink: sink, debounceDur: time.Millisecond, pending: map[string]time.Time{}}

	w.handle(fsnotify.Event{Name: "script.txt", Op: fsnotify.Write})

	require.Contains(t, w.pending, "script.txt")
}

func TestWatcherHandleRemoveOrRenameClosesImmediatelyWithoutDebounce(t *testing.T) {
	sink := &fakeSink{}
	w := &Watcher{sink: sink, debounceDur: time.Minute, pending: map[string]time.Time{}}

	w.handle(fsnotify.Event{Name: "script.txt", Op: fsnotify.Remove})

	assert.Equal(t, []string{"script.txt"}, sink.closed)
	assert.Empty(t, w.pending, "a remove never also gets queued for debounced flush")
}

func TestWatcherFlushOnlyForwardsEntriesPastTheDebounceWindow(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "script.txt")
	require.NoError(t, os.WriteFile(p, []byte("type = a"), 0o644))

	sink := &fakeSink{}
	w := &Watcher{
		sink:        sink,
		debounceDur: 20 * time.Millisecond,
		pending:     map[string]time.Time{p: time.Now().Add(-30 * time.Millisecond)},
	}

	w.flush()

	assert.Equal(t, []string{p}, sink.changed)
	assert.Empty(t, w.pending)
}

func TestWatcherFlushLeavesRecentChangesPending(t *testing.T) {
	sink := &fakeSink{}
	w := &Watcher{
		sink:        sink,
		debounceDur: time.Hour,
		pending:     map[string]time.Time{"script.txt": time.Now()},
	}

	w.flush()

	assert.Empty(t, sink.changed)
	assert.Contains(t, w.pending, "script.txt")
}

func TestWatcherFlushSkipsFileThatVanishedBeforeFlush(t *testing.T) {
	sink := &fakeSink{}
	w := &Watcher{
		sink:        sink,
		debounceDur: time.Millisecond,
		pending:     map[string]time.Time{"/does/not/exist.txt": time.Now().Add(-time.Hour)},
	}

	w.flush()

	assert.Empty(t, sink.changed)
}
