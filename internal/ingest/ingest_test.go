package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(n), 0o644))
	}
}

func TestScanPairs(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"week12.xlsx", "week12.pdf",
		"Tickets_March.csv", "tickets_march_.pdf",
		"orphan.xlsx",
		"notes.txt",
		".hidden/skip.xlsx", ".hidden/skip.pdf",
		"sub/week13.xlsx", "sub/WEEK13.PDF",
	)

	res, err := ScanPairs(dir, true)
	require.NoError(t, err)

	assert.Equal(t, []Pair{
		{SheetPath: filepath.Join(dir, "Tickets_March.csv"), PDFPath: filepath.Join(dir, "tickets_march_.pdf")},
		{SheetPath: filepath.Join(dir, "sub/week13.xlsx"), PDFPath: filepath.Join(dir, "sub/WEEK13.PDF")},
		{SheetPath: filepath.Join(dir, "week12.xlsx"), PDFPath: filepath.Join(dir, "week12.pdf")},
	}, res.Pairs)
	assert.Equal(t, []string{filepath.Join(dir, "orphan.xlsx")}, res.Unpaired)
	assert.Equal(t, uint32(8), res.Stats.Scanned)
	assert.Equal(t, uint32(7), res.Stats.Matched)
	assert.Equal(t, uint32(3), res.Stats.Paired)
	assert.Equal(t, uint32(1), res.Stats.Unpaired)
}

func TestScanPairsRequiresRoot(t *testing.T) {
	_, err := ScanPairs("  ", true)
	require.Error(t, err)
}

type recorder struct {
	mu    sync.Mutex
	pairs []Pair
}

func (r *recorder) submit(_ context.Context, p Pair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = append(r.pairs, p)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pairs)
}

func TestWatcherScanSubmitsOnlyNewOrChangedPairs(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.xlsx", "a.pdf")
	rec := &recorder{}
	w := NewWatcher(WatchConfig{Root: dir}, rec.submit, nil)

	ctx := context.Background()
	assert.Equal(t, 1, w.Scan(ctx))
	assert.Equal(t, 0, w.Scan(ctx))

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.pdf"), later, later))
	assert.Equal(t, 1, w.Scan(ctx))
	assert.Equal(t, 2, rec.count())
}

func TestWatcherRunPicksUpNewPairs(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher(WatchConfig{Root: dir, Debounce: 20 * time.Millisecond}, rec.submit, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(50 * time.Millisecond)
	touch(t, dir, "b.csv", "b.pdf")

	require.Eventually(t, func() bool { return rec.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
