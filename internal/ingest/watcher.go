package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/tickets-tracker/constants"
)

// SubmitFunc hands one discovered pair to the batch pipeline.
type SubmitFunc func(ctx context.Context, p Pair) error

type WatchConfig struct {
	Root string
	// Debounce coalesces bursts of writes before the inbox is rescanned.
	Debounce time.Duration
}

// Watcher submits every new or rewritten pair that shows up in an inbox
// directory. A pair is submitted again only when one of its files changes.
type Watcher struct {
	cfg    WatchConfig
	submit SubmitFunc
	logger *slog.Logger

	mu   sync.Mutex
	seen map[Pair]time.Time
}

func NewWatcher(cfg WatchConfig, submit SubmitFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	return &Watcher{cfg: cfg, submit: submit, logger: logger, seen: map[Pair]time.Time{}}
}

// Scan looks at the inbox once and submits the pairs not seen before. It
// returns how many pairs were submitted.
func (w *Watcher) Scan(ctx context.Context) int {
	res, err := ScanPairs(w.cfg.Root, true)
	if err != nil {
		w.logger.Error("inbox scan failed", "root", w.cfg.Root, "error", err)
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	submitted := 0
	for _, p := range res.Pairs {
		mod, ok := pairModTime(p)
		if !ok {
			continue
		}
		if last, dup := w.seen[p]; dup && !mod.After(last) {
			continue
		}
		if err := w.submit(ctx, p); err != nil {
			w.logger.Error("inbox submit failed", "sheet", p.SheetPath, "pdf", p.PDFPath, "error", err)
			continue
		}
		w.seen[p] = mod
		submitted++
		w.logger.Info("inbox.submit.ok", "sheet", p.SheetPath, "pdf", p.PDFPath)
	}
	return submitted
}

func pairModTime(p Pair) (time.Time, bool) {
	var latest time.Time
	for _, path := range []string{p.SheetPath, p.PDFPath} {
		fi, err := os.Stat(path)
		if err != nil {
			return time.Time{}, false
		}
		if fi.ModTime().After(latest) {
			latest = fi.ModTime()
		}
	}
	return latest, true
}

// Run scans the inbox, then rescans after each quiet period following a
// filesystem event. It blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("failed to create fsnotify watcher", "error", err)
		return err
	}
	defer func() { _ = fw.Close() }()
	if err := fw.Add(w.cfg.Root); err != nil {
		w.logger.Error("failed to watch inbox", "root", w.cfg.Root, "error", err)
		return err
	}
	w.logger.Info("inbox watcher started", "root", w.cfg.Root, "debounce", w.cfg.Debounce)
	w.Scan(ctx)

	timer := time.NewTimer(w.cfg.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped", "root", w.cfg.Root)
			return nil
		case e, ok := <-fw.Events:
			if !ok {
				return errors.New("fsnotify events channel closed")
			}
			if IsHidden(e.Name) || constants.MapExtToFormat(filepath.Ext(e.Name)) == "" {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				timer.Reset(w.cfg.Debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("fsnotify errors channel closed")
			}
			w.logger.Warn("inbox watcher error", "error", err)
		case <-timer.C:
			w.Scan(ctx)
		}
	}
}
