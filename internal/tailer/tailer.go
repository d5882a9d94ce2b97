// Package tailer implements the Log Tailer (C2): recursive filesystem
// watching of append-only JSONL logs, per-file debounce and cursor
// tracking, line-batch emission with backpressure. Grounded on the
// fsnotify.Watcher usage in the GoClode reference file
// (other_examples/0207ab08_hazyhaar-GoClode__internal-core-db.go.go)
// and the bounded-channel backpressure idiom of
// services/gateway/analytics/ingestion.go's Pipeline.
package tailer

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/AlfredDev/orchestratord/internal/model"
)

// LineBatch is one or more whole lines read from one file in a single
// reconciliation pass.
type LineBatch struct {
	Path  string
	Lines [][]byte
}

// CursorStore is the subset of persistence the Tailer needs at
// startup and on every acknowledged batch — an open boundary so a
// test can substitute an in-memory store.
type CursorStore interface {
	LoadCursors() (map[string]model.FileCursor, error)
	SaveCursor(model.FileCursor) error
}

// retryInterval is how often reconcile is retried for a path that hit
// backpressure, independent of any new fsnotify event on that path — a
// short-lived file that stops growing right after the channel fills
// would otherwise never be revisited, silently dropping its
// already-written, unread lines (spec.md §4.2: "does not drop data").
const retryInterval = 2 * time.Second

// Tailer owns every FileCursor; other components only see snapshots.
type Tailer struct {
	roots    []string
	debounce time.Duration
	cursors  CursorStore
	logger   zerolog.Logger

	mu      sync.Mutex
	state   map[string]*model.FileCursor
	timers  map[string]*time.Timer
	stalled map[string]struct{}

	out chan LineBatch
	lag atomic.Int64
}

// New builds a Tailer watching roots, emitting LineBatch values on a
// channel bounded by chanCap (spec.md default 1024).
func New(roots []string, debounce time.Duration, chanCap int, cursors CursorStore, logger zerolog.Logger) *Tailer {
	return &Tailer{
		roots:    roots,
		debounce: debounce,
		cursors:  cursors,
		logger:   logger.With().Str("component", "tailer").Logger(),
		state:    make(map[string]*model.FileCursor),
		timers:   make(map[string]*time.Timer),
		stalled:  make(map[string]struct{}),
		out:      make(chan LineBatch, chanCap),
	}
}

// Out is the channel downstream parsers consume from.
func (t *Tailer) Out() <-chan LineBatch { return t.out }

// Lag returns the count of backpressure-paused emission attempts,
// exposed as the tailer.lag counter — an atomic.Int64 in the same
// lock-free-counter idiom as observability/metrics.go's Counter, since
// Lag is read concurrently from the control plane's /health handler
// while Run's reconcile loop keeps incrementing it.
func (t *Tailer) Lag() int64 { return t.lag.Load() }

// Run starts the recursive watch and blocks until ctx is cancelled.
// On return, every in-memory cursor has been flushed via CursorStore.
func (t *Tailer) Run(ctx context.Context) error {
	if loaded, err := t.cursors.LoadCursors(); err == nil {
		t.mu.Lock()
		for path, c := range loaded {
			cp := c
			t.state[path] = &cp
		}
		t.mu.Unlock()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, root := range t.roots {
		if err := addRecursive(watcher, root); err != nil {
			t.logger.Warn().Err(err).Str("root", root).Msg("failed to watch root")
		}
	}

	// Reconcile once at startup so files already present are picked up
	// without waiting for an fsnotify event.
	for _, root := range t.roots {
		t.walkAndReconcile(root)
	}

	retryTicker := time.NewTicker(retryInterval)
	defer retryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.flushAllCursors()
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			t.scheduleReconcile(ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Warn().Err(err).Msg("watcher error")
		case <-retryTicker.C:
			t.retryStalled()
		}
	}
}

// retryStalled re-reconciles every path left stalled by backpressure on
// a prior attempt, so a file that never changes again after the output
// channel fills still gets its pending lines emitted once there's room.
func (t *Tailer) retryStalled() {
	t.mu.Lock()
	paths := make([]string, 0, len(t.stalled))
	for p := range t.stalled {
		paths = append(paths, p)
	}
	t.mu.Unlock()

	for _, p := range paths {
		t.reconcile(p)
	}
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

// scheduleReconcile coalesces bursts over the debounce window per path.
func (t *Tailer) scheduleReconcile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[path]; ok {
		timer.Stop()
	}
	t.timers[path] = time.AfterFunc(t.debounce, func() {
		t.reconcile(path)
	})
}

func (t *Tailer) walkAndReconcile(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		t.reconcile(path)
		return nil
	})
}

// reconcile applies the new-file / grown-file / rotated-file / deleted
// policy spec.md §4.2 describes.
func (t *Tailer) reconcile(path string) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.mu.Lock()
		delete(t.state, path)
		t.mu.Unlock()
		return
	}
	if err != nil {
		return
	}

	t.mu.Lock()
	cursor, known := t.state[path]
	if !known {
		cursor = &model.FileCursor{Path: path}
		t.state[path] = cursor
	}
	rotated := info.Size() < cursor.NextOffset || info.ModTime().Before(cursor.LastModified)
	t.mu.Unlock()

	if rotated {
		t.mu.Lock()
		cursor.NextOffset = 0
		t.mu.Unlock()
	}

	if info.Size() <= cursor.NextOffset {
		t.mu.Lock()
		cursor.LastSize = info.Size()
		cursor.LastModified = info.ModTime()
		t.mu.Unlock()
		return
	}

	lines, newOffset, err := readLinesFrom(path, cursor.NextOffset)
	if err != nil {
		t.logger.Debug().Err(err).Str("path", path).Msg("read failed during reconcile")
		return
	}
	if len(lines) == 0 {
		return
	}

	select {
	case t.out <- LineBatch{Path: path, Lines: lines}:
		t.mu.Lock()
		cursor.NextOffset = newOffset
		cursor.LastSize = info.Size()
		cursor.LastModified = info.ModTime()
		cp := *cursor
		delete(t.stalled, path)
		t.mu.Unlock()
		_ = t.cursors.SaveCursor(cp)
	default:
		// Backpressure: downstream isn't keeping up. Don't advance the
		// cursor — mark the path stalled so retryStalled keeps retrying
		// it on a timer even if no new fsnotify event ever arrives for
		// it again (spec.md §4.2: "does not drop data").
		t.lag.Add(1)
		t.mu.Lock()
		t.stalled[path] = struct{}{}
		t.mu.Unlock()
	}
}

// readLinesFrom reads from offset to EOF, splitting on newlines and
// retaining a trailing partial line by stopping the cursor at the last
// complete newline.
func readLinesFrom(path string, offset int64) ([][]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, err
	}

	reader := bufio.NewReader(f)
	var lines [][]byte
	consumed := offset
	for {
		chunk, err := reader.ReadBytes('\n')
		if len(chunk) > 0 && chunk[len(chunk)-1] == '\n' {
			lines = append(lines, bytes.TrimRight(chunk, "\r\n"))
			consumed += int64(len(chunk))
			continue
		}
		// Partial trailing line or EOF — leave the cursor before it so
		// the next reconcile picks up the rest once it's newline-terminated.
		if err != nil {
			break
		}
	}
	return lines, consumed, nil
}

func (t *Tailer) flushAllCursors() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.state {
		_ = t.cursors.SaveCursor(*c)
	}
}
