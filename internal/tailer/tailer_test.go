package tailer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/AlfredDev/orchestratord/internal/model"
	"github.com/AlfredDev/orchestratord/internal/tailer"
)

type memCursors struct {
	saved map[string]model.FileCursor
}

func newMemCursors() *memCursors { return &memCursors{saved: map[string]model.FileCursor{}} }

func (m *memCursors) LoadCursors() (map[string]model.FileCursor, error) { return m.saved, nil }
func (m *memCursors) SaveCursor(c model.FileCursor) error {
	m.saved[c.Path] = c
	return nil
}

func TestTailerEmitsNewlyWrittenLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"uuid":"m1"}`+"\n"), 0o644))

	cursors := newMemCursors()
	tl := tailer.New([]string{dir}, 20*time.Millisecond, 16, cursors, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tl.Run(ctx)

	select {
	case batch := <-tl.Out():
		require.Equal(t, path, batch.Path)
		require.Len(t, batch.Lines, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial reconcile to emit the seeded line")
	}
}

func TestTailerTreatsTruncationAsRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"uuid":"m1"}`+"\n{\"uuid\":\"m2\"}\n"), 0o644))

	cursors := newMemCursors()
	tl := tailer.New([]string{dir}, 20*time.Millisecond, 16, cursors, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tl.Run(ctx)

	<-tl.Out() // drain the initial two-line batch

	require.NoError(t, os.WriteFile(path, []byte(`{"uuid":"m3"}`+"\n"), 0o644))

	select {
	case batch := <-tl.Out():
		require.Len(t, batch.Lines, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rotation reconcile")
	}
}

// TestTailerRetriesStalledPathWithoutNewEvent covers the backpressure
// data-loss case: a file whose batch couldn't be sent because Out() was
// full, and which never changes again, must still have its pending
// lines delivered once the channel has room — without any further
// fsnotify event on that path.
func TestTailerRetriesStalledPathWithoutNewEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"uuid":"m1"}`+"\n"), 0o644))

	cursors := newMemCursors()
	tl := tailer.New([]string{dir}, 20*time.Millisecond, 1, cursors, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tl.Run(ctx)

	// Let the startup reconcile fill the single-slot buffer with m1's
	// batch before anything drains it.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`{"uuid":"m1"}`+"\n{\"uuid\":\"m2\"}\n"), 0o644))

	require.Eventually(t, func() bool {
		return tl.Lag() > 0
	}, 2*time.Second, 10*time.Millisecond, "expected a backpressure-blocked reconcile to bump lag")

	// Drain the buffered m1 batch, freeing the channel slot. No further
	// fs event ever touches the file again from here.
	select {
	case batch := <-tl.Out():
		require.Len(t, batch.Lines, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out draining the initial buffered batch")
	}

	select {
	case batch := <-tl.Out():
		require.Len(t, batch.Lines, 1)
		require.Contains(t, string(batch.Lines[0]), "m2")
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for the stalled path to be retried without a new fs event")
	}
}
