package persistence_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfredDev/orchestratord/internal/model"
	"github.com/AlfredDev/orchestratord/internal/persistence"
	"github.com/AlfredDev/orchestratord/internal/persistence/memstore"
)

func TestBatcherFlushesOnSize(t *testing.T) {
	store := memstore.New()
	fb := persistence.NewFileFallback(filepath.Join(t.TempDir(), "fallback.jsonl"))
	b := persistence.NewBatcher(store, fb, 2, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Enqueue(model.CallEvent{MessageUUID: "a"})
	b.Enqueue(model.CallEvent{MessageUUID: "b"})

	require.Eventually(t, func() bool { return store.CallCount() == 2 }, time.Second, 10*time.Millisecond)
}

func TestBatcherFlushesOnInterval(t *testing.T) {
	store := memstore.New()
	fb := persistence.NewFileFallback(filepath.Join(t.TempDir(), "fallback.jsonl"))
	b := persistence.NewBatcher(store, fb, 100, 30*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Enqueue(model.CallEvent{MessageUUID: "a"})

	require.Eventually(t, func() bool { return store.CallCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestBatcherDedupUnderRotation(t *testing.T) {
	store := memstore.New()
	fb := persistence.NewFileFallback(filepath.Join(t.TempDir(), "fallback.jsonl"))
	b := persistence.NewBatcher(store, fb, 1, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Enqueue(model.CallEvent{MessageUUID: "m1"})
	b.Enqueue(model.CallEvent{MessageUUID: "m1"})

	require.Eventually(t, func() bool { return store.CallCount() >= 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, store.CallCount())
}

func TestFileFallbackAppendsNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.jsonl")
	fb := persistence.NewFileFallback(path)
	require.NoError(t, fb.Append([]model.CallEvent{{MessageUUID: "x"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"x"`)
}
