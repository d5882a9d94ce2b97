package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfredDev/orchestratord/internal/model"
	"github.com/AlfredDev/orchestratord/internal/persistence"
	"github.com/AlfredDev/orchestratord/internal/persistence/memstore"
)

func TestSweeperDeletesCallsOlderThanRetention(t *testing.T) {
	store := memstore.New()
	_, err := store.InsertCalls([]model.CallEvent{
		{MessageUUID: "old", Timestamp: time.Now().Add(-40 * 24 * time.Hour)},
		{MessageUUID: "new", Timestamp: time.Now()},
	})
	require.NoError(t, err)

	sweeper := persistence.NewSweeper(store, 30, 90, 1000000, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go sweeper.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()

	assert.Equal(t, 1, store.CallCount())
}
