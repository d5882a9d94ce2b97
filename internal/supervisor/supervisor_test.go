package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStopsCleanlyOnContextCancel(t *testing.T) {
	sup := New(zerolog.Nop(), 5)
	ctx, cancel := context.WithCancel(context.Background())

	var shutdownCalled atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- sup.Run(ctx, []Task{
			{Name: "a", Run: func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			}},
		})
	}()
	_ = shutdownCalled

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, sup.Degraded().Load())
}

func TestNonRestartableTaskFailureFlipsDegraded(t *testing.T) {
	sup := New(zerolog.Nop(), 5)

	err := sup.Run(context.Background(), []Task{
		{Name: "fails", Run: func(ctx context.Context) error {
			return errors.New("boom")
		}},
	})
	require.Error(t, err)
	assert.True(t, sup.Degraded().Load())
}

func TestRestartableTaskExhaustsBudgetThenDegrades(t *testing.T) {
	sup := New(zerolog.Nop(), 2)

	var attempts atomic.Int32
	err := sup.Run(context.Background(), []Task{
		{Name: "flaky", Restartable: true, Run: func(ctx context.Context) error {
			attempts.Add(1)
			return errors.New("flaky failure")
		}},
	})
	require.NoError(t, err)
	assert.True(t, sup.Degraded().Load())
	assert.GreaterOrEqual(t, int(attempts.Load()), 2)
}

func TestShutdownCallbacksRunAfterAllTasksStop(t *testing.T) {
	var called atomic.Bool
	sup := New(zerolog.Nop(), 5, func() { called.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sup.Run(ctx, []Task{
		{Name: "noop", Run: func(ctx context.Context) error { return nil }},
	})
	require.NoError(t, err)
	assert.True(t, called.Load())
}
