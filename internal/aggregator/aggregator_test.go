package aggregator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfredDev/orchestratord/internal/aggregator"
	"github.com/AlfredDev/orchestratord/internal/model"
)

func startAgg(t *testing.T) (*aggregator.Aggregator, context.CancelFunc) {
	t.Helper()
	a := aggregator.New(10)
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	return a, cancel
}

func TestRecordThenSnapshotSeesEvent(t *testing.T) {
	a, cancel := startAgg(t)
	defer cancel()

	ev := &model.CallEvent{
		Timestamp: time.Now(),
		ProjectID: "proj-a",
		Tier:      model.TierSonnet,
		Tokens:    model.TokenCounts{Input: 100, Output: 50},
		Cost:      model.CostBreakdown{Total: 0.01},
	}
	a.Record(ev)

	summary := a.Snapshot(time.Minute, "")
	require.Equal(t, int64(1), summary.TotalCalls)
	assert.InDelta(t, 0.01, summary.TotalCost, 1e-9)
	require.Len(t, summary.ByTier, 1)
	assert.Equal(t, model.TierSonnet, summary.ByTier[0].Tier)
}

func TestProjectScopedSnapshotExcludesOtherProjects(t *testing.T) {
	a, cancel := startAgg(t)
	defer cancel()

	a.Record(&model.CallEvent{Timestamp: time.Now(), ProjectID: "proj-a", Tier: model.TierSonnet, Cost: model.CostBreakdown{Total: 1}})
	a.Record(&model.CallEvent{Timestamp: time.Now(), ProjectID: "proj-b", Tier: model.TierSonnet, Cost: model.CostBreakdown{Total: 2}})

	summary := a.Snapshot(time.Minute, "proj-a")
	assert.Equal(t, int64(1), summary.TotalCalls)
	assert.InDelta(t, 1.0, summary.TotalCost, 1e-9)
}

func TestRecentRingNewestFirst(t *testing.T) {
	a, cancel := startAgg(t)
	defer cancel()

	for i := 0; i < 3; i++ {
		a.Record(&model.CallEvent{Timestamp: time.Now(), MessageUUID: string(rune('a' + i))})
	}
	recent := a.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].MessageUUID)
	assert.Equal(t, "b", recent[1].MessageUUID)
}

func TestSessionStatsAccumulate(t *testing.T) {
	a, cancel := startAgg(t)
	defer cancel()

	a.Record(&model.CallEvent{Timestamp: time.Now(), SessionID: "s1", ProjectID: "proj-a", Cost: model.CostBreakdown{Total: 1}, Tokens: model.TokenCounts{Input: 10}})
	a.Record(&model.CallEvent{Timestamp: time.Now(), SessionID: "s1", ProjectID: "proj-a", Cost: model.CostBreakdown{Total: 2}, Tokens: model.TokenCounts{Input: 20}})

	sessions := a.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, int64(2), sessions[0].CallCount)
	assert.InDelta(t, 3.0, sessions[0].TotalCost, 1e-9)
	assert.True(t, sessions[0].Active)
}
