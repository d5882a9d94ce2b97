// Package aggregator implements the Aggregator (C4): single-writer
// in-memory sliding-window totals, session tracking, and a recent-
// events ring, all mutated by one goroutine reached only through a
// command channel. Grounded on the single-writer actor shape of
// services/gateway/metering.go's ReservationStore/AsyncLogger (a
// private state struct driven by a channel loop rather than exposed
// locks on the write path) — here generalized from reservation
// bookkeeping to call-event aggregation.
package aggregator

import (
	"context"
	"sort"
	"time"

	"github.com/AlfredDev/orchestratord/internal/model"
)

// Windows spec.md names: 1, 5, and 10 minutes.
var Windows = []time.Duration{time.Minute, 5 * time.Minute, 10 * time.Minute}

const maxWindow = 10 * time.Minute

// InactivityThreshold is the default age after which a session's
// Active flag flips to false.
const InactivityThreshold = 15 * time.Minute

// TierBreakdown is one row of the by-tier summary.
type TierBreakdown struct {
	Tier       model.Tier `json:"tier"`
	CallCount  int64      `json:"call_count"`
	TotalCost  float64    `json:"total_cost"`
	TotalToken int64      `json:"total_tokens"`
}

// ProjectBreakdown is one row of the by-project summary.
type ProjectBreakdown struct {
	ProjectID  string  `json:"project_id"`
	CallCount  int64   `json:"call_count"`
	TotalCost  float64 `json:"total_cost"`
	TotalToken int64   `json:"total_tokens"`
}

// Summary is the cloned, read-only view returned by Snapshot. ByTier
// and ByProject are excluded from its own JSON form — the control
// plane promotes them to the `by_model_tier`/`by_project` top-level
// fields of the stats response instead of nesting them under
// `summary`, per spec.md §6's documented shape.
type Summary struct {
	Window          time.Duration      `json:"window_ns"`
	TotalCalls      int64              `json:"total_calls"`
	TotalCost       float64            `json:"total_cost"`
	TotalTokens     int64              `json:"total_tokens"`
	CacheSavingsUSD float64            `json:"cache_savings_usd"`
	ByTier          []TierBreakdown    `json:"-"`
	ByProject       []ProjectBreakdown `json:"-"`
	P50LatencyCost  float64            `json:"p50_latency_cost"`
	P99LatencyCost  float64            `json:"p99_latency_cost"`
}

type recordCmd struct {
	event *model.CallEvent
}

type snapshotCmd struct {
	window   time.Duration
	project  string // "" means all projects
	response chan Summary
}

type recentCmd struct {
	n        int
	response chan []model.CallEvent
}

type sessionsCmd struct {
	response chan []model.SessionStats
}

// Aggregator owns every WindowState and the RecentRing. All mutation
// and reads cross through the commands channel so record() completes
// before any later snapshot() observes it — plain channel FIFO, no
// RWMutex on the hot path.
type Aggregator struct {
	commands chan any
	ringCap  int
}

// New builds an Aggregator with the given recent-ring capacity
// (spec.md default 100).
func New(ringCap int) *Aggregator {
	if ringCap <= 0 {
		ringCap = 100
	}
	return &Aggregator{
		commands: make(chan any, 1024),
		ringCap:  ringCap,
	}
}

// Run processes commands until ctx is cancelled. Intended to be the
// Aggregator's one owning goroutine, started by the Supervisor.
func (a *Aggregator) Run(ctx context.Context) {
	deque := make([]model.CallEvent, 0, 4096)
	ring := newRing(a.ringCap)
	sessions := make(map[string]*model.SessionStats)

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-a.commands:
			switch cmd := c.(type) {
			case recordCmd:
				deque = append(deque, *cmd.event)
				deque = evictOlderThan(deque, maxWindow)
				ring.push(*cmd.event)
				updateSession(sessions, cmd.event)
			case snapshotCmd:
				cmd.response <- buildSummary(deque, cmd.window, cmd.project)
			case recentCmd:
				cmd.response <- ring.recent(cmd.n)
			case sessionsCmd:
				out := make([]model.SessionStats, 0, len(sessions))
				now := time.Now()
				for _, s := range sessions {
					cp := *s
					cp.Active = now.Sub(cp.LastSeen) < InactivityThreshold
					out = append(out, cp)
				}
				cmd.response <- out
			}
		}
	}
}

// Record pushes a new event into the aggregator. It is safe to call
// concurrently from many parser workers; the send blocks only if the
// command buffer is full.
func (a *Aggregator) Record(ev *model.CallEvent) {
	a.commands <- recordCmd{event: ev}
}

// Snapshot clones a summarized view for the given window, optionally
// scoped to one project ("" for all projects).
func (a *Aggregator) Snapshot(window time.Duration, project string) Summary {
	resp := make(chan Summary, 1)
	a.commands <- snapshotCmd{window: window, project: project, response: resp}
	return <-resp
}

// Recent returns up to n of the most recent events, newest-first.
func (a *Aggregator) Recent(n int) []model.CallEvent {
	resp := make(chan []model.CallEvent, 1)
	a.commands <- recentCmd{n: n, response: resp}
	return <-resp
}

// Sessions returns a snapshot of every tracked session's stats.
func (a *Aggregator) Sessions() []model.SessionStats {
	resp := make(chan []model.SessionStats, 1)
	a.commands <- sessionsCmd{response: resp}
	return <-resp
}

func updateSession(sessions map[string]*model.SessionStats, ev *model.CallEvent) {
	if ev.SessionID == "" {
		return
	}
	s, ok := sessions[ev.SessionID]
	if !ok {
		s = &model.SessionStats{
			SessionID: ev.SessionID,
			ProjectID: ev.ProjectID,
			FirstSeen: ev.Timestamp,
		}
		sessions[ev.SessionID] = s
	}
	s.LastSeen = ev.Timestamp
	s.CallCount++
	s.TotalCost += ev.Cost.Total
	s.TotalTokens += ev.Tokens.Input + ev.Tokens.Output + ev.Tokens.CacheWrite + ev.Tokens.CacheRead
}

// evictOlderThan pops the deque front while it holds entries older
// than the retention horizon — the lazy eviction spec.md describes,
// run on every record so the deque never exceeds the largest window.
func evictOlderThan(deque []model.CallEvent, horizon time.Duration) []model.CallEvent {
	cutoff := time.Now().Add(-horizon)
	i := 0
	for i < len(deque) && deque[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return deque
	}
	return append(deque[:0:0], deque[i:]...)
}

func buildSummary(deque []model.CallEvent, window time.Duration, project string) Summary {
	cutoff := time.Now().Add(-window)
	tierTotals := make(map[model.Tier]*TierBreakdown)
	projectTotals := make(map[string]*ProjectBreakdown)
	costs := make([]float64, 0, len(deque))

	var totalCalls, totalTokens int64
	var totalCost, cacheSavings float64

	for i := len(deque) - 1; i >= 0; i-- {
		ev := deque[i]
		if ev.Timestamp.Before(cutoff) {
			break
		}
		if project != "" && ev.ProjectID != project {
			continue
		}

		totalCalls++
		totalCost += ev.Cost.Total
		cacheSavings += ev.Cost.Savings
		tokens := ev.Tokens.Input + ev.Tokens.Output + ev.Tokens.CacheWrite + ev.Tokens.CacheRead
		totalTokens += tokens
		costs = append(costs, ev.Cost.Total)

		tb, ok := tierTotals[ev.Tier]
		if !ok {
			tb = &TierBreakdown{Tier: ev.Tier}
			tierTotals[ev.Tier] = tb
		}
		tb.CallCount++
		tb.TotalCost += ev.Cost.Total
		tb.TotalToken += tokens

		pb, ok := projectTotals[ev.ProjectID]
		if !ok {
			pb = &ProjectBreakdown{ProjectID: ev.ProjectID}
			projectTotals[ev.ProjectID] = pb
		}
		pb.CallCount++
		pb.TotalCost += ev.Cost.Total
		pb.TotalToken += tokens
	}

	byTier := make([]TierBreakdown, 0, len(tierTotals))
	for _, tb := range tierTotals {
		byTier = append(byTier, *tb)
	}
	sort.Slice(byTier, func(i, j int) bool { return byTier[i].Tier < byTier[j].Tier })

	byProject := make([]ProjectBreakdown, 0, len(projectTotals))
	for _, pb := range projectTotals {
		byProject = append(byProject, *pb)
	}
	sort.Slice(byProject, func(i, j int) bool { return byProject[i].ProjectID < byProject[j].ProjectID })

	p50, p99 := percentiles(costs)

	return Summary{
		Window:          window,
		TotalCalls:      totalCalls,
		TotalCost:       round6(totalCost),
		TotalTokens:     totalTokens,
		CacheSavingsUSD: round6(cacheSavings),
		ByTier:          byTier,
		ByProject:       byProject,
		P50LatencyCost:  p50,
		P99LatencyCost:  p99,
	}
}

// percentiles computes p50/p99 from the window's bounded cost sample.
// O(n log n) on a slice bounded by the window length, as spec.md
// requires ("n is bounded by the window").
func percentiles(values []float64) (p50, p99 float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted[idx(len(sorted), 0.50)], sorted[idx(len(sorted), 0.99)]
}

func idx(n int, q float64) int {
	i := int(float64(n-1) * q)
	if i < 0 {
		i = 0
	}
	if i >= n {
		i = n - 1
	}
	return i
}

func round6(v float64) float64 {
	return float64(int64(v*1e6+0.5)) / 1e6
}
