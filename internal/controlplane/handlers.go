package controlplane

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AlfredDev/orchestratord/internal/aggregator"
	"github.com/AlfredDev/orchestratord/internal/apperr"
	"github.com/AlfredDev/orchestratord/internal/knowledge"
	"github.com/AlfredDev/orchestratord/internal/model"
	"github.com/AlfredDev/orchestratord/internal/querycache"
)

// Deps is everything the control plane's handlers read from. Passed
// in rather than constructed here so the Supervisor (C11) owns every
// component's lifetime.
type Deps struct {
	Aggregator  *aggregator.Aggregator
	Knowledge   *knowledge.Engine
	StatsCache  *querycache.Cache
	Version     string
	StartedAt   time.Time
	Port        int
	Degraded    *atomic.Bool
	MaxSSEConns int
	SSEInterval time.Duration
	// TailerLag, when set, reports the Tailer's backpressure counter
	// (tailer.lag) on /health — the supervisor's degraded flag says
	// *that* something gave up; this says whether the log tailer is
	// falling behind right now.
	TailerLag func() int64
}

type handlers struct {
	deps        Deps
	sseCount    atomic.Int64
}

// healthResponse is /health's payload.
type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Port          int    `json:"port"`
	Degraded      bool   `json:"degraded"`
	TailerLag     int64  `json:"tailer_lag"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	degraded := h.deps.Degraded != nil && h.deps.Degraded.Load()
	var lag int64
	if h.deps.TailerLag != nil {
		lag = h.deps.TailerLag()
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       h.deps.Version,
		UptimeSeconds: int64(time.Since(h.deps.StartedAt).Seconds()),
		Port:          h.deps.Port,
		Degraded:      degraded,
		TailerLag:     lag,
	})
}

// statsResponse mirrors spec.md §6's documented /api/stats shape.
// ByModelTier is keyed by tier name (spec.md §8's
// "by_model_tier.Sonnet.call_count"), not an array.
type statsResponse struct {
	Summary     aggregator.Summary                      `json:"summary"`
	ByModelTier map[model.Tier]aggregator.TierBreakdown  `json:"by_model_tier"`
	ByProject   []aggregator.ProjectBreakdown            `json:"by_project"`
	TimeSeries  []timeSeriesBucket                       `json:"time_series"`
	RecentCalls []model.CallEvent                        `json:"recent_calls"`
	Sessions    []model.SessionStats                     `json:"sessions"`
}

type timeSeriesBucket struct {
	MinuteStart time.Time `json:"minute_start"`
	CallCount   int64     `json:"call_count"`
	TotalCost   float64   `json:"total_cost"`
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	window := parseWindow(r.URL.Query().Get("window"))
	project := r.URL.Query().Get("project_id")

	key := "stats:" + window.String() + ":" + project
	v, err := h.deps.StatsCache.Get(key, func() (any, error) {
		return h.buildStats(window, project), nil
	})
	if err != nil {
		renderErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *handlers) statsByProject(w http.ResponseWriter, r *http.Request) {
	window := parseWindow(r.URL.Query().Get("window"))

	v, err := h.deps.StatsCache.Get("stats:projects:"+window.String(), func() (any, error) {
		return h.deps.Aggregator.Snapshot(window, "").ByProject, nil
	})
	if err != nil {
		renderErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": v})
}

func (h *handlers) buildStats(window time.Duration, project string) statsResponse {
	summary := h.deps.Aggregator.Snapshot(window, project)
	recent := h.deps.Aggregator.Recent(50)
	sessions := h.deps.Aggregator.Sessions()

	return statsResponse{
		Summary:     summary,
		ByModelTier: tierMap(summary.ByTier),
		ByProject:   summary.ByProject,
		TimeSeries:  bucketByMinute(recent),
		RecentCalls: recent,
		Sessions:    sessions,
	}
}

// tierMap converts the aggregator's stable-sorted slice into the
// tier-keyed object spec.md §8 documents (`by_model_tier.Sonnet...`).
func tierMap(byTier []aggregator.TierBreakdown) map[model.Tier]aggregator.TierBreakdown {
	out := make(map[model.Tier]aggregator.TierBreakdown, len(byTier))
	for _, tb := range byTier {
		out[tb.Tier] = tb
	}
	return out
}

func bucketByMinute(events []model.CallEvent) []timeSeriesBucket {
	buckets := make(map[int64]*timeSeriesBucket)
	for _, ev := range events {
		key := ev.Timestamp.Truncate(time.Minute).Unix()
		b, ok := buckets[key]
		if !ok {
			b = &timeSeriesBucket{MinuteStart: ev.Timestamp.Truncate(time.Minute)}
			buckets[key] = b
		}
		b.CallCount++
		b.TotalCost += ev.Cost.Total
	}

	out := make([]timeSeriesBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	return out
}

func parseWindow(raw string) time.Duration {
	switch raw {
	case "1m":
		return time.Minute
	case "10m":
		return 10 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// stream is the SSE endpoint: pushes the stats payload every
// SSEInterval until the client disconnects. The supervisor's
// concurrent-subscriber ceiling (default 64, spec.md §4.9) is enforced
// with an atomic counter the way handler/stream.go's StreamMetrics
// tracks per-stream state, adapted here to a connection-count gate
// rather than a token-billing counter.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	if int(h.sseCount.Load()) >= h.deps.MaxSSEConns {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "SSE_OVER_SUBSCRIBED", "too many concurrent stream subscribers", nil)
		return
	}
	h.sseCount.Add(1)
	defer h.sseCount.Add(-1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	interval := h.deps.SSEInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			payload := h.buildStats(5*time.Minute, "")
			encoded, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(encoded); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// --- Knowledge endpoints (§4.7 / §4.9) ---

type knowledgeStoreRequest struct {
	Text      string         `json:"text"`
	Type      string         `json:"type"`
	ProjectID string         `json:"project_id"`
	SessionID string         `json:"session_id"`
	Agent     string         `json:"agent"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (req knowledgeStoreRequest) toEngineRequest() knowledge.StoreRequest {
	return knowledge.StoreRequest{
		Text:      req.Text,
		Type:      model.KnowledgeType(req.Type),
		ProjectID: req.ProjectID,
		SessionID: req.SessionID,
		Agent:     req.Agent,
		Metadata:  req.Metadata,
	}
}

func (h *handlers) knowledgeStore(w http.ResponseWriter, r *http.Request) {
	var req knowledgeStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErr(w, apperr.New(apperr.ClassInput, "INVALID_JSON", "request body is not valid JSON"))
		return
	}

	item, err := h.deps.Knowledge.Store(req.toEngineRequest())
	if err != nil {
		renderErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":    "success",
		"id":        item.ID,
		"timestamp": item.CreatedAt,
	})
}

func (h *handlers) knowledgeBatchStore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items []knowledgeStoreRequest `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, apperr.New(apperr.ClassInput, "INVALID_JSON", "request body is not valid JSON"))
		return
	}

	reqs := make([]knowledge.StoreRequest, len(body.Items))
	for i, item := range body.Items {
		reqs[i] = item.toEngineRequest()
	}

	stored, failures := h.deps.Knowledge.BatchStore(reqs)

	ids := make([]string, len(stored))
	for i, item := range stored {
		ids[i] = item.ID
	}
	failureOut := make([]map[string]any, len(failures))
	for i, f := range failures {
		failureOut[i] = map[string]any{"index": f.Index, "error": f.Err.Error()}
	}

	status := http.StatusCreated
	if len(failures) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{"ids": ids, "failures": failureOut})
}

func (h *handlers) knowledgeSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	projectID := q.Get("project_id")
	if query == "" || projectID == "" {
		renderErr(w, apperr.New(apperr.ClassInput, "MISSING_PARAM", "q and project_id are required"))
		return
	}

	limit := 10
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if limit > 100 {
		limit = 100
	}

	threshold := 0.5
	if v := q.Get("threshold"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			threshold = f
		}
	}

	filters := knowledge.Filters{
		Type:      model.KnowledgeType(q.Get("type")),
		Agent:     q.Get("agent"),
		SessionID: q.Get("session_id"),
	}
	if v := q.Get("start_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.Start = t
		}
	}
	if v := q.Get("end_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.End = t
		}
	}

	start := time.Now()
	results, err := h.deps.Knowledge.Search(projectID, query, filters, limit, threshold)
	if err != nil {
		renderErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results":       results,
		"count":         len(results),
		"query_time_ms": time.Since(start).Milliseconds(),
	})
}

func (h *handlers) knowledgeQuery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID string `json:"project_id"`
		Type      string `json:"type"`
		Agent     string `json:"agent"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		renderErr(w, apperr.New(apperr.ClassInput, "INVALID_JSON", "request body is not valid JSON"))
		return
	}

	items, err := h.deps.Knowledge.Query(body.ProjectID, knowledge.Filters{
		Type: model.KnowledgeType(body.Type), Agent: body.Agent, SessionID: body.SessionID,
	})
	if err != nil {
		renderErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *handlers) knowledgeStats(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	stats, err := h.deps.Knowledge.Stats(projectID)
	if err != nil {
		renderErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) knowledgeHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Knowledge.Health())
}

func (h *handlers) knowledgeCleanup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	projectID := q.Get("project_id")
	days := 30
	if v := q.Get("older_than_days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}
	dryRun := q.Get("dry_run") == "true"

	deleted, err := h.deps.Knowledge.Cleanup(projectID, days, dryRun)
	if err != nil {
		renderErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted, "dry_run": dryRun})
}

func (h *handlers) knowledgeGetByID(w http.ResponseWriter, r *http.Request, id string) {
	projectID := r.URL.Query().Get("project_id")
	item, err := h.deps.Knowledge.GetByID(projectID, id)
	if err != nil {
		renderErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// newCorrelationID produces an opaque id for 500s, so the client gets
// a handle to correlate with server logs without a stack trace
// leaking over the wire (spec.md §7: "opaque correlation id; stack not
// exposed").
func newCorrelationID() string {
	return uuid.NewString()
}
