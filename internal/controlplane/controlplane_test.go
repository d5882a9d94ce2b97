package controlplane_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfredDev/orchestratord/internal/aggregator"
	"github.com/AlfredDev/orchestratord/internal/config"
	"github.com/AlfredDev/orchestratord/internal/controlplane"
	"github.com/AlfredDev/orchestratord/internal/knowledge"
	"github.com/AlfredDev/orchestratord/internal/knowledge/embed"
	"github.com/AlfredDev/orchestratord/internal/model"
	"github.com/AlfredDev/orchestratord/internal/querycache"
)

func newTestRouter(t *testing.T) (http.Handler, *aggregator.Aggregator) {
	t.Helper()
	agg := aggregator.New(100)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go agg.Run(ctx)

	kn := knowledge.New(knowledge.NewMemRepo(), embed.New(0))

	cfg := &config.Config{
		APIToken:         "test-token",
		RateLimitEnabled: false,
		RateLimitRPM:     1000,
		RateLimitBurst:   1000,
		MaxBodyBytes:     1024 * 1024,
		RequestTimeout:   time.Second,
	}

	deps := controlplane.Deps{
		Aggregator:  agg,
		Knowledge:   kn,
		StatsCache:  querycache.New(time.Second),
		Version:     "test",
		StartedAt:   time.Now(),
		Port:        8765,
		Degraded:    &atomic.Bool{},
		MaxSSEConns: 64,
		SSEInterval: 5 * time.Second,
	}

	return controlplane.NewRouter(cfg, zerolog.Nop(), deps), agg
}

func TestHealthIsUnauthenticated(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReportsTailerLag(t *testing.T) {
	agg := aggregator.New(100)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go agg.Run(ctx)

	cfg := &config.Config{
		APIToken:         "test-token",
		RateLimitEnabled: false,
		MaxBodyBytes:     1024 * 1024,
		RequestTimeout:   time.Second,
	}
	deps := controlplane.Deps{
		Aggregator:  agg,
		Knowledge:   knowledge.New(knowledge.NewMemRepo(), embed.New(0)),
		StatsCache:  querycache.New(time.Second),
		Degraded:    &atomic.Bool{},
		MaxSSEConns: 64,
		SSEInterval: 5 * time.Second,
		TailerLag:   func() int64 { return 42 },
	}
	router := controlplane.NewRouter(cfg, zerolog.Nop(), deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body struct {
		TailerLag int64 `json:"tailer_lag"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(42), body.TailerLag)
}

func TestStatsRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatsReturnsSummary(t *testing.T) {
	router, agg := newTestRouter(t)
	agg.Record(&model.CallEvent{
		Timestamp: time.Now(), MessageUUID: "m1", ProjectID: "p1", Tier: model.TierSonnet,
		Cost: model.CostBreakdown{Total: 0.05},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "summary")
	assert.Contains(t, body, "by_model_tier")
	assert.Contains(t, body, "by_project")

	summary, ok := body["summary"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, summary, "total_calls")
	assert.Contains(t, summary, "cache_savings_usd")
	assert.NotContains(t, summary, "ByTier", "Summary's Go field names must not leak onto the wire")

	byTier, ok := body["by_model_tier"].(map[string]any)
	require.True(t, ok, "by_model_tier must serialize as an object keyed by tier, not an array")
	sonnet, ok := byTier["Sonnet"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, sonnet, "call_count")
}

func TestKnowledgeStoreThenGetByID(t *testing.T) {
	router, _ := newTestRouter(t)

	storeBody := `{"text":"we decided to use chi","type":"decision","project_id":"p1","session_id":"s1","agent":"a1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/store", strings.NewReader(storeBody))
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id := resp["id"].(string)

	getReq := httptest.NewRequest(http.MethodGet, "/api/knowledge/"+id+"?project_id=p1", nil)
	getReq.Header.Set("Authorization", "Bearer test-token")
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestKnowledgeStoreRejectsUnauthorized(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/knowledge/store", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestKnowledgeGetByIDMissingReturns404(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/knowledge/ghost-id?project_id=p1", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
