// Package model holds the data types shared across the ingestion
// pipeline, the knowledge store, and the control plane.
package model

import "time"

// Tier is the cost class a model resolves to.
type Tier string

const (
	TierOpus    Tier = "Opus"
	TierSonnet  Tier = "Sonnet"
	TierHaiku   Tier = "Haiku"
	TierUnknown Tier = "Unknown"
)

// MessageKind distinguishes the few call-event shapes the parser emits.
type MessageKind string

const (
	KindAssistant MessageKind = "assistant"
	KindToolUse   MessageKind = "tool_use"
)

// TokenCounts is the four-way split the provider's usage object reports.
type TokenCounts struct {
	Input      int64 `json:"input"`
	Output     int64 `json:"output"`
	CacheWrite int64 `json:"cache_write"`
	CacheRead  int64 `json:"cache_read"`
}

// CostBreakdown mirrors TokenCounts in currency, plus the derived total
// and the counterfactual cost/savings pair described in §4.1.
type CostBreakdown struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheWrite float64 `json:"cache_write"`
	CacheRead  float64 `json:"cache_read"`
	Total      float64 `json:"total"`
	WouldBe    float64 `json:"would_be"`
	Savings    float64 `json:"savings"`
}

// CallEvent is an immutable, normalized record of one assistant turn.
// Produced by the parser, consumed by the aggregator and persistence;
// never mutated after construction.
type CallEvent struct {
	Timestamp   time.Time     `json:"timestamp"`
	SourcePath  string        `json:"source_path"`
	SessionID   string        `json:"session_id"`
	ProjectID   string        `json:"project_id"`
	MessageUUID string        `json:"message_uuid"`
	Model       string        `json:"model"`
	Tier        Tier          `json:"tier"`
	Tokens      TokenCounts   `json:"tokens"`
	Cost        CostBreakdown `json:"cost"`
	Kind        MessageKind   `json:"kind"`
	ToolCalls   int           `json:"tool_calls"`
}

// FileCursor tracks how far the tailer has consumed a watched file.
type FileCursor struct {
	Path         string
	LastSize     int64
	LastModified time.Time
	NextOffset   int64
	ContentHash  string
}

// SessionStats mirrors the aggregator's view of one conversation session.
type SessionStats struct {
	SessionID   string    `json:"session_id"`
	ProjectID   string    `json:"project_id"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	CallCount   int64     `json:"call_count"`
	TotalCost   float64   `json:"total_cost"`
	TotalTokens int64     `json:"total_tokens"`
	Active      bool      `json:"active"`
}

// KnowledgeType is the closed enumeration of knowledge-item categories.
type KnowledgeType string

const (
	KnowledgeDecision       KnowledgeType = "decision"
	KnowledgeArchitecture   KnowledgeType = "architecture"
	KnowledgeImplementation KnowledgeType = "implementation"
	KnowledgeConfiguration  KnowledgeType = "configuration"
	KnowledgeCredential     KnowledgeType = "credential"
	KnowledgeIssue          KnowledgeType = "issue"
	KnowledgeGeneral        KnowledgeType = "general"
)

// EmbeddingDim is the fixed dense-vector width every knowledge item carries.
const EmbeddingDim = 384

// KnowledgeItem is one agent-authored note with its embedding, scoped to
// a single project.
type KnowledgeItem struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Type      KnowledgeType  `json:"type"`
	ProjectID string         `json:"project_id"`
	SessionID string         `json:"session_id"`
	Agent     string         `json:"agent"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Vector    []float64      `json:"vector,omitempty"`
}

// PricingEntry is one row of the model → per-1M-token rate table.
type PricingEntry struct {
	Model           string  `json:"model"`
	Tier            Tier    `json:"tier"`
	Provider        string  `json:"provider"`
	InputPer1M      float64 `json:"input_per_1m"`
	OutputPer1M     float64 `json:"output_per_1m"`
	CacheReadPer1M  float64 `json:"cache_read_per_1m"`
	CacheWritePer1M float64 `json:"cache_write_per_1m"`
}
