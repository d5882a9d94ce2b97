// Package knowledge is the per-project vector store (C7): store,
// batch_store, search, query, get_by_id, stats, cleanup, health.
// Adapted from services/gateway/caching/caching.go's semantic cache
// engine — same namespace-segmented in-memory index and cosine
// similarity search, repurposed from an LLM-response cache into a
// durable notes store backed by internal/persistence's SQLite table
// instead of a Redis-shaped TTL cache.
package knowledge

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AlfredDev/orchestratord/internal/apperr"
	"github.com/AlfredDev/orchestratord/internal/credguard"
	"github.com/AlfredDev/orchestratord/internal/knowledge/embed"
	"github.com/AlfredDev/orchestratord/internal/model"
)

const (
	maxTextBytes     = 10 * 1024 * 1024
	maxMetadataBytes = 1024 * 1024
)

var validTypes = map[model.KnowledgeType]bool{
	model.KnowledgeDecision:       true,
	model.KnowledgeArchitecture:   true,
	model.KnowledgeImplementation: true,
	model.KnowledgeConfiguration:  true,
	model.KnowledgeCredential:     true,
	model.KnowledgeIssue:          true,
	model.KnowledgeGeneral:        true,
}

// StoreRequest is one store() call's input.
type StoreRequest struct {
	Text      string
	Type      model.KnowledgeType
	ProjectID string
	SessionID string
	Agent     string
	Metadata  map[string]any
}

// BatchFailure reports one failed item within a batch_store call.
type BatchFailure struct {
	Index int
	Err   error
}

// Filters narrows search/query to a subset of a project's items.
type Filters struct {
	Type      model.KnowledgeType
	Agent     string
	SessionID string
	Start     time.Time
	End       time.Time
}

func (f Filters) matches(item model.KnowledgeItem) bool {
	if f.Type != "" && item.Type != f.Type {
		return false
	}
	if f.Agent != "" && item.Agent != f.Agent {
		return false
	}
	if f.SessionID != "" && item.SessionID != f.SessionID {
		return false
	}
	if !f.Start.IsZero() && item.CreatedAt.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && item.CreatedAt.After(f.End) {
		return false
	}
	return true
}

// ScoredItem pairs an item with its cosine similarity to a query.
type ScoredItem struct {
	Item       model.KnowledgeItem `json:"item"`
	Similarity float64             `json:"similarity"`
}

// Stats is the stats() response for one project (or, with ProjectID
// empty, a zero-value placeholder — spec.md scopes stats per project
// since isolation is enforced at the storage layer).
type Stats struct {
	ProjectID string                        `json:"project_id"`
	Count     int64                         `json:"count"`
	ByType    map[model.KnowledgeType]int64 `json:"by_type"`
}

// Health is the health() response.
type Health struct {
	Healthy   bool   `json:"healthy"`
	ItemCount int64  `json:"item_count"`
	Detail    string `json:"detail,omitempty"`
}

// Engine is the knowledge store's in-process API, backed by a
// Repository for durability and an in-memory per-project index for
// fast similarity search — the same store/exactIndex split
// caching.Engine uses, minus the TTL/exact-hash fast path a notes
// store has no use for.
type Engine struct {
	repo   Repository
	embed  embed.Embedder
	mu     sync.RWMutex
	index  map[string][]model.KnowledgeItem // projectID -> items, loaded lazily
	loaded map[string]bool
}

// New builds an Engine. embedder is an interface so a learned
// sentence-encoder can substitute for embed.HashEmbedder in production
// without the store changing.
func New(repo Repository, embedder embed.Embedder) *Engine {
	return &Engine{
		repo:   repo,
		embed:  embedder,
		index:  make(map[string][]model.KnowledgeItem),
		loaded: make(map[string]bool),
	}
}

// Store validates, embeds, and persists one item, returning its id.
func (e *Engine) Store(req StoreRequest) (model.KnowledgeItem, error) {
	item, err := e.build(req)
	if err != nil {
		return model.KnowledgeItem{}, err
	}

	if err := e.repo.SaveItem(item); err != nil {
		return model.KnowledgeItem{}, apperr.Wrap(apperr.ClassPersistence, "KNOWLEDGE_SAVE_FAILED", "failed to persist knowledge item", err)
	}

	e.mu.Lock()
	e.index[item.ProjectID] = append(e.index[item.ProjectID], item)
	e.loaded[item.ProjectID] = true
	e.mu.Unlock()

	return item, nil
}

// BatchStore stores each request independently; a failure in one does
// not abort the rest (spec.md §4.7: "partial failure is reported, not
// fatal").
func (e *Engine) BatchStore(reqs []StoreRequest) ([]model.KnowledgeItem, []BatchFailure) {
	var ok []model.KnowledgeItem
	var failures []BatchFailure

	for i, req := range reqs {
		item, err := e.Store(req)
		if err != nil {
			failures = append(failures, BatchFailure{Index: i, Err: err})
			continue
		}
		ok = append(ok, item)
	}
	return ok, failures
}

func (e *Engine) build(req StoreRequest) (model.KnowledgeItem, error) {
	if len(req.Text) > maxTextBytes {
		return model.KnowledgeItem{}, apperr.ErrTextTooLarge
	}
	if !validTypes[req.Type] {
		return model.KnowledgeItem{}, apperr.ErrUnknownType
	}
	if credguard.ContainsCredentials(req.Text) {
		return model.KnowledgeItem{}, apperr.ErrCredentialDetected
	}
	if req.Metadata != nil {
		encoded, err := json.Marshal(req.Metadata)
		if err != nil {
			return model.KnowledgeItem{}, apperr.Wrap(apperr.ClassInput, "INVALID_METADATA", "metadata is not serializable", err)
		}
		if len(encoded) > maxMetadataBytes {
			return model.KnowledgeItem{}, apperr.ErrMetadataTooLarge
		}
	}

	id, err := newID(req.Type)
	if err != nil {
		return model.KnowledgeItem{}, apperr.Wrap(apperr.ClassInternal, "ID_GENERATION_FAILED", "failed to generate knowledge item id", err)
	}

	return model.KnowledgeItem{
		ID:        id,
		Text:      req.Text,
		Type:      req.Type,
		ProjectID: req.ProjectID,
		SessionID: req.SessionID,
		Agent:     req.Agent,
		CreatedAt: time.Now().UTC(),
		Metadata:  req.Metadata,
		Vector:    e.embed.Embed(req.Text),
	}, nil
}

// newID builds "{type}-{unix-seconds}-{7-char random}" per spec.md §4.7.
func newID(kind model.KnowledgeType) (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, 7)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return fmt.Sprintf("%s-%d-%s", kind, time.Now().Unix(), buf), nil
}

// Search embeds the query, scores every item in the project's index
// against it by cosine similarity, applies filters, and returns the
// top `limit` above `threshold`. Unknown project → empty result, not
// an error.
func (e *Engine) Search(projectID, query string, filters Filters, limit int, threshold float64) ([]ScoredItem, error) {
	// limit == 0 is an explicit "give me nothing back," not "unset" —
	// spec.md §8's boundary case. Only a negative, genuinely-unset
	// limit falls back to the default of 10.
	if limit == 0 {
		return nil, nil
	}
	if limit < 0 {
		limit = 10
	}

	items, err := e.projectItems(projectID)
	if err != nil {
		return nil, err
	}

	qv := e.embed.Embed(query)

	scored := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		if !filters.matches(item) {
			continue
		}
		sim := cosineSimilarity(qv, item.Vector)
		if sim < threshold {
			continue
		}
		scored = append(scored, ScoredItem{Item: item, Similarity: sim})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		if !scored[i].Item.CreatedAt.Equal(scored[j].Item.CreatedAt) {
			return scored[i].Item.CreatedAt.After(scored[j].Item.CreatedAt)
		}
		return scored[i].Item.ID < scored[j].Item.ID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Query is metadata-only retrieval, ordered by created_at DESC.
func (e *Engine) Query(projectID string, filters Filters) ([]model.KnowledgeItem, error) {
	items, err := e.projectItems(projectID)
	if err != nil {
		return nil, err
	}

	out := make([]model.KnowledgeItem, 0, len(items))
	for _, item := range items {
		if filters.matches(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (e *Engine) GetByID(projectID, id string) (*model.KnowledgeItem, error) {
	item, err := e.repo.GetByID(projectID, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.ClassPersistence, "KNOWLEDGE_LOOKUP_FAILED", "failed to look up knowledge item", err)
	}
	if item == nil {
		return nil, apperr.ErrNotFound
	}
	return item, nil
}

func (e *Engine) Stats(projectID string) (Stats, error) {
	items, err := e.projectItems(projectID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{ProjectID: projectID, ByType: make(map[model.KnowledgeType]int64)}
	for _, item := range items {
		stats.Count++
		stats.ByType[item.Type]++
	}
	return stats, nil
}

// Cleanup removes items older than olderThanDays for a project. With
// dryRun it reports the count that would be deleted without deleting.
func (e *Engine) Cleanup(projectID string, olderThanDays int, dryRun bool) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	if dryRun {
		items, err := e.projectItems(projectID)
		if err != nil {
			return 0, err
		}
		var count int64
		for _, item := range items {
			if item.CreatedAt.Before(cutoff) {
				count++
			}
		}
		return count, nil
	}

	deleted, err := e.repo.DeleteKnowledgeOlderThan(projectID, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.ClassPersistence, "KNOWLEDGE_CLEANUP_FAILED", "failed to clean up knowledge items", err)
	}

	e.mu.Lock()
	delete(e.loaded, projectID)
	delete(e.index, projectID)
	e.mu.Unlock()

	return deleted, nil
}

func (e *Engine) Health() Health {
	e.mu.RLock()
	var total int64
	for _, items := range e.index {
		total += int64(len(items))
	}
	e.mu.RUnlock()
	return Health{Healthy: true, ItemCount: total}
}

// projectItems returns the in-memory index for a project, lazily
// loading it from the repository on first access.
func (e *Engine) projectItems(projectID string) ([]model.KnowledgeItem, error) {
	e.mu.RLock()
	if e.loaded[projectID] {
		items := e.index[projectID]
		e.mu.RUnlock()
		return items, nil
	}
	e.mu.RUnlock()

	items, err := e.repo.ListByProject(projectID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ClassPersistence, "KNOWLEDGE_LIST_FAILED", "failed to load project knowledge items", err)
	}

	e.mu.Lock()
	e.index[projectID] = items
	e.loaded[projectID] = true
	e.mu.Unlock()

	return items, nil
}

// cosineSimilarity is ported verbatim-in-spirit from caching.go: zero
// magnitude on either side returns 0 per spec.md §4.7.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// classifyRegexes are the first-match-wins compaction classifier
// rules, adapted from handler/intelligence.go's closed-category
// classifier shape to spec.md §4.7's four pre-compaction classes.
var classifyRegexes = []struct {
	kind model.KnowledgeType
	re   *regexp.Regexp
}{
	{model.KnowledgeArchitecture, regexp.MustCompile(`(?i)\b(architecture|component|module|design)\b`)},
	{model.KnowledgeDecision, regexp.MustCompile(`(?i)\b(decided|we will|chose|going with|instead of)\b`)},
	{model.KnowledgeImplementation, regexp.MustCompile(`(?i)\b(implement|wrote|added|refactor|function|package)\b`)},
}

// classify returns the first matching category, defaulting to general.
func classify(text string) model.KnowledgeType {
	for _, rule := range classifyRegexes {
		if rule.re.MatchString(text) {
			return rule.kind
		}
	}
	return model.KnowledgeGeneral
}

// SplitMessages splits a conversation blob on blank lines, the
// pre-compaction segmentation spec.md §4.7 describes.
func SplitMessages(blob string) []string {
	raw := strings.Split(blob, "\n\n")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// PreCompactionRequests classifies and splits a conversation blob into
// store requests, ready for BatchStore.
func PreCompactionRequests(blob, projectID, sessionID string) []StoreRequest {
	messages := SplitMessages(blob)
	reqs := make([]StoreRequest, 0, len(messages))
	for _, msg := range messages {
		reqs = append(reqs, StoreRequest{
			Text:      msg,
			Type:      classify(msg),
			ProjectID: projectID,
			SessionID: sessionID,
		})
	}
	return reqs
}

// PostCompactionSummary runs search for the current task plus the 5
// most recent items, and assembles a short synthetic summary from the
// top hits, per spec.md §4.7's post-compaction workflow.
func (e *Engine) PostCompactionSummary(projectID, currentTask string) (hits []ScoredItem, recent []model.KnowledgeItem, summary string, err error) {
	hits, err = e.Search(projectID, currentTask, Filters{}, 10, 0.5)
	if err != nil {
		return nil, nil, "", err
	}

	all, err := e.Query(projectID, Filters{})
	if err != nil {
		return nil, nil, "", err
	}
	if len(all) > 5 {
		all = all[:5]
	}
	recent = all

	var b strings.Builder
	top := hits
	if len(top) > 3 {
		top = top[:3]
	}
	for _, h := range top {
		fmt.Fprintf(&b, "- %s\n", truncate(h.Item.Text, 160))
	}
	return hits, recent, b.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
