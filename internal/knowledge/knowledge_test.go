package knowledge_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfredDev/orchestratord/internal/apperr"
	"github.com/AlfredDev/orchestratord/internal/knowledge"
	"github.com/AlfredDev/orchestratord/internal/knowledge/embed"
	"github.com/AlfredDev/orchestratord/internal/model"
)

func newEngine() *knowledge.Engine {
	return knowledge.New(knowledge.NewMemRepo(), embed.New(0))
}

func TestStoreThenGetByID(t *testing.T) {
	e := newEngine()
	item, err := e.Store(knowledge.StoreRequest{
		Text: "we decided to use sqlite for local persistence", Type: model.KnowledgeDecision,
		ProjectID: "proj-a",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(item.ID, "decision-"))

	got, err := e.GetByID("proj-a", item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Text, got.Text)
}

func TestStoreRejectsUnknownType(t *testing.T) {
	e := newEngine()
	_, err := e.Store(knowledge.StoreRequest{Text: "x", Type: "bogus", ProjectID: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUnknownType)
}

func TestStoreRejectsCredentials(t *testing.T) {
	e := newEngine()
	_, err := e.Store(knowledge.StoreRequest{
		Text: "api_key=sk-aaaaaaaaaaaaaaaaaaaaaaaa", Type: model.KnowledgeGeneral, ProjectID: "p",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrCredentialDetected)
}

func TestStoreRejectsOversizedText(t *testing.T) {
	e := newEngine()
	huge := strings.Repeat("a", 11*1024*1024)
	_, err := e.Store(knowledge.StoreRequest{Text: huge, Type: model.KnowledgeGeneral, ProjectID: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrTextTooLarge)
}

func TestBatchStorePartialFailureNotFatal(t *testing.T) {
	e := newEngine()
	ok, failures := e.BatchStore([]knowledge.StoreRequest{
		{Text: "fine", Type: model.KnowledgeGeneral, ProjectID: "p"},
		{Text: "bad", Type: "nope", ProjectID: "p"},
	})
	assert.Len(t, ok, 1)
	assert.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0].Index)
}

func TestSearchReturnsSimilarItemsAboveThreshold(t *testing.T) {
	e := newEngine()
	_, err := e.Store(knowledge.StoreRequest{Text: "using postgres for storage", Type: model.KnowledgeDecision, ProjectID: "p"})
	require.NoError(t, err)
	_, err = e.Store(knowledge.StoreRequest{Text: "the retry budget is five per minute", Type: model.KnowledgeImplementation, ProjectID: "p"})
	require.NoError(t, err)

	results, err := e.Search("p", "using postgres for storage", knowledge.Filters{}, 10, 0.99)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "using postgres for storage", results[0].Item.Text)
}

func TestSearchZeroLimitReturnsEmptyNotDefault(t *testing.T) {
	e := newEngine()
	_, err := e.Store(knowledge.StoreRequest{Text: "using postgres for storage", Type: model.KnowledgeDecision, ProjectID: "p"})
	require.NoError(t, err)

	results, err := e.Search("p", "using postgres for storage", knowledge.Filters{}, 0, 0.0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchUnknownProjectIsEmptyNotError(t *testing.T) {
	e := newEngine()
	results, err := e.Search("ghost", "anything", knowledge.Filters{}, 10, 0.5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryFiltersByType(t *testing.T) {
	e := newEngine()
	_, _ = e.Store(knowledge.StoreRequest{Text: "a decision", Type: model.KnowledgeDecision, ProjectID: "p"})
	_, _ = e.Store(knowledge.StoreRequest{Text: "an issue", Type: model.KnowledgeIssue, ProjectID: "p"})

	results, err := e.Query("p", knowledge.Filters{Type: model.KnowledgeIssue})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.KnowledgeIssue, results[0].Type)
}

func TestStatsCountsByType(t *testing.T) {
	e := newEngine()
	_, _ = e.Store(knowledge.StoreRequest{Text: "a", Type: model.KnowledgeDecision, ProjectID: "p"})
	_, _ = e.Store(knowledge.StoreRequest{Text: "b", Type: model.KnowledgeDecision, ProjectID: "p"})
	_, _ = e.Store(knowledge.StoreRequest{Text: "c", Type: model.KnowledgeIssue, ProjectID: "p"})

	stats, err := e.Stats("p")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, int64(2), stats.ByType[model.KnowledgeDecision])
}

func TestCleanupDryRunDoesNotDelete(t *testing.T) {
	e := newEngine()
	repo := knowledge.NewMemRepo()
	e = knowledge.New(repo, embed.New(0))

	old, _ := e.Store(knowledge.StoreRequest{Text: "old note", Type: model.KnowledgeGeneral, ProjectID: "p"})
	_ = old

	count, err := e.Cleanup("p", -1, true) // olderThanDays negative => cutoff in the future, everything qualifies
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	stats, _ := e.Stats("p")
	assert.Equal(t, int64(1), stats.Count)
}

func TestCleanupDeletesOldItems(t *testing.T) {
	repo := knowledge.NewMemRepo()
	require.NoError(t, repo.SaveItem(model.KnowledgeItem{
		ID: "general-1-aaaaaaa", ProjectID: "p", Type: model.KnowledgeGeneral,
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}))
	e := knowledge.New(repo, embed.New(0))

	deleted, err := e.Cleanup("p", 1, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	stats, _ := e.Stats("p")
	assert.Equal(t, int64(0), stats.Count)
}

func TestPreCompactionRequestsClassifyByRegex(t *testing.T) {
	blob := "we decided to use chi for routing\n\nwrote the parser package\n\njust some notes"
	reqs := knowledge.PreCompactionRequests(blob, "p", "s1")
	require.Len(t, reqs, 3)
	assert.Equal(t, model.KnowledgeDecision, reqs[0].Type)
	assert.Equal(t, model.KnowledgeImplementation, reqs[1].Type)
	assert.Equal(t, model.KnowledgeGeneral, reqs[2].Type)
}

func TestHealthReportsItemCount(t *testing.T) {
	e := newEngine()
	_, _ = e.Store(knowledge.StoreRequest{Text: "x", Type: model.KnowledgeGeneral, ProjectID: "p"})
	h := e.Health()
	assert.True(t, h.Healthy)
	assert.Equal(t, int64(1), h.ItemCount)
}
