package knowledge

import (
	"time"

	"github.com/AlfredDev/orchestratord/internal/model"
)

// Repository is the durable side of the knowledge store, satisfied by
// sqlitestore.Store (the knowledge_items table added alongside calls/
// sessions/rollups) and by an in-memory fake in tests. Kept distinct
// from persistence.Store so the vector-search engine can be tested and
// reasoned about without pulling in the call-ingestion schema.
type Repository interface {
	SaveItem(item model.KnowledgeItem) error
	SaveItems(items []model.KnowledgeItem) error
	GetByID(projectID, id string) (*model.KnowledgeItem, error)
	ListByProject(projectID string) ([]model.KnowledgeItem, error)
	DeleteKnowledgeOlderThan(projectID string, before time.Time) (int64, error)
	CountByProject(projectID string) (int64, error)
}
