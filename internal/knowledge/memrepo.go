package knowledge

import (
	"sync"
	"time"

	"github.com/AlfredDev/orchestratord/internal/model"
)

// MemRepo is an in-memory Repository for unit tests, standing in for
// sqlitestore.Store the way persistence/memstore stands in for the
// call-ingestion tables.
type MemRepo struct {
	mu    sync.Mutex
	items map[string]map[string]model.KnowledgeItem // projectID -> id -> item
}

func NewMemRepo() *MemRepo {
	return &MemRepo{items: make(map[string]map[string]model.KnowledgeItem)}
}

func (r *MemRepo) SaveItem(item model.KnowledgeItem) error {
	return r.SaveItems([]model.KnowledgeItem{item})
}

func (r *MemRepo) SaveItems(items []model.KnowledgeItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		if _, ok := r.items[item.ProjectID]; !ok {
			r.items[item.ProjectID] = make(map[string]model.KnowledgeItem)
		}
		r.items[item.ProjectID][item.ID] = item
	}
	return nil
}

func (r *MemRepo) GetByID(projectID, id string) (*model.KnowledgeItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	proj, ok := r.items[projectID]
	if !ok {
		return nil, nil
	}
	item, ok := proj[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (r *MemRepo) ListByProject(projectID string) ([]model.KnowledgeItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.KnowledgeItem, 0, len(r.items[projectID]))
	for _, item := range r.items[projectID] {
		out = append(out, item)
	}
	return out, nil
}

func (r *MemRepo) DeleteKnowledgeOlderThan(projectID string, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	proj := r.items[projectID]
	for id, item := range proj {
		if item.CreatedAt.Before(before) {
			delete(proj, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *MemRepo) CountByProject(projectID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.items[projectID])), nil
}
