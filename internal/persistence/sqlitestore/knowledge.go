package sqlitestore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AlfredDev/orchestratord/internal/model"
)

// SaveItem upserts a single knowledge item, replacing any prior row
// with the same (project_id, id).
func (s *Store) SaveItem(item model.KnowledgeItem) error {
	return s.SaveItems([]model.KnowledgeItem{item})
}

// SaveItems upserts a batch in one transaction — the batch_store
// operation spec.md §4.7 names alongside store.
func (s *Store) SaveItems(items []model.KnowledgeItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.writer.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO knowledge_items (id, project_id, text, type, session_id, agent, created_at, metadata, vector)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(project_id, id) DO UPDATE SET
			text = excluded.text, type = excluded.type, session_id = excluded.session_id,
			agent = excluded.agent, created_at = excluded.created_at,
			metadata = excluded.metadata, vector = excluded.vector`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		metaJSON, err := json.Marshal(item.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", item.ID, err)
		}
		vecBlob := encodeVector(item.Vector)

		if _, err := stmt.Exec(
			item.ID, item.ProjectID, item.Text, string(item.Type), item.SessionID,
			item.Agent, item.CreatedAt.Unix(), string(metaJSON), vecBlob,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetByID(projectID, id string) (*model.KnowledgeItem, error) {
	row := s.reader.QueryRow(`
		SELECT id, project_id, text, type, session_id, agent, created_at, metadata, vector
		FROM knowledge_items WHERE project_id = ? AND id = ?`, projectID, id)
	item, err := scanKnowledgeItem(row)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Store) ListByProject(projectID string) ([]model.KnowledgeItem, error) {
	rows, err := s.reader.Query(`
		SELECT id, project_id, text, type, session_id, agent, created_at, metadata, vector
		FROM knowledge_items WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.KnowledgeItem
	for rows.Next() {
		item, err := scanKnowledgeItemRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// DeleteKnowledgeOlderThan backs the knowledge store's cleanup
// operation; named distinctly from the call-retention DeleteOlderThan
// above since the two operate on unrelated tables with different
// horizons (spec.md §4.5 retention vs §4.7 knowledge cleanup).
func (s *Store) DeleteKnowledgeOlderThan(projectID string, before time.Time) (int64, error) {
	res, err := s.writer.Exec(`DELETE FROM knowledge_items WHERE project_id = ? AND created_at < ?`,
		projectID, before.Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) CountByProject(projectID string) (int64, error) {
	var n int64
	err := s.reader.QueryRow(`SELECT COUNT(*) FROM knowledge_items WHERE project_id = ?`, projectID).Scan(&n)
	return n, err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanKnowledgeItem(row scannable) (*model.KnowledgeItem, error) {
	return scanKnowledgeItemRows(row)
}

func scanKnowledgeItemRows(row scannable) (*model.KnowledgeItem, error) {
	var item model.KnowledgeItem
	var kind, metaJSON string
	var createdAt int64
	var vecBlob []byte

	if err := row.Scan(&item.ID, &item.ProjectID, &item.Text, &kind, &item.SessionID,
		&item.Agent, &createdAt, &metaJSON, &vecBlob); err != nil {
		return nil, err
	}

	item.Type = model.KnowledgeType(kind)
	item.CreatedAt = time.Unix(createdAt, 0).UTC()
	item.Vector = decodeVector(vecBlob)

	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &item.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", item.ID, err)
		}
	}

	return &item, nil
}

func encodeVector(v []float64) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(len(v) * 8)
	for _, f := range v {
		_ = binary.Write(buf, binary.LittleEndian, f)
	}
	return buf.Bytes()
}

func decodeVector(b []byte) []float64 {
	n := len(b) / 8
	out := make([]float64, n)
	r := bytes.NewReader(b)
	for i := 0; i < n; i++ {
		_ = binary.Read(r, binary.LittleEndian, &out[i])
	}
	return out
}
