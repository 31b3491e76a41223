package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pulseweave/companion/pkg/model"
)

type knowledgeRow struct {
	ID          string `db:"id"`
	Topic       string `db:"topic"`
	Content     string `db:"content"`
	Source      string `db:"source"`
	LastUpdated string `db:"last_updated"`
}

// AddKnowledgeEntry stores one static reference entry.
func (s *Store) AddKnowledgeEntry(ctx context.Context, entry *model.KnowledgeEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.LastUpdated.IsZero() {
		entry.LastUpdated = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_base (id, topic, content, source, last_updated)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.Topic, entry.Content, entry.Source, formatTime(entry.LastUpdated))
	return errors.Wrap(err, "failed to insert knowledge entry")
}

// KnowledgeEntries returns a capped sample of reference entries.
func (s *Store) KnowledgeEntries(ctx context.Context, limit int) ([]model.KnowledgeEntry, error) {
	var rows []knowledgeRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM knowledge_base LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch knowledge entries")
	}

	entries := make([]model.KnowledgeEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, model.KnowledgeEntry{
			ID:          r.ID,
			Topic:       r.Topic,
			Content:     r.Content,
			Source:      r.Source,
			LastUpdated: parseTime(r.LastUpdated),
		})
	}
	return entries, nil
}
