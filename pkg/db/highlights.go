package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pulseweave/companion/pkg/model"
)

type highlightRow struct {
	ID                string  `db:"id"`
	UserID            string  `db:"user_id"`
	ConversationID    string  `db:"conversation_id"`
	StructuredData    *string `db:"structured_data"`
	UnstructuredNotes string  `db:"unstructured_notes"`
	ExtractedAt       string  `db:"extracted_at"`
}

func (r *highlightRow) toModel() model.Highlight {
	return model.Highlight{
		ID:                r.ID,
		UserID:            r.UserID,
		ConversationID:    r.ConversationID,
		StructuredData:    unmarshalAnyMap(r.StructuredData),
		UnstructuredNotes: r.UnstructuredNotes,
		ExtractedAt:       parseTime(r.ExtractedAt),
	}
}

// HighlightByConversation returns the highlight for a conversation, or
// (nil, nil) when none has been extracted yet. At most one can exist.
func (s *Store) HighlightByConversation(ctx context.Context, conversationID string) (*model.Highlight, error) {
	var row highlightRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM highlights WHERE conversation_id = ?
	`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch highlight")
	}
	h := row.toModel()
	return &h, nil
}

// InsertHighlight stores a new extraction result. The UNIQUE constraint on
// conversation_id rejects a second record for the same conversation.
func (s *Store) InsertHighlight(ctx context.Context, highlight *model.Highlight) error {
	if highlight.ID == "" {
		highlight.ID = uuid.New().String()
	}
	if highlight.ExtractedAt.IsZero() {
		highlight.ExtractedAt = time.Now().UTC()
	}

	structured, err := marshalJSON(highlight.StructuredData)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO highlights (id, user_id, conversation_id, structured_data, unstructured_notes, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, highlight.ID, highlight.UserID, highlight.ConversationID, structured,
		highlight.UnstructuredNotes, formatTime(highlight.ExtractedAt))
	return errors.Wrap(err, "failed to insert highlight")
}

// UpdateHighlight replaces the payload of an existing highlight and bumps its
// extraction time.
func (s *Store) UpdateHighlight(ctx context.Context, highlight *model.Highlight) error {
	structured, err := marshalJSON(highlight.StructuredData)
	if err != nil {
		return err
	}

	extractedAt := highlight.ExtractedAt
	if extractedAt.IsZero() {
		extractedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE highlights
		SET structured_data = ?, unstructured_notes = ?, extracted_at = ?
		WHERE conversation_id = ?
	`, structured, highlight.UnstructuredNotes, formatTime(extractedAt), highlight.ConversationID)
	if err != nil {
		return errors.Wrap(err, "failed to update highlight")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.Errorf("no highlight for conversation %s", highlight.ConversationID)
	}
	return nil
}

// HighlightsByUser returns all highlights for a user, newest extraction first.
func (s *Store) HighlightsByUser(ctx context.Context, userID string) ([]model.Highlight, error) {
	var rows []highlightRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM highlights WHERE user_id = ? ORDER BY extracted_at DESC
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch highlights")
	}

	highlights := make([]model.Highlight, 0, len(rows))
	for i := range rows {
		highlights = append(highlights, rows[i].toModel())
	}
	return highlights, nil
}
