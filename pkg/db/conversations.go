package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/pulseweave/companion/pkg/model"
)

type conversationRow struct {
	ID        string  `db:"id"`
	UserID    string  `db:"user_id"`
	Status    string  `db:"status"`
	CreatedAt string  `db:"created_at"`
	EndedAt   *string `db:"ended_at"`
}

func (r *conversationRow) toModel() *model.Conversation {
	conv := &model.Conversation{
		ID:        r.ID,
		UserID:    r.UserID,
		Status:    model.ConversationStatus(r.Status),
		CreatedAt: parseTime(r.CreatedAt),
	}
	if r.EndedAt != nil && *r.EndedAt != "" {
		ended := parseTime(*r.EndedAt)
		conv.EndedAt = &ended
	}
	return conv
}

type messageRow struct {
	ID             string `db:"id"`
	ConversationID string `db:"conversation_id"`
	Seq            int    `db:"seq"`
	Role           string `db:"role"`
	Content        string `db:"content"`
	CreatedAt      string `db:"created_at"`
}

// CreateConversation starts a new active conversation for a user.
func (s *Store) CreateConversation(ctx context.Context, userID string) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    model.ConversationActive,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, status, created_at)
		VALUES (?, ?, ?, ?)
	`, conv.ID, conv.UserID, conv.Status, formatTime(conv.CreatedAt))
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert conversation")
	}
	return conv, nil
}

// GetConversation fetches a conversation with its ordered turns.
// Returns (nil, nil) when it does not exist.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM conversations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch conversation")
	}

	conv := row.toModel()
	turns, err := s.conversationTurns(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Turns = turns
	return conv, nil
}

func (s *Store) conversationTurns(ctx context.Context, conversationID string) ([]model.Turn, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM conversation_messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch conversation turns")
	}

	turns := make([]model.Turn, 0, len(rows))
	for _, r := range rows {
		turns = append(turns, model.Turn{
			Role:      model.Role(r.Role),
			Content:   r.Content,
			CreatedAt: parseTime(r.CreatedAt),
		})
	}
	return turns, nil
}

// GetActiveConversation returns the user's active conversation without turns,
// or (nil, nil) when there is none.
func (s *Store) GetActiveConversation(ctx context.Context, userID string) (*model.Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM conversations WHERE user_id = ? AND status = ?
	`, userID, model.ConversationActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch active conversation")
	}
	return row.toModel(), nil
}

// GetOrCreateActiveConversation attaches to the user's active conversation or
// creates one. Creation races are resolved by the partial unique index on
// (user_id) WHERE status='active': the losing insert re-reads the winner.
func (s *Store) GetOrCreateActiveConversation(ctx context.Context, userID string) (*model.Conversation, error) {
	if conv, err := s.GetActiveConversation(ctx, userID); err != nil || conv != nil {
		return conv, err
	}

	conv, err := s.CreateConversation(ctx, userID)
	if err == nil {
		return conv, nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return s.GetActiveConversation(ctx, userID)
	}
	return nil, err
}

// AppendTurns atomically appends turns to a conversation in order.
func (s *Store) AppendTurns(ctx context.Context, conversationID string, turns []model.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	err = tx.GetContext(ctx, &next, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_messages WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return errors.Wrap(err, "failed to determine next turn sequence")
	}

	for i, turn := range turns {
		createdAt := turn.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_messages (id, conversation_id, seq, role, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, uuid.New().String(), conversationID, next+i, turn.Role, turn.Content, formatTime(createdAt))
		if err != nil {
			return errors.Wrap(err, "failed to insert conversation turn")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit turns")
}

// TurnCount returns the number of turns recorded for a conversation.
func (s *Store) TurnCount(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM conversation_messages WHERE conversation_id = ?
	`, conversationID)
	return count, errors.Wrap(err, "failed to count conversation turns")
}

// CompleteConversation marks a conversation completed and stamps its end time.
// Completion is terminal; completed conversations are never reopened.
func (s *Store) CompleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = ?, ended_at = ? WHERE id = ? AND status = ?
	`, model.ConversationCompleted, formatTime(time.Now().UTC()), id, model.ConversationActive)
	if err != nil {
		return errors.Wrap(err, "failed to complete conversation")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.Errorf("conversation %s not found or already completed", id)
	}
	return nil
}

// CompletedWithoutHighlights lists completed conversations that have no
// highlight record yet, oldest first.
func (s *Store) CompletedWithoutHighlights(ctx context.Context) ([]model.Conversation, error) {
	var rows []conversationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT c.* FROM conversations c
		LEFT JOIN highlights h ON h.conversation_id = c.id
		WHERE c.status = ? AND h.id IS NULL
		ORDER BY c.created_at ASC
	`, model.ConversationCompleted)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations without highlights")
	}

	conversations := make([]model.Conversation, 0, len(rows))
	for i := range rows {
		conversations = append(conversations, *rows[i].toModel())
	}
	return conversations, nil
}
