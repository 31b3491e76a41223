package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pulseweave/companion/pkg/model"
)

type externalContextRow struct {
	ID          string  `db:"id"`
	ContextType string  `db:"context_type"`
	Location    string  `db:"location"`
	Data        *string `db:"data"`
	Timestamp   string  `db:"timestamp"`
}

func (r *externalContextRow) toModel() model.ExternalContext {
	return model.ExternalContext{
		ID:          r.ID,
		ContextType: r.ContextType,
		Location:    r.Location,
		Data:        unmarshalStringMap(r.Data),
		Timestamp:   parseTime(r.Timestamp),
	}
}

// AddExternalContext appends one environmental snapshot to the log.
func (s *Store) AddExternalContext(ctx context.Context, snapshot *model.ExternalContext) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now().UTC()
	}

	data, err := marshalJSON(snapshot.Data)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO external_context (id, context_type, location, data, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, snapshot.ID, snapshot.ContextType, snapshot.Location, data, formatTime(snapshot.Timestamp))
	return errors.Wrap(err, "failed to insert external context")
}

// LatestExternalContext returns the most recent snapshot for (type, location),
// or (nil, nil) when none exists.
func (s *Store) LatestExternalContext(ctx context.Context, contextType, location string) (*model.ExternalContext, error) {
	var row externalContextRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM external_context
		WHERE context_type = ? AND location = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, contextType, location)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch external context")
	}
	snapshot := row.toModel()
	return &snapshot, nil
}
