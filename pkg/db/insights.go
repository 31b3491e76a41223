package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pulseweave/companion/pkg/model"
)

type insightRow struct {
	ID          string  `db:"id"`
	UserID      string  `db:"user_id"`
	Category    string  `db:"category"`
	Finding     string  `db:"finding"`
	Timeframe   string  `db:"timeframe"`
	Confidence  float64 `db:"confidence"`
	Detail      *string `db:"detail"`
	GeneratedAt string  `db:"generated_at"`
	ExpiresAt   string  `db:"expires_at"`
}

func (r *insightRow) toModel() model.Insight {
	return model.Insight{
		ID:          r.ID,
		UserID:      r.UserID,
		Category:    r.Category,
		Finding:     r.Finding,
		Timeframe:   r.Timeframe,
		Confidence:  r.Confidence,
		Detail:      unmarshalStringMap(r.Detail),
		GeneratedAt: parseTime(r.GeneratedAt),
		ExpiresAt:   parseTime(r.ExpiresAt),
	}
}

// AddInsight stores one derived insight. The batch generator is the only
// producer; the core reads them back for context assembly.
func (s *Store) AddInsight(ctx context.Context, insight *model.Insight) error {
	if insight.ID == "" {
		insight.ID = uuid.New().String()
	}
	if insight.GeneratedAt.IsZero() {
		insight.GeneratedAt = time.Now().UTC()
	}

	detail, err := marshalJSON(insight.Detail)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO insights (id, user_id, category, finding, timeframe, confidence, detail, generated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, insight.ID, insight.UserID, insight.Category, insight.Finding, insight.Timeframe,
		insight.Confidence, detail, formatTime(insight.GeneratedAt), formatTime(insight.ExpiresAt))
	return errors.Wrap(err, "failed to insert insight")
}

// ActiveInsights returns non-expired insights ordered by descending
// confidence, capped at limit.
func (s *Store) ActiveInsights(ctx context.Context, userID string, limit int) ([]model.Insight, error) {
	var rows []insightRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM insights
		WHERE user_id = ? AND expires_at > ?
		ORDER BY confidence DESC
		LIMIT ?
	`, userID, formatTime(time.Now().UTC()), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch insights")
	}

	insights := make([]model.Insight, 0, len(rows))
	for i := range rows {
		insights = append(insights, rows[i].toModel())
	}
	return insights, nil
}
