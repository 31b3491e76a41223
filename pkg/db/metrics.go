package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pulseweave/companion/pkg/model"
)

type metricRow struct {
	ID         string  `db:"id"`
	UserID     string  `db:"user_id"`
	MetricType string  `db:"metric_type"`
	Value      float64 `db:"value"`
	Timestamp  string  `db:"timestamp"`
	Extra      *string `db:"extra"`
}

func (r *metricRow) toModel() model.HealthMetric {
	return model.HealthMetric{
		ID:         r.ID,
		UserID:     r.UserID,
		MetricType: r.MetricType,
		Value:      r.Value,
		Timestamp:  parseTime(r.Timestamp),
		Extra:      unmarshalStringMap(r.Extra),
	}
}

// AddMetric appends one immutable reading.
func (s *Store) AddMetric(ctx context.Context, metric *model.HealthMetric) error {
	if metric.ID == "" {
		metric.ID = uuid.New().String()
	}
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now().UTC()
	}

	extra, err := marshalJSON(metric.Extra)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO health_metrics (id, user_id, metric_type, value, timestamp, extra)
		VALUES (?, ?, ?, ?, ?, ?)
	`, metric.ID, metric.UserID, metric.MetricType, metric.Value, formatTime(metric.Timestamp), extra)
	return errors.Wrap(err, "failed to insert health metric")
}

// MetricsSince returns the newest readings of one type since the cutoff,
// newest first, capped at limit.
func (s *Store) MetricsSince(ctx context.Context, userID, metricType string, since time.Time, limit int) ([]model.HealthMetric, error) {
	var rows []metricRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM health_metrics
		WHERE user_id = ? AND metric_type = ? AND timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, userID, metricType, formatTime(since), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch health metrics")
	}

	metrics := make([]model.HealthMetric, 0, len(rows))
	for i := range rows {
		metrics = append(metrics, rows[i].toModel())
	}
	return metrics, nil
}
