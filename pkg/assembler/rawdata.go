package assembler

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pulseweave/companion/pkg/db"
	"github.com/pulseweave/companion/pkg/model"
)

const (
	// metricWindowDays is the lookback for recent metric windows.
	metricWindowDays = 7

	// metricWindowLimit caps how many readings one window carries.
	metricWindowLimit = 200
)

// metricKeys maps stored metric types to the names prompt sections use.
var metricKeys = map[string]string{
	"steps":          "steps",
	"sleep_duration": "sleep_hours",
	"heart_rate":     "heart_rate",
}

// RawDataLoader assembles the profile-plus-metrics layer of the context.
type RawDataLoader struct {
	store  *db.Store
	logger *log.Logger
}

func NewRawDataLoader(store *db.Store, logger *log.Logger) *RawDataLoader {
	return &RawDataLoader{store: store, logger: logger}
}

// Load returns the user's profile and seven-day metric windows, oldest
// reading first. An unknown user yields an empty RawData, not an error.
func (l *RawDataLoader) Load(ctx context.Context, userID string) (model.RawData, error) {
	raw := model.RawData{RecentMetrics: map[string][]float64{}}

	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return raw, err
	}
	if user == nil {
		l.logger.Warn("Assembling context for unknown user", "user_id", userID)
		return raw, nil
	}

	raw.UserProfile = &model.UserProfile{
		Age:         user.Age,
		Gender:      user.Gender,
		Location:    user.Location,
		Goals:       user.Goals,
		Preferences: user.Preferences,
	}

	since := time.Now().UTC().AddDate(0, 0, -metricWindowDays)
	for metricType, key := range metricKeys {
		metrics, err := l.store.MetricsSince(ctx, userID, metricType, since, metricWindowLimit)
		if err != nil {
			return raw, err
		}
		if len(metrics) == 0 {
			continue
		}
		// MetricsSince returns newest first; windows read chronologically.
		values := make([]float64, len(metrics))
		for i, m := range metrics {
			values[len(metrics)-1-i] = m.Value
		}
		raw.RecentMetrics[key] = values
	}

	return raw, nil
}
