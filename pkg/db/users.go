package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pulseweave/companion/pkg/model"
)

type userRow struct {
	ID          string  `db:"id"`
	Age         int     `db:"age"`
	Gender      string  `db:"gender"`
	Location    string  `db:"location"`
	Goals       *string `db:"goals"`
	Preferences *string `db:"preferences"`
	CreatedAt   string  `db:"created_at"`
}

func (r *userRow) toModel() *model.User {
	return &model.User{
		ID:          r.ID,
		Age:         r.Age,
		Gender:      r.Gender,
		Location:    r.Location,
		Goals:       unmarshalStringSlice(r.Goals),
		Preferences: unmarshalStringMap(r.Preferences),
		CreatedAt:   parseTime(r.CreatedAt),
	}
}

// CreateUser inserts a user, assigning an id and creation time when unset.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	goals, err := marshalJSON(user.Goals)
	if err != nil {
		return err
	}
	prefs, err := marshalJSON(user.Preferences)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, age, gender, location, goals, preferences, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, user.ID, user.Age, user.Gender, user.Location, goals, prefs, formatTime(user.CreatedAt))
	return errors.Wrap(err, "failed to insert user")
}

// GetUser fetches a user by id. Returns (nil, nil) when the user does not exist.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch user")
	}
	return row.toModel(), nil
}

// UpdateUserPreferences replaces the user's preference map.
func (s *Store) UpdateUserPreferences(ctx context.Context, id string, preferences map[string]string) error {
	prefs, err := marshalJSON(preferences)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `UPDATE users SET preferences = ? WHERE id = ?`, prefs, id)
	if err != nil {
		return errors.Wrap(err, "failed to update user preferences")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.Errorf("user %s not found", id)
	}
	return nil
}
