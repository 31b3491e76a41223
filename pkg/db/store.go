package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Fixed-width UTC layout so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed persistence gateway owning all entity lifecycles:
// users, health metrics, conversations and their turns, insights, highlights,
// external context snapshots and knowledge entries.
//
// The creation method creates the tables if they do not exist.
type Store struct {
	db     *sqlx.DB
	logger *log.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	age INTEGER NOT NULL DEFAULT 0,
	gender TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	goals JSON,
	preferences JSON,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS health_metrics (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	metric_type TEXT NOT NULL,
	value REAL NOT NULL,
	timestamp TEXT NOT NULL,
	extra JSON,
	FOREIGN KEY (user_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_metrics_user_type_time
	ON health_metrics(user_id, metric_type, timestamp);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TEXT NOT NULL,
	ended_at TEXT,
	FOREIGN KEY (user_id) REFERENCES users(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_one_active
	ON conversations(user_id) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS conversation_messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON conversation_messages(conversation_id, seq);

CREATE TABLE IF NOT EXISTS insights (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	category TEXT NOT NULL,
	finding TEXT NOT NULL,
	timeframe TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	detail JSON,
	generated_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	FOREIGN KEY (user_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_insights_user_expiry ON insights(user_id, expires_at);

CREATE TABLE IF NOT EXISTS highlights (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL UNIQUE,
	structured_data JSON,
	unstructured_notes TEXT NOT NULL DEFAULT '',
	extracted_at TEXT NOT NULL,
	FOREIGN KEY (user_id) REFERENCES users(id),
	FOREIGN KEY (conversation_id) REFERENCES conversations(id)
);
CREATE INDEX IF NOT EXISTS idx_highlights_user ON highlights(user_id, extracted_at);

CREATE TABLE IF NOT EXISTS external_context (
	id TEXT PRIMARY KEY,
	context_type TEXT NOT NULL,
	location TEXT NOT NULL,
	data JSON,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_external_type_location
	ON external_context(context_type, location, timestamp);

CREATE TABLE IF NOT EXISTS knowledge_base (
	id TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	content TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	last_updated TEXT NOT NULL
);
`

// NewStore opens (or creates) the SQLite database at dbPath.
func NewStore(ctx context.Context, dbPath string, logger *log.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to SQLite")
	}

	// WAL mode for better concurrency and performance.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Wrap(err, "failed to create tables")
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB returns the underlying sqlx.DB instance.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal JSON column")
	}
	return string(raw), nil
}

func unmarshalStringMap(raw *string) map[string]string {
	out := map[string]string{}
	if raw == nil || *raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		return map[string]string{}
	}
	return out
}

func unmarshalStringSlice(raw *string) []string {
	out := []string{}
	if raw == nil || *raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		return []string{}
	}
	return out
}

func unmarshalAnyMap(raw *string) map[string]any {
	out := map[string]any{}
	if raw == nil || *raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}
