package model

import "time"

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationCompleted ConversationStatus = "completed"
)

// User holds the demographic profile and onboarding preferences.
type User struct {
	ID          string            `db:"id"`
	Age         int               `db:"age"`
	Gender      string            `db:"gender"`
	Location    string            `db:"location"`
	Goals       []string          `db:"-"`
	Preferences map[string]string `db:"-"`
	CreatedAt   time.Time         `db:"created_at"`
}

// HealthMetric is one immutable time-stamped reading for a user.
type HealthMetric struct {
	ID         string            `db:"id"`
	UserID     string            `db:"user_id"`
	MetricType string            `db:"metric_type"`
	Value      float64           `db:"value"`
	Timestamp  time.Time         `db:"timestamp"`
	Extra      map[string]string `db:"-"`
}

// Turn is one role-tagged message within a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is one dialogue session with its ordered turns.
type Conversation struct {
	ID        string             `db:"id"`
	UserID    string             `db:"user_id"`
	Status    ConversationStatus `db:"status"`
	CreatedAt time.Time          `db:"created_at"`
	EndedAt   *time.Time         `db:"ended_at"`
	Turns     []Turn             `db:"-"`
}

// Insight is a derived, expiring statement about a health trend. Produced by
// the batch insight generator; the core only reads them.
type Insight struct {
	ID          string            `db:"id"`
	UserID      string            `db:"user_id"`
	Category    string            `db:"category"`
	Finding     string            `db:"finding"`
	Timeframe   string            `db:"timeframe"`
	Confidence  float64           `db:"confidence"`
	Detail      map[string]string `db:"-"`
	GeneratedAt time.Time         `db:"generated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// Highlight is a schema-constrained extraction tied to one conversation.
type Highlight struct {
	ID                string         `db:"id"`
	UserID            string         `db:"user_id"`
	ConversationID    string         `db:"conversation_id"`
	StructuredData    map[string]any `db:"-"`
	UnstructuredNotes string         `db:"unstructured_notes"`
	ExtractedAt       time.Time      `db:"extracted_at"`
}

// HighlightSummary is the recency-priority merge of all highlights for a user.
type HighlightSummary struct {
	StructuredData      map[string]any `json:"structured_data"`
	UnstructuredNotes   string         `json:"unstructured_notes"`
	SourceConversations []string       `json:"source_conversations"`
	LastUpdated         *time.Time     `json:"last_updated"`
	TotalHighlights     int            `json:"total_highlights"`
}

// ExternalContext is a timestamped snapshot of location-scoped environmental data.
type ExternalContext struct {
	ID          string            `db:"id"`
	ContextType string            `db:"context_type"`
	Location    string            `db:"location"`
	Data        map[string]string `db:"-"`
	Timestamp   time.Time         `db:"timestamp"`
}

// KnowledgeEntry is a static reference entry from the knowledge base.
type KnowledgeEntry struct {
	ID          string    `db:"id"`
	Topic       string    `db:"topic"`
	Content     string    `db:"content"`
	Source      string    `db:"source"`
	LastUpdated time.Time `db:"last_updated"`
}

// UserProfile is the raw-data view of a user handed to prompt rendering.
type UserProfile struct {
	Age         int               `json:"age"`
	Gender      string            `json:"gender"`
	Location    string            `json:"location"`
	Goals       []string          `json:"goals"`
	Preferences map[string]string `json:"preferences"`
}

// RawData bundles the profile with recent metric windows keyed by metric name.
type RawData struct {
	UserProfile   *UserProfile         `json:"user_profile"`
	RecentMetrics map[string][]float64 `json:"recent_metrics"`
}

// ConversationContext is the merged six-layer context object the prompt
// sections render from.
type ConversationContext struct {
	UserID       string
	RawData      RawData
	Insights     []Insight
	Highlights   HighlightSummary
	ExternalData map[string]map[string]string
	Knowledge    []KnowledgeEntry
}

// Preferences returns the user preference map, never nil.
func (c *ConversationContext) Preferences() map[string]string {
	if c.RawData.UserProfile == nil || c.RawData.UserProfile.Preferences == nil {
		return map[string]string{}
	}
	return c.RawData.UserProfile.Preferences
}

// TurnResult is what one orchestrator pass returns to the external driver.
type TurnResult struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error,omitempty"`
	Stop           bool   `json:"stop"`
}
