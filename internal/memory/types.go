package memory

import "time"

// UserMemory is the accumulated profile for one user. Every slice is
// bounded by the store's limits; trimming drops the oldest entries.
type UserMemory struct {
	UserID           string               `json:"user_id"`
	DisplayName      string               `json:"user_name"`
	FirstSeen        time.Time            `json:"first_seen"`
	LastInteraction  time.Time            `json:"last_interaction"`
	InteractionCount int                  `json:"interaction_count"`
	TopicsDiscussed  []string             `json:"topics_discussed"`
	PersonalityNotes []string             `json:"personality_notes"`
	SentimentHistory []SentimentEntry     `json:"sentiment_history"`
	Notable          []NotableInteraction `json:"notable_interactions"`
}

type SentimentEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Sentiment string    `json:"sentiment"`
}

type NotableInteraction struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Reason    string    `json:"reason"`
	Sentiment string    `json:"sentiment"`
	Topics    []string  `json:"topics"`
}

// Analysis is the structured extraction produced for one processed
// message. It is ephemeral; only its effects on UserMemory persist.
type Analysis struct {
	Topics               []string `json:"topics"`
	IsNotable            bool     `json:"is_notable"`
	NotableReason        string   `json:"notable_reason"`
	UserInsights         []string `json:"user_insights"`
	Sentiment            string   `json:"sentiment"`
	ContainsPersonalInfo bool     `json:"contains_personal_info"`
	DirectedProbability  float64  `json:"directed_at_bot_probability"`
	DirectionReason      string   `json:"bot_direction_reason"`
}

// Insights is the shared, non-per-user blob: process-wide counters
// accumulated across every processed message.
type Insights struct {
	TotalConversations int       `json:"total_conversations"`
	ResponsesSent      int       `json:"responses_sent"`
	LastUpdated        time.Time `json:"last_updated"`
}

// Limits are the bounded-growth caps applied on every update.
type Limits struct {
	Topics     int
	Notes      int
	Sentiment  int
	Notable    int
	ExcerptLen int
}

func DefaultLimits() Limits {
	return Limits{Topics: 20, Notes: 15, Sentiment: 10, Notable: 10, ExcerptLen: 200}
}
