package conversation

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is a sentiment class. The set is open; classifiers may emit domain labels.
type Label string

const (
	Negative Label = "negative"
	Neutral  Label = "neutral"
	Positive Label = "positive"
	Unknown  Label = "unknown"
)

// SentimentResult is the tier-1 annotation of a user message.
type SentimentResult struct {
	Label    Label   `json:"label"`
	Score    float64 `json:"score"`
	Compound float64 `json:"compound"`
}

// UnknownSentiment is attached when the classifier could not respond.
var UnknownSentiment = SentimentResult{Label: Unknown, Score: 0}

// IsUnknown reports whether the result is the degraded sentinel.
func (s SentimentResult) IsUnknown() bool {
	return s.Label == Unknown
}

// Turn is one entry of a conversation history. Index and CreatedAt are
// assigned by the history on append.
type Turn struct {
	Index     int              `json:"index"`
	Role      Role             `json:"role"`
	Text      string           `json:"text"`
	Sentiment *SentimentResult `json:"sentiment,omitempty"`
	Degraded  bool             `json:"degraded,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

// SentimentOrUnknown returns the annotation, or the unknown sentinel when absent.
func (t Turn) SentimentOrUnknown() SentimentResult {
	if t.Sentiment == nil {
		return UnknownSentiment
	}
	return *t.Sentiment
}
