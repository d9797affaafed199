package conversation

import "time"

// TrendPoint is the sentiment of one user turn, positioned by its history index.
type TrendPoint struct {
	TurnIndex int     `json:"turnIndex"`
	Label     Label   `json:"label"`
	Score     float64 `json:"score"`
}

// OverallSentiment aggregates the compound scores of all user turns.
type OverallSentiment struct {
	Label           Label   `json:"label"`
	AverageCompound float64 `json:"averageCompound"`
	UserTurns       int     `json:"userTurns"`
}

// DiagnosticReport is the tier-3 result produced once per closed session.
type DiagnosticReport struct {
	SessionID       string           `json:"sessionId"`
	Summary         string           `json:"summary"`
	TrendAnalysis   string           `json:"trendAnalysis,omitempty"`
	Trend           []TrendPoint     `json:"trend"`
	Recommendations []string         `json:"recommendations"`
	Overall         OverallSentiment `json:"overall"`
	Degraded        bool             `json:"degraded,omitempty"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// Exchange is what a caller gets back for one user message.
type Exchange struct {
	UserTurn      Turn `json:"userTurn"`
	AssistantTurn Turn `json:"assistantTurn"`
}
