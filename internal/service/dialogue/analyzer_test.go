package dialogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
	"github.com/zhouzirui/moodline/backend/internal/retry"
)

const validReport = `{"summary":"The user was upset about a delay.","trend_analysis":"Negative throughout.","recommendations":["Offer a concrete delivery estimate"]}`

func TestAnalyzeEmptyHistoryIsTrivial(t *testing.T) {
	gen := &fakeGeneration{}
	report, err := NewAnalyzer(gen, retry.Policy{}, 0).Analyze(context.Background(), NewHistory("s1"))
	require.NoError(t, err)
	require.Equal(t, "s1", report.SessionID)
	require.Empty(t, report.Trend)
	require.NotEmpty(t, report.Summary)
	require.Zero(t, gen.calls())
}

func TestAnalyzeBuildsStructuredReport(t *testing.T) {
	gen := &fakeGeneration{responses: []generation{{text: "Here you go:\n```json\n" + validReport + "\n```"}}}
	h := historyWithPendingUser(t, 1)
	_, err := h.Append(assistantTurn("sorry"))
	require.NoError(t, err)

	report, err := NewAnalyzer(gen, retry.Policy{}, 0).Analyze(context.Background(), h)
	require.NoError(t, err)
	require.Equal(t, "The user was upset about a delay.", report.Summary)
	require.Equal(t, []string{"Offer a concrete delivery estimate"}, report.Recommendations)
	require.False(t, report.Degraded)
	require.Equal(t, []conversation.TrendPoint{
		{TurnIndex: 0, Label: conversation.Neutral, Score: 1},
		{TurnIndex: 2, Label: conversation.Negative, Score: 0.92},
	}, report.Trend)
	require.Equal(t, 2, report.Overall.UserTurns)

	prompt := gen.lastPrompt()
	require.Contains(t, prompt, "CONVERSATION TRANSCRIPT")
	require.Contains(t, prompt, "[2] User (Sentiment: negative / Score: 0.920): I am furious about this delay")
	require.Contains(t, prompt, "[3] Assistant: sorry")
	require.Contains(t, prompt, `"recommendations"`)
	require.Equal(t, 1, gen.calls())
}

func TestAnalyzeMalformedOutputFallsBack(t *testing.T) {
	gen := &fakeGeneration{responses: []generation{{text: "The user seemed unhappy."}}}
	report, err := NewAnalyzer(gen, retry.Policy{}, 0).Analyze(context.Background(), historyWithPendingUser(t, 0))
	require.ErrorIs(t, err, ErrReportMalformed)
	require.True(t, report.Degraded)
	require.Equal(t, "The user seemed unhappy.", report.Summary)
	require.Empty(t, report.Trend)
	require.Empty(t, report.Recommendations)
}

func TestAnalyzeEmptyRecommendationsAccepted(t *testing.T) {
	gen := &fakeGeneration{responses: []generation{{text: `{"summary":"fine chat","trend_analysis":"steady","recommendations":[]}`}}}
	report, err := NewAnalyzer(gen, retry.Policy{}, 0).Analyze(context.Background(), historyWithPendingUser(t, 0))
	require.NoError(t, err)
	require.False(t, report.Degraded)
	require.Equal(t, "fine chat", report.Summary)
	require.NotNil(t, report.Recommendations)
	require.Empty(t, report.Recommendations)
	require.Len(t, report.Trend, 1)
}

func TestAnalyzeMissingRecommendationsKeepsSummary(t *testing.T) {
	gen := &fakeGeneration{responses: []generation{{text: `{"summary":"fine chat","trend_analysis":"steady"}`}}}
	report, err := NewAnalyzer(gen, retry.Policy{}, 0).Analyze(context.Background(), historyWithPendingUser(t, 0))
	require.ErrorIs(t, err, ErrReportMalformed)
	require.True(t, report.Degraded)
	require.Equal(t, "fine chat", report.Summary)
}

func TestAnalyzeRejectedFallsBack(t *testing.T) {
	gen := &fakeGeneration{responses: []generation{{err: ErrGenerationRejected}}}
	report, err := NewAnalyzer(gen, retry.Policy{MaxRetries: 2}, 0).Analyze(context.Background(), historyWithPendingUser(t, 0))
	require.ErrorIs(t, err, ErrReportMalformed)
	require.ErrorIs(t, err, ErrGenerationRejected)
	require.True(t, report.Degraded)
	require.Equal(t, 1, gen.calls())
}

func TestAnalyzeUnavailableAfterRetries(t *testing.T) {
	gen := &fakeGeneration{responses: []generation{{err: ErrGenerationUnavailable}}}
	_, err := NewAnalyzer(gen, retry.Policy{MaxRetries: 2}, 0).Analyze(context.Background(), historyWithPendingUser(t, 0))
	require.ErrorIs(t, err, ErrAnalysisUnavailable)
	require.Equal(t, 3, gen.calls())
}

func TestDeriveTrendSkipsUnknownInAggregate(t *testing.T) {
	unknown := conversation.UnknownSentiment
	pos := conversation.SentimentResult{Label: conversation.Positive, Score: 0.9, Compound: 0.8}
	turns := []conversation.Turn{
		{Index: 0, Role: conversation.RoleUser, Sentiment: &unknown},
		{Index: 1, Role: conversation.RoleAssistant},
		{Index: 2, Role: conversation.RoleUser, Sentiment: &pos},
	}
	trend, overall := deriveTrend(turns)
	require.Len(t, trend, 2)
	require.Equal(t, conversation.Unknown, trend[0].Label)
	require.Equal(t, conversation.Positive, overall.Label)
	require.Equal(t, 0.8, overall.AverageCompound)
	require.Equal(t, 2, overall.UserTurns)
}
