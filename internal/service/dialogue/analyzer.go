package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zhouzirui/moodline/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
	"github.com/zhouzirui/moodline/backend/internal/retry"
)

const rejectedSummary = "The diagnostic analysis was blocked by the model's content policy."

// Analyzer builds the tier-3 diagnostic report over a whole session.
type Analyzer struct {
	port    GenerationPort
	policy  retry.Policy
	timeout time.Duration
	now     func() time.Time
}

// NewAnalyzer builds an analyzer.
func NewAnalyzer(port GenerationPort, policy retry.Policy, timeout time.Duration) *Analyzer {
	return &Analyzer{
		port:    port,
		policy:  policy,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Analyze reports on the full annotated transcript. When the model output
// cannot be used the returned report is a degraded fallback and the error
// wraps ErrReportMalformed; exhausted retries return ErrAnalysisUnavailable.
func (a *Analyzer) Analyze(ctx context.Context, history *History) (conversation.DiagnosticReport, error) {
	turns := history.Snapshot()
	trend, overall := deriveTrend(turns)

	if len(turns) == 0 {
		return conversation.DiagnosticReport{
			SessionID:       history.SessionID(),
			Summary:         emptyHistorySummary,
			Trend:           trend,
			Recommendations: []string{},
			Overall:         overall,
			GeneratedAt:     a.now(),
		}, nil
	}

	raw, err := generate(ctx, a.port, a.policy, a.timeout, "analysis", buildAnalysisPrompt(turns))
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return conversation.DiagnosticReport{}, ctx.Err()
	case errors.Is(err, ErrGenerationRejected):
		log.Printf("[analyzer] session=%s analysis rejected, returning fallback report: %v", history.SessionID(), err)
		return a.fallback(history.SessionID(), rejectedSummary), fmt.Errorf("%w: %w", ErrReportMalformed, err)
	default:
		log.Printf("[analyzer] session=%s analysis unavailable after %d attempts: %v", history.SessionID(), a.policy.Attempts(), err)
		return conversation.DiagnosticReport{}, fmt.Errorf("%w: %w", ErrAnalysisUnavailable, err)
	}

	payload, err := parseReportPayload(raw)
	if err != nil {
		summary := payload.Summary
		if summary == "" {
			summary = raw
		}
		log.Printf("[analyzer] session=%s could not parse report, returning fallback summary: %v", history.SessionID(), err)
		return a.fallback(history.SessionID(), summary), fmt.Errorf("%w: %v", ErrReportMalformed, err)
	}

	log.Printf("[analyzer] session=%s report generated, turns=%d recommendations=%d", history.SessionID(), len(turns), len(payload.Recommendations))
	return conversation.DiagnosticReport{
		SessionID:       history.SessionID(),
		Summary:         payload.Summary,
		TrendAnalysis:   payload.TrendAnalysis,
		Trend:           trend,
		Recommendations: payload.Recommendations,
		Overall:         overall,
		GeneratedAt:     a.now(),
	}, nil
}

func (a *Analyzer) fallback(sessionID, summary string) conversation.DiagnosticReport {
	return conversation.DiagnosticReport{
		SessionID:   sessionID,
		Summary:     summary,
		Degraded:    true,
		GeneratedAt: a.now(),
	}
}

// deriveTrend lists the sentiment of every user turn in order. Turns with the
// unknown sentiment stay in the trend but are left out of the aggregate.
func deriveTrend(turns []conversation.Turn) ([]conversation.TrendPoint, conversation.OverallSentiment) {
	trend := make([]conversation.TrendPoint, 0, len(turns)/2+1)
	compounds := make([]float64, 0, len(turns)/2+1)
	for _, t := range turns {
		if t.Role != conversation.RoleUser {
			continue
		}
		s := t.SentimentOrUnknown()
		trend = append(trend, conversation.TrendPoint{TurnIndex: t.Index, Label: s.Label, Score: s.Score})
		if !s.IsUnknown() {
			compounds = append(compounds, s.Compound)
		}
	}
	overall := sentiment.Aggregate(compounds)
	overall.UserTurns = len(trend)
	return trend, overall
}
