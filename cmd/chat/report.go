package main

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
)

func renderReport(report conversation.DiagnosticReport) string {
	var b strings.Builder
	rule := strings.Repeat("=", 70)

	b.WriteString("\n" + rule + "\n")
	b.WriteString("CONVERSATION REPORT\n")
	b.WriteString(rule + "\n")
	if report.Degraded {
		b.WriteString("(degraded: the analysis could not be fully structured)\n")
	}

	b.WriteString("\nSummary:\n")
	b.WriteString(report.Summary + "\n")

	if report.TrendAnalysis != "" {
		b.WriteString("\nSentiment trend:\n")
		b.WriteString(report.TrendAnalysis + "\n")
	}

	if len(report.Trend) > 0 {
		b.WriteString("\nPer-message sentiment:\n")
		for _, p := range report.Trend {
			fmt.Fprintf(&b, "  turn %d: %s (%.3f)\n", p.TurnIndex, p.Label, p.Score)
		}
		fmt.Fprintf(&b, "Overall: %s (average compound %.3f over %d messages)\n",
			report.Overall.Label, report.Overall.AverageCompound, report.Overall.UserTurns)
	}

	if len(report.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for i, r := range report.Recommendations {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, r)
		}
	}
	b.WriteString(rule + "\n")
	return b.String()
}
