package dialogue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
)

const replyInstructions = "You are a conversational, empathetic and efficient assistant. " +
	"Keep replies brief and friendly and answer the user's latest statement in the context of the conversation. " +
	"The detected sentiment of the statement is provided for context. " +
	"Do not mention the sentiment label itself; react naturally to the emotional tone."

const analysisInstructions = "You are an expert conversation analyst. Analyze the multi-turn conversation below. " +
	"Each user turn carries the sentiment label and score detected for it.\n" +
	"Produce:\n" +
	"1. summary: a concise and objective summary of the main topic and flow of the conversation.\n" +
	"2. trend_analysis: the user's emotional journey, the peak positive and negative moments and what caused any shift.\n" +
	"3. recommendations: specific and actionable recommendations for how the assistant or a human agent could have handled the conversation better, or what the user's underlying goal or pain point was.\n" +
	"Return only a JSON object matching this schema:\n"

const emptyHistorySummary = "No conversation history available to generate a detailed summary."

// DefaultFallbackReply is sent when the model refuses to answer.
const DefaultFallbackReply = "I'm sorry, I can't respond to that directly. Could you tell me a bit more about what you need so I can help?"

// reportPayload is the structured part of the diagnostic report the model fills in.
type reportPayload struct {
	Summary         string   `json:"summary" jsonschema:"description=Concise objective summary of the conversation"`
	TrendAnalysis   string   `json:"trend_analysis" jsonschema:"description=Narrative of the user's emotional trend and its turning points"`
	Recommendations []string `json:"recommendations" jsonschema:"description=Actionable recommendations in priority order"`
}

var reportSchema = mustReportSchema()

func mustReportSchema() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&reportPayload{})
	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("dialogue: marshal report schema: %v", err))
	}
	return string(b)
}

// buildReplyPrompt renders the tier-2 prompt for the latest user turn and the
// turns that preceded it.
func buildReplyPrompt(latest conversation.Turn, recent []conversation.Turn) string {
	sentiment := latest.SentimentOrUnknown()

	var builder strings.Builder
	builder.WriteString(replyInstructions)
	builder.WriteString("\n\n")

	if len(recent) > 0 {
		builder.WriteString("Recent conversation:\n")
		for _, t := range recent {
			builder.WriteString(formatTurn(t))
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(fmt.Sprintf("Sentiment detected: %s (score %.3f).\n", sentiment.Label, sentiment.Score))
	builder.WriteString("User message: ")
	builder.WriteString(latest.Text)
	return builder.String()
}

// buildAnalysisPrompt renders the tier-3 prompt over the full transcript.
func buildAnalysisPrompt(turns []conversation.Turn) string {
	var builder strings.Builder
	builder.WriteString(analysisInstructions)
	builder.WriteString(reportSchema)
	builder.WriteString("\n\nCONVERSATION TRANSCRIPT:\n")
	for _, t := range turns {
		builder.WriteString(fmt.Sprintf("[%d] ", t.Index))
		builder.WriteString(formatTurn(t))
		builder.WriteString("\n")
	}
	return builder.String()
}

func formatTurn(t conversation.Turn) string {
	if t.Role == conversation.RoleUser {
		s := t.SentimentOrUnknown()
		return fmt.Sprintf("User (Sentiment: %s / Score: %.3f): %s", s.Label, s.Score, t.Text)
	}
	if t.Sentiment != nil {
		return fmt.Sprintf("Assistant (Sentiment: %s / Score: %.3f): %s", t.Sentiment.Label, t.Sentiment.Score, t.Text)
	}
	return "Assistant: " + t.Text
}

// parseReportPayload decodes the model output, tolerating surrounding prose
// and code fences. An empty recommendations list is valid; a missing one is
// not. On that error the decoded summary is still returned.
func parseReportPayload(raw string) (reportPayload, error) {
	var payload reportPayload
	if err := decodeModelJSON(raw, &payload); err != nil {
		return reportPayload{}, err
	}
	missingRecs := payload.Recommendations == nil

	payload.Summary = strings.TrimSpace(payload.Summary)
	payload.TrendAnalysis = strings.TrimSpace(payload.TrendAnalysis)
	recs := make([]string, 0, len(payload.Recommendations))
	for _, r := range payload.Recommendations {
		if r = strings.TrimSpace(r); r != "" {
			recs = append(recs, r)
		}
	}
	payload.Recommendations = recs

	if payload.Summary == "" {
		return reportPayload{}, fmt.Errorf("report has no summary")
	}
	if missingRecs {
		return payload, fmt.Errorf("report has no recommendations")
	}
	return payload, nil
}

func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return fmt.Errorf("empty model output")
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("unmarshal extracted JSON (len=%d): %w", end+1-start, err)
	}
	return nil
}
