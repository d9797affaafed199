package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
)

// LLMClassifier asks the chat model for a JSON sentiment verdict.
type LLMClassifier struct {
	classifier compose.Runnable[map[string]any, *schema.Message]
}

// NewLLMClassifier compiles the classification chain over chatModel.
func NewLLMClassifier(ctx context.Context, chatModel model.BaseChatModel) (*LLMClassifier, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("sentiment: chat model must not be nil")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage("{statement}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile sentiment classifier chain: %w", err)
	}

	return &LLMClassifier{classifier: runnable}, nil
}

// Classify returns ErrClassificationUnavailable when the model fails or
// answers with something that is not a verdict.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (conversation.SentimentResult, error) {
	msg, err := c.classifier.Invoke(ctx, map[string]any{"statement": strings.TrimSpace(text)})
	if err != nil {
		if ctx.Err() != nil {
			return conversation.SentimentResult{}, ctx.Err()
		}
		return conversation.SentimentResult{}, fmt.Errorf("%w: %v", dialogue.ErrClassificationUnavailable, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return conversation.SentimentResult{}, fmt.Errorf("%w: empty classifier output", dialogue.ErrClassificationUnavailable)
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		log.Printf("[sentiment] classifier output parse failed: %v", err)
		return conversation.SentimentResult{}, fmt.Errorf("%w: %v", dialogue.ErrClassificationUnavailable, err)
	}

	label, ok := normalizeLabel(payload.Label)
	if !ok {
		return conversation.SentimentResult{}, fmt.Errorf("%w: unexpected label %q", dialogue.ErrClassificationUnavailable, payload.Label)
	}

	result := conversation.SentimentResult{Label: label, Score: payload.Score}
	if payload.Compound != nil {
		result.Compound = *payload.Compound
	}
	return result, nil
}

type classifierPayload struct {
	Label    string   `json:"label"`
	Score    float64  `json:"score"`
	Compound *float64 `json:"compound"`
}

// parseClassifierOutput extracts the outermost JSON object of the reply.
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

const classifierSystemPrompt = "You are a sentiment classifier. Read the user's statement and judge its overall sentiment.\n" +
	"Respond with a single JSON object and nothing else, with fields: " +
	"label (one of negative, neutral, positive), " +
	"score (confidence of the label between 0 and 1), " +
	"compound (between -1 and 1, probability of positive minus probability of negative)."
