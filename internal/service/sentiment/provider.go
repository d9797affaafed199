package sentiment

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/moodline/backend/internal/config"
	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
)

const (
	ProviderLexicon = "lexicon"
	ProviderLLM     = "llm"
	ProviderRemote  = "remote"
)

// New builds the classifier selected by cfg.Provider. chatModel is only
// consulted for the llm provider.
func New(ctx context.Context, cfg config.SentimentConfig, chatModel model.BaseChatModel) (dialogue.SentimentPort, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderLexicon:
		return NewLexicon(), nil
	case ProviderLLM:
		if chatModel == nil {
			return nil, fmt.Errorf("sentiment provider %q requires a configured chat model", ProviderLLM)
		}
		classifier, err := NewLLMClassifier(ctx, chatModel)
		if err != nil {
			return nil, err
		}
		return classifier, nil
	case ProviderRemote:
		classifier, err := NewRemoteClassifier(cfg.Endpoint, WithAPIKey(cfg.APIKey))
		if err != nil {
			return nil, err
		}
		return classifier, nil
	default:
		return nil, fmt.Errorf("unknown sentiment provider %q", cfg.Provider)
	}
}

// normalizeLabel maps the label vocabularies of common classifiers onto
// the three core labels.
func normalizeLabel(raw string) (conversation.Label, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "negative", "neg", "label_0":
		return conversation.Negative, true
	case "neutral", "neu", "label_1":
		return conversation.Neutral, true
	case "positive", "pos", "label_2":
		return conversation.Positive, true
	default:
		return "", false
	}
}
