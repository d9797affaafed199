package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/moodline/backend/internal/config"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
)

const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// New builds the generation backend selected by cfg.Provider. The returned
// chat model is non-nil only for the ark provider and may be shared with an
// LLM sentiment classifier.
func New(ctx context.Context, cfg config.AIConfig, openaiCfg config.OpenAIConfig) (dialogue.GenerationPort, model.BaseChatModel, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderArk:
		svc, err := NewService(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return svc, svc.ChatModel(), nil
	case ProviderOpenAI:
		svc, err := NewOpenAIService(openaiCfg)
		if err != nil {
			return nil, nil, err
		}
		return svc, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
