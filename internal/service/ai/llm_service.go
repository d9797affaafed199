package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/moodline/backend/internal/config"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
)

// systemLine is prepended to every prompt. Tier instructions travel inside
// the prompt itself.
const systemLine = "You are a careful assistant. Follow the instructions in the user message exactly."

// Service generates text through an eino chain over a chat model.
type Service struct {
	chatModel model.BaseChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates the Ark chat model from cfg and compiles the chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel)
}

// NewServiceWithModel compiles the chain over an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model must not be nil")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemLine),
		schema.UserMessage("{prompt}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		chain:     runnable,
	}, nil
}

// ChatModel returns the underlying model so other components can reuse it.
func (s *Service) ChatModel() model.BaseChatModel {
	return s.chatModel
}

// Generate runs the chain once. Content moderation stops surface as
// ErrGenerationRejected; every other failure is ErrGenerationUnavailable.
func (s *Service) Generate(ctx context.Context, promptText string) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{"prompt": promptText})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if isSensitiveContentError(err) {
			return "", fmt.Errorf("%w: %v", dialogue.ErrGenerationRejected, err)
		}
		return "", fmt.Errorf("%w: failed to run AI chain: %v", dialogue.ErrGenerationUnavailable, err)
	}
	if response == nil {
		return "", fmt.Errorf("%w: empty response", dialogue.ErrGenerationUnavailable)
	}

	if meta := response.ResponseMeta; meta != nil && strings.EqualFold(meta.FinishReason, "content_filter") {
		return "", fmt.Errorf("%w: finish reason %s", dialogue.ErrGenerationRejected, meta.FinishReason)
	}

	log.Printf("[ai] generated response, length=%d", len(response.Content))
	return response.Content, nil
}

// isSensitiveContentError matches the moderation error codes Ark returns for
// flagged input or output.
func isSensitiveContentError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"sensitivecontentdetected", "content_filter", "inputtextsensitivecontentdetected", "outputtextsensitivecontentdetected"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
