package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/zhouzirui/moodline/backend/internal/config"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
)

// OpenAIService generates text through the OpenAI Responses API.
type OpenAIService struct {
	client *openai.Client
	model  string
}

// NewOpenAIService builds a client from cfg. Retries are left to the caller's
// policy, so the SDK's own retries are disabled.
func NewOpenAIService(cfg config.OpenAIConfig, opts ...option.RequestOption) (*OpenAIService, error) {
	if !cfg.Enabled() {
		return nil, errors.New("OPENAI_API_KEY and OPENAI_MODEL are required for the openai provider")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	client := openai.NewClient(reqOpts...)
	return &OpenAIService{client: &client, model: cfg.Model}, nil
}

// Generate sends prompt as a single user input.
func (s *OpenAIService) Generate(ctx context.Context, prompt string) (string, error) {
	params := responses.ResponseNewParams{
		Model:        s.model,
		Instructions: openai.String(systemLine),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
	}

	resp, err := s.client.Responses.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if isContentPolicyError(err) {
			return "", fmt.Errorf("%w: %v", dialogue.ErrGenerationRejected, err)
		}
		return "", fmt.Errorf("%w: %v", dialogue.ErrGenerationUnavailable, err)
	}

	if resp.IncompleteDetails.Reason == "content_filter" {
		return "", fmt.Errorf("%w: response incomplete: content_filter", dialogue.ErrGenerationRejected)
	}

	text := resp.OutputText()
	log.Printf("[ai] openai response id=%s, length=%d", resp.ID, len(text))
	return text, nil
}

func isContentPolicyError(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch strings.ToLower(apiErr.Code) {
	case "content_filter", "content_policy_violation":
		return true
	}
	return false
}
