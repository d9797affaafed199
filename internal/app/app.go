// Package app assembles the engine and its backends from configuration.
package app

import (
	"context"
	"fmt"
	"log"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/zhouzirui/moodline/backend/internal/archive"
	"github.com/zhouzirui/moodline/backend/internal/config"
	"github.com/zhouzirui/moodline/backend/internal/retry"
	"github.com/zhouzirui/moodline/backend/internal/service/ai"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
	"github.com/zhouzirui/moodline/backend/internal/service/sentiment"
)

// EngineOptions converts orchestration settings into engine options.
func EngineOptions(c config.OrchestrationConfig) dialogue.Options {
	opts := dialogue.DefaultOptions()
	opts.HistoryWindow = c.HistoryWindow
	opts.PortTimeout = c.PortTimeout
	opts.Retry = retry.Policy{
		MaxRetries: c.MaxRetries,
		BaseDelay:  c.RetryBaseDelay,
		MaxDelay:   c.RetryMaxDelay,
		Multiplier: retry.DefaultPolicy().Multiplier,
	}
	return opts
}

// NewEngine builds the generation and sentiment backends and wires the engine.
func NewEngine(ctx context.Context, cfg *config.Config) (*dialogue.Engine, error) {
	generation, chatModel, err := ai.New(ctx, cfg.AI, cfg.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation backend: %w", err)
	}
	log.Printf("generation backend %q initialized", cfg.AI.Provider)

	classifier, err := sentiment.New(ctx, cfg.Sentiment, chatModel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentiment backend: %w", err)
	}
	log.Printf("sentiment backend %q initialized", cfg.Sentiment.Provider)

	return dialogue.NewEngine(classifier, generation, EngineOptions(cfg.Orchestration))
}

// NewArchive returns a DynamoDB archive when a table is configured and an
// in-memory one otherwise.
func NewArchive(ctx context.Context, cfg config.ArchiveConfig) (archive.Archiver, error) {
	if cfg.Table == "" {
		return archive.NewMemory(), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	store, err := archive.NewDynamo(dynamodb.NewFromConfig(awsCfg), cfg.Table)
	if err != nil {
		return nil, err
	}
	return store, nil
}
