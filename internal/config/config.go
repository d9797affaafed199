package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server        ServerConfig
	AI            AIConfig
	OpenAI        OpenAIConfig
	Sentiment     SentimentConfig
	Orchestration OrchestrationConfig
	Session       SessionConfig
	Archive       ArchiveConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	orchestration, err := loadOrchestrationConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:        server,
		AI:            ai,
		OpenAI:        loadOpenAIConfig(),
		Sentiment:     loadSentimentConfig(),
		Orchestration: orchestration,
		Session:       session,
		Archive:       loadArchiveConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述生成模型相关配置。Provider 为空时使用 Ark。
type AIConfig struct {
	Provider    string
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:    strings.ToLower(getEnvOrDefault("LLM_PROVIDER", "ark")),
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// OpenAIConfig 描述 OpenAI Responses API 的配置。
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Enabled 表示是否可以创建 OpenAI 客户端。
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

func loadOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		APIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		Model:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		BaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
	}
}

// SentimentConfig 选择情感分类后端。
type SentimentConfig struct {
	Provider string
	Endpoint string
	APIKey   string
}

func loadSentimentConfig() SentimentConfig {
	return SentimentConfig{
		Provider: strings.ToLower(getEnvOrDefault("SENTIMENT_PROVIDER", "lexicon")),
		Endpoint: strings.TrimSpace(os.Getenv("SENTIMENT_ENDPOINT")),
		APIKey:   strings.TrimSpace(os.Getenv("SENTIMENT_API_KEY")),
	}
}

// OrchestrationConfig 控制对话引擎的窗口、重试与超时。
type OrchestrationConfig struct {
	HistoryWindow  int
	MaxRetries     int
	PortTimeout    time.Duration
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

func loadOrchestrationConfig() (OrchestrationConfig, error) {
	cfg := OrchestrationConfig{
		HistoryWindow:  4,
		MaxRetries:     2,
		PortTimeout:    30 * time.Second,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  5 * time.Second,
	}

	if window, err := parseOptionalIntEnv("HISTORY_WINDOW"); err != nil {
		return OrchestrationConfig{}, err
	} else if window != nil {
		if *window < 0 {
			return OrchestrationConfig{}, fmt.Errorf("invalid HISTORY_WINDOW value %d: must not be negative", *window)
		}
		cfg.HistoryWindow = *window
	}

	if retries, err := parseOptionalIntEnv("MAX_RETRIES"); err != nil {
		return OrchestrationConfig{}, err
	} else if retries != nil {
		if *retries < 0 {
			return OrchestrationConfig{}, fmt.Errorf("invalid MAX_RETRIES value %d: must not be negative", *retries)
		}
		cfg.MaxRetries = *retries
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PORT_TIMEOUT", &cfg.PortTimeout},
		{"RETRY_BASE_DELAY", &cfg.RetryBaseDelay},
		{"RETRY_MAX_DELAY", &cfg.RetryMaxDelay},
	}
	for _, d := range durations {
		val, err := parseOptionalDurationEnv(d.key)
		if err != nil {
			return OrchestrationConfig{}, err
		}
		if val != nil {
			*d.dst = *val
		}
	}

	return cfg, nil
}

// SessionConfig 描述会话生命周期相关配置。
type SessionConfig struct {
	IdleTTL        time.Duration
	ReaperSchedule string
	ExitPhrases    []string
}

var defaultExitPhrases = []string{"bye", "exit", "quit", "end"}

func loadSessionConfig() (SessionConfig, error) {
	idleTTL := 30 * time.Minute
	if ttl, err := parseOptionalDurationEnv("SESSION_IDLE_TTL"); err != nil {
		return SessionConfig{}, err
	} else if ttl != nil {
		idleTTL = *ttl
	}

	phrases := parseListEnv("EXIT_PHRASES")
	if len(phrases) == 0 {
		phrases = append([]string(nil), defaultExitPhrases...)
	}

	return SessionConfig{
		IdleTTL:        idleTTL,
		ReaperSchedule: getEnvOrDefault("REAPER_SCHEDULE", "@every 1m"),
		ExitPhrases:    phrases,
	}, nil
}

// ArchiveConfig 指定会话归档位置。Table 为空时归档保存在内存中。
type ArchiveConfig struct {
	Table string
}

func loadArchiveConfig() ArchiveConfig {
	return ArchiveConfig{Table: strings.TrimSpace(os.Getenv("ARCHIVE_TABLE"))}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalDurationEnv(key string) (*time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := time.ParseDuration(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
	}
	return &val, nil
}

// parseListEnv 解析逗号分隔的列表，忽略空项并统一为小写。
func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if item := strings.ToLower(strings.TrimSpace(part)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
