package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// Supported LLM_PROVIDER values.
const (
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"
)

// BuildLLMClient wires the primary model client and, when
// LLM_FALLBACK_PROVIDER names a different usable provider, wraps it in a
// fallback. The returned name is used as the provider label in metrics.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (conversation.LLMClient, string, error) {
	if cfg == nil {
		return nil, "", fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	primaryName := strings.TrimSpace(cfg.LLMProvider)
	if primaryName == "" {
		primaryName = ProviderOpenAI
	}
	primary, err := buildProvider(ctx, primaryName, cfg, awsCfg)
	if err != nil {
		return nil, "", err
	}

	fallbackName := strings.TrimSpace(cfg.LLMFallbackProvider)
	if fallbackName == "" || fallbackName == primaryName {
		logger.Info("llm client configured", "provider", primaryName)
		return primary, primaryName, nil
	}
	fallback, err := buildProvider(ctx, fallbackName, cfg, awsCfg)
	if err != nil {
		logger.Warn("llm fallback provider unavailable; continuing without it", "provider", fallbackName, "error", err)
		return primary, primaryName, nil
	}
	logger.Info("llm client configured", "provider", primaryName, "fallback", fallbackName)
	return conversation.NewFallbackLLMClient(primary, fallback, logger), primaryName, nil
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, awsCfg aws.Config) (conversation.LLMClient, error) {
	switch name {
	case ProviderOpenAI:
		api, err := conversation.NewOpenAIAPI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: openai: %w", err)
		}
		return conversation.NewOpenAIClient(api, cfg.OpenAIModel), nil
	case ProviderGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, fmt.Errorf("bootstrap: gemini: GEMINI_API_KEY is required")
		}
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		return client, nil
	case ProviderBedrock:
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, fmt.Errorf("bootstrap: bedrock: BEDROCK_MODEL_ID is required")
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown llm provider %q", name)
	}
}
