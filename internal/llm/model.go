package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/config"
)

// Models holds the two tiers used by a run. Quick serves analysts, debaters
// and the trader; Deep serves the research manager and the risk judge.
type Models struct {
	Quick model.ToolCallingChatModel
	Deep  model.ToolCallingChatModel
}

// NewModels builds both tiers from config and wraps them with retry.
func NewModels(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Models, error) {
	quick, err := newChatModel(ctx, cfg, cfg.QuickThinkLLM)
	if err != nil {
		return nil, fmt.Errorf("quick model %s: %w", cfg.QuickThinkLLM, err)
	}
	deep, err := newChatModel(ctx, cfg, cfg.DeepThinkLLM)
	if err != nil {
		return nil, fmt.Errorf("deep model %s: %w", cfg.DeepThinkLLM, err)
	}

	policy := RetryPolicy{MaxRetries: cfg.LLMMaxRetries, BaseDelay: cfg.RetryBaseDelay()}
	return &Models{
		Quick: WithRetry(quick, policy, log),
		Deep:  WithRetry(deep, policy, log),
	}, nil
}

func newChatModel(ctx context.Context, cfg *config.Config, name string) (model.ToolCallingChatModel, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "deepseek":
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    cfg.LLMAPIKey,
			Model:     name,
			BaseURL:   cfg.BackendURL,
			MaxTokens: cfg.LLMMaxTokens,
		})
	case "openai":
		maxTokens := cfg.LLMMaxTokens
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:    cfg.LLMAPIKey,
			BaseURL:   cfg.BackendURL,
			Model:     name,
			MaxTokens: &maxTokens,
		})
	default:
		return nil, fmt.Errorf("%w: unsupported llm provider %q", config.ErrInvalid, cfg.LLMProvider)
	}
}
