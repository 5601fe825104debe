// Package llm wraps the text-completion backend behind a minimal Client
// interface. Protocol plugins and the dispatch layer consume the client; they
// never see provider-specific request shapes.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/grvsrs/relaygate/pkg/config"
)

// Client is the capability the rest of the system needs from the model
// backend: one prompt in, one completion out. Failures are recoverable
// errors (network, timeout, upstream) that callers convert to structured
// results.
type Client interface {
	// Generate produces a completion for the prompt. The call is bounded by
	// the client's configured timeout in addition to ctx.
	Generate(ctx context.Context, prompt string) (string, error)
}

// New builds a client for the configured provider.
func New(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout()), nil
	case "moonshot":
		base := cfg.BaseURL
		if base == "" {
			base = "https://api.moonshot.cn/v1"
		}
		model := cfg.Model
		if model == "" {
			model = "moonshot-v1-32k"
		}
		return NewOpenAI(cfg.APIKey, base, model, cfg.Timeout()), nil
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.Timeout()), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// boundedCtx applies the client timeout on top of the caller's context.
func boundedCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
