package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/pdfchat/internal/config"
)

// Gateway routes calls to a named provider with bounded retry and an
// optional fallback provider.
type Gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	fallbackProvider string
	maxRetries       int
	timeout          time.Duration
	backoff          func(attempt int) time.Duration
}

// NewGateway registers every provider whose credential is present.
func NewGateway(cfg config.LLMConfig) *Gateway {
	g := NewGatewayWithProviders(cfg)

	if cfg.GroqKey != "" {
		g.Register(NewOpenAIProvider(config.ProviderGroq, cfg.GroqKey, cfg.GroqBaseURL))
	}
	if cfg.OpenAIKey != "" {
		g.Register(NewOpenAIProvider(config.ProviderOpenAI, cfg.OpenAIKey, cfg.OpenAIBaseURL))
	}
	if cfg.AnthropicKey != "" {
		g.Register(NewAnthropicProvider(cfg.AnthropicKey))
	}
	if cfg.OllamaURL != "" {
		g.Register(NewOllamaProvider(cfg.OllamaURL))
	}
	return g
}

// NewGatewayWithProviders builds a gateway around an explicit provider set.
func NewGatewayWithProviders(cfg config.LLMConfig, providers ...Provider) *Gateway {
	g := &Gateway{
		providers:        make(map[string]Provider),
		defaultProvider:  cfg.DefaultProvider,
		fallbackProvider: cfg.FallbackProvider,
		maxRetries:       cfg.MaxRetries,
		timeout:          cfg.Timeout,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 500 * time.Millisecond
		},
	}
	for _, p := range providers {
		g.Register(p)
	}
	return g
}

func (g *Gateway) Register(p Provider) {
	g.providers[p.Name()] = p
}

func (g *Gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotConfigured, name)
	}
	return p, nil
}

// Configured reports whether name, or the default provider when name is
// empty, has been registered.
func (g *Gateway) Configured(name string) bool {
	if name == "" {
		name = g.defaultProvider
	}
	_, ok := g.providers[name]
	return ok
}

func (g *Gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err != nil && g.fallbackProvider != "" && g.fallbackProvider != providerName && g.Configured(g.fallbackProvider) {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		// the model name belongs to the primary provider
		fallbackReq := req
		fallbackReq.Model = ""
		return g.chatWithRetry(ctx, g.fallbackProvider, fallbackReq)
	}
	return resp, err
}

func (g *Gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.backoff(attempt)):
			}
			slog.Debug("retrying LLM call", "provider", providerName, "attempt", attempt)
		}

		resp, err := g.call(ctx, func(ctx context.Context) (*ChatResponse, error) {
			return p.ChatCompletion(ctx, req)
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}

func (g *Gateway) call(ctx context.Context, fn func(context.Context) (*ChatResponse, error)) (*ChatResponse, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return fn(ctx)
}

func (g *Gateway) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	return p.GenerateEmbedding(ctx, req)
}
