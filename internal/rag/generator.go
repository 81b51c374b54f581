package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/nikhilbhutani/pdfchat/internal/llm"
	"github.com/nikhilbhutani/pdfchat/pkg/tokenizer"
)

type Outcome int

const (
	OutcomeGenerated Outcome = iota
	OutcomeFallback
	OutcomeNotConfigured
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGenerated:
		return "generated"
	case OutcomeFallback:
		return "fallback"
	default:
		return "not_configured"
	}
}

type Answer struct {
	Text    string
	Outcome Outcome
}

// ChatGateway is the part of llm.Gateway the generator needs.
type ChatGateway interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
	Configured(provider string) bool
}

type GeneratorConfig struct {
	Provider      string
	Model         string
	Temperature   float64
	MaxTokens     int
	CredentialEnv string
}

// Generator never returns an error. Provider failures become
// AnswerNotPresent and a missing credential is reported before any call.
type Generator struct {
	gateway ChatGateway
	cfg     GeneratorConfig
}

func NewGenerator(gw ChatGateway, cfg GeneratorConfig) *Generator {
	return &Generator{gateway: gw, cfg: cfg}
}

func (g *Generator) Generate(ctx context.Context, prompt string) Answer {
	if !g.gateway.Configured(g.cfg.Provider) {
		return Answer{Text: "Error: " + g.cfg.CredentialEnv + " not set.", Outcome: OutcomeNotConfigured}
	}

	resp, err := g.gateway.Chat(ctx, llm.ChatRequest{
		Provider:    g.cfg.Provider,
		Model:       g.cfg.Model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, llm.ErrProviderNotConfigured) {
			return Answer{Text: "Error: " + g.cfg.CredentialEnv + " not set.", Outcome: OutcomeNotConfigured}
		}
		slog.Warn("generation failed", "provider", g.cfg.Provider, "error", err)
		return Answer{Text: AnswerNotPresent, Outcome: OutcomeFallback}
	}

	slog.Debug("generated answer",
		"provider", resp.Provider,
		"model", resp.Model,
		"prompt_tokens_est", tokenizer.Estimate(prompt),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"latency_ms", resp.LatencyMs,
	)
	return Answer{Text: strings.TrimSpace(resp.Content), Outcome: OutcomeGenerated}
}
