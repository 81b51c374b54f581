package embedding

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/pdfchat/internal/llm"
)

// GatewayEmbedder embeds through a provider registered on the LLM gateway.
type GatewayEmbedder struct {
	gateway  *llm.Gateway
	provider string
	model    string
}

func NewGatewayEmbedder(gw *llm.Gateway, provider, model string) *GatewayEmbedder {
	return &GatewayEmbedder{gateway: gw, provider: provider, model: model}
}

func (g *GatewayEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := g.gateway.Embed(ctx, llm.EmbeddingRequest{
		Provider: g.provider,
		Model:    g.model,
		Input:    texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embed via %s: %w", g.provider, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed via %s: got %d vectors for %d inputs", g.provider, len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}
