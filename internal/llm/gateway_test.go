package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/internal/config"
)

type fakeProvider struct {
	name    string
	answers []string
	errs    []error
	calls   int
	lastReq ChatRequest
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ChatCompletion(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	i := f.calls
	f.calls++
	f.lastReq = req
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	answer := ""
	if i < len(f.answers) {
		answer = f.answers[i]
	}
	return &ChatResponse{Provider: f.name, Content: answer}, nil
}

func (f *fakeProvider) GenerateEmbedding(_ context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	out := make([][]float32, len(req.Input))
	for i := range out {
		out[i] = []float32{float32(i + 1)}
	}
	return &EmbeddingResponse{Provider: f.name, Embeddings: out}, nil
}

func newTestGateway(cfg config.LLMConfig, providers ...Provider) *Gateway {
	g := NewGatewayWithProviders(cfg, providers...)
	g.backoff = func(int) time.Duration { return 0 }
	return g
}

func TestGateway_DefaultProvider(t *testing.T) {
	groq := &fakeProvider{name: "groq", answers: []string{"hello"}}
	g := newTestGateway(config.LLMConfig{DefaultProvider: "groq"}, groq)

	resp, err := g.Chat(context.Background(), ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "m", groq.lastReq.Model)
}

func TestGateway_NotConfigured(t *testing.T) {
	g := newTestGateway(config.LLMConfig{DefaultProvider: "groq"})

	assert.False(t, g.Configured(""))
	_, err := g.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	_, err = g.Embed(context.Background(), EmbeddingRequest{Provider: "ollama"})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestGateway_RetriesThenSucceeds(t *testing.T) {
	groq := &fakeProvider{
		name:    "groq",
		errs:    []error{errors.New("503"), nil},
		answers: []string{"", "second try"},
	}
	g := newTestGateway(config.LLMConfig{DefaultProvider: "groq", MaxRetries: 1}, groq)

	resp, err := g.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "second try", resp.Content)
	assert.Equal(t, 2, groq.calls)
}

func TestGateway_RetriesExhausted(t *testing.T) {
	boom := errors.New("down")
	groq := &fakeProvider{name: "groq", errs: []error{boom, boom, boom}}
	g := newTestGateway(config.LLMConfig{DefaultProvider: "groq", MaxRetries: 2}, groq)

	_, err := g.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, groq.calls)
}

func TestGateway_Fallback(t *testing.T) {
	groq := &fakeProvider{name: "groq", errs: []error{errors.New("down")}}
	ollama := &fakeProvider{name: "ollama", answers: []string{"local answer"}}
	g := newTestGateway(config.LLMConfig{DefaultProvider: "groq", FallbackProvider: "ollama"}, groq, ollama)

	resp, err := g.Chat(context.Background(), ChatRequest{Model: "llama3-8b-8192"})
	require.NoError(t, err)
	assert.Equal(t, "local answer", resp.Content)
	assert.Empty(t, ollama.lastReq.Model)
}

func TestGateway_FallbackNotRegistered(t *testing.T) {
	boom := errors.New("down")
	groq := &fakeProvider{name: "groq", errs: []error{boom}}
	g := newTestGateway(config.LLMConfig{DefaultProvider: "groq", FallbackProvider: "ollama"}, groq)

	_, err := g.Chat(context.Background(), ChatRequest{})
	assert.ErrorIs(t, err, boom)
}

func TestGateway_Embed(t *testing.T) {
	g := newTestGateway(config.LLMConfig{DefaultProvider: "ollama"}, &fakeProvider{name: "ollama"})

	resp, err := g.Embed(context.Background(), EmbeddingRequest{Input: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}}, resp.Embeddings)
}

func TestNewGateway_RegistersByCredential(t *testing.T) {
	g := NewGateway(config.LLMConfig{
		DefaultProvider: config.ProviderGroq,
		GroqKey:         "gsk",
		OllamaURL:       "http://localhost:11434",
	})

	assert.True(t, g.Configured(""))
	assert.True(t, g.Configured(config.ProviderOllama))
	assert.False(t, g.Configured(config.ProviderOpenAI))
	assert.False(t, g.Configured(config.ProviderAnthropic))
}
