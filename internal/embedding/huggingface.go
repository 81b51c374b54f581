package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HuggingFaceEmbedder calls a feature-extraction inference endpoint.
type HuggingFaceEmbedder struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewHuggingFaceEmbedder(url, apiKey string) *HuggingFaceEmbedder {
	return &HuggingFaceEmbedder{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type hfRequest struct {
	Inputs  any       `json:"inputs"`
	Options hfOptions `json:"options"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

func (h *HuggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := h.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (h *HuggingFaceEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(hfRequest{Inputs: text, Options: hfOptions{WaitForModel: true}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}
	return parseVector(raw)
}

// parseVector accepts a flat vector or a batch of vectors, in which case
// the first row is used.
func parseVector(raw []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) == 0 {
			return nil, errors.New("empty embedding")
		}
		return flat, nil
	}

	var nested [][]float32
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(nested) == 0 || len(nested[0]) == 0 {
		return nil, errors.New("empty embedding")
	}
	return nested[0], nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
