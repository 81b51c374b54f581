package embedding

import (
	"context"
	"log/slog"
	"time"
)

type Status int

const (
	StatusOK Status = iota
	StatusUnavailable
)

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "unavailable"
}

// Result is either a vector with StatusOK or no vector with
// StatusUnavailable.
type Result struct {
	Vector []float32
	Status Status
}

func (r Result) OK() bool { return r.Status == StatusOK }

// Embedder turns texts into vectors, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Service absorbs provider failures: every call returns a Result and the
// failure is logged instead of returned.
type Service struct {
	embedder Embedder
	timeout  time.Duration
}

func NewService(e Embedder, timeout time.Duration) *Service {
	return &Service{embedder: e, timeout: timeout}
}

func (s *Service) Embed(ctx context.Context, text string) Result {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		slog.Warn("embedding unavailable", "error", err)
		return Result{Status: StatusUnavailable}
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		slog.Warn("embedding unavailable", "error", "empty vector")
		return Result{Status: StatusUnavailable}
	}
	return Result{Vector: vectors[0], Status: StatusOK}
}
