package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nikhilbhutani/pdfchat/internal/document"
	"github.com/nikhilbhutani/pdfchat/internal/embedding"
	"github.com/nikhilbhutani/pdfchat/internal/models"
	"github.com/nikhilbhutani/pdfchat/internal/session"
	"github.com/nikhilbhutani/pdfchat/pkg/chunker"
	"github.com/nikhilbhutani/pdfchat/pkg/tokenizer"
)

var (
	ErrUnreadableDocument = errors.New("failed to read pdf")
	ErrNothingEmbedded    = errors.New("no chunks could be embedded")
)

type TextEmbedder interface {
	Embed(ctx context.Context, text string) embedding.Result
}

type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) Answer
}

// ChunkStore is the part of vectorstore.DocumentStore the pipeline uses.
type ChunkStore interface {
	ByDocument(documentID string) []models.Chunk
	NextID() int64
	ReplaceDocument(ctx context.Context, documentID string, chunks []models.Chunk) error
}

// Policy holds the retrieval constants.
type Policy struct {
	MinChunkWords        int
	TopK                 int
	MinScore             float64
	MaxChunksPerDocument int
}

type Pipeline struct {
	extractor document.TextExtractor
	chunker   *chunker.Chunker
	embedder  TextEmbedder
	generator AnswerGenerator
	store     ChunkStore
	sessions  session.Store
	policy    Policy

	// single writer to the document store
	ingestMu sync.Mutex
}

func NewPipeline(
	extractor document.TextExtractor,
	c *chunker.Chunker,
	embedder TextEmbedder,
	generator AnswerGenerator,
	store ChunkStore,
	sessions session.Store,
	policy Policy,
) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		chunker:   c,
		embedder:  embedder,
		generator: generator,
		store:     store,
		sessions:  sessions,
		policy:    policy,
	}
}

// Ingest replaces every chunk of documentID with the embedded chunks of
// data. It returns ErrUnreadableDocument without touching the store when
// the PDF cannot be read, and ErrNothingEmbedded after clearing the
// document when no chunk could be embedded.
func (p *Pipeline) Ingest(ctx context.Context, documentID string, data []byte) (int, error) {
	ctx = context.WithoutCancel(ctx)

	p.ingestMu.Lock()
	defer p.ingestMu.Unlock()

	start := time.Now()
	log := slog.With("document_id", documentID)

	pages, err := p.extractor.Extract(ctx, data)
	if err != nil {
		log.Error("pdf read failed", "error", err)
		return 0, fmt.Errorf("%w: %w", ErrUnreadableDocument, err)
	}

	texts := make([]string, len(pages))
	for i, page := range pages {
		texts[i] = page.Text
	}
	log.Info("pdf extracted", "pages", len(pages), "tokens_est", tokenizer.EstimateAll(texts...))

	var (
		chunks  []models.Chunk
		nextID  = p.store.NextID()
		skipped int
		tokens  int
	)

pages:
	for i, page := range pages {
		log.Info("processing page", "page", i+1, "total", len(pages))

		for _, cr := range PageChunks(p.chunker, page.Text, p.policy.MinChunkWords) {
			if len(chunks) >= p.policy.MaxChunksPerDocument {
				log.Warn("chunk limit reached", "limit", p.policy.MaxChunksPerDocument, "page", page.Number)
				break pages
			}
			res := p.embedder.Embed(ctx, cr.Content)
			if !res.OK() {
				skipped++
				continue
			}
			chunks = append(chunks, models.Chunk{
				ID:         nextID + int64(len(chunks)),
				DocumentID: documentID,
				Page:       page.Number,
				Text:       cr.Content,
				Embedding:  res.Vector,
			})
			tokens += cr.TokenCount
		}
	}

	if err := p.store.ReplaceDocument(ctx, documentID, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	log.Info("document ingested",
		"pages", len(pages),
		"chunks", len(chunks),
		"skipped", skipped,
		"tokens_est", tokens,
		"duration", time.Since(start),
	)

	if len(chunks) == 0 {
		return 0, ErrNothingEmbedded
	}
	return len(chunks), nil
}

type QueryResult struct {
	Answer    string
	Grounded  bool
	BestScore float64
}

// Query answers question from the chunks of the session's document and
// appends the exchange to the session. An unknown session or a document
// without chunks returns a fixed answer and changes nothing.
func (p *Pipeline) Query(ctx context.Context, sessionID, question string) (*QueryResult, error) {
	ctx = context.WithoutCancel(ctx)

	sess, err := p.sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return &QueryResult{Answer: AnswerInvalidSession}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	chunks := p.store.ByDocument(sess.DocumentID)
	if len(chunks) == 0 {
		return &QueryResult{Answer: AnswerNotProcessed}, nil
	}

	// an unavailable embedding scores 0 against everything and fails the gate
	q := p.embedder.Embed(ctx, question)

	retrieval := Gate(Score(q.Vector, chunks), p.policy.TopK, p.policy.MinScore)
	result := &QueryResult{Grounded: retrieval.Grounded, BestScore: retrieval.BestScore}

	if retrieval.Grounded {
		result.Answer = p.generator.Generate(ctx, BuildPrompt(retrieval.Context, question)).Text
	} else {
		result.Answer = AnswerNotPresent
	}

	slog.Info("query answered",
		"session_id", sessionID,
		"document_id", sess.DocumentID,
		"chunks", len(chunks),
		"best_score", retrieval.BestScore,
		"grounded", retrieval.Grounded,
		"embedding", q.Status.String(),
	)

	if err := p.sessions.Append(ctx, sessionID,
		models.Message{Role: models.RoleUser, Text: question},
		models.Message{Role: models.RoleAI, Text: result.Answer},
	); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return result, nil
}

// History returns the session's messages, or none for an unknown session.
func (p *Pipeline) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	sess, err := p.sessions.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess.Messages, nil
}

// NewChat starts a session bound to documentID.
func (p *Pipeline) NewChat(ctx context.Context, documentID string) (string, error) {
	sess, err := p.sessions.Create(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	slog.Info("session created", "session_id", sess.ID, "document_id", documentID)
	return sess.ID, nil
}
