package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/internal/document"
	"github.com/nikhilbhutani/pdfchat/internal/embedding"
	"github.com/nikhilbhutani/pdfchat/internal/models"
	"github.com/nikhilbhutani/pdfchat/internal/session"
	"github.com/nikhilbhutani/pdfchat/internal/vectorstore"
	"github.com/nikhilbhutani/pdfchat/pkg/chunker"
	"github.com/nikhilbhutani/pdfchat/pkg/tokenizer"
)

type fakeExtractor struct {
	pages []document.Page
	err   error
}

func (f fakeExtractor) Extract(context.Context, []byte) ([]document.Page, error) {
	return f.pages, f.err
}

// keywordEmbedder maps "apple" and "banana" texts to orthogonal vectors.
type keywordEmbedder struct {
	down  bool
	calls int
}

func (k *keywordEmbedder) Embed(_ context.Context, text string) embedding.Result {
	k.calls++
	if k.down {
		return embedding.Result{Status: embedding.StatusUnavailable}
	}
	switch {
	case strings.Contains(text, "apple"):
		return embedding.Result{Vector: []float32{1, 0, 0}}
	case strings.Contains(text, "banana"):
		return embedding.Result{Vector: []float32{0, 1, 0}}
	default:
		return embedding.Result{Vector: []float32{0, 0, 1}}
	}
}

type recordingGenerator struct {
	answer  string
	calls   int
	prompts []string
}

func (r *recordingGenerator) Generate(_ context.Context, prompt string) Answer {
	r.calls++
	r.prompts = append(r.prompts, prompt)
	return Answer{Text: r.answer, Outcome: OutcomeGenerated}
}

// page returns text of n words around one keyword.
func page(keyword string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	words[n/2] = keyword
	return strings.Join(words, " ")
}

type harness struct {
	dir       string
	pipeline  *Pipeline
	store     *vectorstore.DocumentStore
	sessions  *session.JSONFileStore
	embedder  *keywordEmbedder
	generator *recordingGenerator
	extractor *fakeExtractor
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	dir := t.TempDir()

	store := vectorstore.NewDocumentStore(vectorstore.NewJSONFileBackend(filepath.Join(dir, "documents.json")))
	require.NoError(t, store.Reload(context.Background()))

	c, err := chunker.New(chunker.DefaultOptions())
	require.NoError(t, err)

	h := &harness{
		dir:       dir,
		store:     store,
		sessions:  session.NewJSONFileStore(filepath.Join(dir, "chat_history.json")),
		embedder:  &keywordEmbedder{},
		generator: &recordingGenerator{answer: "Apples are red."},
		extractor: &fakeExtractor{},
	}
	h.pipeline = NewPipeline(h.extractor, c, h.embedder, h.generator, store, h.sessions, policy)
	return h
}

func defaultPolicy() Policy {
	return Policy{MinChunkWords: 30, TopK: 8, MinScore: 0.28, MaxChunksPerDocument: 20000}
}

func (h *harness) pages(texts ...string) {
	h.extractor.pages = nil
	for i, text := range texts {
		h.extractor.pages = append(h.extractor.pages, document.Page{Number: i + 1, Text: text})
	}
}

func TestIngest_StoresChunks(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	h.pages(page("apple", 60), page("banana", 60))

	n, err := h.pipeline.Ingest(context.Background(), "doc", []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	chunks := h.store.ByDocument("doc")
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[1].Page)
	assert.Less(t, chunks[0].ID, chunks[1].ID)
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestIngest_LogsExtractedTokenEstimate(t *testing.T) {
	logs := captureLogs(t)
	h := newHarness(t, defaultPolicy())
	texts := []string{page("apple", 60), page("banana", 90)}
	h.pages(texts...)

	_, err := h.pipeline.Ingest(context.Background(), "doc", []byte("pdf"))
	require.NoError(t, err)

	var extracted map[string]any
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "pdf extracted" {
			extracted = entry
		}
	}
	require.NotNil(t, extracted)
	assert.Equal(t, "doc", extracted["document_id"])
	assert.EqualValues(t, 2, extracted["pages"])
	assert.EqualValues(t, tokenizer.EstimateAll(texts...), extracted["tokens_est"])
	assert.EqualValues(t, 200, extracted["tokens_est"])
}

func TestIngest_ReingestReplaces(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	h.pages(page("apple", 60), page("banana", 400))

	first, err := h.pipeline.Ingest(ctx, "doc", nil)
	require.NoError(t, err)
	second, err := h.pipeline.Ingest(ctx, "doc", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, h.store.ByDocument("doc"), first)
	assert.Equal(t, first, h.store.Count())
}

func TestIngest_LeavesOtherDocuments(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())

	h.pages(page("apple", 60))
	_, err := h.pipeline.Ingest(ctx, "a", nil)
	require.NoError(t, err)

	h.pages(page("banana", 60))
	_, err = h.pipeline.Ingest(ctx, "b", nil)
	require.NoError(t, err)

	a, b := h.store.ByDocument("a"), h.store.ByDocument("b")
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Greater(t, b[0].ID, a[0].ID)
}

func TestIngest_UnreadableKeepsPriorChunks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	h.pages(page("apple", 60))
	_, err := h.pipeline.Ingest(ctx, "doc", nil)
	require.NoError(t, err)

	h.extractor.err = errors.New("malformed xref")
	_, err = h.pipeline.Ingest(ctx, "doc", nil)

	assert.ErrorIs(t, err, ErrUnreadableDocument)
	assert.Len(t, h.store.ByDocument("doc"), 1)
}

func TestIngest_NothingEmbedded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	h.pages(page("apple", 60))
	_, err := h.pipeline.Ingest(ctx, "doc", nil)
	require.NoError(t, err)

	h.embedder.down = true
	n, err := h.pipeline.Ingest(ctx, "doc", nil)

	assert.ErrorIs(t, err, ErrNothingEmbedded)
	assert.Zero(t, n)
	assert.Empty(t, h.store.ByDocument("doc"))
}

func TestIngest_ShortPagesYieldNothing(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	h.pages("too short to matter", page("apple", 20))

	_, err := h.pipeline.Ingest(context.Background(), "doc", nil)

	assert.ErrorIs(t, err, ErrNothingEmbedded)
	assert.Zero(t, h.embedder.calls)
}

func TestIngest_ChunkCapStopsPages(t *testing.T) {
	policy := defaultPolicy()
	policy.MaxChunksPerDocument = 2
	h := newHarness(t, policy)
	h.pages(page("apple", 60), page("banana", 60), page("cherry", 60), page("date", 60))

	n, err := h.pipeline.Ingest(context.Background(), "doc", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, h.embedder.calls)
	for _, c := range h.store.ByDocument("doc") {
		assert.LessOrEqual(t, c.Page, 2)
	}
}

func TestIngest_CancelledRequestStillCompletes(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	h.pages(page("apple", 60))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := h.pipeline.Ingest(ctx, "doc", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func newSession(t *testing.T, h *harness, documentID string) string {
	t.Helper()
	id, err := h.pipeline.NewChat(context.Background(), documentID)
	require.NoError(t, err)
	return id
}

func messages(t *testing.T, h *harness, sessionID string) []models.Message {
	t.Helper()
	msgs, err := h.pipeline.History(context.Background(), sessionID)
	require.NoError(t, err)
	return msgs
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestQuery_InvalidSession(t *testing.T) {
	h := newHarness(t, defaultPolicy())

	res, err := h.pipeline.Query(context.Background(), "nope", "anything?")
	require.NoError(t, err)

	assert.Equal(t, AnswerInvalidSession, res.Answer)
	assert.Zero(t, h.embedder.calls)
	assert.Zero(t, h.generator.calls)
	assert.NoFileExists(t, filepath.Join(h.dir, "documents.json"))
	assert.NoFileExists(t, filepath.Join(h.dir, "chat_history.json"))
}

func TestQuery_InvalidSessionLeavesStoresUntouched(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	h.pages(page("apple", 60))
	_, err := h.pipeline.Ingest(context.Background(), "doc", []byte("pdf"))
	require.NoError(t, err)
	newSession(t, h, "doc")

	docsPath := filepath.Join(h.dir, "documents.json")
	historyPath := filepath.Join(h.dir, "chat_history.json")
	docsBefore, historyBefore := readFile(t, docsPath), readFile(t, historyPath)
	embedCalls := h.embedder.calls

	res, err := h.pipeline.Query(context.Background(), "nope", "what about apple?")
	require.NoError(t, err)

	assert.Equal(t, AnswerInvalidSession, res.Answer)
	assert.Equal(t, embedCalls, h.embedder.calls)
	assert.Zero(t, h.generator.calls)
	assert.Equal(t, docsBefore, readFile(t, docsPath))
	assert.Equal(t, historyBefore, readFile(t, historyPath))
	assert.Len(t, h.store.ByDocument("doc"), 1)
}

func TestQuery_NotProcessed(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	sid := newSession(t, h, "unprocessed")

	res, err := h.pipeline.Query(context.Background(), sid, "what about apple?")
	require.NoError(t, err)

	assert.Equal(t, AnswerNotProcessed, res.Answer)
	assert.Zero(t, h.generator.calls)
	assert.Empty(t, messages(t, h, sid))
}

func TestQuery_BelowThreshold(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	h.pages(page("apple", 60), page("banana", 60))
	_, err := h.pipeline.Ingest(ctx, "doc", nil)
	require.NoError(t, err)
	sid := newSession(t, h, "doc")

	res, err := h.pipeline.Query(ctx, sid, "tell me about cherries")
	require.NoError(t, err)

	assert.Equal(t, AnswerNotPresent, res.Answer)
	assert.False(t, res.Grounded)
	assert.Zero(t, h.generator.calls)
	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Text: "tell me about cherries"},
		{Role: models.RoleAI, Text: AnswerNotPresent},
	}, messages(t, h, sid))
}

func TestQuery_EmbeddingUnavailable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	h.pages(page("apple", 60))
	_, err := h.pipeline.Ingest(ctx, "doc", nil)
	require.NoError(t, err)
	sid := newSession(t, h, "doc")

	h.embedder.down = true
	res, err := h.pipeline.Query(ctx, sid, "apple?")
	require.NoError(t, err)

	assert.Equal(t, AnswerNotPresent, res.Answer)
	assert.Zero(t, h.generator.calls)
}

func TestQuery_Grounded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, defaultPolicy())
	h.pages(page("apple", 60), page("banana", 60))
	_, err := h.pipeline.Ingest(ctx, "doc", nil)
	require.NoError(t, err)
	sid := newSession(t, h, "doc")

	res, err := h.pipeline.Query(ctx, sid, "what colour is an apple")
	require.NoError(t, err)

	assert.True(t, res.Grounded)
	assert.Equal(t, "Apples are red.", res.Answer)
	require.Equal(t, 1, h.generator.calls)

	prompt := h.generator.prompts[0]
	assert.Contains(t, prompt, "Question:\nwhat colour is an apple\n")
	appleIdx := strings.Index(prompt, "apple w31")
	bananaIdx := strings.Index(prompt, "banana w31")
	require.NotEqual(t, -1, appleIdx)
	require.NotEqual(t, -1, bananaIdx)
	assert.Less(t, appleIdx, bananaIdx, "context ordered by similarity")

	second, err := h.pipeline.Query(ctx, sid, "and bananas")
	require.NoError(t, err)

	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Text: "what colour is an apple"},
		{Role: models.RoleAI, Text: "Apples are red."},
		{Role: models.RoleUser, Text: "and bananas"},
		{Role: models.RoleAI, Text: second.Answer},
	}, messages(t, h, sid))
}

func TestQuery_ContextLimitedToTopK(t *testing.T) {
	ctx := context.Background()
	policy := defaultPolicy()
	policy.TopK = 2
	h := newHarness(t, policy)
	h.pages(page("apple", 60), page("apple", 61), page("apple", 62), page("banana", 60))
	_, err := h.pipeline.Ingest(ctx, "doc", nil)
	require.NoError(t, err)
	sid := newSession(t, h, "doc")

	_, err = h.pipeline.Query(ctx, sid, "apple")
	require.NoError(t, err)

	require.Len(t, h.generator.prompts, 1)
	ctxBlock := h.generator.prompts[0]
	ctxBlock = ctxBlock[strings.Index(ctxBlock, "Context:\n")+len("Context:\n") : strings.Index(ctxBlock, "\n\nQuestion:")]
	assert.Len(t, strings.Split(ctxBlock, "\n\n"), 2)
	assert.NotContains(t, ctxBlock, "banana")
}

func TestHistory_UnknownSession(t *testing.T) {
	h := newHarness(t, defaultPolicy())
	msgs, err := h.pipeline.History(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}
