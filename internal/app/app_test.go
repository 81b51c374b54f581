package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/internal/config"
	"github.com/nikhilbhutani/pdfchat/internal/embedding"
)

func TestNew_JSONBackends(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Dir = t.TempDir()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 0, a.Chunks.Count())
	assert.Contains(t, a.Checks, "chunks")
	assert.Contains(t, a.Checks, "sessions")

	id, err := a.Pipeline.NewChat(context.Background(), "doc")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cfg.Storage.Dir, "chat_history.json"))
	assert.NoError(t, err)

	res, err := a.Pipeline.Query(context.Background(), id, "anything")
	require.NoError(t, err)
	assert.Equal(t, "PDF not processed yet.", res.Answer)
}

func TestNew_CorruptChunkFile(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Dir = t.TempDir()
	require.NoError(t, os.WriteFile(cfg.DocumentsFile(), []byte("{"), 0o644))

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_InvalidChunker(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Dir = t.TempDir()
	cfg.RAG.ChunkOverlap = cfg.RAG.ChunkSize

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	cfg := config.Defaults()
	_, ok := newEmbedder(cfg, nil).(*embedding.HuggingFaceEmbedder)
	assert.True(t, ok)

	cfg.Embedding.Provider = config.ProviderOllama
	_, ok = newEmbedder(cfg, nil).(*embedding.GatewayEmbedder)
	assert.True(t, ok)
}
