package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nikhilbhutani/pdfchat/internal/jsonfile"
	"github.com/nikhilbhutani/pdfchat/internal/models"
)

type chunkFile struct {
	Chunks []models.Chunk `json:"chunks"`
}

// JSONFileBackend keeps every chunk in one indented JSON document that is
// read and rewritten in full.
type JSONFileBackend struct {
	path string
	mu   sync.Mutex
}

func NewJSONFileBackend(path string) *JSONFileBackend {
	return &JSONFileBackend{path: path}
}

func (b *JSONFileBackend) LoadAll(ctx context.Context) ([]models.Chunk, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load()
}

func (b *JSONFileBackend) load() ([]models.Chunk, error) {
	var f chunkFile
	if _, err := jsonfile.Load(b.path, &f); err != nil {
		return nil, err
	}
	return f.Chunks, nil
}

func (b *JSONFileBackend) ReplaceDocument(ctx context.Context, documentID string, chunks []models.Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := b.load()
	if err != nil {
		return err
	}

	out := chunkFile{Chunks: make([]models.Chunk, 0, len(existing)+len(chunks))}
	for _, c := range existing {
		if c.DocumentID != documentID {
			out.Chunks = append(out.Chunks, c)
		}
	}
	out.Chunks = append(out.Chunks, chunks...)

	return jsonfile.Save(b.path, out)
}

// Ping checks that the storage directory exists or can be created.
func (b *JSONFileBackend) Ping(ctx context.Context) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage dir %s: %w", dir, err)
	}
	return nil
}
