package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/nikhilbhutani/pdfchat/internal/models"
)

// Backend persists the full chunk collection.
type Backend interface {
	LoadAll(ctx context.Context) ([]models.Chunk, error)
	// ReplaceDocument deletes every chunk of documentID and stores chunks
	// in its place as one unit.
	ReplaceDocument(ctx context.Context, documentID string, chunks []models.Chunk) error
	Ping(ctx context.Context) error
}

// DocumentStore is the in-memory view of every stored chunk. It is
// mutated only through ReplaceDocument and re-read from the backend after
// each write.
type DocumentStore struct {
	backend Backend

	mu     sync.RWMutex
	chunks []models.Chunk
	nextID int64
}

func NewDocumentStore(backend Backend) *DocumentStore {
	return &DocumentStore{backend: backend, nextID: 1}
}

// Reload replaces the in-memory view with the backend's contents.
func (s *DocumentStore) Reload(ctx context.Context) error {
	chunks, err := s.backend.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}

	var maxID int64
	for _, c := range chunks {
		if c.ID > maxID {
			maxID = c.ID
		}
	}

	s.mu.Lock()
	s.chunks = chunks
	s.nextID = maxID + 1
	s.mu.Unlock()
	return nil
}

// ReplaceDocument drops every chunk of documentID, stores the given chunks
// and reloads. Chunks without an embedding are never written.
func (s *DocumentStore) ReplaceDocument(ctx context.Context, documentID string, chunks []models.Chunk) error {
	keep := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		c.DocumentID = documentID
		keep = append(keep, c)
	}

	if err := s.backend.ReplaceDocument(ctx, documentID, keep); err != nil {
		return fmt.Errorf("replace document %s: %w", documentID, err)
	}
	return s.Reload(ctx)
}

// ByDocument returns a copy of the chunks belonging to documentID in store
// order.
func (s *DocumentStore) ByDocument(documentID string) []models.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Chunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out
}

// NextID is one past the highest stored id, so ids freed by a replaced
// document are never handed out again while a higher one exists.
func (s *DocumentStore) NextID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}

func (s *DocumentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}
