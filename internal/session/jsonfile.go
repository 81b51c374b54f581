package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/pdfchat/internal/jsonfile"
	"github.com/nikhilbhutani/pdfchat/internal/models"
)

type sessionFile map[string]*models.Session

// JSONFileStore keeps all sessions in one JSON object keyed by session id.
// The file is read before and rewritten after every mutation.
type JSONFileStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

func (s *JSONFileStore) load() (sessionFile, error) {
	f := sessionFile{}
	if _, err := jsonfile.Load(s.path, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *JSONFileStore) Create(ctx context.Context, documentID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}

	sess := &models.Session{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Messages:   []models.Message{},
	}
	f[sess.ID] = sess

	if err := jsonfile.Save(s.path, f); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *JSONFileStore) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	sess, ok := f[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	sess.ID = sessionID
	if sess.Messages == nil {
		sess.Messages = []models.Message{}
	}
	return sess, nil
}

func (s *JSONFileStore) Append(ctx context.Context, sessionID string, messages ...models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	sess, ok := f[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.Messages = append(sess.Messages, messages...)

	return jsonfile.Save(s.path, f)
}

func (s *JSONFileStore) Ping(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage dir %s: %w", dir, err)
	}
	return nil
}
