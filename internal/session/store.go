// Package session keeps chat sessions, each bound to one document and
// holding its ordered message log.
package session

import (
	"context"
	"errors"

	"github.com/nikhilbhutani/pdfchat/internal/models"
)

var ErrNotFound = errors.New("session not found")

type Store interface {
	// Create starts an empty session bound to documentID.
	Create(ctx context.Context, documentID string) (*models.Session, error)
	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	// Append adds messages to the end of the log in the given order.
	Append(ctx context.Context, sessionID string, messages ...models.Message) error
	Ping(ctx context.Context) error
}
