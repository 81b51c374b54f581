package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/nikhilbhutani/pdfchat/internal/models"
)

// PgVectorBackend stores chunks in the document_chunks table. Similarity is
// still computed in process over the loaded rows.
type PgVectorBackend struct {
	db *pgxpool.Pool
}

func NewPgVectorBackend(db *pgxpool.Pool) *PgVectorBackend {
	return &PgVectorBackend{db: db}
}

func (b *PgVectorBackend) LoadAll(ctx context.Context) ([]models.Chunk, error) {
	rows, err := b.db.Query(ctx,
		`SELECT id, document_id, page, content, embedding
		 FROM document_chunks
		 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var (
			c   models.Chunk
			vec pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Page, &c.Text, &vec); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (b *PgVectorBackend) ReplaceDocument(ctx context.Context, documentID string, chunks []models.Chunk) error {
	tx, err := b.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM document_chunks WHERE document_id = $1", documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO document_chunks (id, document_id, page, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)`,
			c.ID, documentID, c.Page, c.Text, pgvector.NewVector(c.Embedding),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (b *PgVectorBackend) Ping(ctx context.Context) error {
	return b.db.Ping(ctx)
}
