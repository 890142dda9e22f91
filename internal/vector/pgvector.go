package vector

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Ensure PGIndex implements Index at compile time
var _ Index = (*PGIndex)(nil)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
)

// PGIndex is a pgvector-backed Index. The store is treated as a remote
// service that may be transiently unavailable at process start, so Connect
// retries with exponential backoff before giving up.
type PGIndex struct {
	pool *pgxpool.Pool
	dim  int
}

// Connect opens a pgvector-backed index, creating the schema if needed.
// dim is the embedding dimensionality; it is fixed per deployment.
func Connect(ctx context.Context, dsn string, dim int) (*PGIndex, error) {
	var pool *pgxpool.Pool
	var err error

	backoff := connectBackoff
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pool, err = pgxpool.New(ctx, dsn)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				break
			}
			pool.Close()
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("connect vector store after %d attempts: %w", connectAttempts, err)
		}
		log.Printf("Vector store unavailable (attempt %d/%d): %v, retrying in %v", attempt, connectAttempts, err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	idx := &PGIndex{pool: pool, dim: dim}
	if err := idx.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init vector schema: %w", err)
	}
	return idx, nil
}

// Close releases the connection pool.
func (p *PGIndex) Close() {
	p.pool.Close()
}

func (p *PGIndex) initSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS photo_vectors (
		id TEXT PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		path TEXT NOT NULL,
		description TEXT,
		subjects TEXT[],
		colors TEXT[],
		album TEXT
	)`, p.dim)
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	_, err := p.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_photo_vectors_album ON photo_vectors (lower(album))`)
	return err
}

// Upsert stores or replaces the embedding and attributes for an id.
func (p *PGIndex) Upsert(ctx context.Context, id string, embedding []float32, attrs Attributes) error {
	if len(embedding) != p.dim {
		return fmt.Errorf("embedding has %d dimensions, index expects %d", len(embedding), p.dim)
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO photo_vectors (id, embedding, path, description, subjects, colors, album)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			embedding = excluded.embedding,
			path = excluded.path,
			description = excluded.description,
			subjects = excluded.subjects,
			colors = excluded.colors,
			album = excluded.album
	`, id, pgvector.NewVector(embedding), attrs.Path, attrs.Description, attrs.Subjects, attrs.Colors, attrs.Album)
	if err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	return nil
}

// Query returns the limit nearest neighbors by cosine distance.
func (p *PGIndex) Query(ctx context.Context, embedding []float32, limit int) ([]Match, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, embedding <=> $1 AS distance
		FROM photo_vectors
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteByID removes a single entry.
func (p *PGIndex) DeleteByID(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM photo_vectors WHERE id = $1`, id)
	return err
}

// deletable sidecar attributes; anything else is rejected rather than
// interpolated into SQL.
var attributeColumns = map[string]string{
	"path":  "path",
	"album": "album",
}

// DeleteByAttribute removes every entry whose sidecar attribute equals
// value, case-insensitively.
func (p *PGIndex) DeleteByAttribute(ctx context.Context, name, value string) error {
	column, ok := attributeColumns[name]
	if !ok {
		return fmt.Errorf("unknown vector attribute: %s", name)
	}
	query := fmt.Sprintf(`DELETE FROM photo_vectors WHERE lower(%s) = lower($1)`, column)
	if _, err := p.pool.Exec(ctx, query, value); err != nil {
		return fmt.Errorf("delete by %s: %w", name, err)
	}
	return nil
}

// DeleteAll removes every entry.
func (p *PGIndex) DeleteAll(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM photo_vectors`)
	return err
}
