// Package vector provides the nearest-neighbor index the pipeline writes
// photo embeddings to. The index is a remote service; it stores, per photo
// id, the embedding plus a few sidecar attributes used for bulk deletion
// and debugging.
package vector

import "context"

// Attributes are the sidecar fields stored next to each embedding.
type Attributes struct {
	Path        string
	Description string
	Subjects    []string
	Colors      []string
	Album       string
}

// Match is one nearest-neighbor result.
type Match struct {
	ID       string
	Distance float64
}

// Index is the vector store contract.
type Index interface {
	// Upsert stores or replaces the embedding and attributes for an id.
	Upsert(ctx context.Context, id string, embedding []float32, attrs Attributes) error

	// Query returns the ids of the limit nearest neighbors, closest first.
	Query(ctx context.Context, embedding []float32, limit int) ([]Match, error)

	// DeleteByID removes a single entry. Unknown ids are not an error.
	DeleteByID(ctx context.Context, id string) error

	// DeleteByAttribute removes every entry whose named sidecar attribute
	// equals value (case-insensitive). No matches is not an error.
	DeleteByAttribute(ctx context.Context, name, value string) error

	// DeleteAll removes every entry.
	DeleteAll(ctx context.Context) error
}
