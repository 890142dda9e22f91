// Package search combines vector-similarity retrieval with attribute
// filters over the photo catalog.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/sagarmv/wildtrail/internal/photo"
	"github.com/sagarmv/wildtrail/internal/vector"
)

const (
	// ResultLimit caps how many records a search returns.
	ResultLimit = 20

	// candidateLimit is how many nearest neighbors are considered for a
	// semantic query.
	candidateLimit = 50
)

// Store is the relational read access the engine needs.
type Store interface {
	FindAll() ([]*photo.Record, error)
}

// Embedder turns a query string into an embedding vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Engine answers hybrid (semantic + filtered) searches.
type Engine struct {
	store    Store
	index    vector.Index
	embedder Embedder
}

// New creates a search engine over the given stores.
func New(store Store, index vector.Index, embedder Embedder) *Engine {
	return &Engine{store: store, index: index, embedder: embedder}
}

// Search returns up to ResultLimit records matching every requested filter.
// With a semantic query, results are additionally restricted to the
// nearest-neighbor candidate set.
func (e *Engine) Search(ctx context.Context, criteria photo.Criteria) ([]*photo.Record, error) {
	var candidates map[string]bool
	if strings.TrimSpace(criteria.SemanticQuery) != "" {
		embedding, err := e.embedder.GenerateEmbedding(ctx, criteria.SemanticQuery)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		matches, err := e.index.Query(ctx, embedding, candidateLimit)
		if err != nil {
			return nil, fmt.Errorf("query vector index: %w", err)
		}
		candidates = make(map[string]bool, len(matches))
		for _, m := range matches {
			candidates[m.ID] = true
		}
	}

	// Full scan is acceptable at catalog scale; the filter semantics are
	// what matters.
	records, err := e.store.FindAll()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	// Candidate membership is an intersection with the other filters, so
	// every result is a candidate and the order stays the stable catalog
	// order.
	var results []*photo.Record
	for _, rec := range records {
		if !matches(rec, criteria) {
			continue
		}
		if candidates != nil && !candidates[rec.ID] {
			continue
		}
		results = append(results, rec)
	}

	if len(results) > ResultLimit {
		results = results[:ResultLimit]
	}
	return results, nil
}

// matches applies every requested filter as a logical AND.
func matches(rec *photo.Record, c photo.Criteria) bool {
	if len(c.Subjects) > 0 && !anySubstring(c.Subjects, rec.Subjects) {
		return false
	}
	if len(c.Colors) > 0 && !anySubstring(c.Colors, rec.Colors) {
		return false
	}
	if len(c.Patterns) > 0 && !anySubstring(c.Patterns, rec.Patterns) {
		return false
	}
	if c.Season != "" && !strings.EqualFold(c.Season, rec.Season) {
		return false
	}
	if c.DateFrom != nil || c.DateTo != nil {
		// Date-bounded queries only match records with a known capture
		// date.
		if rec.CaptureTime == nil {
			return false
		}
		if c.DateFrom != nil && rec.CaptureTime.Before(*c.DateFrom) {
			return false
		}
		if c.DateTo != nil && rec.CaptureTime.After(*c.DateTo) {
			return false
		}
	}
	if c.Location != "" && !strings.Contains(strings.ToLower(rec.Place), strings.ToLower(c.Location)) {
		return false
	}
	if c.Album != "" && !strings.EqualFold(c.Album, rec.Album) {
		return false
	}
	return true
}

// anySubstring reports whether any requested term is a case-insensitive
// substring of any of the record's values.
func anySubstring(terms, values []string) bool {
	for _, term := range terms {
		t := strings.ToLower(term)
		for _, value := range values {
			if strings.Contains(strings.ToLower(value), t) {
				return true
			}
		}
	}
	return false
}
