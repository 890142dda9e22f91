package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sagarmv/wildtrail/internal/photo"
	"github.com/sagarmv/wildtrail/internal/vector"
)

type fakeStore struct {
	records []*photo.Record
}

func (s *fakeStore) FindAll() ([]*photo.Record, error) {
	return s.records, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type fakeIndex struct {
	matches []vector.Match
}

func (f *fakeIndex) Upsert(ctx context.Context, id string, embedding []float32, attrs vector.Attributes) error {
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, embedding []float32, limit int) ([]vector.Match, error) {
	return f.matches, nil
}

func (f *fakeIndex) DeleteByID(ctx context.Context, id string) error { return nil }

func (f *fakeIndex) DeleteByAttribute(ctx context.Context, name, value string) error { return nil }

func (f *fakeIndex) DeleteAll(ctx context.Context) error { return nil }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func catalog() []*photo.Record {
	return []*photo.Record{
		{
			ID:          "tiger",
			Subjects:    []string{"Bengal Tiger"},
			Colors:      []string{"Orange", "Black"},
			Patterns:    []string{"Stripes"},
			Season:      "Winter",
			CaptureTime: date(2026, time.January, 10),
			Place:       "Kanha National Park",
			Album:       "Kanha 2026",
		},
		{
			ID:          "peacock",
			Subjects:    []string{"Indian Peafowl"},
			Colors:      []string{"Blue", "Green"},
			Patterns:    []string{"Eyespots"},
			Season:      "Summer",
			CaptureTime: date(2025, time.June, 2),
			Place:       "Ranthambore",
			Album:       "Ranthambore 2025",
		},
		{
			ID:       "owl",
			Subjects: []string{"Spotted Owlet"},
			Colors:   []string{"Brown"},
			Patterns: []string{"Spots"},
			Season:   "Winter",
			Album:    "Backyard",
		},
	}
}

func TestSearch_NoCriteriaReturnsAll(t *testing.T) {
	engine := New(&fakeStore{records: catalog()}, &fakeIndex{}, fakeEmbedder{})

	results, err := engine.Search(context.Background(), photo.Criteria{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestSearch_SubjectSubstring(t *testing.T) {
	engine := New(&fakeStore{records: catalog()}, &fakeIndex{}, fakeEmbedder{})

	results, err := engine.Search(context.Background(), photo.Criteria{Subjects: []string{"tiger"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "tiger" {
		t.Errorf("results = %v, want just the tiger", ids(results))
	}
}

func TestSearch_FiltersAreANDed(t *testing.T) {
	engine := New(&fakeStore{records: catalog()}, &fakeIndex{}, fakeEmbedder{})

	// Winter matches tiger and owl; the pattern narrows it to the owl.
	results, err := engine.Search(context.Background(), photo.Criteria{
		Season:   "winter",
		Patterns: []string{"spots"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "owl" {
		t.Errorf("results = %v, want just the owl", ids(results))
	}
}

func TestSearch_DateRangeExcludesUnknownCaptureTime(t *testing.T) {
	engine := New(&fakeStore{records: catalog()}, &fakeIndex{}, fakeEmbedder{})

	results, err := engine.Search(context.Background(), photo.Criteria{
		DateFrom: date(2025, time.January, 1),
		DateTo:   date(2026, time.December, 31),
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// The owl has no capture time and must not match a date-bounded query.
	for _, rec := range results {
		if rec.ID == "owl" {
			t.Error("date-bounded query matched a record with no capture time")
		}
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestSearch_DateRangeIsInclusive(t *testing.T) {
	engine := New(&fakeStore{records: catalog()}, &fakeIndex{}, fakeEmbedder{})

	results, err := engine.Search(context.Background(), photo.Criteria{
		DateFrom: date(2026, time.January, 10),
		DateTo:   date(2026, time.January, 10),
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "tiger" {
		t.Errorf("results = %v, want the tiger captured on the boundary date", ids(results))
	}
}

func TestSearch_LocationSubstring(t *testing.T) {
	engine := New(&fakeStore{records: catalog()}, &fakeIndex{}, fakeEmbedder{})

	results, err := engine.Search(context.Background(), photo.Criteria{Location: "kanha"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "tiger" {
		t.Errorf("results = %v, want just the tiger", ids(results))
	}
}

func TestSearch_AlbumExactIgnoreCase(t *testing.T) {
	engine := New(&fakeStore{records: catalog()}, &fakeIndex{}, fakeEmbedder{})

	results, err := engine.Search(context.Background(), photo.Criteria{Album: "KANHA 2026"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "tiger" {
		t.Errorf("results = %v, want just the tiger", ids(results))
	}

	// Album matching is exact, not substring.
	results, err = engine.Search(context.Background(), photo.Criteria{Album: "Kanha"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("partial album name matched %v, want nothing", ids(results))
	}
}

func TestSearch_SemanticRestrictsToCandidates(t *testing.T) {
	index := &fakeIndex{matches: []vector.Match{{ID: "peacock", Distance: 0.1}}}
	engine := New(&fakeStore{records: catalog()}, index, fakeEmbedder{})

	results, err := engine.Search(context.Background(), photo.Criteria{SemanticQuery: "colorful bird"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "peacock" {
		t.Errorf("results = %v, want just the peacock candidate", ids(results))
	}
}

func TestSearch_SemanticPlusFilters(t *testing.T) {
	index := &fakeIndex{matches: []vector.Match{
		{ID: "tiger", Distance: 0.1},
		{ID: "peacock", Distance: 0.2},
	}}
	engine := New(&fakeStore{records: catalog()}, index, fakeEmbedder{})

	results, err := engine.Search(context.Background(), photo.Criteria{
		SemanticQuery: "striking animal",
		Season:        "Winter",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "tiger" {
		t.Errorf("results = %v, want just the winter candidate", ids(results))
	}
}

func TestSearch_ResultCap(t *testing.T) {
	var records []*photo.Record
	for i := 0; i < ResultLimit+10; i++ {
		records = append(records, &photo.Record{
			ID:       fmt.Sprintf("rec-%d", i),
			Subjects: []string{"Langur"},
		})
	}
	engine := New(&fakeStore{records: records}, &fakeIndex{}, fakeEmbedder{})

	results, err := engine.Search(context.Background(), photo.Criteria{Subjects: []string{"langur"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != ResultLimit {
		t.Errorf("got %d results, want the cap of %d", len(results), ResultLimit)
	}
}

func ids(records []*photo.Record) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.ID
	}
	return out
}
