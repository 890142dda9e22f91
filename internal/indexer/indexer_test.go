package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sagarmv/wildtrail/internal/drive"
	"github.com/sagarmv/wildtrail/internal/photo"
	"github.com/sagarmv/wildtrail/internal/vector"
)

// fakeStore is an in-memory Store keyed by (path, source). created holds a
// value copy of each record as it was at Create time, so tests catch
// mutations made after persistence.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*photo.Record
	created []photo.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*photo.Record)}
}

func storeKey(path string, source photo.Source) string {
	return string(source) + "\x00" + path
}

func (s *fakeStore) Create(rec *photo.Record) (*photo.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey(rec.Path, rec.Source)
	if existing, ok := s.records[key]; ok {
		return existing, false, nil
	}
	s.records[key] = rec
	s.created = append(s.created, *rec)
	return rec, true, nil
}

func (s *fakeStore) FindByNaturalKey(path string, source photo.Source) (*photo.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[storeKey(path, source)], nil
}

func (s *fakeStore) DeleteByAlbum(album string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for key, rec := range s.records {
		if strings.EqualFold(rec.Album, album) {
			ids = append(ids, rec.ID)
			delete(s.records, key)
		}
	}
	return ids, nil
}

func (s *fakeStore) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*photo.Record)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakeIndex records vector operations.
type fakeIndex struct {
	mu         sync.Mutex
	upserts    map[string]vector.Attributes
	deleteErr  error
	deletedAll bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserts: make(map[string]vector.Attributes)}
}

func (f *fakeIndex) Upsert(ctx context.Context, id string, embedding []float32, attrs vector.Attributes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts[id] = attrs
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, embedding []float32, limit int) ([]vector.Match, error) {
	return nil, nil
}

func (f *fakeIndex) DeleteByID(ctx context.Context, id string) error { return nil }

func (f *fakeIndex) DeleteByAttribute(ctx context.Context, name, value string) error {
	return f.deleteErr
}

func (f *fakeIndex) DeleteAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedAll = true
	return nil
}

func (f *fakeIndex) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

// fakeAnalyzer implements analysis.Provider; failPaths marks files whose
// analysis returns an error.
type fakeAnalyzer struct {
	mu           sync.Mutex
	analyzeCalls int
	failPaths    map[string]bool
}

func (f *fakeAnalyzer) AnalyzeImage(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	f.analyzeCalls++
	f.mu.Unlock()
	if f.failPaths[path] {
		return "", errors.New("model unavailable")
	}
	return "SUBJECTS: Tiger\n\nDESCRIPTION: A tiger in grass.", nil
}

func (f *fakeAnalyzer) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeAnalyzer) GenerateCaption(ctx context.Context, rec *photo.Record) (string, error) {
	return "caption", nil
}

func (f *fakeAnalyzer) GenerateHashtags(ctx context.Context, rec *photo.Record) ([]string, error) {
	return []string{"wildlife"}, nil
}

func (f *fakeAnalyzer) Name() photo.ModelInfo {
	return photo.ModelInfo{Name: "fake", Kind: "vision"}
}

func (f *fakeAnalyzer) Health(ctx context.Context) error { return nil }

func (f *fakeAnalyzer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analyzeCalls
}

// writePNG writes a small valid PNG so content sniffing recognizes it.
func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func newTestPipeline(store Store, index vector.Index, provider *fakeAnalyzer, roots []string, progress ProgressFunc) *Pipeline {
	return New(store, index, provider, nil, Config{Roots: roots, BatchSize: 2}, progress)
}

func TestIndexLocalPhotos(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "tiger.png"))
	writePNG(t, filepath.Join(dir, "deer.png"))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a photo"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newFakeStore()
	index := newFakeIndex()
	provider := &fakeAnalyzer{}
	p := newTestPipeline(store, index, provider, []string{dir}, nil)

	records, stats, err := p.IndexLocalPhotos(context.Background())
	if err != nil {
		t.Fatalf("IndexLocalPhotos: %v", err)
	}

	if stats.Total != 2 || stats.New != 2 || stats.Skipped != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want total=2 new=2", *stats)
	}
	if len(records) != 2 {
		t.Errorf("returned %d records, want 2", len(records))
	}
	if store.count() != 2 {
		t.Errorf("store has %d records, want 2", store.count())
	}
	if index.upsertCount() != 2 {
		t.Errorf("index has %d upserts, want 2", index.upsertCount())
	}

	for _, rec := range records {
		if rec.Source != photo.SourceLocal {
			t.Errorf("Source = %q, want local", rec.Source)
		}
		if len(rec.Subjects) == 0 || rec.Subjects[0] != "Tiger" {
			t.Errorf("Subjects = %v, want [Tiger]", rec.Subjects)
		}
		if rec.Album != filepath.Base(dir) {
			t.Errorf("Album = %q, want %q", rec.Album, filepath.Base(dir))
		}
		if len(rec.Embedding) != 3 {
			t.Errorf("Embedding length = %d, want 3", len(rec.Embedding))
		}
	}
}

func TestIndexLocalPhotos_ExcludesSidecars(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "wildlife.png"))
	writePNG(t, filepath.Join(dir, "._wildlife.png"))

	store := newFakeStore()
	provider := &fakeAnalyzer{}
	p := newTestPipeline(store, newFakeIndex(), provider, []string{dir}, nil)

	_, stats, err := p.IndexLocalPhotos(context.Background())
	if err != nil {
		t.Fatalf("IndexLocalPhotos: %v", err)
	}
	if stats.Total != 1 {
		t.Errorf("Total = %d, want 1 (sidecar excluded)", stats.Total)
	}
	if provider.calls() != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls())
	}
}

func TestIndexLocalPhotos_SkipsAlreadyIndexed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiger.png")
	writePNG(t, path)

	store := newFakeStore()
	existing := &photo.Record{ID: "existing-id", Source: photo.SourceLocal, Path: path}
	store.records[storeKey(path, photo.SourceLocal)] = existing

	provider := &fakeAnalyzer{}
	p := newTestPipeline(store, newFakeIndex(), provider, []string{dir}, nil)

	records, stats, err := p.IndexLocalPhotos(context.Background())
	if err != nil {
		t.Fatalf("IndexLocalPhotos: %v", err)
	}
	if stats.Skipped != 1 || stats.New != 0 {
		t.Errorf("stats = %+v, want skipped=1 new=0", *stats)
	}
	if provider.calls() != 0 {
		t.Errorf("provider called %d times for a skipped photo, want 0", provider.calls())
	}
	if len(records) != 1 || records[0].ID != "existing-id" {
		t.Errorf("records = %v, want the existing record", records)
	}
}

func TestIndexLocalPhotos_CountsFailuresAndContinues(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	bad := filepath.Join(dir, "bad.png")
	writePNG(t, good)
	writePNG(t, bad)

	store := newFakeStore()
	provider := &fakeAnalyzer{failPaths: map[string]bool{bad: true}}
	p := newTestPipeline(store, newFakeIndex(), provider, []string{dir}, nil)

	_, stats, err := p.IndexLocalPhotos(context.Background())
	if err != nil {
		t.Fatalf("IndexLocalPhotos: %v", err)
	}
	if stats.Total != 2 || stats.New != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want total=2 new=1 failed=1", *stats)
	}
	if store.count() != 1 {
		t.Errorf("store has %d records, want 1", store.count())
	}
}

func TestIndexLocalPhotos_EmitsProgress(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	writePNG(t, filepath.Join(dir, "b.png"))
	writePNG(t, filepath.Join(dir, "c.png"))

	var mu sync.Mutex
	var events []Event
	progress := func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	p := newTestPipeline(newFakeStore(), newFakeIndex(), &fakeAnalyzer{}, []string{dir}, progress)
	if _, _, err := p.IndexLocalPhotos(context.Background()); err != nil {
		t.Fatalf("IndexLocalPhotos: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("got %d progress events, want 3", len(events))
	}
	seen := make(map[int]bool)
	for _, ev := range events {
		if ev.Total != 3 {
			t.Errorf("event Total = %d, want 3", ev.Total)
		}
		seen[ev.Current] = true
	}
	for i := 1; i <= 3; i++ {
		if !seen[i] {
			t.Errorf("no event with Current = %d", i)
		}
	}
}

func TestAnalyzePhoto_ReturnsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiger.png")
	writePNG(t, path)

	store := newFakeStore()
	existing := &photo.Record{ID: "existing-id", Source: photo.SourceLocal, Path: path}
	store.records[storeKey(path, photo.SourceLocal)] = existing

	provider := &fakeAnalyzer{}
	p := newTestPipeline(store, newFakeIndex(), provider, nil, nil)

	got, err := p.AnalyzePhoto(context.Background(), path)
	if err != nil {
		t.Fatalf("AnalyzePhoto: %v", err)
	}
	if got.ID != "existing-id" {
		t.Errorf("got id %q, want existing-id", got.ID)
	}
	if provider.calls() != 0 {
		t.Errorf("provider called %d times, want 0", provider.calls())
	}
}

func TestDeriveAlbum(t *testing.T) {
	sep := string(filepath.Separator)
	tests := []struct {
		path string
		want string
	}{
		{filepath.Join("photos", "Kanha 2026", "tiger.jpg"), "Kanha 2026"},
		{filepath.Join("photos", "Kanha 2026", "processed", "tiger.jpg"), "Kanha 2026"},
		{filepath.Join("photos", "Kanha 2026", "Backups", "staging", "tiger.jpg"), "Kanha 2026"},
		{"tiger.jpg", ""},
		{sep + "tiger.jpg", ""},
	}

	for _, tt := range tests {
		if got := deriveAlbum(tt.path); got != tt.want {
			t.Errorf("deriveAlbum(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestClearAlbum(t *testing.T) {
	store := newFakeStore()
	store.records["local\x00/a.jpg"] = &photo.Record{ID: "id-1", Album: "Kanha"}
	index := newFakeIndex()
	p := newTestPipeline(store, index, &fakeAnalyzer{}, nil, nil)

	if err := p.ClearAlbum(context.Background(), "kanha"); err != nil {
		t.Fatalf("ClearAlbum: %v", err)
	}
	if store.count() != 0 {
		t.Errorf("store has %d records after clear, want 0", store.count())
	}
}

func TestClearAlbum_VectorFailureSurfaces(t *testing.T) {
	index := newFakeIndex()
	index.deleteErr = errors.New("index offline")
	p := newTestPipeline(newFakeStore(), index, &fakeAnalyzer{}, nil, nil)

	if err := p.ClearAlbum(context.Background(), "Kanha"); err == nil {
		t.Error("ClearAlbum should surface a vector index failure")
	}
}

func TestClearAll(t *testing.T) {
	store := newFakeStore()
	store.records["local\x00/a.jpg"] = &photo.Record{ID: "id-1"}
	index := newFakeIndex()
	p := newTestPipeline(store, index, &fakeAnalyzer{}, nil, nil)

	if err := p.ClearAll(context.Background()); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if store.count() != 0 {
		t.Errorf("store has %d records, want 0", store.count())
	}
	if !index.deletedAll {
		t.Error("vector index DeleteAll was not called")
	}
}

func TestIndexCloudPhotos_RequiresDrive(t *testing.T) {
	p := newTestPipeline(newFakeStore(), newFakeIndex(), &fakeAnalyzer{}, nil, nil)
	if _, _, err := p.IndexCloudPhotos(context.Background()); err == nil {
		t.Error("IndexCloudPhotos without a drive client should error")
	}
}

func TestIndexLocalPhotos_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "tiger.png"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(newFakeStore(), newFakeIndex(), &fakeAnalyzer{}, []string{dir}, nil)
	if _, _, err := p.IndexLocalPhotos(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// newTestDrive serves a one-image drive over httptest: a token endpoint,
// a single listing page, and the image content.
func newTestDrive(t *testing.T, fileID, fileName string, content []byte) *drive.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/drive/root/children", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{{
				"id":   fileID,
				"name": fileName,
				"size": len(content),
				"file": map[string]string{"mimeType": "image/png"},
			}},
		})
	})
	mux.HandleFunc("/drive/items/"+fileID+"/content", func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return drive.NewClient(drive.Config{
		BaseURL:           ts.URL,
		TokenURL:          ts.URL + "/token",
		ClientID:          "test-client",
		ClientSecret:      "test-secret",
		RequestsPerSecond: 100,
	})
}

func TestIndexCloudPhotos_PersistsDriveIdentity(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	client := newTestDrive(t, "file-1", "tiger.jpg", buf.Bytes())

	store := newFakeStore()
	index := newFakeIndex()
	staging := t.TempDir()
	p := New(store, index, &fakeAnalyzer{}, client, Config{
		BatchSize:  2,
		StagingDir: staging,
	}, nil)

	records, stats, err := p.IndexCloudPhotos(context.Background())
	if err != nil {
		t.Fatalf("IndexCloudPhotos: %v", err)
	}
	if stats.Total != 1 || stats.New != 1 {
		t.Fatalf("stats = %+v, want total=1 new=1", *stats)
	}
	if len(records) != 1 {
		t.Fatalf("returned %d records, want 1", len(records))
	}

	if len(store.created) != 1 {
		t.Fatalf("store created %d records, want 1", len(store.created))
	}
	// The identity written to the store must be the drive file's, never
	// the staging copy's.
	persisted := store.created[0]
	if persisted.Path != "gdrive://file-1" {
		t.Errorf("persisted Path = %q, want gdrive://file-1", persisted.Path)
	}
	if persisted.Source != photo.SourceDrive {
		t.Errorf("persisted Source = %q, want %q", persisted.Source, photo.SourceDrive)
	}
	if persisted.Filename != "tiger.jpg" {
		t.Errorf("persisted Filename = %q, want tiger.jpg", persisted.Filename)
	}
	if persisted.Album != "" {
		t.Errorf("persisted Album = %q, want empty", persisted.Album)
	}

	leftover, err := os.ReadDir(staging)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(leftover) != 0 {
		t.Errorf("staging dir holds %d files after the run, want 0", len(leftover))
	}
}

func TestIndexCloudPhotos_SkipsAlreadyIndexed(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	client := newTestDrive(t, "file-1", "tiger.jpg", buf.Bytes())

	store := newFakeStore()
	existing := &photo.Record{ID: "existing-id", Source: photo.SourceDrive, Path: "gdrive://file-1"}
	store.records[storeKey("gdrive://file-1", photo.SourceDrive)] = existing

	provider := &fakeAnalyzer{}
	p := New(store, newFakeIndex(), provider, client, Config{StagingDir: t.TempDir()}, nil)

	records, stats, err := p.IndexCloudPhotos(context.Background())
	if err != nil {
		t.Fatalf("IndexCloudPhotos: %v", err)
	}
	if stats.Skipped != 1 || stats.New != 0 {
		t.Errorf("stats = %+v, want skipped=1 new=0", *stats)
	}
	if provider.calls() != 0 {
		t.Errorf("provider called %d times for a skipped file, want 0", provider.calls())
	}
	if len(records) != 1 || records[0].ID != "existing-id" {
		t.Errorf("records = %v, want the existing record", records)
	}
}
