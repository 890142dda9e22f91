// Package indexer drives the photo indexing pipeline: discovery, analysis,
// and persistence to the relational store and the vector index.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sagarmv/wildtrail/internal/analysis"
	"github.com/sagarmv/wildtrail/internal/drive"
	"github.com/sagarmv/wildtrail/internal/imagemeta"
	"github.com/sagarmv/wildtrail/internal/photo"
	"github.com/sagarmv/wildtrail/internal/vector"
)

const (
	// DefaultBatchSize is how many photos are analyzed concurrently.
	DefaultBatchSize = 5

	// MaxProcessDimension is the largest pixel dimension sent for
	// analysis; bigger photos are downscaled to a temporary copy first.
	MaxProcessDimension = 2048

	// sidecarPrefix marks platform companion files (macOS resource forks)
	// that are excluded from indexing entirely.
	sidecarPrefix = "._"

	defaultPageSize  = 50
	defaultPageDelay = 500 * time.Millisecond
)

// stagingFolders are directory names that are unwrapped when deriving a
// photo's album from its parent directory.
var stagingFolders = map[string]bool{
	"processed": true,
	"backups":   true,
	"backup":    true,
	"staging":   true,
}

// Store is the relational persistence the pipeline needs.
type Store interface {
	Create(rec *photo.Record) (*photo.Record, bool, error)
	FindByNaturalKey(path string, source photo.Source) (*photo.Record, error)
	DeleteByAlbum(album string) ([]string, error)
	DeleteAll() error
}

// Stats holds indexing statistics.
type Stats struct {
	Total   int `json:"total"`
	New     int `json:"new"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Event is emitted once per processed file.
type Event struct {
	Current int   `json:"current"`
	Total   int   `json:"total"`
	Stats   Stats `json:"stats"`
}

// ProgressFunc receives progress events during an indexing run.
type ProgressFunc func(Event)

// Config tunes the pipeline.
type Config struct {
	Roots        []string
	BatchSize    int
	MaxDimension int
	StagingDir   string
	PageSize     int
	PageDelay    time.Duration
}

// Pipeline turns raw image files into enriched, persisted, searchable
// records. All collaborators are passed in at construction.
type Pipeline struct {
	store    Store
	index    vector.Index
	provider analysis.Provider
	drive    *drive.Client
	cfg      Config
	progress ProgressFunc
}

// New creates a Pipeline. drive may be nil when no cloud source is
// configured; progress may be nil.
func New(store Store, index vector.Index, provider analysis.Provider, driveClient *drive.Client, cfg Config, progress ProgressFunc) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = MaxProcessDimension
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = defaultPageDelay
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(os.TempDir(), "wildtrail-staging")
	}
	return &Pipeline{
		store:    store,
		index:    index,
		provider: provider,
		drive:    driveClient,
		cfg:      cfg,
		progress: progress,
	}
}

func (p *Pipeline) emit(ev Event) {
	if p.progress != nil {
		p.progress(ev)
	}
}

// IndexLocalPhotos enumerates image files under the configured roots and
// indexes each one. Already-indexed photos are skipped without re-analysis;
// per-file failures are counted and never abort the run. Returns every
// record obtained (existing and new).
func (p *Pipeline) IndexLocalPhotos(ctx context.Context) ([]*photo.Record, *Stats, error) {
	paths, err := p.discover()
	if err != nil {
		return nil, nil, err
	}

	stats := &Stats{Total: len(paths)}
	var records []*photo.Record
	var mu sync.Mutex
	current := 0

	for start := 0; start < len(paths); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(paths) {
			end = len(paths)
		}

		// The whole batch runs concurrently; the next batch does not
		// start until every item here has resolved.
		g, gctx := errgroup.WithContext(ctx)
		for _, path := range paths[start:end] {
			g.Go(func() error {
				// Per-file failures are counted, never fatal; only a
				// canceled run aborts.
				if err := gctx.Err(); err != nil {
					return err
				}
				rec, outcome := p.indexOne(gctx, path)

				mu.Lock()
				switch outcome {
				case outcomeNew:
					stats.New++
				case outcomeSkipped:
					stats.Skipped++
				case outcomeFailed:
					stats.Failed++
				}
				if rec != nil {
					records = append(records, rec)
				}
				current++
				ev := Event{Current: current, Total: stats.Total, Stats: *stats}
				mu.Unlock()

				p.emit(ev)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return records, stats, err
		}
	}

	log.Printf("Index complete: %d total, %d new, %d skipped, %d failed",
		stats.Total, stats.New, stats.Skipped, stats.Failed)
	return records, stats, nil
}

type outcome int

const (
	outcomeNew outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (p *Pipeline) indexOne(ctx context.Context, path string) (*photo.Record, outcome) {
	existing, err := p.store.FindByNaturalKey(path, photo.SourceLocal)
	if err != nil {
		log.Printf("Error checking %s: %v", path, err)
		return nil, outcomeFailed
	}
	if existing != nil {
		return existing, outcomeSkipped
	}

	rec, err := p.analyzeAndPersist(ctx, path, photo.SourceLocal, path, filepath.Base(path), deriveAlbum(path))
	if err != nil {
		log.Printf("Error analyzing %s: %v", path, err)
		return nil, outcomeFailed
	}
	return rec, outcomeNew
}

// discover walks the configured roots collecting indexable image paths.
// An unreadable directory aborts only that directory, not the run.
func (p *Pipeline) discover() ([]string, error) {
	var paths []string
	for _, root := range p.cfg.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Printf("Warning: skipping %s: %v", path, err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, sidecarPrefix) {
				return nil
			}
			if isImageFile(path) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return paths, nil
}

// isImageFile sniffs the file's content type rather than trusting its
// extension.
func isImageFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(buf[:n]), "image/")
}

// IndexCloudPhotos enumerates the remote drive page by page, staging each
// image locally for analysis. Individual file failures are logged and
// skipped; a short delay between pages avoids overwhelming the remote API.
func (p *Pipeline) IndexCloudPhotos(ctx context.Context) ([]*photo.Record, *Stats, error) {
	if p.drive == nil {
		return nil, nil, fmt.Errorf("no cloud drive configured")
	}
	if err := os.MkdirAll(p.cfg.StagingDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create staging dir: %w", err)
	}

	stats := &Stats{}
	var records []*photo.Record
	firstPage := true

	err := p.drive.Pages(ctx, p.cfg.PageSize, func(files []drive.File) error {
		if !firstPage {
			select {
			case <-time.After(p.cfg.PageDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		firstPage = false

		for _, file := range files {
			stats.Total++
			logicalPath := string(photo.SourceDrive) + "://" + file.ID

			existing, err := p.store.FindByNaturalKey(logicalPath, photo.SourceDrive)
			if err != nil {
				log.Printf("Error checking %s: %v", logicalPath, err)
				stats.Failed++
				continue
			}
			if existing != nil {
				stats.Skipped++
				records = append(records, existing)
				p.emit(Event{Current: stats.Total, Total: stats.Total, Stats: *stats})
				continue
			}

			rec, err := p.indexDriveFile(ctx, file, logicalPath)
			if err != nil {
				log.Printf("Error indexing drive file %s (%s): %v", file.ID, file.Name, err)
				stats.Failed++
			} else {
				stats.New++
				records = append(records, rec)
			}
			p.emit(Event{Current: stats.Total, Total: stats.Total, Stats: *stats})
		}
		return nil
	})
	if err != nil {
		return records, stats, fmt.Errorf("enumerate drive: %w", err)
	}

	log.Printf("Cloud index complete: %d total, %d new, %d skipped, %d failed",
		stats.Total, stats.New, stats.Skipped, stats.Failed)
	return records, stats, nil
}

// indexDriveFile stages a remote file locally for analysis. The persisted
// record carries the drive file's display name and no album; the staging
// path never leaks into record metadata.
func (p *Pipeline) indexDriveFile(ctx context.Context, file drive.File, logicalPath string) (*photo.Record, error) {
	staged := filepath.Join(p.cfg.StagingDir, file.ID+"_"+filepath.Base(file.Name))
	if err := p.drive.Download(ctx, file.ID, staged); err != nil {
		return nil, err
	}
	defer os.Remove(staged)

	return p.analyzeAndPersist(ctx, staged, photo.SourceDrive, logicalPath, file.Name, "")
}

// AnalyzePhoto runs the full analysis for a single local file and persists
// the result. Re-analyzing an already-indexed path returns the existing
// record.
func (p *Pipeline) AnalyzePhoto(ctx context.Context, path string) (*photo.Record, error) {
	existing, err := p.store.FindByNaturalKey(path, photo.SourceLocal)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return p.analyzeAndPersist(ctx, path, photo.SourceLocal, path, filepath.Base(path), deriveAlbum(path))
}

// analyzeAndPersist is the core per-photo algorithm: extract technical
// metadata, analyze a (possibly downscaled) copy, embed the combined
// description, and write to both stores. filePath is where the bytes live
// (which for cloud photos is a staging copy), while recordPath, filename and
// album are the identity persisted on the record. Any failure propagates to
// the caller, which accounts it as that photo's failure.
func (p *Pipeline) analyzeAndPersist(ctx context.Context, filePath string, source photo.Source, recordPath, filename, album string) (*photo.Record, error) {
	meta, err := imagemeta.Extract(filePath)
	if err != nil {
		return nil, fmt.Errorf("extract metadata: %w", err)
	}

	analyzePath := filePath
	if meta.Width > p.cfg.MaxDimension || meta.Height > p.cfg.MaxDimension {
		resized, cleanup, err := imagemeta.Downscale(filePath, p.cfg.MaxDimension)
		if err != nil {
			return nil, fmt.Errorf("downscale for analysis: %w", err)
		}
		defer cleanup()
		analyzePath = resized
	}

	raw, err := p.provider.AnalyzeImage(ctx, analyzePath)
	if err != nil {
		return nil, fmt.Errorf("analyze image: %w", err)
	}
	result := analysis.ParseAnalysis(raw)

	rec := &photo.Record{
		ID:          uuid.NewString(),
		Source:      source,
		Path:        recordPath,
		Filename:    filename,
		CaptureTime: meta.CaptureTime,
		LastIndexed: time.Now(),
		Subjects:    result.Subjects,
		Colors:      result.Colors,
		Patterns:    result.Patterns,
		Season:      result.Season,
		Environment: result.Environment,
		Description: result.Description,
		Tags:        result.Tags,
		Album:       album,
		Model:       p.provider.Name(),
		Width:       meta.Width,
		Height:      meta.Height,
		Format:      meta.Format,
		SizeBytes:   meta.SizeBytes,
		ColorSpace:  meta.ColorSpace,
		HasAlpha:    meta.HasAlpha,
		Latitude:    meta.Latitude,
		Longitude:   meta.Longitude,
	}

	embedding, err := p.provider.GenerateEmbedding(ctx, rec.CombinedText())
	if err != nil {
		// No zero-vector fallback: a photo without a real embedding is
		// a failed photo.
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	rec.Embedding = embedding

	stored, created, err := p.store.Create(rec)
	if err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}
	if !created {
		return stored, nil
	}

	err = p.index.Upsert(ctx, rec.ID, embedding, vector.Attributes{
		Path:        rec.Path,
		Description: rec.CombinedText(),
		Subjects:    rec.Subjects,
		Colors:      rec.Colors,
		Album:       rec.Album,
	})
	if err != nil {
		return nil, fmt.Errorf("index vector: %w", err)
	}

	return rec, nil
}

// deriveAlbum names a photo's album after its parent directory, unwrapping
// staging/backup folder levels.
func deriveAlbum(path string) string {
	dir := filepath.Dir(path)
	for {
		name := filepath.Base(dir)
		if name == "." || name == string(filepath.Separator) || name == "/" {
			return ""
		}
		if !stagingFolders[strings.ToLower(name)] {
			return name
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ClearAlbum removes an album's records from both stores. Clearing an
// absent album is a no-op.
func (p *Pipeline) ClearAlbum(ctx context.Context, album string) error {
	if _, err := p.store.DeleteByAlbum(album); err != nil {
		return fmt.Errorf("clear album %q: %w", album, err)
	}
	if err := p.index.DeleteByAttribute(ctx, "album", album); err != nil {
		log.Printf("Error clearing album %q from vector index: %v", album, err)
		return fmt.Errorf("clear album %q vectors: %w", album, err)
	}
	return nil
}

// ClearAll removes every record from both stores.
func (p *Pipeline) ClearAll(ctx context.Context) error {
	if err := p.store.DeleteAll(); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	if err := p.index.DeleteAll(ctx); err != nil {
		log.Printf("Error clearing vector index: %v", err)
		return fmt.Errorf("clear vectors: %w", err)
	}
	return nil
}
