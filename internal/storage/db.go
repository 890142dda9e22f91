package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sagarmv/wildtrail/internal/photo"
)

// DB wraps SQLite database operations for the photo catalog.
type DB struct {
	db *sql.DB
}

// Open opens or creates a SQLite database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable foreign keys and WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	storage := &DB{db: db}

	if err := storage.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return storage, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// initSchema creates tables if they don't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS photos (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		path TEXT NOT NULL,
		filename TEXT NOT NULL,
		capture_time TIMESTAMP,
		last_indexed TIMESTAMP NOT NULL,
		instagram_suggested TIMESTAMP,
		subjects TEXT NOT NULL,
		colors TEXT NOT NULL,
		patterns TEXT NOT NULL,
		season TEXT,
		environment TEXT NOT NULL,
		description TEXT NOT NULL,
		tags TEXT NOT NULL,
		album TEXT,
		model_name TEXT,
		model_version TEXT,
		model_kind TEXT,
		width INTEGER,
		height INTEGER,
		format TEXT,
		size_bytes INTEGER,
		color_space TEXT,
		has_alpha INTEGER NOT NULL DEFAULT 0,
		latitude REAL,
		longitude REAL,
		place TEXT,
		embedding BLOB,
		UNIQUE(path, source)
	);

	CREATE INDEX IF NOT EXISTS idx_album ON photos(album);
	CREATE INDEX IF NOT EXISTS idx_capture ON photos(capture_time);
	CREATE INDEX IF NOT EXISTS idx_suggested ON photos(instagram_suggested);
	CREATE INDEX IF NOT EXISTS idx_indexed ON photos(last_indexed);
	`

	_, err := d.db.Exec(schema)
	return err
}

const photoColumns = `id, source, path, filename, capture_time, last_indexed,
	instagram_suggested, subjects, colors, patterns, season, environment,
	description, tags, album, model_name, model_version, model_kind,
	width, height, format, size_bytes, color_space, has_alpha,
	latitude, longitude, place, embedding`

// Create inserts a record, treating the (path, source) natural key as
// idempotent: if a record with the same key already exists (including one
// inserted by a concurrent run between the check and the insert), the
// existing record is returned with created=false and nothing is written.
func (d *DB) Create(rec *photo.Record) (*photo.Record, bool, error) {
	existing, err := d.FindByNaturalKey(rec.Path, rec.Source)
	if err != nil {
		return nil, false, fmt.Errorf("check natural key: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	query := `
	INSERT INTO photos (` + photoColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = d.db.Exec(query,
		rec.ID, string(rec.Source), rec.Path, rec.Filename,
		rec.CaptureTime, rec.LastIndexed, rec.InstagramSuggested,
		joinList(rec.Subjects), joinList(rec.Colors), joinList(rec.Patterns),
		nullable(rec.Season), rec.Environment, rec.Description, joinList(rec.Tags),
		nullable(rec.Album), nullable(rec.Model.Name), nullable(rec.Model.Version), nullable(rec.Model.Kind),
		rec.Width, rec.Height, nullable(rec.Format), rec.SizeBytes, nullable(rec.ColorSpace), boolToInt(rec.HasAlpha),
		rec.Latitude, rec.Longitude, nullable(rec.Place),
		SerializeEmbedding(rec.Embedding),
	)
	if err != nil {
		// A concurrent indexing run may win the race on the unique
		// constraint; resolve it the same way as the pre-check.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			existing, ferr := d.FindByNaturalKey(rec.Path, rec.Source)
			if ferr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("insert photo: %w", err)
	}

	return rec, true, nil
}

// FindByNaturalKey retrieves a record by its (path, source) natural key.
// Returns nil when absent.
func (d *DB) FindByNaturalKey(path string, source photo.Source) (*photo.Record, error) {
	row := d.db.QueryRow(
		`SELECT `+photoColumns+` FROM photos WHERE path = ? AND source = ?`,
		path, string(source),
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindAll retrieves every record in stable indexing order.
func (d *DB) FindAll() ([]*photo.Record, error) {
	rows, err := d.db.Query(`SELECT ` + photoColumns + ` FROM photos ORDER BY last_indexed, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*photo.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// MarkSuggested persists the Instagram suggestion timestamp for a record.
func (d *DB) MarkSuggested(id string, t time.Time) error {
	res, err := d.db.Exec(`UPDATE photos SET instagram_suggested = ? WHERE id = ?`, t, id)
	if err != nil {
		return fmt.Errorf("mark suggested: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("photo %s not found", id)
	}
	return nil
}

// DeleteByAlbum removes all records with the given album label
// (case-insensitive). Removing a non-existent album is a no-op. Returns the
// ids of the removed records.
func (d *DB) DeleteByAlbum(album string) ([]string, error) {
	rows, err := d.db.Query(`SELECT id FROM photos WHERE album = ? COLLATE NOCASE`, album)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := d.db.Exec(`DELETE FROM photos WHERE album = ? COLLATE NOCASE`, album); err != nil {
		return nil, fmt.Errorf("delete album: %w", err)
	}
	return ids, nil
}

// DeleteAll removes every record.
func (d *DB) DeleteAll() error {
	_, err := d.db.Exec(`DELETE FROM photos`)
	return err
}

// Count returns the total number of records.
func (d *DB) Count() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM photos").Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*photo.Record, error) {
	var (
		rec                                  photo.Record
		source                               string
		captureTime, suggested               sql.NullTime
		subjects, colors, patterns, tags     string
		season, environment, description     sql.NullString
		album, modelName, modelVer, modelKnd sql.NullString
		width, height, sizeBytes             sql.NullInt64
		format, colorSpace, place            sql.NullString
		hasAlpha                             int
		lat, lon                             sql.NullFloat64
		embedding                            []byte
	)

	err := row.Scan(
		&rec.ID, &source, &rec.Path, &rec.Filename, &captureTime, &rec.LastIndexed,
		&suggested, &subjects, &colors, &patterns, &season, &environment,
		&description, &tags, &album, &modelName, &modelVer, &modelKnd,
		&width, &height, &format, &sizeBytes, &colorSpace, &hasAlpha,
		&lat, &lon, &place, &embedding,
	)
	if err != nil {
		return nil, err
	}

	rec.Source = photo.Source(source)
	if captureTime.Valid {
		t := captureTime.Time
		rec.CaptureTime = &t
	}
	if suggested.Valid {
		t := suggested.Time
		rec.InstagramSuggested = &t
	}
	rec.Subjects = splitList(subjects)
	rec.Colors = splitList(colors)
	rec.Patterns = splitList(patterns)
	rec.Tags = splitList(tags)
	rec.Season = season.String
	rec.Environment = environment.String
	rec.Description = description.String
	rec.Album = album.String
	rec.Model = photo.ModelInfo{Name: modelName.String, Version: modelVer.String, Kind: modelKnd.String}
	rec.Width = int(width.Int64)
	rec.Height = int(height.Int64)
	rec.Format = format.String
	rec.SizeBytes = sizeBytes.Int64
	rec.ColorSpace = colorSpace.String
	rec.HasAlpha = hasAlpha != 0
	if lat.Valid {
		v := lat.Float64
		rec.Latitude = &v
	}
	if lon.Valid {
		v := lon.Float64
		rec.Longitude = &v
	}
	rec.Place = place.String
	rec.Embedding = DeserializeEmbedding(embedding)

	return &rec, nil
}

// List values are stored as JSON arrays so elements may contain commas.
func joinList(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func splitList(stored string) []string {
	if stored == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(stored), &values); err != nil {
		return nil
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
