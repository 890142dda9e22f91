package photo

import (
	"strings"
	"time"
)

// Source identifies where a photo was discovered.
type Source string

const (
	SourceLocal Source = "local"
	SourceDrive Source = "gdrive"
)

// Sentinel values applied when the analysis model leaves a field empty.
const (
	UnknownSubject     = "Unknown"
	NoColors           = "Not specified"
	NoPatterns         = "None detected"
	NoDescription      = "No description available"
	UnknownEnvironment = "Unknown environment"
)

// ModelInfo records which analysis model produced a record's attributes.
type ModelInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// Record is the durable unit of the catalog. The natural key is
// (Path, Source): re-indexing the same key returns the existing record.
type Record struct {
	ID       string `json:"id"`
	Source   Source `json:"source"`
	Path     string `json:"path"`
	Filename string `json:"filename"`

	CaptureTime        *time.Time `json:"capture_time,omitempty"`
	LastIndexed        time.Time  `json:"last_indexed"`
	InstagramSuggested *time.Time `json:"instagram_suggested,omitempty"`

	Subjects    []string  `json:"subjects"`
	Colors      []string  `json:"colors"`
	Patterns    []string  `json:"patterns"`
	Season      string    `json:"season,omitempty"`
	Environment string    `json:"environment"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Album       string    `json:"album,omitempty"`
	Model       ModelInfo `json:"model,omitempty"`

	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Format     string `json:"format,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	ColorSpace string `json:"color_space,omitempty"`
	HasAlpha   bool   `json:"has_alpha,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Place     string   `json:"place,omitempty"`

	// Embedding may be nil when generation failed upstream; a zero vector
	// is never stored in its place.
	Embedding []float32 `json:"-"`
}

// CombinedText builds the descriptive string fed to the embedding model:
// subjects, environment, description and tags with blank entries dropped.
func (r *Record) CombinedText() string {
	parts := make([]string, 0, 4)
	if s := strings.TrimSpace(strings.Join(r.Subjects, ", ")); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.Environment); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(r.Description); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(strings.Join(r.Tags, ", ")); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, ". ")
}

// Criteria is an immutable filter bag for search. Zero values mean
// "not requested"; all requested filters are AND-combined.
type Criteria struct {
	SemanticQuery string
	Subjects      []string
	Colors        []string
	Patterns      []string
	Season        string
	DateFrom      *time.Time
	DateTo        *time.Time
	Location      string
	Album         string
}

// SeasonForMonth maps a calendar month to its season.
func SeasonForMonth(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return "Winter"
	case time.March, time.April, time.May:
		return "Spring"
	case time.June, time.July, time.August:
		return "Summer"
	default:
		return "Autumn"
	}
}
