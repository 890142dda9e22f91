// Package config loads the service configuration from YAML plus
// environment variables for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sagarmv/wildtrail/internal/drive"
)

// AnalysisConfig selects and tunes the AI backend.
type AnalysisConfig struct {
	// Provider is the backend kind: "ollama" or "openai".
	Provider string `yaml:"provider"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// VisionModel analyzes images and writes captions.
	VisionModel string `yaml:"vision_model"`

	// EmbedModel generates text embeddings.
	EmbedModel string `yaml:"embed_model"`

	// CacheEnabled toggles the on-disk response cache.
	CacheEnabled bool `yaml:"cache_enabled"`

	// CacheExpiry overrides the default 30-day cache retention.
	CacheExpiry time.Duration `yaml:"cache_expiry"`
}

// VectorConfig points at the vector store.
type VectorConfig struct {
	// DSN is the postgres connection string; the WILDTRAIL_VECTOR_DSN
	// environment variable takes precedence.
	DSN string `yaml:"dsn"`

	// Dimension is the embedding dimensionality, fixed per deployment.
	Dimension int `yaml:"dimension"`
}

// ServerConfig is the HTTP listener address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

// Config is the top-level service configuration.
type Config struct {
	DataDir      string         `yaml:"data_dir"`
	PhotoDirs    []string       `yaml:"photo_dirs"`
	BatchSize    int            `yaml:"batch_size"`
	MaxDimension int            `yaml:"max_dimension"`
	Analysis     AnalysisConfig `yaml:"analysis"`
	Vector       VectorConfig   `yaml:"vector"`
	Drive        drive.Config   `yaml:"drive"`
	Server       ServerConfig   `yaml:"server"`

	// APIKey is only read from the environment (WILDTRAIL_API_KEY),
	// never from the YAML file.
	APIKey string `yaml:"-"`
}

// DBPath is the SQLite file location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "wildtrail.db")
}

// CacheDir is where AI responses are cached.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// Load reads the configuration file, then applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	// .env is optional; ignore a missing file.
	godotenv.Load()

	cfg := &Config{
		DataDir: "./data",
		Analysis: AnalysisConfig{
			Provider:     "ollama",
			VisionModel:  "llava",
			EmbedModel:   "nomic-embed-text",
			CacheEnabled: true,
		},
		Vector: VectorConfig{
			Dimension: 768,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: "8480",
		},
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if dsn := os.Getenv("WILDTRAIL_VECTOR_DSN"); dsn != "" {
		cfg.Vector.DSN = dsn
	}
	cfg.APIKey = os.Getenv("WILDTRAIL_API_KEY")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Analysis.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown analysis provider: %s", c.Analysis.Provider)
	}
	if c.Vector.Dimension <= 0 {
		return fmt.Errorf("vector dimension must be positive")
	}
	return nil
}
