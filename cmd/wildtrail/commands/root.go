// Package commands implements the wildtrail CLI using cobra.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagarmv/wildtrail/internal/analysis"
	"github.com/sagarmv/wildtrail/internal/config"
	"github.com/sagarmv/wildtrail/internal/daily"
	"github.com/sagarmv/wildtrail/internal/drive"
	"github.com/sagarmv/wildtrail/internal/indexer"
	"github.com/sagarmv/wildtrail/internal/search"
	"github.com/sagarmv/wildtrail/internal/storage"
	"github.com/sagarmv/wildtrail/internal/vector"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wildtrail",
		Short: "Wildtrail - wildlife photo indexing and retrieval",
		Long: `Wildtrail indexes wildlife photographs from local and cloud sources,
enriches them with AI-derived metadata and a semantic vector index, and
answers hybrid searches plus a daily "best photo to post" pick.

Examples:
  wildtrail index
  wildtrail search --query "tiger stalking at dusk" --season winter
  wildtrail daily
  wildtrail serve --port 8480`,
		Version: version,
	}

	rootCmd.AddCommand(
		newIndexCmd(),
		newCloudCmd(),
		newAnalyzeCmd(),
		newSearchCmd(),
		newDailyCmd(),
		newClearCmd(),
		newStatsCmd(),
		newServeCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "wildtrail.yaml", "path to the configuration file")

	return rootCmd
}

// app holds the wired components for one CLI invocation.
type app struct {
	cfg      *config.Config
	db       *storage.DB
	index    *vector.PGIndex
	provider *analysis.CachedProvider
	pipeline *indexer.Pipeline
	engine   *search.Engine
	selector *daily.Selector
}

// openApp loads configuration and connects every collaborator. Vector store
// unavailability after retries is fatal, per the startup contract.
func openApp(cmd *cobra.Command, progress indexer.ProgressFunc) (*app, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	idx, err := vector.Connect(ctx, cfg.Vector.DSN, cfg.Vector.Dimension)
	if err != nil {
		db.Close()
		return nil, err
	}

	baseURL := cfg.Analysis.BaseURL
	if baseURL == "" {
		baseURL = analysis.GetDefaultURL(cfg.Analysis.Provider)
	}
	inner, err := analysis.NewProvider(cfg.Analysis.Provider, baseURL, cfg.Analysis.VisionModel, cfg.Analysis.EmbedModel, cfg.APIKey)
	if err != nil {
		idx.Close()
		db.Close()
		return nil, err
	}

	cache, err := analysis.NewCache(cfg.CacheDir(), cfg.Analysis.CacheExpiry)
	if err != nil {
		idx.Close()
		db.Close()
		return nil, err
	}
	provider := analysis.WithCache(inner, cache)
	provider.EnableCache(cfg.Analysis.CacheEnabled)

	var driveClient *drive.Client
	if cfg.Drive.BaseURL != "" {
		driveClient = drive.NewClient(cfg.Drive)
	}

	pipeline := indexer.New(db, idx, provider, driveClient, indexer.Config{
		Roots:        cfg.PhotoDirs,
		BatchSize:    cfg.BatchSize,
		MaxDimension: cfg.MaxDimension,
	}, progress)

	return &app{
		cfg:      cfg,
		db:       db,
		index:    idx,
		provider: provider,
		pipeline: pipeline,
		engine:   search.New(db, idx, provider),
		selector: daily.New(db, provider),
	}, nil
}

func (a *app) Close() {
	a.index.Close()
	a.db.Close()
}
