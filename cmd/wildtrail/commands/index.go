package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarmv/wildtrail/internal/indexer"
)

func printProgress(ev indexer.Event) {
	fmt.Printf("\rIndexing: %d/%d (%d new, %d skipped, %d failed)  ",
		ev.Current, ev.Total, ev.Stats.New, ev.Stats.Skipped, ev.Stats.Failed)
}

func printSummary(stats *indexer.Stats) {
	fmt.Println()
	fmt.Println()
	fmt.Println("=== Indexing Complete ===")
	fmt.Printf("Total:    %d\n", stats.Total)
	fmt.Printf("New:      %d\n", stats.New)
	fmt.Printf("Skipped:  %d\n", stats.Skipped)
	fmt.Printf("Failed:   %d\n", stats.Failed)
}

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index photos from the configured local directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, printProgress)
			if err != nil {
				return err
			}
			defer app.Close()

			_, stats, err := app.pipeline.IndexLocalPhotos(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(stats)
			return nil
		},
	}
}

func newCloudCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cloud",
		Short: "Index photos from the configured cloud drive",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, printProgress)
			if err != nil {
				return err
			}
			defer app.Close()

			_, stats, err := app.pipeline.IndexCloudPhotos(cmd.Context())
			if err != nil {
				return err
			}
			printSummary(stats)
			return nil
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <path>",
		Short: "Analyze and index a single photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			rec, err := app.pipeline.AnalyzePhoto(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}
