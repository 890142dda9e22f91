package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newClearCmd() *cobra.Command {
	var (
		album string
		all   bool
		cache bool
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove indexed photos or cached AI responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			if album == "" && !all && !cache {
				return fmt.Errorf("specify --album <name>, --all or --cache")
			}
			if album != "" && all {
				return fmt.Errorf("--album and --all are mutually exclusive")
			}

			app, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			if cache {
				if err := app.provider.ClearCache(); err != nil {
					return err
				}
				fmt.Println("Cleared AI response cache")
				if album == "" && !all {
					return nil
				}
			}

			if all {
				if err := app.pipeline.ClearAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("Cleared all indexed photos")
				return nil
			}

			if err := app.pipeline.ClearAlbum(cmd.Context(), album); err != nil {
				return err
			}
			fmt.Printf("Cleared album %q\n", album)
			return nil
		},
	}

	cmd.Flags().StringVar(&album, "album", "", "album to clear")
	cmd.Flags().BoolVar(&all, "all", false, "clear the entire catalog")
	cmd.Flags().BoolVar(&cache, "cache", false, "clear cached AI responses")

	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			count, err := app.db.Count()
			if err != nil {
				return err
			}

			fmt.Println("=== Catalog Stats ===")
			fmt.Printf("Indexed photos: %d\n", count)
			fmt.Printf("Database:       %s\n", app.cfg.DBPath())
			fmt.Printf("Vector store:   dimension %d\n", app.cfg.Vector.Dimension)
			return nil
		},
	}
}
