package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagarmv/wildtrail/internal/daily"
	"github.com/sagarmv/wildtrail/internal/photo"
)

func newSearchCmd() *cobra.Command {
	var (
		query     string
		subjects  []string
		colors    []string
		patterns  []string
		season    string
		dateFrom  string
		dateTo    string
		location  string
		album     string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the photo catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			criteria := photo.Criteria{
				SemanticQuery: query,
				Subjects:      subjects,
				Colors:        colors,
				Patterns:      patterns,
				Season:        season,
				Location:      location,
				Album:         album,
			}
			if dateFrom != "" {
				t, err := time.Parse("2006-01-02", dateFrom)
				if err != nil {
					return fmt.Errorf("parse --from: %w", err)
				}
				criteria.DateFrom = &t
			}
			if dateTo != "" {
				t, err := time.Parse("2006-01-02", dateTo)
				if err != nil {
					return fmt.Errorf("parse --to: %w", err)
				}
				criteria.DateTo = &t
			}

			results, err := app.engine.Search(cmd.Context(), criteria)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Println("No results found")
				return nil
			}

			fmt.Printf("Found %d results:\n\n", len(results))
			for i, rec := range results {
				fmt.Printf("%d. %s\n", i+1, rec.Filename)
				fmt.Printf("   Subjects: %s\n", strings.Join(rec.Subjects, ", "))
				if rec.Album != "" {
					fmt.Printf("   Album: %s\n", rec.Album)
				}
				fmt.Printf("   Path: %s\n", rec.Path)
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "semantic search query")
	cmd.Flags().StringSliceVar(&subjects, "subject", nil, "subject filter (repeatable)")
	cmd.Flags().StringSliceVar(&colors, "color", nil, "color filter (repeatable)")
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "pattern filter (repeatable)")
	cmd.Flags().StringVar(&season, "season", "", "season filter")
	cmd.Flags().StringVar(&dateFrom, "from", "", "capture date lower bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dateTo, "to", "", "capture date upper bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&location, "location", "", "location filter")
	cmd.Flags().StringVar(&album, "album", "", "album filter")

	return cmd
}

func newDailyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Pick today's photo suggestion with caption and hashtags",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			suggestion, err := app.selector.GetDailySuggestion(cmd.Context())
			if errors.Is(err, daily.ErrNoEligiblePhotos) {
				fmt.Println("No eligible photos right now; everything recent is on cooldown.")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Println("=== Daily Suggestion ===")
			fmt.Printf("Photo:    %s\n", suggestion.Photo.Path)
			fmt.Printf("Reason:   %s\n", suggestion.Reason)
			fmt.Printf("Caption:  %s\n", suggestion.Caption)
			if len(suggestion.Hashtags) > 0 {
				fmt.Printf("Hashtags: #%s\n", strings.Join(suggestion.Hashtags, " #"))
			}
			return nil
		},
	}
}
