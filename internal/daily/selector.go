// Package daily picks the best next photo to post and generates its social
// copy.
package daily

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sagarmv/wildtrail/internal/analysis"
	"github.com/sagarmv/wildtrail/internal/photo"
)

// Cooldown is how long a suggested photo stays ineligible.
const Cooldown = 90 * 24 * time.Hour

// ErrNoEligiblePhotos is returned when every photo is on cooldown or the
// catalog is empty.
var ErrNoEligiblePhotos = errors.New("no eligible photos for daily suggestion")

// Store is the persistence access the selector needs.
type Store interface {
	FindAll() ([]*photo.Record, error)
	MarkSuggested(id string, t time.Time) error
}

// Suggestion is the daily pick with its generated social copy.
type Suggestion struct {
	Photo    *photo.Record `json:"photo"`
	Reason   string        `json:"reason"`
	Caption  string        `json:"caption"`
	Hashtags []string      `json:"hashtags"`
}

// Selector scores eligible photos and produces a single recommendation.
type Selector struct {
	store    Store
	provider analysis.Provider

	// mu makes the pick-then-mark step atomic with respect to subsequent
	// eligibility checks within this process.
	mu  sync.Mutex
	now func() time.Time
}

// New creates a Selector.
func New(store Store, provider analysis.Provider) *Selector {
	return &Selector{store: store, provider: provider, now: time.Now}
}

// GetDailySuggestion picks the highest-scoring eligible photo, generates a
// caption and hashtags for it, and marks it suggested so it stays off the
// board for the cooldown window.
func (s *Selector) GetDailySuggestion(ctx context.Context) (*Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.FindAll()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	now := s.now()
	type scored struct {
		rec   *photo.Record
		score float64
	}

	var eligible []scored
	for _, rec := range records {
		if rec.InstagramSuggested != nil && now.Sub(*rec.InstagramSuggested) <= Cooldown {
			continue
		}
		eligible = append(eligible, scored{rec: rec, score: score(rec, now)})
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligiblePhotos
	}

	// Stable sort keeps enumeration order as the tie-break.
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].score > eligible[j].score
	})
	pick := eligible[0].rec

	caption, err := s.provider.GenerateCaption(ctx, pick)
	if err != nil {
		return nil, fmt.Errorf("generate caption: %w", err)
	}
	hashtags, err := s.provider.GenerateHashtags(ctx, pick)
	if err != nil {
		return nil, fmt.Errorf("generate hashtags: %w", err)
	}

	suggested := now
	if err := s.store.MarkSuggested(pick.ID, suggested); err != nil {
		return nil, fmt.Errorf("mark suggested: %w", err)
	}
	pick.InstagramSuggested = &suggested

	return &Suggestion{
		Photo:    pick,
		Reason:   reason(pick, now),
		Caption:  caption,
		Hashtags: hashtags,
	}, nil
}

// score rates a photo: richer subject lists and descriptions win, with a
// seasonal bonus when the photo matches the current month's season.
func score(rec *photo.Record, now time.Time) float64 {
	s := 2.0 * float64(len(rec.Subjects))
	s += 0.1 * float64(len(strings.Fields(rec.Description)))
	if rec.Season != "" && strings.EqualFold(rec.Season, photo.SeasonForMonth(now.Month())) {
		s += 5
	}
	return s
}

func reason(rec *photo.Record, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Featuring %s", strings.Join(rec.Subjects, ", "))
	if rec.Environment != "" && rec.Environment != photo.UnknownEnvironment {
		fmt.Fprintf(&b, " in %s", rec.Environment)
	}
	if rec.Season != "" {
		if strings.EqualFold(rec.Season, photo.SeasonForMonth(now.Month())) {
			fmt.Fprintf(&b, ", a perfect match for the current %s season", rec.Season)
		} else {
			fmt.Fprintf(&b, ", captured in %s", rec.Season)
		}
	}
	if len(rec.Colors) > 0 && rec.Colors[0] != photo.NoColors {
		fmt.Fprintf(&b, ", with dominant %s tones", strings.Join(rec.Colors, ", "))
	}
	if len(rec.Patterns) > 0 && rec.Patterns[0] != photo.NoPatterns {
		fmt.Fprintf(&b, " and %s patterns", strings.Join(rec.Patterns, ", "))
	}
	b.WriteString(".")
	return b.String()
}
