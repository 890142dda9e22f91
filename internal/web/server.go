// Package web is the thin HTTP glue over the indexing and retrieval core.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sagarmv/wildtrail/internal/daily"
	"github.com/sagarmv/wildtrail/internal/indexer"
	"github.com/sagarmv/wildtrail/internal/photo"
	"github.com/sagarmv/wildtrail/internal/search"
	"github.com/sagarmv/wildtrail/internal/storage"
)

// Server wires the core components to HTTP handlers.
type Server struct {
	db       *storage.DB
	pipeline *indexer.Pipeline
	engine   *search.Engine
	selector *daily.Selector
	hub      *Hub
}

// NewServer creates the HTTP layer.
func NewServer(db *storage.DB, pipeline *indexer.Pipeline, engine *search.Engine, selector *daily.Selector, hub *Hub) *Server {
	return &Server{db: db, pipeline: pipeline, engine: engine, selector: selector, hub: hub}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ws/progress", s.hub.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/index", s.handleIndexLocal)
		r.Post("/index/cloud", s.handleIndexCloud)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/search", s.handleSearch)
		r.Get("/daily", s.handleDaily)
		r.Get("/photos", s.handlePhotos)
		r.Delete("/albums/{name}", s.handleClearAlbum)
		r.Delete("/photos", s.handleClearAll)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.db.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "photos": count})
}

// Indexing runs in the background; progress streams over /ws/progress.
func (s *Server) handleIndexLocal(w http.ResponseWriter, r *http.Request) {
	// The request context dies with the response; the run keeps its own.
	go func() {
		if _, _, err := s.pipeline.IndexLocalPhotos(context.Background()); err != nil {
			log.Printf("Local indexing run failed: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "indexing started"})
}

func (s *Server) handleIndexCloud(w http.ResponseWriter, r *http.Request) {
	go func() {
		if _, _, err := s.pipeline.IndexCloudPhotos(context.Background()); err != nil {
			log.Printf("Cloud indexing run failed: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cloud indexing started"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, errors.New("path required"))
		return
	}

	rec, err := s.pipeline.AnalyzePhoto(r.Context(), req.Path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type searchRequest struct {
	Query    string   `json:"query"`
	Subjects []string `json:"subjects"`
	Colors   []string `json:"colors"`
	Patterns []string `json:"patterns"`
	Season   string   `json:"season"`
	DateFrom string   `json:"date_from"`
	DateTo   string   `json:"date_to"`
	Location string   `json:"location"`
	Album    string   `json:"album"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	criteria := photo.Criteria{
		SemanticQuery: req.Query,
		Subjects:      req.Subjects,
		Colors:        req.Colors,
		Patterns:      req.Patterns,
		Season:        req.Season,
		Location:      req.Location,
		Album:         req.Album,
	}
	if req.DateFrom != "" {
		t, err := time.Parse("2006-01-02", req.DateFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		criteria.DateFrom = &t
	}
	if req.DateTo != "" {
		t, err := time.Parse("2006-01-02", req.DateTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		criteria.DateTo = &t
	}

	results, err := s.engine.Search(r.Context(), criteria)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	suggestion, err := s.selector.GetDailySuggestion(r.Context())
	if errors.Is(err, daily.ErrNoEligiblePhotos) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

func (s *Server) handlePhotos(w http.ResponseWriter, r *http.Request) {
	records, err := s.db.FindAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"photos": records, "count": len(records)})
}

func (s *Server) handleClearAlbum(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.pipeline.ClearAlbum(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "album": name})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.ClearAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
