// Package api is the HTTP surface of the analysis service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/meridian-research/prism/internal/aggregator"
	"github.com/meridian-research/prism/internal/analyzer"
	"github.com/meridian-research/prism/internal/crossstudy"
	"github.com/meridian-research/prism/internal/indexer"
	"github.com/meridian-research/prism/internal/ingest"
	"github.com/meridian-research/prism/internal/pipeline"
	"github.com/meridian-research/prism/internal/segmenter"
	"github.com/meridian-research/prism/internal/store"
)

// Store is the persistence the handlers need.
type Store interface {
	CreateStudy(ctx context.Context, name, filename, content string, wordCount int, metadata map[string]string) (uuid.UUID, error)
	GetStudy(ctx context.Context, id uuid.UUID) (store.Study, error)
	ListStudies(ctx context.Context) ([]store.Study, error)
	LatestJobForStudy(ctx context.Context, studyID string) (pipeline.Job, bool, error)
	GetSegments(ctx context.Context, studyID string) (segmenter.Result, error)
	SaveAnalyses(ctx context.Context, studyID string, analyses []analyzer.SegmentAnalysis) error
	GetAnalyses(ctx context.Context, studyID string) ([]analyzer.SegmentAnalysis, error)
	SaveReport(ctx context.Context, studyID string, report aggregator.StudyReport) error
	GetReport(ctx context.Context, studyID string) (aggregator.StudyReport, error)
}

// Runner launches asynchronous analysis jobs.
type Runner interface {
	Start(ctx context.Context, studyID string) (pipeline.Job, error)
}

// Comparator compares reports across studies.
type Comparator interface {
	Compare(ctx context.Context, reports []aggregator.StudyReport) (crossstudy.Report, error)
}

// ThemeSearcher answers semantic theme queries.
type ThemeSearcher interface {
	FindSimilarThemes(ctx context.Context, query, studyID string, limit int) ([]indexer.ThemeMatch, error)
}

// Deps wires the server's collaborators.
type Deps struct {
	Port       int
	Store      Store
	Runner     Runner
	Analyzer   *analyzer.Analyzer
	Aggregator *aggregator.Aggregator
	Comparator Comparator
	Search     ThemeSearcher
	Ingest     ingest.Extractor
	Events     pipeline.Publisher
	Logger     *slog.Logger
}

type Server struct {
	router *chi.Mux
	deps   Deps
	logger *slog.Logger
}

func NewServer(deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware)

	s := &Server{
		router: router,
		deps:   deps,
		logger: deps.Logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/prism/status", s.status)

	router.Route("/api/analysis", func(r chi.Router) {
		r.Post("/upload", s.uploadStudy)
		r.Post("/cross-transcript", s.crossTranscript)

		r.Route("/{study_id}", func(r chi.Router) {
			r.Post("/start", s.startAnalysis)
			r.Get("/status", s.analysisStatus)
			r.Get("/chunks", s.getChunks)
			r.Post("/analyze", s.analyzeSegments)
			r.Post("/complete", s.completeAnalysis)
			r.Get("/dashboard", s.getDashboard)
			r.Get("/themes", s.getThemes)
			r.Get("/quotes", s.getQuotes)
			r.Get("/insights", s.getInsights)
			r.Get("/patterns", s.getPatterns)
		})
	})

	router.Get("/api/search/similar-themes", s.searchSimilarThemes)

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.deps.Port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "prism",
		"status":  "ready",
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes: unknown studies are 404,
// malformed input is 400, everything else is an infrastructure 500. Model
// failures never reach here; they degrade to fallback payloads upstream.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrStudyNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, crossstudy.ErrInsufficientStudies),
		errors.Is(err, segmenter.ErrEmptyDocument),
		errors.Is(err, ingest.ErrUnsupportedFormat):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// studyID validates the path parameter and confirms the study exists.
func (s *Server) studyID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "study_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(w, "invalid study id")
		return "", false
	}
	if _, err := s.deps.Store.GetStudy(r.Context(), id); err != nil {
		s.writeError(w, err)
		return "", false
	}
	return id.String(), true
}
