package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/meridian-research/prism/internal/aggregator"
	"github.com/meridian-research/prism/internal/events"
	"github.com/meridian-research/prism/internal/extractor"
	"github.com/meridian-research/prism/internal/formatter"
	"github.com/meridian-research/prism/internal/segmenter"
	"github.com/meridian-research/prism/internal/store"
)

const maxUploadBytes = 32 << 20

// uploadStudy handles POST /api/analysis/upload. Accepts a multipart form
// with a "file" part plus optional "name" and metadata fields.
func (s *Server) uploadStudy(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		badRequest(w, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "missing file part")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, err)
		return
	}

	extracted, err := s.deps.Ingest.Extract(header.Filename, data)
	if err != nil {
		s.writeError(w, err)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	metadata := map[string]string{}
	for key, vals := range r.MultipartForm.Value {
		if key == "name" || len(vals) == 0 {
			continue
		}
		metadata[key] = vals[0]
	}

	id, err := s.deps.Store.CreateStudy(r.Context(), name, header.Filename, extracted.Text, extracted.WordCount, metadata)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("study uploaded", "study_id", id, "filename", header.Filename, "words", extracted.WordCount)
	if s.deps.Events != nil {
		if err := s.deps.Events.Publish(events.SubjectStudyUploaded, events.StudyEvent{StudyID: id.String()}); err != nil {
			s.logger.Warn("publish upload event", "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"study_id":   id.String(),
		"status":     "pending",
		"word_count": extracted.WordCount,
	})
}

// startAnalysis handles POST /api/analysis/{study_id}/start.
func (s *Server) startAnalysis(w http.ResponseWriter, r *http.Request) {
	studyID, ok := s.studyID(w, r)
	if !ok {
		return
	}

	job, err := s.deps.Runner.Start(r.Context(), studyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// analysisStatus handles GET /api/analysis/{study_id}/status.
func (s *Server) analysisStatus(w http.ResponseWriter, r *http.Request) {
	studyID, ok := s.studyID(w, r)
	if !ok {
		return
	}

	job, found, err := s.deps.Store.LatestJobForStudy(r.Context(), studyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{
			"study_id": studyID,
			"status":   "pending",
			"progress": 0,
		})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// getChunks handles GET /api/analysis/{study_id}/chunks with optional
// index and speaker filters.
func (s *Server) getChunks(w http.ResponseWriter, r *http.Request) {
	studyID, ok := s.studyID(w, r)
	if !ok {
		return
	}

	res, err := s.deps.Store.GetSegments(r.Context(), studyID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if raw := r.URL.Query().Get("index"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "invalid chunk index")
			return
		}
		if idx < 0 || idx >= len(res.Segments) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "chunk index out of range"})
			return
		}
		writeJSON(w, http.StatusOK, res.Segments[idx])
		return
	}

	segments := res.Segments
	if speaker := r.URL.Query().Get("speaker"); speaker != "" {
		filtered := []segmenter.Segment{}
		for _, seg := range segments {
			for _, sp := range seg.Speakers {
				if sp == speaker {
					filtered = append(filtered, seg)
					break
				}
			}
		}
		segments = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"study_id": studyID,
		"chunks":   segments,
		"summary":  res.Summary,
	})
}

type analyzeRequest struct {
	AnalysisTypes []string `json:"analysis_types"`
}

// analyzeSegments handles POST /api/analysis/{study_id}/analyze. Runs the
// requested extraction kinds synchronously over stored segments. An empty
// body means all kinds.
func (s *Server) analyzeSegments(w http.ResponseWriter, r *http.Request) {
	studyID, ok := s.studyID(w, r)
	if !ok {
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON body")
		return
	}

	kinds := make([]extractor.Kind, 0, len(req.AnalysisTypes))
	for _, raw := range req.AnalysisTypes {
		kind, err := extractor.ParseKind(raw)
		if err != nil {
			badRequest(w, "unknown analysis type: "+raw)
			return
		}
		kinds = append(kinds, kind)
	}

	res, err := s.deps.Store.GetSegments(r.Context(), studyID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	analyses := s.deps.Analyzer.AnalyzeAll(r.Context(), res.Segments, kinds)
	if err := s.deps.Store.SaveAnalyses(r.Context(), studyID, analyses); err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"study_id": studyID,
		"analyses": analyses,
	})
}

// completeAnalysis handles POST /api/analysis/{study_id}/complete.
// Consolidates stored segment analyses into the study report.
func (s *Server) completeAnalysis(w http.ResponseWriter, r *http.Request) {
	studyID, ok := s.studyID(w, r)
	if !ok {
		return
	}

	analyses, err := s.deps.Store.GetAnalyses(r.Context(), studyID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	report := s.deps.Aggregator.Aggregate(r.Context(), studyID, analyses)
	if err := s.deps.Store.SaveReport(r.Context(), studyID, report); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// getDashboard handles GET /api/analysis/{study_id}/dashboard.
func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	studyID, ok := s.studyID(w, r)
	if !ok {
		return
	}
	report, err := s.deps.Store.GetReport(r.Context(), studyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatter.ForDisplay(report))
}

func (s *Server) getThemes(w http.ResponseWriter, r *http.Request) {
	studyID, ok := s.studyID(w, r)
	if !ok {
		return
	}
	report, err := s.deps.Store.GetReport(r.Context(), studyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"study_id": studyID,
		"themes":   report.ConsolidatedThemes,
	})
}

func (s *Server) getQuotes(w http.ResponseWriter, r *http.Request) {
	studyID, ok := s.studyID(w, r)
	if !ok {
		return
	}
	report, err := s.deps.Store.GetReport(r.Context(), studyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"study_id":        studyID,
		"quotes_by_theme": report.QuotesByTheme,
	})
}

func (s *Server) getInsights(w http.ResponseWriter, r *http.Request) {
	studyID, ok := s.studyID(w, r)
	if !ok {
		return
	}
	report, err := s.deps.Store.GetReport(r.Context(), studyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"study_id": studyID,
		"insights": report.ActionableInsights,
	})
}

func (s *Server) getPatterns(w http.ResponseWriter, r *http.Request) {
	studyID, ok := s.studyID(w, r)
	if !ok {
		return
	}
	report, err := s.deps.Store.GetReport(r.Context(), studyID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"study_id": studyID,
		"patterns": report.Patterns,
	})
}

type crossTranscriptRequest struct {
	StudyIDs []string `json:"study_ids"`
}

// crossTranscript handles POST /api/analysis/cross-transcript. A study whose
// report is unavailable is excluded from the comparison set and logged; the
// request fails only when fewer than two reports remain.
func (s *Server) crossTranscript(w http.ResponseWriter, r *http.Request) {
	var req crossTranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	for _, raw := range req.StudyIDs {
		if _, err := uuid.Parse(raw); err != nil {
			badRequest(w, "invalid study id: "+raw)
			return
		}
	}

	reports := make([]aggregator.StudyReport, 0, len(req.StudyIDs))
	for _, id := range req.StudyIDs {
		report, err := s.deps.Store.GetReport(r.Context(), id)
		if errors.Is(err, store.ErrStudyNotFound) {
			s.logger.Warn("excluding study from comparison", "study_id", id)
			continue
		}
		if err != nil {
			s.writeError(w, err)
			return
		}
		reports = append(reports, report)
	}

	comparison, err := s.deps.Comparator.Compare(r.Context(), reports)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"report": comparison,
		"view":   formatter.ForComparison(comparison),
	})
}

// searchSimilarThemes handles GET /api/search/similar-themes.
func (s *Server) searchSimilarThemes(w http.ResponseWriter, r *http.Request) {
	if s.deps.Search == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "similarity search unavailable"})
		return
	}

	query := r.URL.Query().Get("query")
	if query == "" {
		badRequest(w, "missing query parameter")
		return
	}

	studyID := r.URL.Query().Get("study_id")
	if studyID != "" {
		if _, err := uuid.Parse(studyID); err != nil {
			badRequest(w, "invalid study id")
			return
		}
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	matches, err := s.deps.Search.FindSimilarThemes(r.Context(), query, studyID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"matches": matches,
	})
}
