package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/meridian-research/prism/internal/aggregator"
	"github.com/meridian-research/prism/internal/analyzer"
	"github.com/meridian-research/prism/internal/crossstudy"
	"github.com/meridian-research/prism/internal/extractor"
	"github.com/meridian-research/prism/internal/indexer"
	"github.com/meridian-research/prism/internal/ingest"
	"github.com/meridian-research/prism/internal/llm"
	"github.com/meridian-research/prism/internal/pipeline"
	"github.com/meridian-research/prism/internal/segmenter"
	"github.com/meridian-research/prism/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubLLM struct{}

func (stubLLM) Complete(context.Context, string, []llm.Message, int) (string, error) {
	return `{"themes": [], "quotes": [], "patterns": [], "insights": [],
		"executive_summary": {"overview": "ok"}, "actionable_insights": []}`, nil
}

// memStore is an in-memory Store implementation for handler tests.
type memStore struct {
	studies  map[uuid.UUID]store.Study
	jobs     map[string]pipeline.Job
	segments map[string]segmenter.Result
	analyses map[string][]analyzer.SegmentAnalysis
	reports  map[string]aggregator.StudyReport
}

func newMemStore() *memStore {
	return &memStore{
		studies:  map[uuid.UUID]store.Study{},
		jobs:     map[string]pipeline.Job{},
		segments: map[string]segmenter.Result{},
		analyses: map[string][]analyzer.SegmentAnalysis{},
		reports:  map[string]aggregator.StudyReport{},
	}
}

func (m *memStore) CreateStudy(_ context.Context, name, filename, content string, wordCount int, metadata map[string]string) (uuid.UUID, error) {
	id := uuid.New()
	m.studies[id] = store.Study{ID: id, Name: name, Filename: filename, Content: content, WordCount: wordCount, Metadata: metadata, Status: "pending"}
	return id, nil
}

func (m *memStore) GetStudy(_ context.Context, id uuid.UUID) (store.Study, error) {
	st, ok := m.studies[id]
	if !ok {
		return store.Study{}, store.ErrStudyNotFound
	}
	return st, nil
}

func (m *memStore) ListStudies(context.Context) ([]store.Study, error) {
	out := []store.Study{}
	for _, st := range m.studies {
		out = append(out, st)
	}
	return out, nil
}

func (m *memStore) LatestJobForStudy(_ context.Context, studyID string) (pipeline.Job, bool, error) {
	job, ok := m.jobs[studyID]
	return job, ok, nil
}

func (m *memStore) GetSegments(_ context.Context, studyID string) (segmenter.Result, error) {
	res, ok := m.segments[studyID]
	if !ok {
		return segmenter.Result{}, store.ErrStudyNotFound
	}
	return res, nil
}

func (m *memStore) SaveAnalyses(_ context.Context, studyID string, analyses []analyzer.SegmentAnalysis) error {
	m.analyses[studyID] = analyses
	return nil
}

func (m *memStore) GetAnalyses(_ context.Context, studyID string) ([]analyzer.SegmentAnalysis, error) {
	analyses, ok := m.analyses[studyID]
	if !ok {
		return nil, store.ErrStudyNotFound
	}
	return analyses, nil
}

func (m *memStore) SaveReport(_ context.Context, studyID string, report aggregator.StudyReport) error {
	m.reports[studyID] = report
	return nil
}

func (m *memStore) GetReport(_ context.Context, studyID string) (aggregator.StudyReport, error) {
	report, ok := m.reports[studyID]
	if !ok {
		return aggregator.StudyReport{}, store.ErrStudyNotFound
	}
	return report, nil
}

type stubRunner struct {
	started []string
}

func (r *stubRunner) Start(_ context.Context, studyID string) (pipeline.Job, error) {
	r.started = append(r.started, studyID)
	return pipeline.Job{ID: "job-1", StudyID: studyID, Status: pipeline.StatusPending}, nil
}

func newTestServer(t *testing.T, db Store) (*Server, *stubRunner) {
	t.Helper()
	ext := extractor.New(stubLLM{}, testLogger())
	runner := &stubRunner{}
	srv := NewServer(Deps{
		Port:       0,
		Store:      db,
		Runner:     runner,
		Analyzer:   analyzer.New(ext, 2, testLogger()),
		Aggregator: aggregator.New(stubLLM{}, aggregator.Config{}, testLogger()),
		Comparator: crossstudy.New(stubLLM{}, crossstudy.Config{}, testLogger()),
		Search:     nil,
		Ingest:     ingest.NewTextExtractor(),
		Logger:     testLogger(),
	})
	return srv, runner
}

func seedStudy(t *testing.T, db *memStore) string {
	t.Helper()
	id, err := db.CreateStudy(context.Background(), "Study A", "a.txt", "Moderator: Hello.\n\nParticipant 1: Hi.", 6, nil)
	if err != nil {
		t.Fatal(err)
	}
	return id.String()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, newMemStore())
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUploadStudy(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(t, db)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "focus-group.txt")
	_, _ = fw.Write([]byte("Moderator: Welcome to the session.\r\nParticipant 1: Glad to be here."))
	_ = mw.WriteField("name", "Q3 Focus Group")
	_ = mw.WriteField("project", "pricing-research")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "pending" {
		t.Errorf("expected pending status, got %v", resp["status"])
	}
	id, err := uuid.Parse(resp["study_id"].(string))
	if err != nil {
		t.Fatalf("invalid study id in response: %v", err)
	}
	st := db.studies[id]
	if st.Name != "Q3 Focus Group" || st.Metadata["project"] != "pricing-research" {
		t.Errorf("study not stored correctly: %+v", st)
	}
	if strings.Contains(st.Content, "\r\n") {
		t.Error("line endings must be normalized")
	}
}

func TestUploadStudy_UnsupportedFormat(t *testing.T) {
	srv, _ := newTestServer(t, newMemStore())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "report.pdf")
	_, _ = fw.Write([]byte("%PDF-1.4"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for pdf upload, got %d", rec.Code)
	}
}

func TestStartAnalysis(t *testing.T) {
	db := newMemStore()
	srv, runner := newTestServer(t, db)
	id := seedStudy(t, db)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/analysis/"+id+"/start", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(runner.started) != 1 || runner.started[0] != id {
		t.Errorf("runner not invoked: %v", runner.started)
	}
}

func TestStartAnalysis_UnknownStudy(t *testing.T) {
	srv, _ := newTestServer(t, newMemStore())

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/analysis/"+uuid.NewString()+"/start", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStartAnalysis_InvalidID(t *testing.T) {
	srv, _ := newTestServer(t, newMemStore())

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/analysis/not-a-uuid/start", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAnalysisStatus_NoJobYet(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(t, db)
	id := seedStudy(t, db)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/analysis/"+id+"/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "pending" {
		t.Errorf("expected pending, got %v", resp["status"])
	}
}

func TestGetChunks_Filters(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(t, db)
	id := seedStudy(t, db)
	db.segments[id] = segmenter.Result{
		StudyID: id,
		Segments: []segmenter.Segment{
			{SegmentID: "c0", Index: 0, Speakers: []string{"Moderator"}},
			{SegmentID: "c1", Index: 1, Speakers: []string{"Participant 1"}},
		},
		Summary: segmenter.Summary{TotalSegments: 2},
	}

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/analysis/"+id+"/chunks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/analysis/"+id+"/chunks?index=1", nil)
	var seg segmenter.Segment
	_ = json.Unmarshal(rec.Body.Bytes(), &seg)
	if seg.SegmentID != "c1" {
		t.Errorf("index filter wrong: %+v", seg)
	}

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/analysis/"+id+"/chunks?index=9", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("out-of-range index: expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/analysis/"+id+"/chunks?speaker=Moderator", nil)
	var resp struct {
		Chunks []segmenter.Segment `json:"chunks"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Chunks) != 1 || resp.Chunks[0].SegmentID != "c0" {
		t.Errorf("speaker filter wrong: %+v", resp.Chunks)
	}
}

func TestAnalyzeSegments_UnknownKind(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(t, db)
	id := seedStudy(t, db)

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/analysis/"+id+"/analyze",
		map[string]any{"analysis_types": []string{"sentiment"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}
}

func TestAnalyzeSegments_EmptyBodyRunsAllKinds(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(t, db)
	id := seedStudy(t, db)
	db.segments[id] = segmenter.Result{
		StudyID:  id,
		Segments: []segmenter.Segment{{SegmentID: id + "_chunk_000", Index: 0, Text: "some text"}},
	}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/analysis/"+id+"/analyze", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("empty body must default to all kinds, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Analyses []analyzer.SegmentAnalysis `json:"analyses"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Analyses) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(resp.Analyses))
	}
	if got := len(resp.Analyses[0].Results); got != len(extractor.AllKinds()) {
		t.Errorf("expected all %d kinds, got %d", len(extractor.AllKinds()), got)
	}
}

func TestAnalyzeThenComplete(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(t, db)
	id := seedStudy(t, db)
	db.segments[id] = segmenter.Result{
		StudyID:  id,
		Segments: []segmenter.Segment{{SegmentID: id + "_chunk_000", Index: 0, Text: "some text"}},
	}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/analysis/"+id+"/analyze",
		map[string]any{"analysis_types": []string{"themes"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(db.analyses[id]) != 1 {
		t.Fatalf("analyses not saved: %+v", db.analyses)
	}

	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/analysis/"+id+"/complete", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d", rec.Code)
	}
	var report aggregator.StudyReport
	_ = json.Unmarshal(rec.Body.Bytes(), &report)
	if report.StudyID != id {
		t.Errorf("report study id wrong: %q", report.StudyID)
	}
	if _, ok := db.reports[id]; !ok {
		t.Error("report not persisted")
	}
}

func TestGetThemes_NoReport(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(t, db)
	id := seedStudy(t, db)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/analysis/"+id+"/themes", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before report exists, got %d", rec.Code)
	}
}

func TestCrossTranscript_RequiresTwoStudies(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(t, db)
	id := seedStudy(t, db)
	db.reports[id] = aggregator.StudyReport{StudyID: id}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/analysis/cross-transcript",
		map[string]any{"study_ids": []string{id}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for one study, got %d", rec.Code)
	}
}

func TestCrossTranscript(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(t, db)
	a, b := seedStudy(t, db), seedStudy(t, db)
	db.reports[a] = aggregator.StudyReport{StudyID: a, ConsolidatedThemes: []aggregator.ConsolidatedTheme{{Name: "Pricing"}}}
	db.reports[b] = aggregator.StudyReport{StudyID: b, ConsolidatedThemes: []aggregator.ConsolidatedTheme{{Name: "Pricing"}}}

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/analysis/cross-transcript",
		map[string]any{"study_ids": []string{a, b}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Report crossstudy.Report `json:"report"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Report.StudiesAnalyzed) != 2 {
		t.Errorf("unexpected comparison: %+v", resp.Report)
	}
}

func TestCrossTranscript_ExcludesStudiesWithoutReports(t *testing.T) {
	db := newMemStore()
	srv, _ := newTestServer(t, db)
	a, b, c := seedStudy(t, db), seedStudy(t, db), seedStudy(t, db)
	db.reports[a] = aggregator.StudyReport{StudyID: a, ConsolidatedThemes: []aggregator.ConsolidatedTheme{{Name: "Pricing"}}}
	db.reports[b] = aggregator.StudyReport{StudyID: b, ConsolidatedThemes: []aggregator.ConsolidatedTheme{{Name: "Pricing"}}}
	// c has no report and must be excluded, not abort the comparison.

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/analysis/cross-transcript",
		map[string]any{"study_ids": []string{a, b, c}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with one study excluded, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Report crossstudy.Report `json:"report"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Report.StudiesAnalyzed) != 2 {
		t.Errorf("expected 2 studies analyzed, got %+v", resp.Report.StudiesAnalyzed)
	}
	for _, id := range resp.Report.StudiesAnalyzed {
		if id == c {
			t.Errorf("study without report must not appear in comparison: %v", resp.Report.StudiesAnalyzed)
		}
	}

	// With only one report left the comparison itself is rejected.
	rec = doJSON(t, srv.Handler(), http.MethodPost, "/api/analysis/cross-transcript",
		map[string]any{"study_ids": []string{a, c}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 when fewer than two reports remain, got %d", rec.Code)
	}
}

func TestSearchSimilarThemes_Unconfigured(t *testing.T) {
	srv, _ := newTestServer(t, newMemStore())

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/search/similar-themes?query=pricing", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without searcher, got %d", rec.Code)
	}
}

type stubSearcher struct{}

func (stubSearcher) FindSimilarThemes(context.Context, string, string, int) ([]indexer.ThemeMatch, error) {
	return []indexer.ThemeMatch{{StudyID: "s1", ThemeName: "Pricing", Similarity: 0.91}}, nil
}

func TestSearchSimilarThemes(t *testing.T) {
	db := newMemStore()
	ext := extractor.New(stubLLM{}, testLogger())
	srv := NewServer(Deps{
		Store:      db,
		Runner:     &stubRunner{},
		Analyzer:   analyzer.New(ext, 1, testLogger()),
		Aggregator: aggregator.New(stubLLM{}, aggregator.Config{}, testLogger()),
		Comparator: crossstudy.New(stubLLM{}, crossstudy.Config{}, testLogger()),
		Search:     stubSearcher{},
		Ingest:     ingest.NewTextExtractor(),
		Logger:     testLogger(),
	})

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/search/similar-themes?query=pricing", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Matches []indexer.ThemeMatch `json:"matches"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Matches) != 1 || resp.Matches[0].ThemeName != "Pricing" {
		t.Errorf("unexpected matches: %+v", resp.Matches)
	}

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/search/similar-themes", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing query: expected 400, got %d", rec.Code)
	}
}
