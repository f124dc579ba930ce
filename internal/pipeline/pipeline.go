// Package pipeline orchestrates the full study analysis flow: ingest,
// segment, analyze, aggregate, embed. Each stage checkpoints the job
// registry so clients can poll progress, and stage boundaries are
// published as events.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-research/prism/internal/aggregator"
	"github.com/meridian-research/prism/internal/analyzer"
	"github.com/meridian-research/prism/internal/events"
	"github.com/meridian-research/prism/internal/segmenter"
)

// Job statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Pipeline stages, reported through Job.CurrentStep.
const (
	StageExtracting  = "extracting"
	StageSegmenting  = "segmenting"
	StageAnalyzing   = "analyzing"
	StageAggregating = "aggregating"
	StageEmbedding   = "embedding"
)

// Job is one asynchronous analysis run for a study.
type Job struct {
	ID          string    `json:"job_id"`
	StudyID     string    `json:"study_id"`
	Status      string    `json:"status"`
	CurrentStep string    `json:"current_step,omitempty"`
	Progress    int       `json:"progress"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobUpdate carries the fields of a partial job update. Nil fields are
// left unchanged.
type JobUpdate struct {
	Status      *string
	CurrentStep *string
	Progress    *int
	Error       *string
}

// JobStore is the injected job registry. Postgres-backed in production,
// in-memory in tests.
type JobStore interface {
	Put(ctx context.Context, job Job) error
	Get(ctx context.Context, jobID string) (Job, error)
	UpdateFields(ctx context.Context, jobID string, upd JobUpdate) error
}

// Document is the raw study material the pipeline starts from.
type Document struct {
	StudyID  string
	Name     string
	Filename string
	Content  string
}

// StudyStore is the study persistence the pipeline needs.
type StudyStore interface {
	Document(ctx context.Context, studyID string) (Document, error)
	SetStudyStatus(ctx context.Context, studyID, status string) error
	SaveSegments(ctx context.Context, studyID string, res segmenter.Result) error
	SaveAnalyses(ctx context.Context, studyID string, analyses []analyzer.SegmentAnalysis) error
	SaveReport(ctx context.Context, studyID string, report aggregator.StudyReport) error
}

// ReportIndexer stores embeddings for a completed report. Optional.
type ReportIndexer interface {
	IndexReport(ctx context.Context, report aggregator.StudyReport) error
}

// Publisher emits stage-boundary events. Optional.
type Publisher interface {
	Publish(subject string, ev events.StudyEvent) error
}

type Runner struct {
	jobs     JobStore
	studies  StudyStore
	seg      *segmenter.Segmenter
	analyzer *analyzer.Analyzer
	agg      *aggregator.Aggregator
	indexer  ReportIndexer
	pub      Publisher
	logger   *slog.Logger
}

func NewRunner(jobs JobStore, studies StudyStore, seg *segmenter.Segmenter, an *analyzer.Analyzer, agg *aggregator.Aggregator, indexer ReportIndexer, pub Publisher, logger *slog.Logger) *Runner {
	return &Runner{
		jobs:     jobs,
		studies:  studies,
		seg:      seg,
		analyzer: an,
		agg:      agg,
		indexer:  indexer,
		pub:      pub,
		logger:   logger,
	}
}

// Start registers a pending job for the study and launches the run in the
// background. The returned job is what clients poll.
func (r *Runner) Start(ctx context.Context, studyID string) (Job, error) {
	now := time.Now().UTC()
	job := Job{
		ID:        uuid.NewString(),
		StudyID:   studyID,
		Status:    StatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.jobs.Put(ctx, job); err != nil {
		return Job{}, fmt.Errorf("register job: %w", err)
	}

	go r.Run(context.Background(), job)
	return job, nil
}

// Run executes the full pipeline for one job. Model failures degrade to
// fallback records inside the stages; only infrastructure failures mark
// the job failed.
func (r *Runner) Run(ctx context.Context, job Job) {
	r.publish(events.SubjectAnalysisStarted, events.StudyEvent{StudyID: job.StudyID, JobID: job.ID})
	_ = r.studies.SetStudyStatus(ctx, job.StudyID, StatusProcessing)

	doc, err := r.studies.Document(ctx, job.StudyID)
	if err != nil {
		r.fail(ctx, job, fmt.Errorf("load study: %w", err))
		return
	}

	r.checkpoint(ctx, job, StageExtracting, 10)
	// Content is stored as extracted text at upload time, so this stage
	// only validates that there is something to analyze.
	if len(doc.Content) == 0 {
		r.fail(ctx, job, segmenter.ErrEmptyDocument)
		return
	}

	r.checkpoint(ctx, job, StageSegmenting, 25)
	segRes, err := r.seg.Segment(job.StudyID, doc.Content)
	if err != nil {
		r.fail(ctx, job, fmt.Errorf("segment study: %w", err))
		return
	}
	if err := r.studies.SaveSegments(ctx, job.StudyID, segRes); err != nil {
		r.fail(ctx, job, fmt.Errorf("save segments: %w", err))
		return
	}

	r.checkpoint(ctx, job, StageAnalyzing, 40)
	analyses := r.analyzer.AnalyzeAll(ctx, segRes.Segments, nil)
	if err := r.studies.SaveAnalyses(ctx, job.StudyID, analyses); err != nil {
		r.fail(ctx, job, fmt.Errorf("save analyses: %w", err))
		return
	}

	r.checkpoint(ctx, job, StageAggregating, 75)
	report := r.agg.Aggregate(ctx, job.StudyID, analyses)
	if err := r.studies.SaveReport(ctx, job.StudyID, report); err != nil {
		r.fail(ctx, job, fmt.Errorf("save report: %w", err))
		return
	}

	r.checkpoint(ctx, job, StageEmbedding, 90)
	if r.indexer != nil {
		// Embedding failures do not fail the run; the report itself is done.
		if err := r.indexer.IndexReport(ctx, report); err != nil {
			r.logger.Warn("report indexing failed", "study_id", job.StudyID, "error", err)
		}
	}

	done := StatusCompleted
	progress := 100
	if err := r.jobs.UpdateFields(ctx, job.ID, JobUpdate{Status: &done, Progress: &progress}); err != nil {
		r.logger.Error("job completion update failed", "job_id", job.ID, "error", err)
	}
	_ = r.studies.SetStudyStatus(ctx, job.StudyID, StatusCompleted)
	r.publish(events.SubjectAnalysisCompleted, events.StudyEvent{StudyID: job.StudyID, JobID: job.ID, Progress: 100})

	r.logger.Info("analysis pipeline complete",
		"study_id", job.StudyID,
		"job_id", job.ID,
		"segments", len(segRes.Segments),
		"themes", report.SummaryStatistics.TotalThemes,
		"fallbacks", report.SummaryStatistics.FallbackRecords,
	)
}

func (r *Runner) checkpoint(ctx context.Context, job Job, stage string, progress int) {
	status := StatusProcessing
	if err := r.jobs.UpdateFields(ctx, job.ID, JobUpdate{Status: &status, CurrentStep: &stage, Progress: &progress}); err != nil {
		r.logger.Error("job checkpoint failed", "job_id", job.ID, "stage", stage, "error", err)
	}
	r.publish(events.SubjectAnalysisStage, events.StudyEvent{
		StudyID:  job.StudyID,
		JobID:    job.ID,
		Stage:    stage,
		Progress: progress,
	})
}

func (r *Runner) fail(ctx context.Context, job Job, cause error) {
	r.logger.Error("analysis pipeline failed", "study_id", job.StudyID, "job_id", job.ID, "error", cause)

	status := StatusFailed
	msg := cause.Error()
	if err := r.jobs.UpdateFields(ctx, job.ID, JobUpdate{Status: &status, Error: &msg}); err != nil {
		r.logger.Error("job failure update failed", "job_id", job.ID, "error", err)
	}
	_ = r.studies.SetStudyStatus(ctx, job.StudyID, StatusFailed)
	r.publish(events.SubjectAnalysisFailed, events.StudyEvent{StudyID: job.StudyID, JobID: job.ID, Error: msg})
}

func (r *Runner) publish(subject string, ev events.StudyEvent) {
	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(subject, ev); err != nil {
		r.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}
