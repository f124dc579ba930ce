package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridian-research/prism/internal/aggregator"
	"github.com/meridian-research/prism/internal/analyzer"
	"github.com/meridian-research/prism/internal/pipeline"
	"github.com/meridian-research/prism/internal/segmenter"
)

// Document loads the raw study material for the pipeline. Implements
// pipeline.StudyStore.
func (s *Store) Document(ctx context.Context, studyID string) (pipeline.Document, error) {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return pipeline.Document{}, ErrStudyNotFound
	}
	study, err := s.GetStudy(ctx, id)
	if err != nil {
		return pipeline.Document{}, err
	}
	return pipeline.Document{
		StudyID:  studyID,
		Name:     study.Name,
		Filename: study.Filename,
		Content:  study.Content,
	}, nil
}

// SetStudyStatus is the string-id variant used by the pipeline.
func (s *Store) SetStudyStatus(ctx context.Context, studyID, status string) error {
	id, err := uuid.Parse(studyID)
	if err != nil {
		return ErrStudyNotFound
	}
	return s.UpdateStudyStatus(ctx, id, status)
}

// SaveSegments stores the segmentation result as one jsonb snapshot.
func (s *Store) SaveSegments(ctx context.Context, studyID string, res segmenter.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO study_segments (study_id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (study_id) DO UPDATE SET payload = $2, updated_at = now()`,
		studyID, payload,
	)
	if err != nil {
		return fmt.Errorf("save segments: %w", err)
	}
	return nil
}

// GetSegments loads the segmentation snapshot for a study.
func (s *Store) GetSegments(ctx context.Context, studyID string) (segmenter.Result, error) {
	row := s.pool.QueryRow(ctx, `SELECT payload FROM study_segments WHERE study_id = $1`, studyID)

	var payload []byte
	err := row.Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return segmenter.Result{}, ErrStudyNotFound
	}
	if err != nil {
		return segmenter.Result{}, fmt.Errorf("select segments: %w", err)
	}

	var res segmenter.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return segmenter.Result{}, fmt.Errorf("unmarshal segments: %w", err)
	}
	return res, nil
}

// SaveAnalyses stores the per-segment extraction records as one jsonb snapshot.
func (s *Store) SaveAnalyses(ctx context.Context, studyID string, analyses []analyzer.SegmentAnalysis) error {
	payload, err := json.Marshal(analyses)
	if err != nil {
		return fmt.Errorf("marshal analyses: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO study_analyses (study_id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (study_id) DO UPDATE SET payload = $2, updated_at = now()`,
		studyID, payload,
	)
	if err != nil {
		return fmt.Errorf("save analyses: %w", err)
	}
	return nil
}

// GetAnalyses loads the per-segment extraction records for a study.
func (s *Store) GetAnalyses(ctx context.Context, studyID string) ([]analyzer.SegmentAnalysis, error) {
	row := s.pool.QueryRow(ctx, `SELECT payload FROM study_analyses WHERE study_id = $1`, studyID)

	var payload []byte
	err := row.Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStudyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select analyses: %w", err)
	}

	var analyses []analyzer.SegmentAnalysis
	if err := json.Unmarshal(payload, &analyses); err != nil {
		return nil, fmt.Errorf("unmarshal analyses: %w", err)
	}
	return analyses, nil
}

// SaveReport stores the consolidated study report as jsonb.
func (s *Store) SaveReport(ctx context.Context, studyID string, report aggregator.StudyReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO study_reports (study_id, payload, generated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (study_id) DO UPDATE SET payload = $2, generated_at = $3`,
		studyID, payload, report.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

// GetReport loads the consolidated report for a study.
func (s *Store) GetReport(ctx context.Context, studyID string) (aggregator.StudyReport, error) {
	row := s.pool.QueryRow(ctx, `SELECT payload FROM study_reports WHERE study_id = $1`, studyID)

	var payload []byte
	err := row.Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return aggregator.StudyReport{}, ErrStudyNotFound
	}
	if err != nil {
		return aggregator.StudyReport{}, fmt.Errorf("select report: %w", err)
	}

	var report aggregator.StudyReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return aggregator.StudyReport{}, fmt.Errorf("unmarshal report: %w", err)
	}
	return report, nil
}
