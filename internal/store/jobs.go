package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-research/prism/internal/pipeline"
)

// Put inserts an analysis job. Implements pipeline.JobStore.
func (s *Store) Put(ctx context.Context, job pipeline.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analysis_jobs (id, study_id, status, current_step, progress, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.StudyID, job.Status, job.CurrentStep, job.Progress, job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get fetches an analysis job by id.
func (s *Store) Get(ctx context.Context, jobID string) (pipeline.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, study_id, status, current_step, progress, error, created_at, updated_at
		FROM analysis_jobs WHERE id = $1`, jobID)

	var job pipeline.Job
	err := row.Scan(&job.ID, &job.StudyID, &job.Status, &job.CurrentStep, &job.Progress, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.Job{}, fmt.Errorf("job %s not found", jobID)
	}
	if err != nil {
		return pipeline.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// LatestJobForStudy returns the most recent job for a study, if any.
func (s *Store) LatestJobForStudy(ctx context.Context, studyID string) (pipeline.Job, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, study_id, status, current_step, progress, error, created_at, updated_at
		FROM analysis_jobs WHERE study_id = $1
		ORDER BY created_at DESC LIMIT 1`, studyID)

	var job pipeline.Job
	err := row.Scan(&job.ID, &job.StudyID, &job.Status, &job.CurrentStep, &job.Progress, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.Job{}, false, nil
	}
	if err != nil {
		return pipeline.Job{}, false, fmt.Errorf("select latest job: %w", err)
	}
	return job, true, nil
}

// UpdateFields applies a partial job update, building the SET clause from
// the non-nil fields.
func (s *Store) UpdateFields(ctx context.Context, jobID string, upd pipeline.JobUpdate) error {
	sets := []string{"updated_at = now()"}
	args := []any{jobID}

	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.CurrentStep != nil {
		add("current_step", *upd.CurrentStep)
	}
	if upd.Progress != nil {
		add("progress", *upd.Progress)
	}
	if upd.Error != nil {
		add("error", *upd.Error)
	}

	query := fmt.Sprintf("UPDATE analysis_jobs SET %s WHERE id = $1", strings.Join(sets, ", "))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not found", jobID)
	}
	return nil
}
