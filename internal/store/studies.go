package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Study is one uploaded research document with its lifecycle status.
type Study struct {
	ID        uuid.UUID         `json:"study_id"`
	Name      string            `json:"name"`
	Filename  string            `json:"filename"`
	Content   string            `json:"-"`
	WordCount int               `json:"word_count"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// CreateStudy inserts an uploaded study and returns its id.
func (s *Store) CreateStudy(ctx context.Context, name, filename, content string, wordCount int, metadata map[string]string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO studies (id, name, filename, content, word_count, metadata, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', now())`,
		id, name, filename, content, wordCount, metadata,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert study: %w", err)
	}
	return id, nil
}

// GetStudy fetches a study including its raw content.
func (s *Store) GetStudy(ctx context.Context, id uuid.UUID) (Study, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, filename, content, word_count, metadata, status, created_at
		FROM studies WHERE id = $1`, id)

	var st Study
	err := row.Scan(&st.ID, &st.Name, &st.Filename, &st.Content, &st.WordCount, &st.Metadata, &st.Status, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Study{}, ErrStudyNotFound
	}
	if err != nil {
		return Study{}, fmt.Errorf("select study: %w", err)
	}
	return st, nil
}

// UpdateStudyStatus moves a study through its lifecycle
// (pending, processing, completed, failed).
func (s *Store) UpdateStudyStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE studies SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update study status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStudyNotFound
	}
	return nil
}

// ListStudies returns studies without their content, newest first.
func (s *Store) ListStudies(ctx context.Context) ([]Study, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, filename, word_count, metadata, status, created_at
		FROM studies ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list studies: %w", err)
	}
	defer rows.Close()

	studies := []Study{}
	for rows.Next() {
		var st Study
		if err := rows.Scan(&st.ID, &st.Name, &st.Filename, &st.WordCount, &st.Metadata, &st.Status, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan study: %w", err)
		}
		studies = append(studies, st)
	}
	return studies, rows.Err()
}
