package store

import (
	"context"
	"fmt"

	"github.com/meridian-research/prism/internal/indexer"
)

// UpsertThemeEmbedding stores one theme vector. Implements indexer.VectorStore.
func (s *Store) UpsertThemeEmbedding(ctx context.Context, rec indexer.ThemeEmbedding) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO theme_embeddings (study_id, theme_name, description, frequency, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (study_id, theme_name)
		DO UPDATE SET description = $3, frequency = $4, embedding = $5, updated_at = now()`,
		rec.StudyID, rec.ThemeName, rec.Description, rec.Frequency, pgVector(rec.Vector),
	)
	if err != nil {
		return fmt.Errorf("upsert theme embedding: %w", err)
	}
	return nil
}

// UpsertInsightEmbedding stores one insight vector.
func (s *Store) UpsertInsightEmbedding(ctx context.Context, rec indexer.InsightEmbedding) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO insight_embeddings (study_id, insight_title, description, embedding, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (study_id, insight_title)
		DO UPDATE SET description = $3, embedding = $4, updated_at = now()`,
		rec.StudyID, rec.Title, rec.Description, pgVector(rec.Vector),
	)
	if err != nil {
		return fmt.Errorf("upsert insight embedding: %w", err)
	}
	return nil
}

// SearchThemes runs a cosine nearest-neighbor query over stored theme
// embeddings, keeping matches at or above the similarity threshold.
func (s *Store) SearchThemes(ctx context.Context, vector []float64, studyID string, limit int, threshold float64) ([]indexer.ThemeMatch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT study_id, theme_name, description, frequency, 1 - (embedding <=> $1) AS similarity
		FROM theme_embeddings
		WHERE ($2 = '' OR study_id = $2)
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`,
		pgVector(vector), studyID, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search theme embeddings: %w", err)
	}
	defer rows.Close()

	matches := []indexer.ThemeMatch{}
	for rows.Next() {
		var m indexer.ThemeMatch
		if err := rows.Scan(&m.StudyID, &m.ThemeName, &m.Description, &m.Frequency, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan theme match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
