// Package indexer enriches study reports with embedding vectors and answers
// semantic similarity queries across studies.
package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-research/prism/internal/aggregator"
)

const (
	// DefaultSimilarityThreshold filters weak nearest-neighbor matches.
	DefaultSimilarityThreshold = 0.7
	// DefaultSearchLimit caps similarity query results.
	DefaultSearchLimit = 5
)

// Embedder converts text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ThemeEmbedding is one stored theme vector with its display metadata.
type ThemeEmbedding struct {
	StudyID     string    `json:"study_id"`
	ThemeName   string    `json:"theme_name"`
	Description string    `json:"theme_description"`
	Frequency   int       `json:"frequency"`
	Vector      []float64 `json:"-"`
}

// InsightEmbedding is one stored insight vector with its display metadata.
type InsightEmbedding struct {
	StudyID     string    `json:"study_id"`
	Title       string    `json:"insight_title"`
	Description string    `json:"insight_description"`
	Vector      []float64 `json:"-"`
}

// ThemeMatch is one similarity search hit.
type ThemeMatch struct {
	StudyID     string  `json:"study_id"`
	ThemeName   string  `json:"theme_name"`
	Description string  `json:"theme_description"`
	Frequency   int     `json:"frequency"`
	Similarity  float64 `json:"similarity"`
}

// VectorStore is the storage contract the indexer needs: store embeddings,
// answer nearest-neighbor queries above a similarity threshold.
type VectorStore interface {
	UpsertThemeEmbedding(ctx context.Context, rec ThemeEmbedding) error
	UpsertInsightEmbedding(ctx context.Context, rec InsightEmbedding) error
	SearchThemes(ctx context.Context, vector []float64, studyID string, limit int, threshold float64) ([]ThemeMatch, error)
}

// Config holds search policy constants.
type Config struct {
	SimilarityThreshold float64
	SearchLimit         int
}

type Indexer struct {
	embedder Embedder
	store    VectorStore
	logger   *slog.Logger
	cfg      Config
}

func New(embedder Embedder, store VectorStore, cfg Config, logger *slog.Logger) *Indexer {
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold >= 1 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	return &Indexer{embedder: embedder, store: store, cfg: cfg, logger: logger}
}

// IndexReport embeds and stores every consolidated theme and actionable
// insight of a completed report. Individual embedding failures are logged
// and skipped; the indexer reports an error only when nothing was stored.
func (ix *Indexer) IndexReport(ctx context.Context, report aggregator.StudyReport) error {
	stored, failed := 0, 0

	for _, t := range report.ConsolidatedThemes {
		content := themeContent(t)
		if content == "" {
			continue
		}
		vec, err := ix.embedder.Embed(ctx, content)
		if err != nil {
			ix.logger.Warn("theme embedding failed", "study_id", report.StudyID, "theme", t.Name, "error", err)
			failed++
			continue
		}
		rec := ThemeEmbedding{
			StudyID:     report.StudyID,
			ThemeName:   t.Name,
			Description: joinDescriptions(t.Descriptions),
			Frequency:   t.Frequency,
			Vector:      vec,
		}
		if err := ix.store.UpsertThemeEmbedding(ctx, rec); err != nil {
			ix.logger.Warn("theme embedding store failed", "study_id", report.StudyID, "theme", t.Name, "error", err)
			failed++
			continue
		}
		stored++
	}

	for _, in := range report.ActionableInsights {
		content := insightContent(in)
		if content == "" {
			continue
		}
		vec, err := ix.embedder.Embed(ctx, content)
		if err != nil {
			ix.logger.Warn("insight embedding failed", "study_id", report.StudyID, "insight", in.Title, "error", err)
			failed++
			continue
		}
		rec := InsightEmbedding{
			StudyID:     report.StudyID,
			Title:       in.Title,
			Description: in.Description,
			Vector:      vec,
		}
		if err := ix.store.UpsertInsightEmbedding(ctx, rec); err != nil {
			ix.logger.Warn("insight embedding store failed", "study_id", report.StudyID, "insight", in.Title, "error", err)
			failed++
			continue
		}
		stored++
	}

	ix.logger.Info("report indexed", "study_id", report.StudyID, "stored", stored, "failed", failed)
	if stored == 0 && failed > 0 {
		return fmt.Errorf("indexing stored nothing: %d embeddings failed", failed)
	}
	return nil
}

// FindSimilarThemes embeds the query and returns stored themes above the
// similarity threshold, optionally scoped to one study.
func (ix *Indexer) FindSimilarThemes(ctx context.Context, query, studyID string, limit int) ([]ThemeMatch, error) {
	if limit <= 0 {
		limit = ix.cfg.SearchLimit
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := ix.store.SearchThemes(ctx, vec, studyID, limit, ix.cfg.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("search themes: %w", err)
	}
	if matches == nil {
		matches = []ThemeMatch{}
	}
	return matches, nil
}

func themeContent(t aggregator.ConsolidatedTheme) string {
	desc := joinDescriptions(t.Descriptions)
	if t.Name == "" && desc == "" {
		return ""
	}
	return t.Name + ": " + desc
}

func insightContent(in aggregator.ActionableInsight) string {
	if in.Title == "" && in.Description == "" {
		return ""
	}
	return in.Title + ": " + in.Description
}

func joinDescriptions(descs []string) string {
	out := ""
	for i, d := range descs {
		if i > 0 {
			out += " "
		}
		out += d
	}
	return out
}
