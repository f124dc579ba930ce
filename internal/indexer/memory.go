package indexer

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-memory VectorStore using brute-force cosine
// similarity. It backs tests and database-less deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	themes   []ThemeEmbedding
	insights []InsightEmbedding
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) UpsertThemeEmbedding(_ context.Context, rec ThemeEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.themes {
		if t.StudyID == rec.StudyID && t.ThemeName == rec.ThemeName {
			m.themes[i] = rec
			return nil
		}
	}
	m.themes = append(m.themes, rec)
	return nil
}

func (m *MemoryStore) UpsertInsightEmbedding(_ context.Context, rec InsightEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, in := range m.insights {
		if in.StudyID == rec.StudyID && in.Title == rec.Title {
			m.insights[i] = rec
			return nil
		}
	}
	m.insights = append(m.insights, rec)
	return nil
}

func (m *MemoryStore) SearchThemes(_ context.Context, vector []float64, studyID string, limit int, threshold float64) ([]ThemeMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := []ThemeMatch{}
	for _, t := range m.themes {
		if studyID != "" && t.StudyID != studyID {
			continue
		}
		sim := cosine(vector, t.Vector)
		if sim < threshold {
			continue
		}
		matches = append(matches, ThemeMatch{
			StudyID:     t.StudyID,
			ThemeName:   t.ThemeName,
			Description: t.Description,
			Frequency:   t.Frequency,
			Similarity:  sim,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
