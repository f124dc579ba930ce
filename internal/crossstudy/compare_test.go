package crossstudy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/meridian-research/prism/internal/aggregator"
	"github.com/meridian-research/prism/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Complete(context.Context, string, []llm.Message, int) (string, error) {
	return s.response, s.err
}

func report(studyID string, themeNames ...string) aggregator.StudyReport {
	themes := make([]aggregator.ConsolidatedTheme, 0, len(themeNames))
	for _, n := range themeNames {
		themes = append(themes, aggregator.ConsolidatedTheme{Name: n, Frequency: 2})
	}
	return aggregator.StudyReport{StudyID: studyID, ConsolidatedThemes: themes}
}

func TestCompare_RequiresTwoStudies(t *testing.T) {
	c := New(&stubLLM{err: errors.New("unused")}, Config{}, testLogger())

	_, err := c.Compare(context.Background(), []aggregator.StudyReport{report("s1", "Pricing")})
	if !errors.Is(err, ErrInsufficientStudies) {
		t.Fatalf("expected ErrInsufficientStudies, got %v", err)
	}
}

func TestCompare_FuzzyThemeMatchingFindsConsensus(t *testing.T) {
	c := New(&stubLLM{err: errors.New("model down")}, Config{}, testLogger())

	// "Price Sensitivity" vs "Price sensitivity concerns": 2 shared words over
	// min set size 2 = 1.0 > 0.5, so they cluster as one consensus theme.
	reports := []aggregator.StudyReport{
		report("s1", "Price Sensitivity"),
		report("s2", "Price sensitivity concerns"),
	}

	out, err := c.Compare(context.Background(), reports)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.ConsensusThemes) != 1 {
		t.Fatalf("expected 1 consensus cluster, got %d", len(out.ConsensusThemes))
	}
	cl := out.ConsensusThemes[0]
	if len(cl.Studies) != 2 {
		t.Errorf("cluster must span both studies: %+v", cl)
	}
	if len(cl.Names) != 2 {
		t.Errorf("cluster must keep both original names: %+v", cl.Names)
	}
	if len(out.DivergentThemes) != 0 {
		t.Errorf("expected no divergent themes, got %+v", out.DivergentThemes)
	}
	if out.ConsensusRate != 1.0 {
		t.Errorf("consensus rate: got %v, want 1.0", out.ConsensusRate)
	}
}

func TestCompare_SeparatesDivergentThemes(t *testing.T) {
	c := New(&stubLLM{err: errors.New("model down")}, Config{}, testLogger())

	reports := []aggregator.StudyReport{
		report("s1", "Pricing", "Mobile onboarding friction"),
		report("s2", "Pricing", "Data privacy worries"),
	}

	out, err := c.Compare(context.Background(), reports)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.ConsensusThemes) != 1 {
		t.Fatalf("expected 1 consensus cluster, got %+v", out.ConsensusThemes)
	}
	if out.ConsensusThemes[0].Label != "Pricing" {
		t.Errorf("unexpected consensus label %q", out.ConsensusThemes[0].Label)
	}
	if len(out.DivergentThemes) != 2 {
		t.Fatalf("expected 2 divergent clusters, got %+v", out.DivergentThemes)
	}
	// 1 consensus out of 3 clusters.
	want := 1.0 / 3.0
	if diff := out.ConsensusRate - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("consensus rate: got %v, want %v", out.ConsensusRate, want)
	}
	if len(out.StudiesAnalyzed) != 2 {
		t.Errorf("studies analyzed: %+v", out.StudiesAnalyzed)
	}
}

func TestCompare_TrendFailureDegradesToEmpty(t *testing.T) {
	c := New(&stubLLM{err: errors.New("model down")}, Config{}, testLogger())

	out, err := c.Compare(context.Background(), []aggregator.StudyReport{
		report("s1", "Pricing"),
		report("s2", "Pricing"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Trends == nil || len(out.Trends) != 0 {
		t.Errorf("trends must degrade to empty, got %#v", out.Trends)
	}
	if out.MetaInsights == nil || len(out.MetaInsights) != 0 {
		t.Errorf("meta insights must degrade to empty, got %#v", out.MetaInsights)
	}
}

func TestCompare_TrendsFromModel(t *testing.T) {
	c := New(&stubLLM{response: `{"trends": [{"trend_name": "Price pressure", "direction": "rising", "description": "d"}], "meta_insights": [{"insight_title": "t", "insight_description": "d"}]}`}, Config{}, testLogger())

	out, err := c.Compare(context.Background(), []aggregator.StudyReport{
		report("s1", "Pricing"),
		report("s2", "Pricing"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Trends) != 1 || out.Trends[0].Direction != "rising" {
		t.Errorf("unexpected trends: %+v", out.Trends)
	}
	if len(out.MetaInsights) != 1 {
		t.Errorf("unexpected meta insights: %+v", out.MetaInsights)
	}
}

func TestWordOverlap(t *testing.T) {
	a := wordSet("Price Sensitivity")
	b := wordSet("price sensitivity concerns")
	if got := wordOverlap(a, b); got != 1.0 {
		t.Errorf("overlap: got %v, want 1.0", got)
	}

	c := wordSet("Mobile onboarding")
	if got := wordOverlap(a, c); got != 0.0 {
		t.Errorf("overlap of disjoint sets: got %v, want 0", got)
	}
}
