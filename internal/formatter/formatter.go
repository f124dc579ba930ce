// Package formatter projects study reports into UI-ready structures. It is
// a pure, stateless transform: no network calls, no failure modes.
package formatter

import (
	"sort"

	"github.com/meridian-research/prism/internal/aggregator"
	"github.com/meridian-research/prism/internal/crossstudy"
)

// ThemeCard is one dashboard card for a consolidated theme.
type ThemeCard struct {
	Title       string   `json:"title"`
	Frequency   int      `json:"frequency"`
	Description string   `json:"description"`
	KeyPoints   []string `json:"key_points"`
	QuoteCount  int      `json:"quote_count"`
}

// InsightCard is one dashboard card for an actionable insight.
type InsightCard struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Priority      float64  `json:"priority"`
	Confidence    string   `json:"confidence"`
	Actions       []string `json:"actions"`
	EvidenceCount int      `json:"evidence_count"`
}

// ChartPoint is one entry of a label/value chart series.
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// DashboardView is the display projection of a single study report.
type DashboardView struct {
	StudyID             string                       `json:"study_id"`
	Overview            string                       `json:"overview"`
	Sentiment           string                       `json:"sentiment"`
	SummaryIsFallback   bool                         `json:"summary_is_fallback"`
	ThemeCards          []ThemeCard                  `json:"theme_cards"`
	InsightCards        []InsightCard                `json:"insight_cards"`
	ThemeFrequencyChart []ChartPoint                 `json:"theme_frequency_chart"`
	SentimentChart      []ChartPoint                 `json:"sentiment_chart"`
	Stats               aggregator.SummaryStatistics `json:"stats"`
}

// ComparisonView is the display projection of a cross-study report.
type ComparisonView struct {
	Studies        []string     `json:"studies"`
	ConsensusRate  float64      `json:"consensus_rate"`
	ConsensusChart []ChartPoint `json:"consensus_chart"`
	ConsensusCards []ThemeCard  `json:"consensus_cards"`
	DivergentCards []ThemeCard  `json:"divergent_cards"`
}

// ForDisplay builds the dashboard view for one study report.
func ForDisplay(report aggregator.StudyReport) DashboardView {
	view := DashboardView{
		StudyID:             report.StudyID,
		Overview:            report.ExecutiveSummary.Overview,
		Sentiment:           report.ExecutiveSummary.OverallSentiment,
		SummaryIsFallback:   report.ExecutiveSummary.IsFallback,
		ThemeCards:          []ThemeCard{},
		InsightCards:        []InsightCard{},
		ThemeFrequencyChart: []ChartPoint{},
		SentimentChart:      []ChartPoint{},
		Stats:               report.SummaryStatistics,
	}

	for _, t := range report.ConsolidatedThemes {
		desc := ""
		if len(t.Descriptions) > 0 {
			desc = t.Descriptions[0]
		}
		view.ThemeCards = append(view.ThemeCards, ThemeCard{
			Title:       t.Name,
			Frequency:   t.Frequency,
			Description: desc,
			KeyPoints:   t.KeyPoints,
			QuoteCount:  len(report.QuotesByTheme[t.Name]),
		})
		view.ThemeFrequencyChart = append(view.ThemeFrequencyChart, ChartPoint{
			Label: t.Name,
			Value: float64(t.Frequency),
		})
	}

	for _, in := range report.ActionableInsights {
		view.InsightCards = append(view.InsightCards, InsightCard{
			Title:         in.Title,
			Description:   in.Description,
			Priority:      in.PriorityScore,
			Confidence:    in.ConfidenceLevel,
			Actions:       in.RecommendedActions,
			EvidenceCount: len(in.SupportingEvidence),
		})
	}

	view.SentimentChart = sentimentSeries(report.QuotesByTheme)
	return view
}

// ForComparison builds the dashboard view for a cross-study report.
func ForComparison(report crossstudy.Report) ComparisonView {
	view := ComparisonView{
		Studies:        report.StudiesAnalyzed,
		ConsensusRate:  report.ConsensusRate,
		ConsensusChart: []ChartPoint{},
		ConsensusCards: []ThemeCard{},
		DivergentCards: []ThemeCard{},
	}
	if view.Studies == nil {
		view.Studies = []string{}
	}

	for _, cl := range report.ConsensusThemes {
		view.ConsensusCards = append(view.ConsensusCards, clusterCard(cl))
		view.ConsensusChart = append(view.ConsensusChart, ChartPoint{
			Label: cl.Label,
			Value: float64(cl.FrequencyAcrossStudies),
		})
	}
	for _, cl := range report.DivergentThemes {
		view.DivergentCards = append(view.DivergentCards, clusterCard(cl))
	}
	return view
}

func clusterCard(cl crossstudy.ThemeCluster) ThemeCard {
	return ThemeCard{
		Title:     cl.Label,
		Frequency: cl.FrequencyAcrossStudies,
		KeyPoints: cl.Names,
	}
}

// sentimentSeries counts quote sentiments across every bucket. Unlabeled
// sentiments fall under "unspecified".
func sentimentSeries(buckets map[string][]aggregator.SourcedQuote) []ChartPoint {
	counts := map[string]int{}
	order := []string{}
	for _, quotes := range buckets {
		for _, q := range quotes {
			s := q.Sentiment
			if s == "" {
				s = "unspecified"
			}
			if _, ok := counts[s]; !ok {
				order = append(order, s)
			}
			counts[s]++
		}
	}
	// Map iteration order is random; sort labels for a stable series.
	sort.Strings(order)
	series := make([]ChartPoint, 0, len(order))
	for _, s := range order {
		series = append(series, ChartPoint{Label: s, Value: float64(counts[s])})
	}
	return series
}
