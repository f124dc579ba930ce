// Package aggregator merges per-segment extraction records into one
// consolidated study report.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/meridian-research/prism/internal/analyzer"
	"github.com/meridian-research/prism/internal/extractor"
	"github.com/meridian-research/prism/internal/jsonrepair"
	"github.com/meridian-research/prism/internal/llm"
)

const (
	defaultTopThemes  = 10
	summaryMaxTokens  = 1500
	maxPromptQuotes   = 20
	maxPromptInsights = 25
)

// LLM is the study-level completion contract for summary and insight
// generation.
type LLM interface {
	Complete(ctx context.Context, system string, messages []llm.Message, maxTokens int) (string, error)
}

// Config holds aggregation policy constants.
type Config struct {
	// TopThemes is how many ranked themes survive into the report.
	TopThemes int
}

type Aggregator struct {
	llm    LLM
	logger *slog.Logger
	cfg    Config
}

func New(client LLM, cfg Config, logger *slog.Logger) *Aggregator {
	if cfg.TopThemes <= 0 {
		cfg.TopThemes = defaultTopThemes
	}
	return &Aggregator{llm: client, cfg: cfg, logger: logger}
}

// pool holds every extracted item flattened across segments, with fallback
// records excluded from the primary sequences but counted for diagnostics.
type pool struct {
	themes    []sourcedTheme
	quotes    []SourcedQuote
	patterns  []SourcedPattern
	insights  []SourcedInsight
	fallbacks int
}

type sourcedTheme struct {
	extractor.Theme
	sourceSegment string
}

// Aggregate runs the full consolidation pipeline over all segment analyses
// of a study. It is total: model failures during summary generation degrade
// to labeled placeholders and the returned report is always fully shaped.
func (a *Aggregator) Aggregate(ctx context.Context, studyID string, analyses []analyzer.SegmentAnalysis) StudyReport {
	p := poolItems(analyses)

	themes := consolidateThemes(p.themes, a.cfg.TopThemes)
	buckets := bucketQuotes(themes, p.quotes)

	stats := SummaryStatistics{
		TotalThemes:     len(p.themes),
		TotalQuotes:     len(p.quotes),
		TotalInsights:   len(p.insights),
		TotalPatterns:   len(p.patterns),
		ChunksProcessed: len(analyses),
		FallbackRecords: p.fallbacks,
	}

	summary := a.generateSummary(ctx, studyID, themes, p.quotes, stats)
	insights := a.generateInsights(ctx, studyID, themes, p.insights)

	a.logger.Info("aggregation complete",
		"study_id", studyID,
		"themes", len(themes),
		"quotes", len(p.quotes),
		"insights", len(insights),
		"patterns", len(p.patterns),
		"fallback_records", p.fallbacks,
	)

	return StudyReport{
		StudyID:            studyID,
		ExecutiveSummary:   summary,
		ConsolidatedThemes: themes,
		QuotesByTheme:      buckets,
		ActionableInsights: insights,
		Patterns:           p.patterns,
		SummaryStatistics:  stats,
		GeneratedAt:        time.Now().UTC(),
	}
}

// poolItems flattens all non-fallback records into global sequences, each
// item stamped with its source segment. Fallback presence is kept as a count
// so diagnostics do not silently lose it.
func poolItems(analyses []analyzer.SegmentAnalysis) pool {
	p := pool{
		quotes:   []SourcedQuote{},
		patterns: []SourcedPattern{},
		insights: []SourcedInsight{},
	}
	for _, sa := range analyses {
		for _, kind := range extractor.AllKinds() {
			rec, ok := sa.Results[kind]
			if !ok {
				continue
			}
			if rec.IsFallback {
				p.fallbacks++
				continue
			}
			switch kind {
			case extractor.KindThemes:
				for _, t := range rec.Themes {
					p.themes = append(p.themes, sourcedTheme{Theme: t, sourceSegment: sa.SegmentID})
				}
			case extractor.KindQuotes:
				for _, q := range rec.Quotes {
					p.quotes = append(p.quotes, SourcedQuote{Quote: q, SourceSegment: sa.SegmentID})
				}
			case extractor.KindPatterns:
				for _, pt := range rec.Patterns {
					p.patterns = append(p.patterns, SourcedPattern{Pattern: pt, SourceSegment: sa.SegmentID})
				}
			case extractor.KindInsights:
				for _, in := range rec.Insights {
					p.insights = append(p.insights, SourcedInsight{Insight: in, SourceSegment: sa.SegmentID})
				}
			}
		}
	}
	return p
}

// consolidateThemes groups pooled themes by exact name, ranks by frequency
// descending with first-seen order breaking ties, and truncates to topK.
// No fuzzy matching happens at this stage.
func consolidateThemes(themes []sourcedTheme, topK int) []ConsolidatedTheme {
	byName := make(map[string]*ConsolidatedTheme)
	order := []string{}

	for _, t := range themes {
		ct, ok := byName[t.Name]
		if !ok {
			ct = &ConsolidatedTheme{
				Name:           t.Name,
				Descriptions:   []string{},
				KeyPoints:      []string{},
				RelatedQuotes:  []string{},
				SourceSegments: []string{},
			}
			byName[t.Name] = ct
			order = append(order, t.Name)
		}
		ct.Frequency++
		if t.Description != "" {
			ct.Descriptions = append(ct.Descriptions, t.Description)
		}
		ct.KeyPoints = append(ct.KeyPoints, t.KeyPoints...)
		ct.RelatedQuotes = append(ct.RelatedQuotes, t.RelatedQuotes...)
		ct.SourceSegments = append(ct.SourceSegments, t.sourceSegment)
	}

	consolidated := make([]ConsolidatedTheme, 0, len(order))
	for _, name := range order {
		consolidated = append(consolidated, *byName[name])
	}
	sort.SliceStable(consolidated, func(i, j int) bool {
		return consolidated[i].Frequency > consolidated[j].Frequency
	})

	if len(consolidated) > topK {
		consolidated = consolidated[:topK]
	}
	return consolidated
}

// bucketQuotes assigns each pooled quote to the first ranked theme whose key
// points match the quote text case-insensitively; unmatched quotes land in
// the Other bucket. First match wins, so every quote ends up in exactly one
// bucket.
func bucketQuotes(themes []ConsolidatedTheme, quotes []SourcedQuote) map[string][]SourcedQuote {
	buckets := make(map[string][]SourcedQuote, len(themes)+1)
	for _, t := range themes {
		buckets[t.Name] = []SourcedQuote{}
	}
	buckets[OtherBucket] = []SourcedQuote{}

	for _, q := range quotes {
		assigned := false
		quoteText := strings.ToLower(q.Text)
		for _, t := range themes {
			if themeMatchesQuote(t, quoteText) {
				buckets[t.Name] = append(buckets[t.Name], q)
				assigned = true
				break
			}
		}
		if !assigned {
			buckets[OtherBucket] = append(buckets[OtherBucket], q)
		}
	}
	return buckets
}

func themeMatchesQuote(t ConsolidatedTheme, quoteText string) bool {
	for _, kp := range t.KeyPoints {
		kpLower := strings.ToLower(strings.TrimSpace(kp))
		if kpLower == "" {
			continue
		}
		if strings.Contains(quoteText, kpLower) || strings.Contains(kpLower, quoteText) {
			return true
		}
	}
	return false
}

type summaryEnvelope struct {
	ExecutiveSummary *ExecutiveSummary `json:"executive_summary"`
}

// generateSummary issues the study-level summary call, degrading to a static
// placeholder so the report shape survives total model failure.
func (a *Aggregator) generateSummary(ctx context.Context, studyID string, themes []ConsolidatedTheme, quotes []SourcedQuote, stats SummaryStatistics) ExecutiveSummary {
	prompt := fmt.Sprintf(summaryPrompt,
		describeThemes(themes),
		describeQuotes(quotes, maxPromptQuotes),
		stats.TotalThemes, stats.TotalQuotes, stats.TotalInsights, stats.TotalPatterns, stats.ChunksProcessed,
	)

	raw, err := a.llm.Complete(ctx, summarySystemPrompt, []llm.Message{{Role: "user", Content: prompt}}, summaryMaxTokens)
	if err == nil {
		var env summaryEnvelope
		if perr := jsonrepair.Unmarshal(raw, &env); perr == nil && env.ExecutiveSummary != nil {
			return normalizeSummary(*env.ExecutiveSummary, themes)
		}
		err = fmt.Errorf("parse summary response")
	}

	a.logger.Warn("executive summary generation failed", "study_id", studyID, "error", err)
	return fallbackSummary(themes)
}

func normalizeSummary(s ExecutiveSummary, themes []ConsolidatedTheme) ExecutiveSummary {
	if s.KeyFindings == nil {
		s.KeyFindings = []string{}
	}
	if s.BusinessImplications == nil {
		s.BusinessImplications = []string{}
	}
	if s.Recommendations == nil {
		s.Recommendations = []string{}
	}
	if len(s.PrimaryThemes) == 0 {
		s.PrimaryThemes = themeNames(themes)
	}
	return s
}

func fallbackSummary(themes []ConsolidatedTheme) ExecutiveSummary {
	return ExecutiveSummary{
		Overview:             "Manual review required: the executive summary could not be generated from the model output.",
		KeyFindings:          []string{},
		OverallSentiment:     "unknown",
		PrimaryThemes:        themeNames(themes),
		BusinessImplications: []string{},
		Recommendations:      []string{"Review the consolidated themes and quotes manually."},
		IsFallback:           true,
	}
}

type insightsEnvelope struct {
	ActionableInsights []ActionableInsight `json:"actionable_insights"`
}

// generateInsights issues the study-level insight refinement call. On
// failure the pooled per-segment insights are ranked locally instead, so the
// report always carries a populated (possibly empty) insight list.
func (a *Aggregator) generateInsights(ctx context.Context, studyID string, themes []ConsolidatedTheme, pooled []SourcedInsight) []ActionableInsight {
	prompt := fmt.Sprintf(insightsPrompt, describeThemes(themes), describeInsights(pooled, maxPromptInsights))

	raw, err := a.llm.Complete(ctx, summarySystemPrompt, []llm.Message{{Role: "user", Content: prompt}}, summaryMaxTokens)
	if err == nil {
		var env insightsEnvelope
		if perr := jsonrepair.Unmarshal(raw, &env); perr == nil && env.ActionableInsights != nil {
			return rankInsights(env.ActionableInsights)
		}
		err = fmt.Errorf("parse insights response")
	}

	a.logger.Warn("actionable insight generation failed, ranking pooled insights locally",
		"study_id", studyID, "error", err)

	local := make([]ActionableInsight, 0, len(pooled))
	for _, in := range pooled {
		local = append(local, ActionableInsight{
			Title:              in.Title,
			Description:        in.Description,
			RecommendedActions: []string{},
			SupportingEvidence: in.SupportingEvidence,
			ConfidenceLevel:    in.ConfidenceLevel,
		})
	}
	return rankInsights(local)
}

// rankInsights stamps each insight with its derived priority score and sorts
// descending, preserving input order on ties.
func rankInsights(insights []ActionableInsight) []ActionableInsight {
	for i := range insights {
		if insights[i].RecommendedActions == nil {
			insights[i].RecommendedActions = []string{}
		}
		if insights[i].SupportingEvidence == nil {
			insights[i].SupportingEvidence = []string{}
		}
		insights[i].PriorityScore = priorityScore(insights[i].ConfidenceLevel, len(insights[i].SupportingEvidence))
	}
	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].PriorityScore > insights[j].PriorityScore
	})
	return insights
}

func themeNames(themes []ConsolidatedTheme) []string {
	names := make([]string, 0, len(themes))
	for _, t := range themes {
		names = append(names, t.Name)
	}
	return names
}

func describeThemes(themes []ConsolidatedTheme) string {
	if len(themes) == 0 {
		return "(no themes extracted)"
	}
	var sb strings.Builder
	for i, t := range themes {
		desc := ""
		if len(t.Descriptions) > 0 {
			desc = t.Descriptions[0]
		}
		fmt.Fprintf(&sb, "%d. %s (mentioned in %d segments): %s\n", i+1, t.Name, t.Frequency, desc)
	}
	return sb.String()
}

func describeQuotes(quotes []SourcedQuote, limit int) string {
	if len(quotes) == 0 {
		return "(no quotes extracted)"
	}
	if len(quotes) > limit {
		quotes = quotes[:limit]
	}
	var sb strings.Builder
	for _, q := range quotes {
		fmt.Fprintf(&sb, "- %s: %q (%s)\n", q.Speaker, q.Text, q.Sentiment)
	}
	return sb.String()
}

func describeInsights(insights []SourcedInsight, limit int) string {
	if len(insights) == 0 {
		return "(no insights extracted)"
	}
	if len(insights) > limit {
		insights = insights[:limit]
	}
	var sb strings.Builder
	for _, in := range insights {
		fmt.Fprintf(&sb, "- %s [%s]: %s\n", in.Title, in.ConfidenceLevel, in.Description)
	}
	return sb.String()
}
