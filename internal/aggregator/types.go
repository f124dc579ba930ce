package aggregator

import (
	"time"

	"github.com/meridian-research/prism/internal/extractor"
)

// OtherBucket is the quote bucket for quotes matching no consolidated theme.
const OtherBucket = "Other"

// ConsolidatedTheme is the merged view of one theme name across all segments
// of a study. Frequency always equals len(SourceSegments).
type ConsolidatedTheme struct {
	Name           string   `json:"theme_name"`
	Frequency      int      `json:"frequency"`
	Descriptions   []string `json:"descriptions"`
	KeyPoints      []string `json:"key_points"`
	RelatedQuotes  []string `json:"related_quotes"`
	SourceSegments []string `json:"source_segments"`
}

// SourcedQuote is a pooled quote stamped with its source segment.
type SourcedQuote struct {
	extractor.Quote
	SourceSegment string `json:"source_segment"`
}

// SourcedPattern is a pooled pattern stamped with its source segment.
type SourcedPattern struct {
	extractor.Pattern
	SourceSegment string `json:"source_segment"`
}

// SourcedInsight is a pooled insight stamped with its source segment.
type SourcedInsight struct {
	extractor.Insight
	SourceSegment string `json:"source_segment"`
}

// ExecutiveSummary is the study-level narrative summary. IsFallback marks the
// static placeholder substituted when summary generation failed.
type ExecutiveSummary struct {
	Overview             string   `json:"overview"`
	KeyFindings          []string `json:"key_findings"`
	OverallSentiment     string   `json:"overall_sentiment"`
	PrimaryThemes        []string `json:"primary_themes"`
	BusinessImplications []string `json:"business_implications"`
	Recommendations      []string `json:"recommendations"`
	IsFallback           bool     `json:"is_fallback,omitempty"`
}

// ActionableInsight is a ranked study-level insight.
type ActionableInsight struct {
	Title              string   `json:"insight_title"`
	Description        string   `json:"insight_description"`
	RecommendedActions []string `json:"recommended_actions"`
	SupportingEvidence []string `json:"supporting_evidence"`
	ConfidenceLevel    string   `json:"confidence_level"`
	PriorityScore      float64  `json:"priority_score"`
}

// SummaryStatistics counts pooled items before any truncation.
type SummaryStatistics struct {
	TotalThemes     int `json:"total_themes"`
	TotalQuotes     int `json:"total_quotes"`
	TotalInsights   int `json:"total_insights"`
	TotalPatterns   int `json:"total_patterns"`
	ChunksProcessed int `json:"chunks_processed"`
	FallbackRecords int `json:"fallback_records"`
}

// StudyReport is the final consolidated artifact for one study. It is always
// fully shaped: under total model failure every model-derived section
// degrades to an explicit fallback payload instead of going missing.
type StudyReport struct {
	StudyID            string                    `json:"study_id"`
	ExecutiveSummary   ExecutiveSummary          `json:"executive_summary"`
	ConsolidatedThemes []ConsolidatedTheme       `json:"consolidated_themes"`
	QuotesByTheme      map[string][]SourcedQuote `json:"quotes_by_theme"`
	ActionableInsights []ActionableInsight       `json:"actionable_insights"`
	Patterns           []SourcedPattern          `json:"patterns"`
	SummaryStatistics  SummaryStatistics         `json:"summary_statistics"`
	GeneratedAt        time.Time                 `json:"generated_at"`
}
