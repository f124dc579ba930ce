package extractor

import "fmt"

// Kind is a category of structured information extracted per segment.
type Kind string

const (
	KindThemes   Kind = "themes"
	KindQuotes   Kind = "quotes"
	KindPatterns Kind = "patterns"
	KindInsights Kind = "insights"
)

// AllKinds returns every extraction kind in canonical order.
func AllKinds() []Kind {
	return []Kind{KindThemes, KindQuotes, KindPatterns, KindInsights}
}

// ParseKind validates a user-supplied analysis type.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindThemes, KindQuotes, KindPatterns, KindInsights:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown analysis type %q", s)
}

// Theme is a recurring topic identified in a segment.
type Theme struct {
	Name          string   `json:"theme_name"`
	Description   string   `json:"description"`
	KeyPoints     []string `json:"key_points"`
	RelatedQuotes []string `json:"related_quotes"`
}

// Quote is a significant verbatim statement with attribution.
type Quote struct {
	Text           string `json:"quote_text"`
	Speaker        string `json:"speaker"`
	Context        string `json:"context"`
	ThemeRelevance string `json:"theme_relevance"`
	Sentiment      string `json:"sentiment"`
}

// Pattern is a behavioral, demographic, or frequency pattern observed in a
// segment.
type Pattern struct {
	PatternType        string   `json:"pattern_type"`
	Name               string   `json:"pattern_name"`
	Description        string   `json:"description"`
	FrequencyLabel     string   `json:"frequency_label"`
	SegmentsInvolved   []string `json:"segments_involved"`
	SupportingEvidence []string `json:"supporting_evidence"`
}

// Insight is an actionable observation derived from a segment.
type Insight struct {
	Title              string   `json:"insight_title"`
	Description        string   `json:"insight_description"`
	SupportingEvidence []string `json:"supporting_evidence"`
	Implications       string   `json:"implications"`
	ConfidenceLevel    string   `json:"confidence_level"`
}

// Record is the normalized result of one model call for one segment and one
// extraction kind. Exactly one of the item slices is populated, matching
// Kind; the populated slice is never nil, even when empty. A fallback record
// carries an empty item slice plus ErrorDetail.
type Record struct {
	SegmentID   string    `json:"segment_id"`
	Kind        Kind      `json:"analysis_type"`
	Themes      []Theme   `json:"themes,omitempty"`
	Quotes      []Quote   `json:"quotes,omitempty"`
	Patterns    []Pattern `json:"patterns,omitempty"`
	Insights    []Insight `json:"insights,omitempty"`
	IsFallback  bool      `json:"is_fallback"`
	ErrorDetail string    `json:"error_detail,omitempty"`
}

// ItemCount returns the number of extracted items for the record's kind.
func (r Record) ItemCount() int {
	switch r.Kind {
	case KindThemes:
		return len(r.Themes)
	case KindQuotes:
		return len(r.Quotes)
	case KindPatterns:
		return len(r.Patterns)
	case KindInsights:
		return len(r.Insights)
	}
	return 0
}
