package extractor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meridian-research/prism/internal/jsonrepair"
	"github.com/meridian-research/prism/internal/llm"
)

const maxResponseTokens = 1500

// LLM is the single round-trip contract the extractor needs from a model
// client.
type LLM interface {
	Complete(ctx context.Context, system string, messages []llm.Message, maxTokens int) (string, error)
}

// Extractor issues one model call per (segment, kind) and normalizes the
// response. It never retries against the model; retries, if any, belong to
// the caller.
type Extractor struct {
	llm    LLM
	logger *slog.Logger
}

func New(client LLM, logger *slog.Logger) *Extractor {
	return &Extractor{llm: client, logger: logger}
}

// envelope covers all four top-level response shapes. A nil slice for the
// requested kind means the model dropped the expected key.
type envelope struct {
	Themes   []Theme   `json:"themes"`
	Quotes   []Quote   `json:"quotes"`
	Patterns []Pattern `json:"patterns"`
	Insights []Insight `json:"insights"`
}

// Extract runs one extraction call for a segment. It is total: any failure
// (network, timeout, malformed JSON, missing key) produces a fallback record
// rather than an error, so a single bad response never aborts a study.
func (e *Extractor) Extract(ctx context.Context, segmentID, segmentText string, kind Kind) Record {
	messages := []llm.Message{
		{Role: "user", Content: fmt.Sprintf(promptFor(kind), segmentText)},
	}

	raw, err := e.llm.Complete(ctx, systemPrompt, messages, maxResponseTokens)
	if err != nil {
		e.logger.Warn("extraction call failed",
			"segment_id", segmentID,
			"kind", string(kind),
			"error", err,
		)
		return Fallback(segmentID, kind, fmt.Sprintf("llm call: %v", err))
	}

	var env envelope
	if err := jsonrepair.Unmarshal(raw, &env); err != nil {
		e.logger.Warn("extraction response unparseable",
			"segment_id", segmentID,
			"kind", string(kind),
			"error", err,
		)
		return Fallback(segmentID, kind, fmt.Sprintf("parse response: %v", err))
	}

	rec, ok := env.toRecord(segmentID, kind)
	if !ok {
		e.logger.Warn("extraction response missing expected key",
			"segment_id", segmentID,
			"kind", string(kind),
		)
		return Fallback(segmentID, kind, fmt.Sprintf("response missing %q key", string(kind)))
	}

	e.logger.Debug("extraction complete",
		"segment_id", segmentID,
		"kind", string(kind),
		"items", rec.ItemCount(),
	)
	return rec
}

func (env envelope) toRecord(segmentID string, kind Kind) (Record, bool) {
	rec := Record{SegmentID: segmentID, Kind: kind}
	switch kind {
	case KindThemes:
		if env.Themes == nil {
			return rec, false
		}
		rec.Themes = env.Themes
	case KindQuotes:
		if env.Quotes == nil {
			return rec, false
		}
		rec.Quotes = env.Quotes
	case KindPatterns:
		if env.Patterns == nil {
			return rec, false
		}
		rec.Patterns = env.Patterns
	case KindInsights:
		if env.Insights == nil {
			return rec, false
		}
		rec.Insights = env.Insights
	default:
		return rec, false
	}
	return rec, true
}

// Fallback builds the well-defined placeholder record substituted when a
// response could not be validated.
func Fallback(segmentID string, kind Kind, detail string) Record {
	rec := Record{
		SegmentID:   segmentID,
		Kind:        kind,
		IsFallback:  true,
		ErrorDetail: detail,
	}
	switch kind {
	case KindThemes:
		rec.Themes = []Theme{}
	case KindQuotes:
		rec.Quotes = []Quote{}
	case KindPatterns:
		rec.Patterns = []Pattern{}
	case KindInsights:
		rec.Insights = []Insight{}
	}
	return rec
}
