package analyzer

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-research/prism/internal/extractor"
	"github.com/meridian-research/prism/internal/segmenter"
)

// SegmentAnalysis collects the extraction records for one segment, keyed by
// kind.
type SegmentAnalysis struct {
	SegmentID    string                              `json:"segment_id"`
	SegmentIndex int                                 `json:"segment_index"`
	Results      map[extractor.Kind]extractor.Record `json:"results"`
}

// FallbackCount returns how many of the segment's records are fallbacks.
func (a SegmentAnalysis) FallbackCount() int {
	n := 0
	for _, rec := range a.Results {
		if rec.IsFallback {
			n++
		}
	}
	return n
}

// Analyzer fans extraction calls out over segments and kinds. Each
// (segment, kind) call is independent and side-effect-free, so the pool
// ordering never matters; concurrency is bounded to keep external API rate
// consumption predictable.
type Analyzer struct {
	ext         *extractor.Extractor
	logger      *slog.Logger
	concurrency int
}

func New(ext *extractor.Extractor, concurrency int, logger *slog.Logger) *Analyzer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Analyzer{ext: ext, logger: logger, concurrency: concurrency}
}

// AnalyzeSegment runs the requested extraction kinds for a single segment.
// A failure in one kind never discards the others: the extractor converts
// every failure into a fallback record for that kind only.
func (a *Analyzer) AnalyzeSegment(ctx context.Context, seg segmenter.Segment, kinds []extractor.Kind) SegmentAnalysis {
	if len(kinds) == 0 {
		kinds = extractor.AllKinds()
	}

	records := make([]extractor.Record, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			records[i] = a.ext.Extract(gctx, seg.SegmentID, seg.Text, kind)
			return nil
		})
	}
	_ = g.Wait() // Extract is total; workers never return errors.

	results := make(map[extractor.Kind]extractor.Record, len(kinds))
	for i, kind := range kinds {
		results[kind] = records[i]
	}

	return SegmentAnalysis{
		SegmentID:    seg.SegmentID,
		SegmentIndex: seg.Index,
		Results:      results,
	}
}

// AnalyzeAll runs the requested kinds for every segment with a bounded worker
// pool over (segment, kind) pairs. Results preserve segment ordinal order.
func (a *Analyzer) AnalyzeAll(ctx context.Context, segments []segmenter.Segment, kinds []extractor.Kind) []SegmentAnalysis {
	if len(kinds) == 0 {
		kinds = extractor.AllKinds()
	}

	records := make([][]extractor.Record, len(segments))
	for i := range records {
		records[i] = make([]extractor.Record, len(kinds))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for si, seg := range segments {
		for ki, kind := range kinds {
			si, seg, ki, kind := si, seg, ki, kind
			g.Go(func() error {
				records[si][ki] = a.ext.Extract(gctx, seg.SegmentID, seg.Text, kind)
				return nil
			})
		}
	}
	_ = g.Wait()

	analyses := make([]SegmentAnalysis, len(segments))
	fallbacks := 0
	for si, seg := range segments {
		results := make(map[extractor.Kind]extractor.Record, len(kinds))
		for ki, kind := range kinds {
			results[kind] = records[si][ki]
		}
		analyses[si] = SegmentAnalysis{
			SegmentID:    seg.SegmentID,
			SegmentIndex: seg.Index,
			Results:      results,
		}
		fallbacks += analyses[si].FallbackCount()
	}

	a.logger.Info("segment analysis complete",
		"segments", len(segments),
		"kinds", len(kinds),
		"fallback_records", fallbacks,
	)
	return analyses
}
