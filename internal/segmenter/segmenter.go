package segmenter

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrEmptyDocument is returned when the input text is empty or whitespace-only.
var ErrEmptyDocument = errors.New("document is empty")

// tokensPerWord is the rough token-count estimate used throughout the pipeline.
const tokensPerWord = 1.3

// Config controls segment sizing and overlap.
type Config struct {
	MaxSegmentTokens int
	OverlapTokens    int
	Separator        string
}

// DefaultConfig returns the segmentation defaults: 1000-token segments with
// 200 tokens of overlap, split on blank lines.
func DefaultConfig() Config {
	return Config{
		MaxSegmentTokens: 1000,
		OverlapTokens:    200,
		Separator:        "\n\n",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSegmentTokens <= 0 {
		c.MaxSegmentTokens = d.MaxSegmentTokens
	}
	if c.OverlapTokens < 0 {
		c.OverlapTokens = d.OverlapTokens
	}
	if c.Separator == "" {
		c.Separator = d.Separator
	}
	return c
}

// Segment is a bounded span of a document's text. StartOffset/EndOffset mark
// the segment's core span in the source text; core spans tile the input
// exactly. Text additionally carries the trailing overlap of the previous
// segment at its leading edge.
type Segment struct {
	SegmentID        string   `json:"segment_id"`
	StudyID          string   `json:"study_id"`
	Index            int      `json:"segment_index"`
	Text             string   `json:"text"`
	TotalSegments    int      `json:"total_segments"`
	TokenEstimate    int      `json:"token_estimate"`
	WordCount        int      `json:"word_count"`
	Speakers         []string `json:"speakers"`
	HasSpeakerInfo   bool     `json:"has_speaker_info"`
	StartOffset      int      `json:"start_offset"`
	EndOffset        int      `json:"end_offset"`
	OverlapsPrevious bool     `json:"overlaps_previous"`
	OverlapsNext     bool     `json:"overlaps_next"`
}

// Summary holds whole-run segmentation statistics.
type Summary struct {
	TotalSegments        int      `json:"total_segments"`
	TotalTokens          int      `json:"total_tokens"`
	TotalWords           int      `json:"total_words"`
	SegmentsWithSpeakers int      `json:"segments_with_speakers"`
	UniqueSpeakers       []string `json:"unique_speakers"`
	AverageSegmentTokens int      `json:"average_segment_tokens"`
	MaxSegmentTokens     int      `json:"max_segment_tokens"`
	OverlapTokens        int      `json:"overlap_tokens"`
}

// Result is the output of one segmentation run.
type Result struct {
	StudyID  string    `json:"study_id"`
	Segments []Segment `json:"segments"`
	Summary  Summary   `json:"summary"`
}

// Line-start patterns that indicate speaker attribution, e.g. "Moderator:",
// "Participant 2:", "[Jane Doe]:", "INTERVIEWER: ".
var speakerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^(Moderator|Participant \d+|Speaker \d+|[A-Z][a-z]+):`),
	regexp.MustCompile(`(?m)^([A-Z][A-Za-z ]+):\s`),
	regexp.MustCompile(`(?m)^\[([A-Z][A-Za-z ]+)\]:`),
	regexp.MustCompile(`(?m)^([A-Z]+):\s`),
}

// New returns a Segmenter with the given configuration.
func New(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults()}
}

// Segmenter produces deterministic, metadata-preserving segmentations.
type Segmenter struct {
	cfg Config
}

// Segment splits fullText into overlapping, bounded-size segments.
func (s *Segmenter) Segment(studyID, fullText string) (Result, error) {
	return segmentText(studyID, fullText, s.cfg)
}

// Config returns the segmenter's effective configuration.
func (s *Segmenter) Config() Config {
	return s.cfg
}

func segmentText(studyID, fullText string, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()

	if strings.TrimSpace(fullText) == "" {
		return Result{}, ErrEmptyDocument
	}

	units := splitUnits(fullText, cfg.Separator)
	spans := packUnits(fullText, units, cfg.MaxSegmentTokens)

	total := len(spans)
	segments := make([]Segment, 0, total)

	for i, sp := range spans {
		overlapStart := sp.start
		if i > 0 && cfg.OverlapTokens > 0 {
			overlapStart = overlapStartOffset(fullText, spans[i-1], cfg.OverlapTokens)
		}
		text := fullText[overlapStart:sp.end]

		words := len(strings.Fields(text))
		seg := Segment{
			SegmentID:        fmt.Sprintf("%s_chunk_%03d", studyID, i),
			StudyID:          studyID,
			Index:            i,
			Text:             text,
			TotalSegments:    total,
			TokenEstimate:    estimateTokens(words),
			WordCount:        words,
			Speakers:         DetectSpeakers(text),
			HasSpeakerInfo:   hasSpeakerInfo(text),
			StartOffset:      sp.start,
			EndOffset:        sp.end,
			OverlapsPrevious: i > 0,
			OverlapsNext:     i < total-1,
		}
		segments = append(segments, seg)
	}

	return Result{
		StudyID:  studyID,
		Segments: segments,
		Summary:  buildSummary(segments, cfg),
	}, nil
}

// unit is a half-open span [start, end) in the source text. Units tile the
// full input: each unit includes its trailing separator run.
type unit struct {
	start, end int
	words      int
}

// splitUnits breaks the text into paragraph units along sep, keeping exact
// source offsets so segments can be mapped back to the original document.
func splitUnits(text, sep string) []unit {
	var units []unit
	pos := 0
	for pos < len(text) {
		idx := strings.Index(text[pos:], sep)
		var end int
		if idx < 0 {
			end = len(text)
		} else {
			end = pos + idx + len(sep)
			// Swallow consecutive separators into the same unit.
			for strings.HasPrefix(text[end:], sep) {
				end += len(sep)
			}
		}
		units = append(units, unit{
			start: pos,
			end:   end,
			words: len(strings.Fields(text[pos:end])),
		})
		pos = end
	}
	return units
}

type span struct {
	start, end int
	words      int
}

// packUnits greedily accumulates units into segments not exceeding maxTokens.
// A single unit that alone exceeds maxTokens is emitted whole as its own
// oversized segment; paragraphs are never split mid-sentence.
func packUnits(text string, units []unit, maxTokens int) []span {
	var spans []span
	var cur *span

	for _, u := range units {
		if cur == nil {
			spans = append(spans, span{start: u.start, end: u.end, words: u.words})
			cur = &spans[len(spans)-1]
			continue
		}
		if estimateTokens(cur.words+u.words) > maxTokens && cur.words > 0 {
			spans = append(spans, span{start: u.start, end: u.end, words: u.words})
			cur = &spans[len(spans)-1]
			continue
		}
		cur.end = u.end
		cur.words += u.words
	}

	// Drop a trailing whitespace-only span into its predecessor so no
	// segment ends up empty.
	if len(spans) > 1 {
		last := spans[len(spans)-1]
		if strings.TrimSpace(text[last.start:last.end]) == "" {
			spans = spans[:len(spans)-1]
			spans[len(spans)-1].end = last.end
		}
	}

	return spans
}

// overlapStartOffset walks backwards from the end of the previous core span
// until roughly overlapTokens worth of words have been collected, returning
// the character offset where the overlap prefix begins.
func overlapStartOffset(text string, prev span, overlapTokens int) int {
	wanted := int(float64(overlapTokens) / tokensPerWord)
	if wanted <= 0 {
		return prev.end
	}

	pos := prev.end
	words := 0
	inWord := false
	for pos > prev.start {
		r := text[pos-1]
		isSpace := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if !isSpace {
			inWord = true
		} else if inWord {
			words++
			inWord = false
			if words >= wanted {
				return pos
			}
		}
		pos--
	}
	return prev.start
}

func estimateTokens(words int) int {
	return int(float64(words) * tokensPerWord)
}

// DetectSpeakers returns the sorted set of speaker labels found in text.
func DetectSpeakers(text string) []string {
	seen := make(map[string]bool)
	for _, pat := range speakerPatterns {
		for _, m := range pat.FindAllStringSubmatch(text, -1) {
			if len(m) > 1 && m[1] != "" {
				seen[m[1]] = true
			}
		}
	}
	speakers := make([]string, 0, len(seen))
	for s := range seen {
		speakers = append(speakers, s)
	}
	sort.Strings(speakers)
	return speakers
}

func hasSpeakerInfo(text string) bool {
	for _, pat := range speakerPatterns {
		if pat.MatchString(text) {
			return true
		}
	}
	return false
}

func buildSummary(segments []Segment, cfg Config) Summary {
	sum := Summary{
		TotalSegments:    len(segments),
		MaxSegmentTokens: cfg.MaxSegmentTokens,
		OverlapTokens:    cfg.OverlapTokens,
	}
	speakerSet := make(map[string]bool)
	for _, seg := range segments {
		sum.TotalTokens += seg.TokenEstimate
		sum.TotalWords += seg.WordCount
		if seg.HasSpeakerInfo {
			sum.SegmentsWithSpeakers++
		}
		for _, sp := range seg.Speakers {
			speakerSet[sp] = true
		}
	}
	sum.UniqueSpeakers = make([]string, 0, len(speakerSet))
	for sp := range speakerSet {
		sum.UniqueSpeakers = append(sum.UniqueSpeakers, sp)
	}
	sort.Strings(sum.UniqueSpeakers)
	if len(segments) > 0 {
		sum.AverageSegmentTokens = sum.TotalTokens / len(segments)
	}
	return sum
}
