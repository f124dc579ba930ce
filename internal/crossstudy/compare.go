// Package crossstudy compares consolidated reports from multiple studies,
// clustering equivalent themes and separating consensus from divergence.
package crossstudy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/meridian-research/prism/internal/aggregator"
	"github.com/meridian-research/prism/internal/jsonrepair"
	"github.com/meridian-research/prism/internal/llm"
)

// ErrInsufficientStudies is returned when fewer than two study reports are
// available for comparison.
var ErrInsufficientStudies = errors.New("at least two study reports are required")

const (
	defaultMatchThreshold = 0.5
	trendsMaxTokens       = 1500
)

// Config holds comparison policy constants.
type Config struct {
	// MatchThreshold is the word-overlap ratio above which two theme names
	// are considered the same theme.
	MatchThreshold float64
}

// LLM is the completion contract for trend and meta-insight generation.
type LLM interface {
	Complete(ctx context.Context, system string, messages []llm.Message, maxTokens int) (string, error)
}

// ThemeCluster groups equivalent themes across studies.
type ThemeCluster struct {
	Label                  string         `json:"label"`
	Names                  []string       `json:"names"`
	Studies                []string       `json:"studies"`
	FrequencyAcrossStudies int            `json:"frequency_across_studies"`
	PerStudyFrequency      map[string]int `json:"per_study_frequency"`
}

// Trend is a direction-labeled cross-study pattern.
type Trend struct {
	Name        string `json:"trend_name"`
	Direction   string `json:"direction"`
	Description string `json:"description"`
}

// MetaInsight is an observation that only emerges from comparing studies.
type MetaInsight struct {
	Title       string `json:"insight_title"`
	Description string `json:"insight_description"`
}

// Report is the cross-study comparison artifact. A theme cluster is never in
// both ConsensusThemes and DivergentThemes.
type Report struct {
	StudiesAnalyzed []string       `json:"studies_analyzed"`
	ConsensusThemes []ThemeCluster `json:"consensus_themes"`
	DivergentThemes []ThemeCluster `json:"divergent_themes"`
	ConsensusRate   float64        `json:"consensus_rate"`
	Trends          []Trend        `json:"trends"`
	MetaInsights    []MetaInsight  `json:"meta_insights"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

type Comparator struct {
	llm    LLM
	logger *slog.Logger
	cfg    Config
}

func New(client LLM, cfg Config, logger *slog.Logger) *Comparator {
	if cfg.MatchThreshold <= 0 || cfg.MatchThreshold > 1 {
		cfg.MatchThreshold = defaultMatchThreshold
	}
	return &Comparator{llm: client, cfg: cfg, logger: logger}
}

// themeRef is one study's occurrence of a theme.
type themeRef struct {
	study     string
	name      string
	frequency int
}

// Compare clusters themes across the given study reports and derives
// consensus themes, divergent themes, trends, and meta insights.
func (c *Comparator) Compare(ctx context.Context, reports []aggregator.StudyReport) (Report, error) {
	if len(reports) < 2 {
		return Report{}, ErrInsufficientStudies
	}

	studyIDs := make([]string, 0, len(reports))
	var refs []themeRef
	for _, rep := range reports {
		studyIDs = append(studyIDs, rep.StudyID)
		for _, t := range rep.ConsolidatedThemes {
			refs = append(refs, themeRef{study: rep.StudyID, name: t.Name, frequency: t.Frequency})
		}
	}

	clusters := clusterThemes(refs, c.cfg.MatchThreshold)

	var consensus, divergent []ThemeCluster
	for _, cl := range clusters {
		if len(cl.Studies) >= 2 {
			consensus = append(consensus, cl)
		} else {
			divergent = append(divergent, cl)
		}
	}
	if consensus == nil {
		consensus = []ThemeCluster{}
	}
	if divergent == nil {
		divergent = []ThemeCluster{}
	}

	rate := 0.0
	if len(clusters) > 0 {
		rate = float64(len(consensus)) / float64(len(clusters))
	}

	trends, meta := c.generateTrends(ctx, studyIDs, consensus, divergent)

	c.logger.Info("cross-study comparison complete",
		"studies", len(reports),
		"clusters", len(clusters),
		"consensus", len(consensus),
		"divergent", len(divergent),
		"consensus_rate", rate,
	)

	return Report{
		StudiesAnalyzed: studyIDs,
		ConsensusThemes: consensus,
		DivergentThemes: divergent,
		ConsensusRate:   rate,
		Trends:          trends,
		MetaInsights:    meta,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

// clusterThemes groups theme references into connected components using
// union-find over pairwise word-overlap similarity. Unlike exact-name
// consolidation within a study, clustering here is fuzzy: "Price
// Sensitivity" and "Price sensitivity concerns" land in one cluster.
func clusterThemes(refs []themeRef, threshold float64) []ThemeCluster {
	if len(refs) == 0 {
		return nil
	}

	parent := make([]int, len(refs))
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[rj] = ri
		}
	}

	words := make([]map[string]bool, len(refs))
	for i, r := range refs {
		words[i] = wordSet(r.name)
	}
	for i := 0; i < len(refs); i++ {
		for j := i + 1; j < len(refs); j++ {
			if wordOverlap(words[i], words[j]) > threshold {
				union(i, j)
			}
		}
	}

	// Group members by root, preserving first-seen order.
	byRoot := make(map[int][]int)
	var roots []int
	for i := range refs {
		r := find(i)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], i)
	}

	clusters := make([]ThemeCluster, 0, len(roots))
	for _, root := range roots {
		members := byRoot[root]
		cl := ThemeCluster{
			Label:             refs[members[0]].name,
			PerStudyFrequency: make(map[string]int),
		}
		nameSeen := make(map[string]bool)
		studySeen := make(map[string]bool)
		for _, m := range members {
			r := refs[m]
			if !nameSeen[r.name] {
				nameSeen[r.name] = true
				cl.Names = append(cl.Names, r.name)
			}
			if !studySeen[r.study] {
				studySeen[r.study] = true
				cl.Studies = append(cl.Studies, r.study)
			}
			cl.PerStudyFrequency[r.study] += r.frequency
		}
		cl.FrequencyAcrossStudies = len(cl.Studies)
		clusters = append(clusters, cl)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].FrequencyAcrossStudies > clusters[j].FrequencyAcrossStudies
	})
	return clusters
}

// wordOverlap is shared-word-count over the smaller word set.
func wordOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if b[w] {
			shared++
		}
	}
	min := len(a)
	if len(b) < min {
		min = len(b)
	}
	return float64(shared) / float64(min)
}

func wordSet(name string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(name)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

const trendsSystemPrompt = `You are a senior qualitative research analyst comparing findings across multiple studies.

You respond with a single JSON object matching the exact schema given in the request. Do not include markdown fences, commentary, or any text outside the JSON object.`

const trendsPrompt = `The theme clusters below were derived by comparing %d qualitative studies. Identify cross-study trends and meta insights.

Consensus themes (present in two or more studies):
%s

Divergent themes (present in exactly one study):
%s

Respond with valid JSON matching this schema:
{
  "trends": [
    {
      "trend_name": "string",
      "direction": "rising|falling|stable",
      "description": "string"
    }
  ],
  "meta_insights": [
    {
      "insight_title": "string",
      "insight_description": "string"
    }
  ]
}

Return ONLY the JSON object, no markdown fences or other text.`

type trendsEnvelope struct {
	Trends       []Trend       `json:"trends"`
	MetaInsights []MetaInsight `json:"meta_insights"`
}

// generateTrends issues the cross-study trend call with the usual fallback
// discipline: on any failure both lists degrade to empty, never to nil.
func (c *Comparator) generateTrends(ctx context.Context, studyIDs []string, consensus, divergent []ThemeCluster) ([]Trend, []MetaInsight) {
	prompt := fmt.Sprintf(trendsPrompt, len(studyIDs), describeClusters(consensus), describeClusters(divergent))

	raw, err := c.llm.Complete(ctx, trendsSystemPrompt, []llm.Message{{Role: "user", Content: prompt}}, trendsMaxTokens)
	if err == nil {
		var env trendsEnvelope
		if perr := jsonrepair.Unmarshal(raw, &env); perr == nil {
			if env.Trends == nil {
				env.Trends = []Trend{}
			}
			if env.MetaInsights == nil {
				env.MetaInsights = []MetaInsight{}
			}
			return env.Trends, env.MetaInsights
		}
		err = fmt.Errorf("parse trends response")
	}

	c.logger.Warn("trend generation failed", "error", err)
	return []Trend{}, []MetaInsight{}
}

func describeClusters(clusters []ThemeCluster) string {
	if len(clusters) == 0 {
		return "(none)"
	}
	var sb strings.Builder
	for _, cl := range clusters {
		fmt.Fprintf(&sb, "- %s (studies: %s; names: %s)\n",
			cl.Label, strings.Join(cl.Studies, ", "), strings.Join(cl.Names, " / "))
	}
	return sb.String()
}
