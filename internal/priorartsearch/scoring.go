package priorartsearch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	scoringMaxTokens   = 300
	scoringTemperature = 0.1
)

// Scorer rates one candidate against the query. Implementations return an
// error rather than a zero score; RelevanceScorer owns the degrade policy.
type Scorer interface {
	Score(ctx context.Context, query string, c RawCandidate) (ScoredCandidate, error)
	Name() string
}

// LevelForScore maps a score onto its bucket. Scores that fall between
// buckets are reported as unclassified.
func LevelForScore(score float64) RelevanceLevel {
	switch {
	case score >= 0 && score < 0.2:
		return RelevanceIrrelevant
	case score >= 0.3 && score < 0.4:
		return RelevanceSlight
	case score >= 0.5 && score < 0.6:
		return RelevanceModerate
	case score >= 0.7 && score < 0.8:
		return RelevanceHigh
	case score >= 0.9 && score <= 1.0:
		return RelevanceExcellent
	default:
		return RelevanceUnclassified
	}
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

type scorePayload struct {
	RelevanceScore *float64 `json:"relevance_score"`
	Confidence     float64  `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	KeyMatches     []string `json:"key_matches"`
	RelevanceLevel string   `json:"relevance_level"`
}

func (p *scorePayload) Validate() error {
	if p.RelevanceScore == nil {
		return errors.New("relevance_score missing")
	}
	return nil
}

type LLMScorer struct {
	llm     LLMCaller
	timeout time.Duration
	metrics *Metrics
}

func NewLLMScorer(llm LLMCaller, timeout time.Duration, metrics *Metrics) *LLMScorer {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &LLMScorer{llm: llm, timeout: timeout, metrics: metrics}
}

func (s *LLMScorer) Name() string { return "llm" }

func (s *LLMScorer) Score(ctx context.Context, query string, c RawCandidate) (ScoredCandidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.llm.Complete(callCtx, userPrompt("", buildScoringPrompt(query, c), scoringMaxTokens, scoringTemperature, true))
	s.metrics.observeLLMCall("score", err)
	if err != nil {
		return ScoredCandidate{}, err
	}
	var p scorePayload
	if err := decodePayload("relevance score", raw, &p); err != nil {
		return ScoredCandidate{}, err
	}
	score := clampScore(*p.RelevanceScore)
	return ScoredCandidate{
		RawCandidate:   c,
		RelevanceScore: score,
		Confidence:     clampScore(p.Confidence),
		Reasoning:      strings.TrimSpace(p.Reasoning),
		KeyMatches:     p.KeyMatches,
		RelevanceLevel: LevelForScore(score),
	}, nil
}

func buildScoringPrompt(query string, c RawCandidate) string {
	var b strings.Builder
	b.WriteString("Rate how relevant this patent is as prior art for the search query.\n\n")
	fmt.Fprintf(&b, "SEARCH QUERY: %s\n\n", query)
	fmt.Fprintf(&b, "PATENT TITLE: %s\n", safe(c.Title))
	fmt.Fprintf(&b, "PATENT ABSTRACT: %s\n\n", safe(clampString(c.Abstract, MaxAbstractChars)))
	b.WriteString("Scale:\n")
	b.WriteString("0.0-0.1 irrelevant: different technology entirely\n")
	b.WriteString("0.3 slight: shares a general field only\n")
	b.WriteString("0.5 moderate: overlaps on some technical elements\n")
	b.WriteString("0.7 high: addresses the same problem with similar means\n")
	b.WriteString("0.9-1.0 excellent: directly anticipates the query\n\n")
	b.WriteString("Return JSON: {\"relevance_score\": number, \"confidence\": number, \"reasoning\": string, \"key_matches\": [string], \"relevance_level\": string}\n")
	return b.String()
}

// KeywordScorer is a deterministic scorer based on query-term coverage of
// the title (weight 0.6) and abstract (weight 0.4).
type KeywordScorer struct{}

func (KeywordScorer) Name() string { return "keyword" }

func (KeywordScorer) Score(_ context.Context, query string, c RawCandidate) (ScoredCandidate, error) {
	terms := strings.Fields(strings.ToLower(query))
	out := ScoredCandidate{RawCandidate: c, Confidence: 0.5}
	if len(terms) == 0 {
		out.RelevanceLevel = LevelForScore(0)
		return out, nil
	}
	title := strings.ToLower(c.Title)
	abstract := strings.ToLower(c.Abstract)
	var inTitle, inAbstract int
	matches := []string{}
	for _, t := range terms {
		hit := false
		if strings.Contains(title, t) {
			inTitle++
			hit = true
		}
		if strings.Contains(abstract, t) {
			inAbstract++
			hit = true
		}
		if hit {
			matches = appendIfMissing(matches, t)
		}
	}
	n := float64(len(terms))
	score := clampScore(float64(inTitle)/n*0.6 + float64(inAbstract)/n*0.4)
	out.RelevanceScore = score
	out.RelevanceLevel = LevelForScore(score)
	out.KeyMatches = matches
	out.Reasoning = fmt.Sprintf("query terms matched: %d/%d in title, %d/%d in abstract", inTitle, len(terms), inAbstract, len(terms))
	return out, nil
}

// RelevanceScorer scores candidates in fixed-size batches. Calls within a
// batch run concurrently and batches run one after another, so at most
// batchSize calls are in flight.
type RelevanceScorer struct {
	scorer    Scorer
	batchSize int
	log       logrus.FieldLogger
	metrics   *Metrics
}

func NewRelevanceScorer(scorer Scorer, batchSize int, log logrus.FieldLogger, metrics *Metrics) *RelevanceScorer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RelevanceScorer{scorer: scorer, batchSize: batchSize, log: orDiscard(log), metrics: metrics}
}

func (r *RelevanceScorer) Name() string { return r.scorer.Name() }

// ScoreAll returns one ScoredCandidate per input, in input order, and the
// number of candidates whose scoring failed and fell back to 0.
func (r *RelevanceScorer) ScoreAll(ctx context.Context, query string, cands []RawCandidate) ([]ScoredCandidate, int) {
	out := make([]ScoredCandidate, len(cands))
	failed := make([]bool, len(cands))
	for start := 0; start < len(cands); start += r.batchSize {
		end := min(start+r.batchSize, len(cands))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				out[i], failed[i] = r.scoreOne(ctx, query, cands[i])
				return nil
			})
		}
		_ = g.Wait()
		r.log.WithFields(logrus.Fields{"event": "score_batch_done", "from": start, "to": end, "total": len(cands)}).Debug("scoring batch complete")
	}
	failures := 0
	for _, f := range failed {
		if f {
			failures++
		}
	}
	return out, failures
}

func (r *RelevanceScorer) scoreOne(ctx context.Context, query string, c RawCandidate) (ScoredCandidate, bool) {
	sc, err := r.scorer.Score(ctx, query, c)
	if err != nil {
		r.metrics.observeDegraded(PhaseScore)
		r.log.WithFields(logrus.Fields{"event": "score_failed", "patent_id": c.PatentID, "class": classifyFailure(err)}).WithError(err).Warn("scoring failed; using 0.0")
		return ScoredCandidate{
			RawCandidate:   c,
			RelevanceScore: 0,
			RelevanceLevel: LevelForScore(0),
			Reasoning:      "scoring failed",
			ScoringFailed:  true,
		}, true
	}
	sc.RawCandidate = c
	sc.RelevanceScore = clampScore(sc.RelevanceScore)
	if sc.RelevanceLevel == "" {
		sc.RelevanceLevel = LevelForScore(sc.RelevanceScore)
	}
	return sc, false
}
