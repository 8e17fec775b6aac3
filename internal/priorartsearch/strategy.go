package priorartsearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	MaxStrategies          = 8
	defaultExpectedResults = 20
	strategyMaxTokens      = 2000
	strategyTemperature    = 0.2
)

// strategyWire is SearchStrategy as the model returns it. Counts arrive as
// JSON numbers such as 10.0 and are truncated during normalization.
type strategyWire struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Query           map[string]any `json:"query"`
	ExpectedResults float64        `json:"expected_results"`
	Priority        float64        `json:"priority"`
}

type strategyPayload []strategyWire

func (p strategyPayload) Validate() error {
	if len(p) == 0 {
		return errors.New("no strategies returned")
	}
	for i, s := range p {
		if len(s.Query) == 0 {
			return fmt.Errorf("strategy %d has an empty query", i+1)
		}
	}
	return nil
}

// StrategyGenerator turns a free-text query into structured PatentsView
// strategies with one model call. It never falls back to canned strategies.
type StrategyGenerator struct {
	llm     LLMCaller
	timeout time.Duration
	log     logrus.FieldLogger
	metrics *Metrics
}

func NewStrategyGenerator(llm LLMCaller, timeout time.Duration, log logrus.FieldLogger, metrics *Metrics) *StrategyGenerator {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &StrategyGenerator{llm: llm, timeout: timeout, log: orDiscard(log), metrics: metrics}
}

func (g *StrategyGenerator) Generate(ctx context.Context, query string) ([]SearchStrategy, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	raw, err := g.llm.Complete(callCtx, userPrompt("", buildStrategyPrompt(query), strategyMaxTokens, strategyTemperature, true))
	g.metrics.observeLLMCall("strategy", err)
	if err != nil {
		g.log.WithFields(logrus.Fields{"event": "strategy_llm_error", "class": classifyFailure(err), "elapsed_ms": time.Since(start).Milliseconds()}).WithError(err).Error("strategy generation call failed")
		return nil, err
	}
	var payload strategyPayload
	if err := decodePayload("search strategies", raw, &payload); err != nil {
		g.log.WithFields(logrus.Fields{"event": "strategy_decode_error", "response_chars": len(raw)}).WithError(err).Error("strategy payload rejected")
		return nil, err
	}
	out := normalizeStrategies(payload)
	g.log.WithFields(logrus.Fields{"event": "strategies_generated", "count": len(out), "elapsed_ms": time.Since(start).Milliseconds()}).Info("search strategies ready")
	return out, nil
}

func normalizeStrategies(in []strategyWire) []SearchStrategy {
	out := make([]SearchStrategy, 0, len(in))
	for i, w := range in {
		if len(out) == MaxStrategies {
			break
		}
		s := SearchStrategy{
			Name:            w.Name,
			Description:     w.Description,
			Query:           w.Query,
			ExpectedResults: int(w.ExpectedResults),
			Priority:        int(w.Priority),
		}
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			s.Name = fmt.Sprintf("strategy_%d", i+1)
		}
		s.Description = strings.TrimSpace(s.Description)
		if s.ExpectedResults <= 0 {
			s.ExpectedResults = defaultExpectedResults
		}
		if s.Priority <= 0 {
			s.Priority = i + 1
		}
		out = append(out, s)
	}
	return out
}

func buildStrategyPrompt(query string) string {
	var b strings.Builder
	b.WriteString("Design PatentsView search strategies for the prior-art query below.\n\n")
	fmt.Fprintf(&b, "QUERY: %s\n\n", query)
	b.WriteString("Query construction techniques to combine across strategies:\n")
	b.WriteString("1. Exact phrase matching on the core concept: {\"_text_phrase\": {\"patent_title\": \"...\"}} or patent_abstract.\n")
	b.WriteString("2. Decomposed AND terms that must all appear: {\"_text_all\": {\"patent_abstract\": \"term1 term2\"}}.\n")
	b.WriteString("3. Synonym and abbreviation expansion: {\"_text_any\": {\"patent_abstract\": \"handover handoff HO\"}}.\n")
	b.WriteString("4. Recency filters where the field moves fast: {\"_gte\": {\"patent_date\": \"2018-01-01\"}}.\n")
	b.WriteString("Combine clauses with {\"_and\": [...]} and {\"_or\": [...]}. Use only patent_title, patent_abstract, and patent_date fields.\n\n")
	fmt.Fprintf(&b, "Return a JSON array of 3 to %d strategies ordered from most precise to broadest. Each element:\n", MaxStrategies)
	b.WriteString("{\"name\": string, \"description\": string, \"query\": object, \"expected_results\": integer, \"priority\": integer}\n")
	return b.String()
}
