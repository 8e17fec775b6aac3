package priorartsearch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStrategyGeneratorNormalizes(t *testing.T) {
	llm := newFakeLLM()
	llm.strategy = "Sure, here you go:\n```json\n[" +
		`{"name":" ","query":{"_text_all":{"patent_abstract":"beam handover"}}},` +
		`{"name":"recent","description":" last five years ","query":{"_gte":{"patent_date":"2020-01-01"}},"expected_results":40,"priority":7}` +
		"]\n```"
	g := NewStrategyGenerator(llm, time.Second, nil, nil)
	out, err := g.Generate(context.Background(), "beam handover")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(out))
	}
	if out[0].Name != "strategy_1" || out[0].ExpectedResults != defaultExpectedResults || out[0].Priority != 1 {
		t.Fatalf("unexpected defaults %+v", out[0])
	}
	if out[1].Description != "last five years" || out[1].Priority != 7 || out[1].ExpectedResults != 40 {
		t.Fatalf("unexpected second strategy %+v", out[1])
	}
	req := llm.requests[0]
	if !req.JSON || req.Temperature != strategyTemperature {
		t.Fatalf("unexpected request settings %+v", req)
	}
	prompt := req.Messages[0].Content
	for _, want := range []string{"QUERY: beam handover", "_text_phrase", "_text_any", "_gte"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to mention %q", want)
		}
	}
}

func TestStrategyGeneratorAcceptsFloatCounts(t *testing.T) {
	llm := newFakeLLM()
	llm.strategy = "[" +
		`{"name":"a","query":{"_text_any":{"patent_title":"beam"}},"expected_results":10.0,"priority":2.0},` +
		`{"name":"b","query":{"_text_any":{"patent_title":"handover"}},"expected_results":12.7,"priority":1}` +
		"]"
	g := NewStrategyGenerator(llm, time.Second, nil, nil)
	out, err := g.Generate(context.Background(), "beam handover")
	if err != nil {
		t.Fatal(err)
	}
	if out[0].ExpectedResults != 10 || out[0].Priority != 2 {
		t.Fatalf("unexpected first strategy %+v", out[0])
	}
	if out[1].ExpectedResults != 12 || out[1].Priority != 1 {
		t.Fatalf("expected 12.7 truncated to 12, got %+v", out[1])
	}
}

func TestStrategyGeneratorCapsCount(t *testing.T) {
	llm := newFakeLLM()
	items := []string{}
	for range MaxStrategies + 3 {
		items = append(items, `{"name":"s","query":{"a":1}}`)
	}
	llm.strategy = "[" + strings.Join(items, ",") + "]"
	out, err := NewStrategyGenerator(llm, time.Second, nil, nil).Generate(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != MaxStrategies {
		t.Fatalf("expected %d strategies, got %d", MaxStrategies, len(out))
	}
}

func TestStrategyGeneratorRejectsEmptyResults(t *testing.T) {
	for name, raw := range map[string]string{
		"empty array": "[]",
		"empty query": `[{"name":"s","query":{}}]`,
	} {
		llm := newFakeLLM()
		llm.strategy = raw
		_, err := NewStrategyGenerator(llm, time.Second, nil, nil).Generate(context.Background(), "q")
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("%s: expected decode error, got %v", name, err)
		}
	}
}

func TestStrategyGeneratorEmptyQuery(t *testing.T) {
	llm := newFakeLLM()
	if _, err := NewStrategyGenerator(llm, time.Second, nil, nil).Generate(context.Background(), " "); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if llm.total() != 0 {
		t.Fatal("expected no model call")
	}
}

func TestMetricsRecordEngineActivity(t *testing.T) {
	m := NewMetrics()
	llm := newFakeLLM()
	llm.strategy = twoStrategies
	llm.scores = map[string]float64{"A": 0.9}
	fs := newFakeSearcher()
	fs.byName["s1"] = []RawCandidate{cand("A", ""), cand("B", "")}
	fs.searchErr["s2"] = errors.New("boom")
	e, err := NewEngine(EngineDeps{LLM: llm, Client: fs, Metrics: m}, EngineConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Search(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "prior_art.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	for _, want := range []string{
		`prior_art_searches_total{outcome="ok"} 1`,
		`prior_art_degraded_items_total{phase="fan_out_search"} 1`,
		`prior_art_degraded_items_total{phase="score"} 1`,
		`prior_art_llm_calls_total{outcome="ok",purpose="strategy"} 1`,
		`prior_art_phase_duration_seconds_count{phase="score"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, text)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.observeSearch("ok")
	m.observeDegraded(PhaseScore)
	m.observePhase(PhaseScore, time.Second)
	if err := m.WriteTextfile("/nonexistent/x.prom"); err != nil {
		t.Fatal(err)
	}
	if m.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}
