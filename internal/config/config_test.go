package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/prior-art-engine/internal/priorartsearch"
	"github.com/joelkehle/prior-art-engine/internal/render"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(New(""))
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, ScorerLLM, cfg.Search.Scorer)
	assert.Equal(t, priorartsearch.DefaultMaxResults, cfg.Search.MaxResults)
	assert.Equal(t, priorartsearch.DefaultRelevanceThreshold, cfg.Search.Threshold)
	assert.Equal(t, priorartsearch.DefaultMinRequestInterval, cfg.PatentsView.MinInterval)
	assert.Equal(t, priorartsearch.DefaultRequestTimeout, cfg.PatentsView.RequestTimeout)
	assert.Equal(t, priorartsearch.PatentsViewBaseURL, cfg.PatentsView.BaseURL)
	assert.Empty(t, cfg.Search.DomainThresholds)
	assert.Equal(t, render.DefaultPaper, cfg.Render.Paper)
	assert.Equal(t, render.DefaultPDFTimeout, cfg.Render.Timeout)
	assert.InDelta(t, render.DefaultMargin, cfg.Render.Margin, 1e-9)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "prior-art.yaml", `
log_level: debug
llm:
  provider: OpenAI
  model: gpt-4o-mini
  base_url: http://localhost:11434/v1
patentsview:
  min_interval: 2s
  max_retries: 4
search:
  max_results: 12
  threshold: 0.35
  scorer: keyword
  domain_thresholds:
    ROBOTICS: 0.45
    AI_ML: 0.6
render:
  paper: Letter
  margin: 0.6
  timeout: 1m
  chrome_path: /opt/chrome/chrome
`)
	cfg, err := Load(New(path))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 2*time.Second, cfg.PatentsView.MinInterval)
	assert.Equal(t, 4, cfg.PatentsView.MaxRetries)
	assert.Equal(t, 12, cfg.Search.MaxResults)
	assert.Equal(t, ScorerKeyword, cfg.Search.Scorer)
	assert.Equal(t, render.PDFOptions{ChromePath: "/opt/chrome/chrome", Paper: "letter", Margin: 0.6, Timeout: time.Minute}, cfg.Render.PDFOptions())

	tbl := cfg.Thresholds()
	v, ok := tbl.Resolve("robotics")
	assert.True(t, ok)
	assert.InDelta(t, 0.45, v, 1e-9)
	v, _ = tbl.Resolve("AI_ML")
	assert.InDelta(t, 0.6, v, 1e-9)
	assert.InDelta(t, 0.35, tbl.Default(), 1e-9)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "prior-art.yaml", "search:\n  max_results: 12\n")
	t.Setenv("PRIOR_ART_SEARCH_MAX_RESULTS", "7")
	t.Setenv("PRIOR_ART_SEARCH_BUDGET", "90s")
	t.Setenv("PRIOR_ART_SEARCH_DOMAIN_THRESHOLDS", "iot=0.55, blockchain=0.5")
	t.Setenv("PATENTSVIEW_API_KEY", "pv-key")
	t.Setenv("ANTHROPIC_API_KEY", "an-key")

	cfg, err := Load(New(path))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Search.MaxResults)
	assert.Equal(t, 90*time.Second, cfg.Search.Budget)
	assert.Equal(t, "pv-key", cfg.PatentsView.APIKey)
	assert.Equal(t, "an-key", cfg.LLM.APIKey)
	assert.Equal(t, map[string]float64{"iot": 0.55, "blockchain": 0.5}, cfg.Search.DomainThresholds)
}

func TestPrefixedKeyWinsOverFallback(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "fallback")
	t.Setenv("PRIOR_ART_LLM_API_KEY", "primary")
	cfg, err := Load(New(""))
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.LLM.APIKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"provider":         "llm:\n  provider: cohere\n",
		"scorer":           "search:\n  scorer: vibes\n",
		"threshold":        "search:\n  threshold: 1.5\n",
		"max results":      "search:\n  max_results: 0\n",
		"domain threshold": "search:\n  domain_thresholds:\n    IOT: 2\n",
		"paper":            "render:\n  paper: tabloid\n",
		"margin":           "render:\n  margin: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(New(writeFile(t, "prior-art.yaml", body)))
			require.Error(t, err)
		})
	}
}

func TestMalformedDomainThresholdEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PRIOR_ART_SEARCH_DOMAIN_THRESHOLDS", "IOT")
	_, err := Load(New(""))
	require.Error(t, err)
}

func TestMissingExplicitFileIsError(t *testing.T) {
	_, err := Load(New(filepath.Join(t.TempDir(), "absent.yaml")))
	require.Error(t, err)
}

func TestLoadEnvKeepsProcessValues(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PRIOR_ART_LOG_LEVEL=warn\nPRIOR_ART_SEARCH_SCORER=keyword\n"), 0o600))
	t.Setenv("PRIOR_ART_LOG_LEVEL", "debug")
	t.Setenv("PRIOR_ART_SEARCH_SCORER", "")
	require.NoError(t, os.Unsetenv("PRIOR_ART_SEARCH_SCORER"))

	LoadEnv(nil)
	t.Cleanup(func() { os.Unsetenv("PRIOR_ART_SEARCH_SCORER") })

	assert.Equal(t, "debug", os.Getenv("PRIOR_ART_LOG_LEVEL"))
	assert.Equal(t, "keyword", os.Getenv("PRIOR_ART_SEARCH_SCORER"))
}
