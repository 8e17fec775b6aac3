package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joelkehle/prior-art-engine/internal/config"
	"github.com/joelkehle/prior-art-engine/internal/logging"
	"github.com/joelkehle/prior-art-engine/internal/priorartsearch"
	"github.com/joelkehle/prior-art-engine/internal/render"
	"github.com/joelkehle/prior-art-engine/internal/runstore"
	"github.com/joelkehle/prior-art-engine/internal/telemetry"
)

type app struct {
	cfg      config.Config
	log      logrus.FieldLogger
	store    *runstore.Store
	metrics  *priorartsearch.Metrics
	engine   *priorartsearch.Engine
	shutdown telemetry.Shutdown
}

// openStore opens the run store unless persistence is disabled. Store
// failures are logged and the command continues without persistence.
func openStore(c config.Config, log logrus.FieldLogger) *runstore.Store {
	path := strings.TrimSpace(c.Store.Path)
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.WithError(err).Warn("run store directory unavailable; runs will not be saved")
		return nil
	}
	store, err := runstore.Open(path, runstore.WithClaimTTL(c.Store.ClaimTTL))
	if err != nil {
		log.WithError(err).Warn("run store unavailable; runs will not be saved")
		return nil
	}
	return store
}

func newLLM(c config.Config) (priorartsearch.LLMCaller, error) {
	switch c.LLM.Provider {
	case config.ProviderOpenAI:
		return priorartsearch.NewOpenAICaller(c.LLM.APIKey, c.LLM.BaseURL, c.LLM.Model)
	default:
		return priorartsearch.NewAnthropicCaller(c.LLM.APIKey, c.LLM.BaseURL, c.LLM.Model)
	}
}

func newApp(ctx context.Context, c config.Config, withStore bool) (*app, error) {
	log := logging.WithComponent(logger, "cli")
	a := &app{cfg: c, log: log, metrics: priorartsearch.NewMetrics()}

	tracer, shutdown, err := telemetry.Setup(ctx, c.Telemetry.OTLPEndpoint, version)
	if err != nil {
		return nil, err
	}
	a.shutdown = shutdown
	if withStore {
		a.store = openStore(c, log)
	}

	llm, err := newLLM(c)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	client := priorartsearch.NewPatentsViewClient(priorartsearch.SearchConfig{
		APIKey:         c.PatentsView.APIKey,
		BaseURL:        c.PatentsView.BaseURL,
		RequestTimeout: c.PatentsView.RequestTimeout,
		MaxRetries:     c.PatentsView.MaxRetries,
		Limiter:        priorartsearch.NewRateLimiter(c.PatentsView.MinInterval),
		Logger:         logging.WithComponent(logger, "patentsview"),
		Metrics:        a.metrics,
	})
	deps := priorartsearch.EngineDeps{
		LLM:     llm,
		Client:  client,
		Logger:  logger,
		Metrics: a.metrics,
		Tracer:  tracer,
	}
	if c.Search.Scorer == config.ScorerKeyword {
		deps.Scorer = priorartsearch.KeywordScorer{}
	}
	if a.store != nil {
		deps.ClaimsCache = a.store
	}
	engine, err := priorartsearch.NewEngine(deps, priorartsearch.EngineConfig{
		DefaultMaxResults: c.Search.MaxResults,
		Thresholds:        c.Thresholds(),
		BatchSize:         c.Search.BatchSize,
		LLMTimeout:        c.LLM.Timeout,
		ReportTimeout:     c.LLM.ReportTimeout,
		SearchBudget:      c.Search.Budget,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.engine = engine
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("close run store")
		}
	}
	if path := a.cfg.Telemetry.MetricsTextfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.log.WithError(err).Warn("write metrics textfile")
		}
	}
	if a.shutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("flush traces")
		}
	}
}

// writeReport writes the report in the requested format to out, or to
// stdout when out is empty. PDF output requires a file.
func writeReport(ctx context.Context, c config.Config, format, out, title, markdown string) error {
	var data []byte
	switch strings.ToLower(format) {
	case "", "md", "markdown":
		data = []byte(markdown)
	case "html":
		doc, err := render.MarkdownToHTML(title, markdown)
		if err != nil {
			return fmt.Errorf("render html: %w", err)
		}
		data = []byte(doc)
	case "pdf":
		if out == "" {
			return fmt.Errorf("--out is required for pdf output")
		}
		r, err := render.NewPDFRenderer(c.Render.PDFOptions())
		if err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		pdf, err := r.Render(ctx, title, markdown)
		if err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		data = pdf
	default:
		return fmt.Errorf("unknown format %q (want md, html, or pdf)", format)
	}
	if out == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	return nil
}

func reportTitle(query string) string {
	return "Prior Art Search: " + query
}
