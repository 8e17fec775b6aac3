package priorartsearch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/joelkehle/prior-art-engine/internal/priorartsearch"

type ProgressFn func(phase Phase, message string)

type EngineDeps struct {
	LLM    LLMCaller
	Client PatentSearcher
	// Scorer defaults to an LLMScorer over LLM.
	Scorer      Scorer
	ClaimsCache ClaimsCache
	Logger      logrus.FieldLogger
	Metrics     *Metrics
	Tracer      trace.Tracer
}

type EngineConfig struct {
	DefaultMaxResults int
	Thresholds        ThresholdTable
	BatchSize         int
	LLMTimeout        time.Duration
	ReportTimeout     time.Duration
	// SearchBudget bounds one Search call end to end. Zero disables it.
	SearchBudget time.Duration
}

// Engine runs prior-art searches and renders their reports. It is safe for
// concurrent use. Concurrent searches share the PatentSearcher, and with it
// the client's rate limiter, so the upstream quota holds across all of them.
type Engine struct {
	strategist *StrategyGenerator
	client     PatentSearcher
	scorer     *RelevanceScorer
	enricher   *ClaimsEnricher
	reporter   *ReportSynthesizer
	thresholds ThresholdTable
	maxResults int
	budget     time.Duration
	model      string
	log        logrus.FieldLogger
	metrics    *Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

func NewEngine(deps EngineDeps, cfg EngineConfig) (*Engine, error) {
	if deps.LLM == nil {
		return nil, errors.New("llm caller is required")
	}
	if deps.Client == nil {
		return nil, errors.New("patent search client is required")
	}
	if cfg.DefaultMaxResults <= 0 {
		cfg.DefaultMaxResults = DefaultMaxResults
	}
	if cfg.Thresholds.byDomain == nil {
		cfg.Thresholds = NewThresholdTable(DefaultRelevanceThreshold, nil)
	}
	log := orDiscard(deps.Logger)
	scorer := deps.Scorer
	if scorer == nil {
		scorer = NewLLMScorer(deps.LLM, cfg.LLMTimeout, deps.Metrics)
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Engine{
		strategist: NewStrategyGenerator(deps.LLM, cfg.LLMTimeout, log.WithField("component", "strategy"), deps.Metrics),
		client:     deps.Client,
		scorer:     NewRelevanceScorer(scorer, cfg.BatchSize, log.WithField("component", "scoring"), deps.Metrics),
		enricher:   NewClaimsEnricher(deps.Client, deps.ClaimsCache, log.WithField("component", "claims"), deps.Metrics),
		reporter:   NewReportSynthesizer(deps.LLM, cfg.ReportTimeout, log.WithField("component", "report"), deps.Metrics),
		thresholds: cfg.Thresholds,
		maxResults: cfg.DefaultMaxResults,
		budget:     cfg.SearchBudget,
		model:      deps.LLM.ModelName(),
		log:        log.WithField("component", "engine"),
		metrics:    deps.Metrics,
		tracer:     tracer,
		now:        time.Now,
	}, nil
}

type searchOptions struct {
	maxResults *int
	threshold  *float64
	domain     string
	progress   ProgressFn
}

type SearchOption func(*searchOptions)

func WithMaxResults(n int) SearchOption {
	return func(o *searchOptions) { o.maxResults = &n }
}

// WithRelevanceThreshold overrides both the default and any domain
// threshold.
func WithRelevanceThreshold(t float64) SearchOption {
	return func(o *searchOptions) { o.threshold = &t }
}

// WithDomain labels the query with a technology domain used to look up a
// threshold override.
func WithDomain(domain string) SearchOption {
	return func(o *searchOptions) { o.domain = strings.TrimSpace(domain) }
}

func WithProgress(fn ProgressFn) SearchOption {
	return func(o *searchOptions) { o.progress = fn }
}

func (e *Engine) ModelName() string { return e.model }

func (e *Engine) Search(ctx context.Context, query string, opts ...SearchOption) (SearchResult, error) {
	o := searchOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}, &StageError{Phase: PhaseStrategize, Err: ErrEmptyQuery}
	}
	maxResults := e.maxResults
	if o.maxResults != nil {
		if *o.maxResults <= 0 {
			return SearchResult{}, fmt.Errorf("max_results must be positive, got %d", *o.maxResults)
		}
		maxResults = *o.maxResults
	}
	threshold, known := e.thresholds.Resolve(o.domain)
	if o.domain != "" && !known {
		e.log.WithFields(logrus.Fields{"event": "unknown_domain", "domain": o.domain, "known": e.thresholds.Domains()}).Warn("unknown domain label; using default threshold")
	}
	if o.threshold != nil {
		if *o.threshold < 0 || *o.threshold > 1 {
			return SearchResult{}, fmt.Errorf("relevance_threshold must be within [0,1], got %v", *o.threshold)
		}
		threshold = *o.threshold
	}

	if e.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.budget)
		defer cancel()
	}
	ctx, span := e.tracer.Start(ctx, "prior_art.search", trace.WithAttributes(
		attribute.String("query", query),
		attribute.Int("max_results", maxResults),
		attribute.Float64("threshold", threshold),
		attribute.String("domain", o.domain),
	))
	defer span.End()

	start := e.now()
	res := SearchResult{
		ID:        uuid.New(),
		Query:     query,
		Timestamp: start,
		Results:   []AnalyzedResult{},
		Metadata: SearchMetadata{
			Threshold:  threshold,
			MaxResults: maxResults,
			Domain:     o.domain,
			Scorer:     e.scorer.Name(),
			Model:      e.model,
		},
	}
	log := e.log.WithFields(logrus.Fields{"run_id": res.ID.String()})

	fail := func(err error) (SearchResult, error) {
		e.metrics.observeSearch("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithFields(logrus.Fields{"event": "search_failed", "phase": PhaseFromError(err)}).WithError(err).Error("search aborted")
		return SearchResult{}, err
	}

	var strategies []SearchStrategy
	err := e.runPhase(ctx, PhaseStrategize, o.progress, "Generating search strategies...", func(ctx context.Context) error {
		var err error
		strategies, err = e.strategist.Generate(ctx, query)
		return err
	})
	if err != nil {
		return fail(err)
	}
	res.Strategies = strategies
	res.Metadata.StrategiesCount = len(strategies)

	var lists [][]RawCandidate
	err = e.runPhase(ctx, PhaseFanOut, o.progress, fmt.Sprintf("Running %d strategies against PatentsView...", len(strategies)), func(ctx context.Context) error {
		lists, res.Metadata.StrategiesFailed = e.fanOut(ctx, log, strategies)
		return nil
	})
	if err != nil {
		return fail(err)
	}

	var deduped DedupResult
	err = e.runPhase(ctx, PhaseDedup, o.progress, "Removing duplicates...", func(context.Context) error {
		deduped = Deduplicate(lists)
		return nil
	})
	if err != nil {
		return fail(err)
	}
	res.TotalFound = deduped.RawCount
	res.Metadata.UniqueCount = len(deduped.Candidates)
	res.Metadata.DuplicatesRemoved = deduped.Duplicates

	var scored []ScoredCandidate
	err = e.runPhase(ctx, PhaseScore, o.progress, fmt.Sprintf("Scoring %d candidates...", len(deduped.Candidates)), func(ctx context.Context) error {
		scored, res.Metadata.ScoringFailures = e.scorer.ScoreAll(ctx, query, deduped.Candidates)
		return nil
	})
	if err != nil {
		return fail(err)
	}

	var selected []ScoredCandidate
	err = e.runPhase(ctx, PhaseSelect, o.progress, "Selecting top results...", func(context.Context) error {
		selected = SelectResults(scored, threshold, maxResults)
		return nil
	})
	if err != nil {
		return fail(err)
	}

	err = e.runPhase(ctx, PhaseEnrich, o.progress, fmt.Sprintf("Fetching claims for %d patents...", len(selected)), func(ctx context.Context) error {
		res.Results, res.Metadata.ClaimsFailures = e.enricher.Enrich(ctx, selected)
		return nil
	})
	if err != nil {
		return fail(err)
	}

	res.Metadata.DurationMS = e.now().Sub(start).Milliseconds()
	emit(o.progress, PhaseDone, fmt.Sprintf("Search complete: %d results", len(res.Results)))
	e.metrics.observeSearch("ok")
	span.SetAttributes(
		attribute.Int("total_found", res.TotalFound),
		attribute.Int("unique_count", res.Metadata.UniqueCount),
		attribute.Int("results", len(res.Results)),
	)
	log.WithFields(logrus.Fields{
		"event":              "search_done",
		"strategies":         res.Metadata.StrategiesCount,
		"strategies_failed":  res.Metadata.StrategiesFailed,
		"total_found":        res.TotalFound,
		"unique":             res.Metadata.UniqueCount,
		"duplicates_removed": res.Metadata.DuplicatesRemoved,
		"scoring_failures":   res.Metadata.ScoringFailures,
		"claims_failures":    res.Metadata.ClaimsFailures,
		"results":            len(res.Results),
		"duration_ms":        res.Metadata.DurationMS,
	}).Info("search complete")
	return res, nil
}

// fanOut runs strategies one at a time in priority order. A failed strategy
// contributes an empty list.
func (e *Engine) fanOut(ctx context.Context, log logrus.FieldLogger, strategies []SearchStrategy) ([][]RawCandidate, int) {
	ordered := make([]SearchStrategy, len(strategies))
	copy(ordered, strategies)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	lists := make([][]RawCandidate, 0, len(ordered))
	failed := 0
	for _, st := range ordered {
		if ctx.Err() != nil {
			break
		}
		cands, err := e.client.Search(ctx, st)
		if err != nil {
			failed++
			e.metrics.observeDegraded(PhaseFanOut)
			log.WithFields(logrus.Fields{"event": "strategy_failed", "strategy": st.Name}).WithError(err).Warn("strategy search failed; continuing")
			cands = []RawCandidate{}
		}
		lists = append(lists, cands)
	}
	return lists, failed
}

// runPhase wraps one state transition: span, progress, timing, and the
// budget check. Any error it returns is a *StageError.
func (e *Engine) runPhase(ctx context.Context, phase Phase, progress ProgressFn, message string, fn func(context.Context) error) error {
	emit(progress, phase, message)
	ctx, span := e.tracer.Start(ctx, "prior_art."+string(phase))
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	e.metrics.observePhase(phase, time.Since(start))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &StageError{Phase: phase, Err: e.budgetError(ctx, err)}
	}
	return nil
}

func (e *Engine) budgetError(ctx context.Context, err error) error {
	if e.budget > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("search budget of %s exhausted: %w", e.budget, err)
	}
	return err
}

// GenerateReport renders the markdown report for a finished search.
func (e *Engine) GenerateReport(ctx context.Context, res SearchResult) (string, error) {
	ctx, span := e.tracer.Start(ctx, "prior_art.report", trace.WithAttributes(
		attribute.String("run_id", res.ID.String()),
		attribute.Int("results", len(res.Results)),
	))
	defer span.End()
	start := time.Now()
	report, err := e.reporter.Generate(ctx, res)
	e.metrics.observePhase(PhaseReport, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &StageError{Phase: PhaseReport, Err: err}
	}
	return report, nil
}

func emit(progress ProgressFn, phase Phase, message string) {
	if progress != nil {
		progress(phase, message)
	}
}
