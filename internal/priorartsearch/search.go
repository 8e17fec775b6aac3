package priorartsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
)

// PatentSearcher is the patent database boundary used by the engine.
type PatentSearcher interface {
	Search(ctx context.Context, strategy SearchStrategy) ([]RawCandidate, error)
	GetClaims(ctx context.Context, patentID string) ([]Claim, error)
}

type SearchConfig struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	// MaxRetries bounds in-client retries of 429 and 5xx responses. Timeouts
	// are never retried.
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	HTTPClient     *http.Client
	Limiter        *RateLimiter
	Logger         logrus.FieldLogger
	Metrics        *Metrics
}

// PatentsViewClient implements PatentSearcher against the PatentsView
// search API. Every HTTP request, retries included, first waits on the
// client's RateLimiter.
type PatentsViewClient struct {
	cfg      SearchConfig
	executor failsafe.Executor[[]byte]
	log      logrus.FieldLogger
}

func NewPatentsViewClient(cfg SearchConfig) *PatentsViewClient {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = PatentsViewBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = cfg.RetryBaseDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewRateLimiter(DefaultMinRequestInterval)
	}
	log := orDiscard(cfg.Logger)
	if cfg.APIKey == "" {
		log.WithField("event", "patentsview_no_api_key").Warn("PatentsView API key not configured; requests are sent without X-Api-Key")
	}

	policy := retrypolicy.NewBuilder[[]byte]().
		WithBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ []byte, err error) bool {
			var se *statusError
			return errors.As(err, &se) && se.retryable()
		}).
		Build()

	log.WithFields(logrus.Fields{
		"event":        "patentsview_client_ready",
		"base_url":     cfg.BaseURL,
		"min_interval": cfg.Limiter.Interval().String(),
		"max_retries":  cfg.MaxRetries,
	}).Debug("patent client configured")
	return &PatentsViewClient{cfg: cfg, executor: failsafe.With[[]byte](policy), log: log}
}

type patentAPIResponse struct {
	Error     bool             `json:"error"`
	Count     int              `json:"count"`
	TotalHits int              `json:"total_hits"`
	Patents   []map[string]any `json:"patents"`
}

type claimsAPIResponse struct {
	Error   bool             `json:"error"`
	Count   int              `json:"count"`
	GClaims []map[string]any `json:"g_claims"`
}

var searchFields = []string{
	"patent_id", "patent_title", "patent_abstract", "patent_date", "patent_year",
	"inventors.inventor_name_first", "inventors.inventor_name_last",
	"assignees.assignee_organization",
}

var claimFields = []string{
	"patent_id", "claim_sequence", "claim_text", "claim_number", "claim_dependent", "exemplary",
}

func pageSize(expected int) int {
	if expected <= 0 {
		expected = defaultExpectedResults
	}
	return min(expected*3, MaxPageSize)
}

func (c *PatentsViewClient) Search(ctx context.Context, strategy SearchStrategy) ([]RawCandidate, error) {
	if len(strategy.Query) == 0 {
		c.log.WithFields(logrus.Fields{"event": "empty_strategy_query", "strategy": strategy.Name}).Warn("strategy has no query")
		return []RawCandidate{}, nil
	}
	body := map[string]any{
		"q": strategy.Query,
		"f": searchFields,
		"s": []map[string]string{{"patent_date": "desc"}},
		"o": map[string]int{"size": pageSize(strategy.ExpectedResults)},
	}
	raw, err := c.post(ctx, PatentsViewPatentPath, body)
	if err != nil {
		return nil, fmt.Errorf("strategy %q: %w", strategy.Name, err)
	}
	var parsed patentAPIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("strategy %q: decode response: %w", strategy.Name, err)
	}
	if parsed.Error {
		return nil, fmt.Errorf("strategy %q: patentsview error flag set", strategy.Name)
	}
	out := make([]RawCandidate, 0, len(parsed.Patents))
	for _, p := range parsed.Patents {
		cand := flattenPatent(p)
		if cand.PatentID == "" {
			continue
		}
		cand.SourceStrategy = strategy.Name
		cand.MatchedStrategies = []string{strategy.Name}
		out = append(out, cand)
	}
	c.log.WithFields(logrus.Fields{"event": "strategy_searched", "strategy": strategy.Name, "returned": len(out), "total_hits": parsed.TotalHits}).Info("patent search complete")
	return out, nil
}

func (c *PatentsViewClient) GetClaims(ctx context.Context, patentID string) ([]Claim, error) {
	patentID = strings.TrimSpace(patentID)
	if patentID == "" {
		return []Claim{}, nil
	}
	body := map[string]any{
		"q": map[string]any{"_and": []any{map[string]any{"patent_id": patentID}}},
		"f": claimFields,
		"s": []map[string]string{{"patent_id": "asc"}, {"claim_sequence": "asc"}},
		"o": map[string]int{"size": MaxClaimsPerPatent},
	}
	raw, err := c.post(ctx, PatentsViewClaimsPath, body)
	if err != nil {
		return nil, fmt.Errorf("claims %s: %w", patentID, err)
	}
	var parsed claimsAPIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("claims %s: decode response: %w", patentID, err)
	}
	if parsed.Error {
		return nil, fmt.Errorf("claims %s: patentsview error flag set", patentID)
	}
	return parseClaims(parsed.GClaims), nil
}

func (c *PatentsViewClient) post(ctx context.Context, path string, body map[string]any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var lastErr error
	out, err := c.executor.WithContext(ctx).Get(func() ([]byte, error) {
		b, err := c.executeOnce(ctx, path, payload)
		lastErr = err
		return b, err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return out, nil
}

func (c *PatentsViewClient) executeOnce(ctx context.Context, path string, payload []byte) ([]byte, error) {
	if err := c.cfg.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
	}

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		c.cfg.Metrics.observeAPIRequest(path, 0)
		return nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	c.cfg.Metrics.observeAPIRequest(path, res.StatusCode)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		c.log.WithFields(logrus.Fields{"event": "patentsview_http_error", "path": path, "status": res.StatusCode}).Warn("patent api returned non-2xx")
		return nil, &statusError{Code: res.StatusCode, Body: clampString(string(b), 300)}
	}
	return b, nil
}

func flattenPatent(raw map[string]any) RawCandidate {
	return RawCandidate{
		PatentID:  strings.TrimSpace(str(raw["patent_id"])),
		Title:     strings.TrimSpace(str(raw["patent_title"])),
		Abstract:  strings.TrimSpace(str(raw["patent_abstract"])),
		Date:      strings.TrimSpace(str(raw["patent_date"])),
		Year:      scalarString(raw["patent_year"]),
		Inventors: flattenInventors(raw["inventors"]),
		Assignees: flattenAssignees(raw["assignees"]),
	}
}

func flattenAssignees(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		m, _ := item.(map[string]any)
		name := str(m["assignee_organization"])
		if name == "" {
			name = str(m["assignee_organization_name"])
		}
		name = strings.Join(strings.Fields(name), " ")
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	return out
}

func flattenInventors(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := []string{}
	for _, item := range arr {
		m, _ := item.(map[string]any)
		name := strings.TrimSpace(str(m["inventor_name"]))
		if name == "" {
			first := strings.TrimSpace(str(m["inventor_name_first"]))
			last := strings.TrimSpace(str(m["inventor_name_last"]))
			name = strings.TrimSpace(first + " " + last)
		}
		if name == "" {
			continue
		}
		out = append(out, name)
	}
	return out
}

type sequencedClaim struct {
	seq   int
	claim Claim
}

// parseClaims skips empty claims and orders the rest by claim_sequence.
func parseClaims(rows []map[string]any) []Claim {
	seqd := make([]sequencedClaim, 0, len(rows))
	for i, row := range rows {
		text := strings.TrimSpace(str(row["claim_text"]))
		if text == "" {
			continue
		}
		seq, ok := intValue(row["claim_sequence"])
		if !ok {
			seq = i
		}
		number := scalarString(row["claim_number"])
		if number == "" {
			number = strconv.Itoa(seq + 1)
		}
		dep := scalarString(row["claim_dependent"])
		ctype := ClaimIndependent
		if dep != "" {
			ctype = ClaimDependent
		}
		seqd = append(seqd, sequencedClaim{seq: seq, claim: Claim{
			Number:     number,
			Text:       text,
			Type:       ctype,
			Dependency: dep,
			Exemplary:  truthy(row["exemplary"]),
		}})
	}
	sort.SliceStable(seqd, func(i, j int) bool { return seqd[i].seq < seqd[j].seq })
	out := make([]Claim, len(seqd))
	for i, s := range seqd {
		out[i] = s.claim
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.TrimSpace(strings.ToLower(t))
		return s != "" && s != "0" && s != "false"
	case float64:
		return t != 0
	default:
		return false
	}
}

func clampString(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max]) + "..."
}
