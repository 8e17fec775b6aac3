package priorartsearch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) *PatentsViewClient {
	t.Helper()
	return NewPatentsViewClient(SearchConfig{
		APIKey:         "x",
		BaseURL:        srv.URL,
		HTTPClient:     srv.Client(),
		RequestTimeout: 2 * time.Second,
		MaxRetries:     retries,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  time.Millisecond,
		Limiter:        NewRateLimiter(0),
	})
}

func TestSearchBuildsRequestAndFlattens(t *testing.T) {
	var body map[string]any
	var apiKey, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-Api-Key")
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":false,"count":2,"total_hits":40,"patents":[
			{"patent_id":"123","patent_title":" T1 ","patent_abstract":"A","patent_date":"2024-01-01","patent_year":2024,
			 "assignees":[{"assignee_organization":"  Org   Name  "}],"inventors":[{"inventor_name_first":"Ada","inventor_name_last":"L"}]},
			{"patent_id":"","patent_title":"dropped"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	out, err := c.Search(context.Background(), SearchStrategy{Name: "s1", Query: map[string]any{"patent_title": "x"}, ExpectedResults: 50})
	if err != nil {
		t.Fatal(err)
	}
	if apiKey != "x" || path != PatentsViewPatentPath {
		t.Fatalf("unexpected request key=%q path=%q", apiKey, path)
	}
	if size := body["o"].(map[string]any)["size"].(float64); size != MaxPageSize {
		t.Fatalf("expected page size capped at %d, got %v", MaxPageSize, size)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(out))
	}
	got := out[0]
	if got.Title != "T1" || got.Year != "2024" || got.Assignees[0] != "Org Name" || got.Inventors[0] != "Ada L" {
		t.Fatalf("unexpected flatten: %+v", got)
	}
	if got.SourceStrategy != "s1" || len(got.MatchedStrategies) != 1 {
		t.Fatalf("expected source strategy recorded, got %+v", got)
	}
}

func TestPageSize(t *testing.T) {
	if got := pageSize(10); got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}
	if got := pageSize(40); got != 100 {
		t.Fatalf("expected cap 100, got %d", got)
	}
	if got := pageSize(0); got != defaultExpectedResults*3 {
		t.Fatalf("expected default-based size, got %d", got)
	}
}

func TestSearchNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).Search(context.Background(), SearchStrategy{Name: "s", Query: map[string]any{"a": 1}})
	var se *statusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 status error, got %v", err)
	}
}

func TestSearchRetries5xxWithinClient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"error":false,"patents":[{"patent_id":"1","patent_title":"t"}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv, 2).Search(context.Background(), SearchStrategy{Name: "s", Query: map[string]any{"a": 1}})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if len(out) != 1 || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls and 1 result, got calls=%d out=%d", calls, len(out))
	}
}

func TestSearchErrorFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":true,"count":0,"total_hits":0,"patents":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv, 0).Search(context.Background(), SearchStrategy{Name: "s", Query: map[string]any{"a": 1}}); err == nil {
		t.Fatal("expected error when error=true")
	}
}

func TestSearchEmptyQuerySkipsRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv, 0).Search(context.Background(), SearchStrategy{Name: "empty"})
	if err != nil || len(out) != 0 || atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no request for empty query, err=%v out=%v calls=%d", err, out, calls)
	}
}

func TestGetClaimsOrdersBySequence(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PatentsViewClaimsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		_, _ = w.Write([]byte(`{"error":false,"g_claims":[
			{"patent_id":"9","claim_sequence":1,"claim_text":"The method of claim 1.","claim_number":"","claim_dependent":"claim 1","exemplary":""},
			{"patent_id":"9","claim_sequence":0,"claim_text":"A method comprising x.","claim_number":"1","claim_dependent":"","exemplary":"1"},
			{"patent_id":"9","claim_sequence":2,"claim_text":"","claim_number":"3"}]}`))
	}))
	defer srv.Close()

	claims, err := newTestClient(t, srv, 0).GetClaims(context.Background(), "9")
	if err != nil {
		t.Fatal(err)
	}
	if len(claims) != 2 {
		t.Fatalf("expected empty claim skipped, got %d", len(claims))
	}
	if claims[0].Number != "1" || claims[0].Type != ClaimIndependent || !claims[0].Exemplary {
		t.Fatalf("unexpected first claim %+v", claims[0])
	}
	if claims[1].Number != "2" || claims[1].Type != ClaimDependent || claims[1].Dependency != "claim 1" {
		t.Fatalf("expected number defaulted from sequence, got %+v", claims[1])
	}
}

func TestClientWaitsOnLimiterForEveryRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":false,"patents":[],"g_claims":[]}`))
	}))
	defer srv.Close()

	lim := NewRateLimiter(time.Second)
	clock := time.Unix(0, 0)
	var slept []time.Duration
	lim.now = func() time.Time { return clock }
	lim.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		clock = clock.Add(d)
		return nil
	}
	c := NewPatentsViewClient(SearchConfig{BaseURL: srv.URL, HTTPClient: srv.Client(), Limiter: lim})
	ctx := context.Background()
	if _, err := c.Search(ctx, SearchStrategy{Name: "a", Query: map[string]any{"a": 1}}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetClaims(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Search(ctx, SearchStrategy{Name: "b", Query: map[string]any{"a": 1}}); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != time.Second {
		t.Fatalf("expected two full-interval waits, got %v", slept)
	}
}
