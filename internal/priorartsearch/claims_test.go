package priorartsearch

import (
	"context"
	"errors"
	"testing"
)

type memClaimsCache struct {
	data    map[string][]Claim
	readErr error
	stored  []string
}

func (m *memClaimsCache) CachedClaims(_ context.Context, id string) ([]Claim, bool, error) {
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	c, ok := m.data[id]
	return c, ok, nil
}

func (m *memClaimsCache) StoreClaims(_ context.Context, id string, claims []Claim) error {
	m.data[id] = claims
	m.stored = append(m.stored, id)
	return nil
}

func scored(ids ...string) []ScoredCandidate {
	out := make([]ScoredCandidate, len(ids))
	for i, id := range ids {
		out[i] = ScoredCandidate{RawCandidate: cand(id, "s"), RelevanceScore: 0.5}
	}
	return out
}

func TestClaimsEnricherDegradesPerPatent(t *testing.T) {
	fs := newFakeSearcher()
	fs.claimErr["A"] = errors.New("status 500")
	fs.claims["B"] = []Claim{{Number: "1", Text: "x", Type: ClaimIndependent}}

	out, failures := NewClaimsEnricher(fs, nil, nil, nil).Enrich(context.Background(), scored("A", "B", "C"))
	if failures != 1 || len(out) != 3 {
		t.Fatalf("expected 1 failure over 3 results, got %d/%d", failures, len(out))
	}
	if out[0].Claims == nil || len(out[0].Claims) != 0 {
		t.Fatalf("expected empty claims for A, got %#v", out[0].Claims)
	}
	if len(out[1].Claims) != 1 || out[1].PatentID != "B" {
		t.Fatalf("unexpected B result %+v", out[1])
	}
	if out[2].Claims == nil {
		t.Fatal("expected non-nil claims when the patent has none")
	}
}

func TestClaimsEnricherUsesCache(t *testing.T) {
	fs := newFakeSearcher()
	fs.claims["B"] = []Claim{{Number: "1", Text: "fresh"}}
	fs.claimErr["C"] = errors.New("boom")
	cache := &memClaimsCache{data: map[string][]Claim{"A": {{Number: "1", Text: "cached"}}}}

	out, _ := NewClaimsEnricher(fs, cache, nil, nil).Enrich(context.Background(), scored("A", "B", "C"))
	if out[0].Claims[0].Text != "cached" {
		t.Fatalf("expected cached claims for A, got %+v", out[0].Claims)
	}
	if len(fs.claimReqs) != 2 || fs.claimReqs[0] != "B" {
		t.Fatalf("expected A served from cache, requests=%v", fs.claimReqs)
	}
	if len(cache.stored) != 1 || cache.stored[0] != "B" {
		t.Fatalf("expected only successful fetches cached, got %v", cache.stored)
	}
}

func TestClaimsEnricherIgnoresCacheReadErrors(t *testing.T) {
	fs := newFakeSearcher()
	fs.claims["A"] = []Claim{{Number: "1", Text: "x"}}
	cache := &memClaimsCache{data: map[string][]Claim{}, readErr: errors.New("locked")}
	out, failures := NewClaimsEnricher(fs, cache, nil, nil).Enrich(context.Background(), scored("A"))
	if failures != 0 || len(out[0].Claims) != 1 {
		t.Fatalf("expected fetch despite cache error, failures=%d claims=%v", failures, out[0].Claims)
	}
}
