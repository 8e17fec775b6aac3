package priorartsearch

import (
	"sort"
	"strings"
)

// DefaultDomainThresholds are the per-domain minimum relevance scores used
// when a caller labels a search with a technology domain.
var DefaultDomainThresholds = map[string]float64{
	"5G_TELECOM": 0.4,
	"AI_ML":      0.5,
	"BLOCKCHAIN": 0.4,
	"IOT":        0.4,
	"SOFTWARE":   0.3,
	"HARDWARE":   0.3,
	"DEFAULT":    0.3,
}

// ThresholdTable resolves a relevance threshold. The domain label always
// comes from the caller; it is never inferred from the query text.
type ThresholdTable struct {
	fallback float64
	byDomain map[string]float64
}

func NewThresholdTable(fallback float64, overrides map[string]float64) ThresholdTable {
	t := ThresholdTable{fallback: fallback, byDomain: map[string]float64{}}
	for k, v := range DefaultDomainThresholds {
		t.byDomain[normalizeDomain(k)] = v
	}
	for k, v := range overrides {
		t.byDomain[normalizeDomain(k)] = clampScore(v)
	}
	if fallback < 0 {
		if v, ok := t.byDomain["DEFAULT"]; ok {
			t.fallback = v
		} else {
			t.fallback = DefaultRelevanceThreshold
		}
	}
	return t
}

func (t ThresholdTable) Default() float64 { return t.fallback }

// Resolve returns the threshold for a domain label and whether the label
// was known. Unknown and empty labels get the default.
func (t ThresholdTable) Resolve(domain string) (float64, bool) {
	d := normalizeDomain(domain)
	if d == "" {
		return t.fallback, false
	}
	v, ok := t.byDomain[d]
	if !ok {
		return t.fallback, false
	}
	return v, true
}

func (t ThresholdTable) Domains() []string {
	out := make([]string, 0, len(t.byDomain))
	for k := range t.byDomain {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeDomain(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_", "/", "_").Replace(s)
}
