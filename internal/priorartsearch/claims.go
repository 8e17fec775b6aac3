package priorartsearch

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ClaimsCache interface {
	CachedClaims(ctx context.Context, patentID string) ([]Claim, bool, error)
	StoreClaims(ctx context.Context, patentID string, claims []Claim) error
}

// ClaimsEnricher attaches claims to the selected candidates only. Fetches
// run one at a time through the client's rate limiter.
type ClaimsEnricher struct {
	client  PatentSearcher
	cache   ClaimsCache
	log     logrus.FieldLogger
	metrics *Metrics
}

func NewClaimsEnricher(client PatentSearcher, cache ClaimsCache, log logrus.FieldLogger, metrics *Metrics) *ClaimsEnricher {
	return &ClaimsEnricher{client: client, cache: cache, log: orDiscard(log), metrics: metrics}
}

// Enrich returns one AnalyzedResult per selected candidate, in order, and
// the number of failed fetches. A failed fetch leaves Claims empty.
func (e *ClaimsEnricher) Enrich(ctx context.Context, selected []ScoredCandidate) ([]AnalyzedResult, int) {
	out := make([]AnalyzedResult, len(selected))
	failures := 0
	for i, sc := range selected {
		claims, err := e.claimsFor(ctx, sc.PatentID)
		if err != nil {
			failures++
			e.metrics.observeDegraded(PhaseEnrich)
			e.log.WithFields(logrus.Fields{"event": "claims_failed", "patent_id": sc.PatentID}).WithError(err).Warn("claims fetch failed; continuing without claims")
			claims = []Claim{}
		}
		out[i] = AnalyzedResult{ScoredCandidate: sc, Claims: claims}
	}
	return out, failures
}

func (e *ClaimsEnricher) claimsFor(ctx context.Context, patentID string) ([]Claim, error) {
	if e.cache != nil {
		cached, ok, err := e.cache.CachedClaims(ctx, patentID)
		if err != nil {
			e.log.WithFields(logrus.Fields{"event": "claims_cache_read_failed", "patent_id": patentID}).WithError(err).Warn("claims cache read failed")
		} else if ok {
			return cached, nil
		}
	}
	claims, err := e.client.GetClaims(ctx, patentID)
	if err != nil {
		return nil, err
	}
	if claims == nil {
		claims = []Claim{}
	}
	if e.cache != nil {
		if err := e.cache.StoreClaims(ctx, patentID, claims); err != nil {
			e.log.WithFields(logrus.Fields{"event": "claims_cache_write_failed", "patent_id": patentID}).WithError(err).Warn("claims cache write failed")
		}
	}
	return claims, nil
}
