package priorartsearch

import "sort"

// SelectResults keeps candidates scoring at least threshold, orders them by
// score descending with ties in input order, and returns at most maxResults.
func SelectResults(scored []ScoredCandidate, threshold float64, maxResults int) []ScoredCandidate {
	out := make([]ScoredCandidate, 0, len(scored))
	for _, s := range scored {
		if s.RelevanceScore >= threshold {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	if maxResults >= 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}
