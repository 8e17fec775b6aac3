package priorartsearch

type DedupResult struct {
	Candidates []RawCandidate
	RawCount   int
	Duplicates int
}

// Deduplicate merges per-strategy lists in order, keyed by patent id. The
// first occurrence is kept; later occurrences only add their strategy to
// MatchedStrategies.
func Deduplicate(lists [][]RawCandidate) DedupResult {
	res := DedupResult{Candidates: []RawCandidate{}}
	index := map[string]int{}
	for _, list := range lists {
		for _, c := range list {
			res.RawCount++
			if i, ok := index[c.PatentID]; ok {
				res.Duplicates++
				kept := &res.Candidates[i]
				for _, s := range strategiesOf(c) {
					kept.MatchedStrategies = appendIfMissing(kept.MatchedStrategies, s)
				}
				continue
			}
			c.MatchedStrategies = append([]string(nil), strategiesOf(c)...)
			index[c.PatentID] = len(res.Candidates)
			res.Candidates = append(res.Candidates, c)
		}
	}
	return res
}

func strategiesOf(c RawCandidate) []string {
	if len(c.MatchedStrategies) > 0 {
		return c.MatchedStrategies
	}
	if c.SourceStrategy != "" {
		return []string{c.SourceStrategy}
	}
	return nil
}

func appendIfMissing(items []string, v string) []string {
	for _, item := range items {
		if item == v {
			return items
		}
	}
	return append(items, v)
}
