package sim

import (
	"cmp"
	"math"
	"slices"
)

// TopK returns up to k of the highest scoring distinct combinations, best first.
// The sort is stable, so among equal scores the earlier produced record wins.
// NaN scores sort after every number. results is not modified.
func TopK(results []ScoredCombination, k int) []ScoredCombination {
	top := make([]ScoredCombination, 0, min(max(k, 0), len(results)))
	if k <= 0 || len(results) == 0 {
		return top
	}

	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, byScoreDesc)

	seen := make(map[string]struct{}, k)
	for _, r := range sorted {
		key := r.Combination.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		top = append(top, r)
		if len(top) == k {
			break
		}
	}
	return top
}

func byScoreDesc(a, b ScoredCombination) int {
	an, bn := math.IsNaN(a.Score), math.IsNaN(b.Score)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	return cmp.Compare(b.Score, a.Score)
}
