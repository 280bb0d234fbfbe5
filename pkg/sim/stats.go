package sim

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the distribution of scores in a result set.
type Summary struct {
	Count  int     `json:"count" yaml:"count"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
}

// Summarize computes score statistics over all results. StdDev is the sample
// standard deviation and is zero for fewer than two scores.
func Summarize(results []ScoredCombination) Summary {
	if len(results) == 0 {
		return Summary{}
	}

	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
	}

	s := Summary{
		Count: len(scores),
		Min:   floats.Min(scores),
		Max:   floats.Max(scores),
	}

	if len(scores) < 2 {
		s.Mean = scores[0]
		return s
	}

	s.Mean, s.StdDev = stat.MeanStdDev(scores, nil)
	return s
}
