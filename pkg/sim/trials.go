package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

var ErrInvalidTrials = errors.New("trial count must be positive")

// TrialOptions controls repeated sampling runs.
type TrialOptions struct {
	// Count is the number of sampled runs.
	Count int
	// Parallel caps concurrent runs, defaults to the number of CPUs.
	Parallel int
	// CompareExhaustive also runs exhaustive mode and reports how many trials
	// reproduced its top set.
	CompareExhaustive bool
}

// TopFrequency is how often a combination made it into a trial's top set.
type TopFrequency struct {
	Combination Combination `json:"combination" yaml:"combination"`
	Score       float64     `json:"score" yaml:"score"`
	Count       int         `json:"count" yaml:"count"`
	Fraction    float64     `json:"fraction" yaml:"fraction"`
}

// TrialReport aggregates repeated sampling runs. Agreement is the fraction of
// trials whose top scores match the exhaustive top scores rank by rank, so a
// different pick among combinations tied at the cut still agrees.
type TrialReport struct {
	Trials         int                 `json:"trials" yaml:"trials"`
	Frequencies    []TopFrequency      `json:"frequencies" yaml:"frequencies"`
	BestScoreMean  float64             `json:"best_score_mean" yaml:"best_score_mean"`
	BestScoreStd   float64             `json:"best_score_stddev" yaml:"best_score_stddev"`
	Exhaustive     []ScoredCombination `json:"exhaustive,omitempty" yaml:"exhaustive,omitempty"`
	Agreement      float64             `json:"agreement,omitempty" yaml:"agreement,omitempty"`
	SkippedRules   int                 `json:"skipped_rules" yaml:"skipped_rules"`
	TrialEvaluated int                 `json:"trial_evaluated" yaml:"trial_evaluated"`
}

// RunTrials runs opts.Count independent sampled simulations concurrently. Each
// trial is single threaded and owns its generator. With a configured seed,
// trial i uses seed+i.
func RunTrials(ctx context.Context, cfg Config, opts TrialOptions) (*TrialReport, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTrials, opts.Count)
	}
	if opts.Parallel <= 0 {
		opts.Parallel = runtime.NumCPU()
	}

	cfg.Sampling.Enabled = true
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reports := make([]*Report, opts.Count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)
	for i := range opts.Count {
		tc := cfg
		if cfg.Sampling.Seed != nil {
			seed := *cfg.Sampling.Seed + uint64(i)
			tc.Sampling.Seed = &seed
		}
		g.Go(func() error {
			s, err := New(tc)
			if err != nil {
				return err
			}
			r, err := s.Run(gctx)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tr := aggregateTrials(reports)

	if opts.CompareExhaustive {
		ec := cfg
		ec.Sampling.Enabled = false
		s, err := New(ec)
		if err != nil {
			return nil, err
		}
		r, err := s.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("exhaustive baseline: %w", err)
		}
		tr.Exhaustive = r.Top
		tr.Agreement = agreement(reports, r.Top)
	}

	slog.Debug("trials complete", "trials", tr.Trials, "distinct_top", len(tr.Frequencies))
	return tr, nil
}

func aggregateTrials(reports []*Report) *TrialReport {
	tr := &TrialReport{Trials: len(reports)}

	index := make(map[string]int)
	best := make([]float64, 0, len(reports))
	for _, r := range reports {
		tr.SkippedRules += r.SkippedRules
		tr.TrialEvaluated += r.Evaluated
		if len(r.Top) > 0 {
			best = append(best, r.Top[0].Score)
		}
		for _, sc := range r.Top {
			key := sc.Combination.Key()
			i, ok := index[key]
			if !ok {
				i = len(tr.Frequencies)
				index[key] = i
				tr.Frequencies = append(tr.Frequencies, TopFrequency{
					Combination: sc.Combination,
					Score:       sc.Score,
				})
			}
			tr.Frequencies[i].Count++
		}
	}

	for i := range tr.Frequencies {
		tr.Frequencies[i].Fraction = float64(tr.Frequencies[i].Count) / float64(len(reports))
	}
	slices.SortStableFunc(tr.Frequencies, func(a, b TopFrequency) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return byScoreDesc(
			ScoredCombination{Score: a.Score},
			ScoredCombination{Score: b.Score})
	})

	switch len(best) {
	case 0:
	case 1:
		tr.BestScoreMean = best[0]
	default:
		tr.BestScoreMean, tr.BestScoreStd = stat.MeanStdDev(best, nil)
	}

	return tr
}

// agreement is the fraction of trials whose top list is a valid top list of
// the full population: same length and the same score at every rank as want.
// Combinations tied at the cut may differ between trials and still agree.
func agreement(reports []*Report, want []ScoredCombination) float64 {
	if len(reports) == 0 {
		return 0
	}
	var hits int
	for _, r := range reports {
		if sameScores(r.Top, want) {
			hits++
		}
	}
	return float64(hits) / float64(len(reports))
}

func sameScores(a, b []ScoredCombination) bool {
	return slices.EqualFunc(a, b, func(x, y ScoredCombination) bool {
		return byScoreDesc(x, y) == 0
	})
}
