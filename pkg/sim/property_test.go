package sim

import (
	"context"
	"testing"

	"pgregory.net/rapid"
)

var propLabels = []string{"a", "b", "c", "d", "e", "f"}

func drawConfig(t *rapid.T) Config {
	nVars := rapid.IntRange(1, 4).Draw(t, "vars")
	vars := make([]Variable, nVars)
	for i := range vars {
		labels := rapid.SliceOfNDistinct(rapid.SampledFrom(propLabels), 1, 4, rapid.ID[string]).Draw(t, "labels")
		choices := make([]Choice, len(labels))
		for j, l := range labels {
			choices[j] = Choice{Label: l, Weight: rapid.Float64Range(-10, 10).Draw(t, "weight")}
		}
		vars[i] = Variable{Name: "v", Choices: choices}
	}

	nRules := rapid.IntRange(0, 4).Draw(t, "rules")
	rules := make([]Rule, nRules)
	for i := range rules {
		rules[i] = Rule{
			Elements:   rapid.SliceOfN(rapid.SampledFrom(propLabels), 0, 2).Draw(t, "elements"),
			Operation:  rapid.SampledFrom(Operations).Draw(t, "operation"),
			Adjustment: rapid.Float64Range(-3, 3).Draw(t, "adjustment"),
		}
	}

	return Config{
		Variables: vars,
		Rules:     rules,
		Top:       rapid.IntRange(0, 10).Draw(t, "top"),
		Sampling: Sampling{
			Enabled:    rapid.Bool().Draw(t, "sampling"),
			Percentage: rapid.Float64Range(0, 200).Draw(t, "percentage"),
			Strategy:   rapid.SampledFrom(Strategies).Draw(t, "strategy"),
			Seed:       seed(rapid.Uint64().Draw(t, "seed")),
		},
	}
}

func TestProperty_ResultSetSize(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := drawConfig(t)
		g, err := NewGenerator(&cfg)
		if err != nil {
			t.Fatalf("generator: %v", err)
		}
		rs, err := g.Generate(context.Background())
		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		total, _ := TotalCombinations(cfg.Variables)
		want := total
		if cfg.Sampling.Enabled {
			want = SampleTarget(cfg.Sampling.Percentage, total)
		}
		if want > total || uint64(len(rs.Results)) != want {
			t.Fatalf("got %d results, want %d", len(rs.Results), want)
		}

		seen := make(map[string]bool, len(rs.Results))
		for _, r := range rs.Results {
			if len(r.Combination) != len(cfg.Variables) {
				t.Fatalf("combination %s has wrong length", r.Combination)
			}
			key := r.Combination.Key()
			if seen[key] {
				t.Fatalf("duplicate combination %s", r.Combination)
			}
			seen[key] = true
		}
	})
}

func TestProperty_TopK(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(t, "n")
		results := make([]ScoredCombination, n)
		distinct := map[string]bool{}
		for i := range results {
			c := Combination{rapid.SampledFrom(propLabels).Draw(t, "x"), rapid.SampledFrom(propLabels).Draw(t, "y")}
			results[i] = ScoredCombination{Combination: c, Score: rapid.Float64Range(-50, 50).Draw(t, "score")}
			distinct[c.Key()] = true
		}
		k := rapid.IntRange(0, 40).Draw(t, "k")

		top := TopK(results, k)

		if len(top) != min(k, len(distinct)) {
			t.Fatalf("got %d entries, want %d", len(top), min(k, len(distinct)))
		}
		seen := map[string]bool{}
		for i, r := range top {
			if seen[r.Combination.Key()] {
				t.Fatalf("duplicate %s in top", r.Combination)
			}
			seen[r.Combination.Key()] = true
			if i > 0 && top[i-1].Score < r.Score {
				t.Fatalf("not descending at %d: %v < %v", i, top[i-1].Score, r.Score)
			}
			// each emitted entry is the best score of its combination
			for _, o := range results {
				if o.Combination.Equal(r.Combination) && o.Score > r.Score {
					t.Fatalf("%s emitted with %v but has %v", r.Combination, r.Score, o.Score)
				}
			}
		}
	})
}

func TestProperty_RulesIgnorePosition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		labels := rapid.SliceOfNDistinct(rapid.SampledFrom(propLabels), 1, 5, rapid.ID[string]).Draw(t, "labels")
		rule := Rule{
			Elements:   rapid.SliceOfN(rapid.SampledFrom(labels), 0, len(labels)).Draw(t, "elements"),
			Operation:  rapid.SampledFrom(Operations).Draw(t, "operation"),
			Adjustment: rapid.Float64Range(-3, 3).Draw(t, "adjustment"),
		}

		shuffled := rapid.Permutation(labels).Draw(t, "shuffled")
		a, _ := ApplyRules(NewLabelSet(labels), 1, []Rule{rule})
		b, _ := ApplyRules(NewLabelSet(shuffled), 1, []Rule{rule})
		if a != b {
			t.Fatalf("score depends on label position: %v != %v", a, b)
		}
	})
}
