package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
)

const (
	// ctx is checked every ctxCheckMask+1 combinations
	ctxCheckMask = 1<<12 - 1

	// upper bound on slice and map capacity reserved up front
	maxPrealloc = 1 << 20

	rejectionBudgetFactor = 32
	rejectionBudgetMin    = 4096

	// second PCG word, fixed so one seed always maps to one stream
	seedStream uint64 = 0x9e3779b97f4a7c15
)

// Generator produces the scored result set for a configuration. It is not
// modified by Generate: every call draws from a fresh source seeded with Seed,
// so repeated and concurrent calls return the same result set.
type Generator struct {
	vars     []Variable
	rules    []Rule
	sampling Sampling
	total    uint64
	seed     uint64
}

// NewGenerator validates cfg and prepares a generator for it.
func NewGenerator(cfg *Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	total, err := TotalCombinations(cfg.Variables)
	if err != nil {
		return nil, err
	}

	seed := rand.Uint64()
	if cfg.Sampling.Seed != nil {
		seed = *cfg.Sampling.Seed
	}

	s := cfg.Sampling
	if s.Strategy == "" {
		s.Strategy = StrategyRejection
	}

	return &Generator{
		vars:     cfg.Variables,
		rules:    cfg.Rules,
		sampling: s,
		total:    total,
		seed:     seed,
	}, nil
}

// Total is the size of the full Cartesian product.
func (g *Generator) Total() uint64 {
	return g.total
}

// Seed is the seed of the random source used for sampling.
func (g *Generator) Seed() uint64 {
	return g.seed
}

// Generate runs exhaustive or sampling generation to completion.
func (g *Generator) Generate(ctx context.Context) (*ResultSet, error) {
	if !g.sampling.Enabled {
		return g.exhaustive(ctx)
	}
	return g.sample(ctx)
}

type emitter struct {
	g   *Generator
	rng *rand.Rand
	idx []int
	rs  *ResultSet
}

func (g *Generator) newEmitter(mode Mode, target uint64) *emitter {
	rs := &ResultSet{
		Mode:    mode,
		Total:   g.total,
		Target:  target,
		Results: make([]ScoredCombination, 0, min(target, maxPrealloc)),
	}
	if mode == ModeSampling {
		rs.Strategy = g.sampling.Strategy
	}
	return &emitter{
		g:   g,
		rng: rand.New(rand.NewPCG(g.seed, seedStream)),
		idx: make([]int, len(g.vars)),
		rs:  rs,
	}
}

// emit scores the combination currently held in e.idx.
func (e *emitter) emit() {
	c := make(Combination, len(e.idx))
	for i, v := range e.g.vars {
		c[i] = v.Choices[e.idx[i]].Label
	}
	score, skipped := ApplyRules(NewLabelSet(c), BaseScore(e.g.vars, e.idx), e.g.rules)
	e.rs.SkippedRules += skipped
	e.rs.Results = append(e.rs.Results, ScoredCombination{Combination: c, Score: score})
}

// emitIndex decodes a combination index (last variable fastest) and scores it.
func (e *emitter) emitIndex(n uint64) {
	for i := len(e.g.vars) - 1; i >= 0; i-- {
		size := uint64(len(e.g.vars[i].Choices))
		e.idx[i] = int(n % size)
		n /= size
	}
	e.emit()
}

func (e *emitter) checkCtx(ctx context.Context) error {
	if len(e.rs.Results)&ctxCheckMask != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("generation interrupted after %d combinations: %w", len(e.rs.Results), err)
	}
	return nil
}

func (g *Generator) exhaustive(ctx context.Context) (*ResultSet, error) {
	e := g.newEmitter(ModeExhaustive, g.total)
	if g.total == 0 {
		return e.rs, nil
	}

	// odometer over choice indexes, last variable turning fastest
	for {
		if err := e.checkCtx(ctx); err != nil {
			return nil, err
		}
		e.emit()

		i := len(e.idx) - 1
		for ; i >= 0; i-- {
			e.idx[i]++
			if e.idx[i] < len(g.vars[i].Choices) {
				break
			}
			e.idx[i] = 0
		}
		if i < 0 {
			break
		}
	}

	slog.Debug("exhaustive generation done", "combinations", len(e.rs.Results))
	return e.rs, nil
}

func (g *Generator) sample(ctx context.Context) (*ResultSet, error) {
	target := SampleTarget(g.sampling.Percentage, g.total)
	e := g.newEmitter(ModeSampling, target)
	if target == 0 {
		slog.Debug("sampling target is zero", "total", g.total, "percentage", g.sampling.Percentage)
		return e.rs, nil
	}

	var err error
	switch g.sampling.Strategy {
	case StrategyPermutation:
		err = g.samplePermutation(ctx, e, target)
	default:
		err = g.sampleRejection(ctx, e, target)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("sampling done",
		"strategy", g.sampling.Strategy,
		"target", target,
		"total", g.total,
		"seed", g.seed)
	return e.rs, nil
}

func (g *Generator) encode(idx []int) uint64 {
	var n uint64
	for i, v := range g.vars {
		n = n*uint64(len(v.Choices)) + uint64(idx[i])
	}
	return n
}

// sampleRejection draws one label per variable uniformly and keeps only unseen
// combinations. Once the attempt budget runs out the rest of the target is
// taken uniformly from the combinations not chosen yet, so it always terminates.
func (g *Generator) sampleRejection(ctx context.Context, e *emitter, target uint64) error {
	chosen := make(map[uint64]struct{}, min(target, maxPrealloc))
	budget := rejectionBudget(target)

	var attempts uint64
	for uint64(len(chosen)) < target {
		if attempts >= budget {
			slog.Debug("rejection budget exhausted, filling from remaining combinations",
				"attempts", attempts,
				"chosen", len(chosen),
				"target", target)
			return g.fillRemaining(ctx, e, chosen, target-uint64(len(chosen)))
		}
		attempts++

		for i, v := range g.vars {
			e.idx[i] = e.rng.IntN(len(v.Choices))
		}
		n := g.encode(e.idx)
		if _, ok := chosen[n]; ok {
			continue
		}
		chosen[n] = struct{}{}

		if err := e.checkCtx(ctx); err != nil {
			return err
		}
		e.emit()
	}
	return nil
}

func (g *Generator) fillRemaining(ctx context.Context, e *emitter, chosen map[uint64]struct{}, need uint64) error {
	rest := make([]uint64, 0, g.total-uint64(len(chosen)))
	for n := uint64(0); n < g.total; n++ {
		if _, ok := chosen[n]; !ok {
			rest = append(rest, n)
		}
	}

	for i := uint64(0); i < need; i++ {
		j := i + e.rng.Uint64N(uint64(len(rest))-i)
		rest[i], rest[j] = rest[j], rest[i]

		if err := e.checkCtx(ctx); err != nil {
			return err
		}
		e.emitIndex(rest[i])
	}
	return nil
}

// samplePermutation takes the first target entries of a Fisher-Yates shuffle of
// the index space, tracking only the displaced positions.
func (g *Generator) samplePermutation(ctx context.Context, e *emitter, target uint64) error {
	displaced := make(map[uint64]uint64, min(target, maxPrealloc))
	at := func(i uint64) uint64 {
		if v, ok := displaced[i]; ok {
			return v
		}
		return i
	}

	for i := uint64(0); i < target; i++ {
		j := i + e.rng.Uint64N(g.total-i)
		vi, vj := at(i), at(j)
		displaced[j] = vi
		delete(displaced, i)

		if err := e.checkCtx(ctx); err != nil {
			return err
		}
		e.emitIndex(vj)
	}
	return nil
}

func rejectionBudget(target uint64) uint64 {
	if target > (1<<63)/rejectionBudgetFactor {
		return 1 << 63
	}
	b := target * rejectionBudgetFactor
	if b < rejectionBudgetMin {
		return rejectionBudgetMin
	}
	return b
}
