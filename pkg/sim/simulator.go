// Package sim scores combinations of weighted categorical variables, applies
// conditional adjustment rules and selects the highest scoring distinct
// combinations.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Simulator generates scored combinations and selects the top ones.
type Simulator struct {
	cfg Config
	gen *Generator
}

// Report is the outcome of a single run.
type Report struct {
	Top          []ScoredCombination `json:"top" yaml:"top"`
	Summary      Summary             `json:"summary" yaml:"summary"`
	Mode         Mode                `json:"mode" yaml:"mode"`
	Strategy     Strategy            `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Seed         uint64              `json:"seed,omitempty" yaml:"seed,omitempty"`
	Total        uint64              `json:"total" yaml:"total"`
	Evaluated    int                 `json:"evaluated" yaml:"evaluated"`
	SkippedRules int                 `json:"skipped_rules" yaml:"skipped_rules"`
	NonFinite    int                 `json:"non_finite,omitempty" yaml:"non_finite,omitempty"`
	Duration     string              `json:"duration" yaml:"duration"`
}

// New validates cfg and creates a simulator.
func New(cfg Config) (*Simulator, error) {
	gen, err := NewGenerator(&cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Simulator{cfg: cfg, gen: gen}, nil
}

// Config returns the effective configuration.
func (s *Simulator) Config() Config {
	return s.cfg
}

// Generate runs the generation phase only.
func (s *Simulator) Generate(ctx context.Context) (*ResultSet, error) {
	return s.gen.Generate(ctx)
}

// Run generates the result set and selects the top combinations from it.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	rs, err := s.gen.Generate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate combinations: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run interrupted before selection: %w", err)
	}

	r := &Report{
		Top:          TopK(rs.Results, s.cfg.Top),
		Summary:      Summarize(rs.Results),
		Mode:         rs.Mode,
		Strategy:     rs.Strategy,
		Total:        rs.Total,
		Evaluated:    len(rs.Results),
		SkippedRules: rs.SkippedRules,
	}
	if rs.Mode == ModeSampling {
		r.Seed = s.gen.Seed()
	}
	r.Duration = time.Since(start).String()

	for _, sc := range rs.Results {
		if !IsFinite(sc.Score) {
			r.NonFinite++
		}
	}

	if rs.SkippedRules > 0 {
		slog.Warn("rule steps skipped due to division by zero", "count", rs.SkippedRules)
	}
	if r.NonFinite > 0 {
		slog.Warn("scores overflowed to infinity or NaN", "count", r.NonFinite)
	}
	slog.Debug("run complete",
		"mode", r.Mode,
		"evaluated", r.Evaluated,
		"total", r.Total,
		"top", len(r.Top),
		"duration", r.Duration)

	return r, nil
}
