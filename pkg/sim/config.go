package sim

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

const (
	// TopDefault is the number of combinations returned when none is configured.
	TopDefault = 5
	// PercentageDefault is the sampling percentage used when none is configured.
	PercentageDefault = 50.0
)

var (
	ErrNoVariables         = errors.New("at least one variable is required")
	ErrDuplicateLabel      = errors.New("duplicate label")
	ErrInvalidTop          = errors.New("top must not be negative")
	ErrInvalidPercentage   = errors.New("sampling percentage must not be negative")
	ErrInvalidRule         = errors.New("invalid rule")
	ErrInvalidWeight       = errors.New("invalid weight")
	ErrInvalidStrategy     = errors.New("invalid sampling strategy")
	ErrTooManyCombinations = errors.New("combination count overflows")
)

// Strategy selects how sampling mode draws distinct combinations.
type Strategy string

const (
	// StrategyRejection draws one label per variable uniformly and discards duplicates.
	StrategyRejection Strategy = "rejection"
	// StrategyPermutation takes a prefix of a random permutation of all combinations.
	StrategyPermutation Strategy = "permutation"
)

// Strategies lists the supported sampling strategies.
var Strategies = []Strategy{StrategyRejection, StrategyPermutation}

// Sampling configures random subset generation.
type Sampling struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Percentage float64  `json:"percentage" yaml:"percentage"`
	Strategy   Strategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	// Seed makes sampling reproducible. A nil seed uses a randomly seeded source.
	Seed *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Config is everything needed to construct a Simulator.
type Config struct {
	Variables []Variable `json:"variables" yaml:"variables"`
	Rules     []Rule     `json:"rules" yaml:"rules"`
	Top       int        `json:"top" yaml:"top"`
	Sampling  Sampling   `json:"sampling" yaml:"sampling"`
}

// Validate checks the structural constraints of the configuration.
func (c *Config) Validate() error {
	if c == nil || len(c.Variables) == 0 {
		return ErrNoVariables
	}

	for i, v := range c.Variables {
		seen := make(map[string]bool, len(v.Choices))
		for _, ch := range v.Choices {
			if seen[ch.Label] {
				return fmt.Errorf("variable %d (%s): %w: %q", i, v.Name, ErrDuplicateLabel, ch.Label)
			}
			seen[ch.Label] = true
			if math.IsNaN(ch.Weight) || math.IsInf(ch.Weight, 0) {
				return fmt.Errorf("variable %d (%s) label %q: %w: %v", i, v.Name, ch.Label, ErrInvalidWeight, ch.Weight)
			}
		}
	}

	for i, r := range c.Rules {
		if !r.Operation.Valid() {
			return fmt.Errorf("rule %d (%s): %w: unknown operation %q", i, r, ErrInvalidRule, r.Operation)
		}
		if math.IsNaN(r.Adjustment) || math.IsInf(r.Adjustment, 0) {
			return fmt.Errorf("rule %d (%s): %w: adjustment %v", i, r, ErrInvalidRule, r.Adjustment)
		}
	}

	if c.Top < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTop, c.Top)
	}

	if c.Sampling.Enabled {
		p := c.Sampling.Percentage
		// above 100 the target is capped at the total
		if math.IsNaN(p) || p < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidPercentage, p)
		}
		switch c.Sampling.Strategy {
		case "", StrategyRejection, StrategyPermutation:
		default:
			return fmt.Errorf("%w: %q", ErrInvalidStrategy, c.Sampling.Strategy)
		}
	}

	if _, err := TotalCombinations(c.Variables); err != nil {
		return err
	}

	return nil
}

// TotalCombinations returns the product of every variable's label count.
func TotalCombinations(vars []Variable) (uint64, error) {
	if len(vars) == 0 {
		return 0, nil
	}
	total := uint64(1)
	for _, v := range vars {
		hi, lo := bits.Mul64(total, uint64(len(v.Choices)))
		if hi != 0 {
			return 0, fmt.Errorf("%w: %d variables", ErrTooManyCombinations, len(vars))
		}
		total = lo
	}
	return total, nil
}

// SampleTarget is the number of distinct combinations sampling mode collects:
// floor(percentage/100 * total), capped at total.
func SampleTarget(percentage float64, total uint64) uint64 {
	if total == 0 || percentage <= 0 || math.IsNaN(percentage) {
		return 0
	}
	n := math.Floor(percentage / 100 * float64(total))
	if n >= float64(total) {
		return total
	}
	return uint64(n)
}
