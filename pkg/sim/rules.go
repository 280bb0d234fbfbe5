package sim

import (
	"log/slog"
)

// BaseScore sums the weight of each chosen label. idx holds the chosen choice
// index per variable.
func BaseScore(vars []Variable, idx []int) float64 {
	var score float64
	for i, v := range vars {
		score += v.Choices[idx[i]].Weight
	}
	return score
}

// ApplyRules applies every firing rule, in order, to the running score.
// A division by zero skips that rule step and is reported, as is an unknown
// operation; neither stops the evaluation. skipped counts the division skips.
func ApplyRules(labels LabelSet, base float64, rules []Rule) (score float64, skipped int) {
	score = base
	for _, r := range rules {
		if !labels.ContainsAll(r.Elements) {
			continue
		}

		switch r.Operation {
		case OperationAddition:
			score += r.Adjustment
		case OperationMultiplication:
			score *= r.Adjustment
		case OperationDivision:
			if r.Adjustment == 0 {
				slog.Warn("division by zero in rule, skipping", "rule", r.String())
				skipped++
				continue
			}
			score /= r.Adjustment
		default:
			slog.Warn("unknown rule operation, ignoring", "rule", r.String(), "operation", r.Operation)
		}
	}
	return score, skipped
}
