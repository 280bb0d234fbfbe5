package sim

import (
	"strconv"
	"strings"
)

// Operation is the arithmetic a rule applies to the running score.
type Operation string

const (
	OperationAddition       Operation = "addition"
	OperationMultiplication Operation = "multiplication"
	OperationDivision       Operation = "division"
)

// Operations lists the supported rule operations.
var Operations = []Operation{
	OperationAddition,
	OperationMultiplication,
	OperationDivision,
}

// Valid reports whether o is one of the supported operations.
func (o Operation) Valid() bool {
	switch o {
	case OperationAddition, OperationMultiplication, OperationDivision:
		return true
	default:
		return false
	}
}

// Choice is a single label of a variable and the weight it contributes to the base score.
type Choice struct {
	Label  string  `json:"label" yaml:"label"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Variable is a named categorical dimension. Choices keep their declaration
// order, which drives the order of exhaustive generation.
type Variable struct {
	Name    string   `json:"name" yaml:"name"`
	Choices []Choice `json:"choices" yaml:"choices"`
}

// Labels returns the variable labels in declaration order.
func (v Variable) Labels() []string {
	list := make([]string, 0, len(v.Choices))
	for _, c := range v.Choices {
		list = append(list, c.Label)
	}
	return list
}

// Rule adjusts the score of every combination containing all of its elements.
type Rule struct {
	Name       string    `json:"name,omitempty" yaml:"name,omitempty"`
	Elements   []string  `json:"elements" yaml:"elements"`
	Operation  Operation `json:"operation" yaml:"operation"`
	Adjustment float64   `json:"adjustment" yaml:"adjustment"`
}

func (r Rule) String() string {
	name := r.Name
	if name == "" {
		name = string(r.Operation)
	}
	return name + "(" + strings.Join(r.Elements, ", ") + ")"
}

// Combination holds one label per variable, in variable order.
type Combination []string

// Key returns a string that is equal for two combinations iff their label tuples are equal.
func (c Combination) Key() string {
	var b strings.Builder
	for _, l := range c {
		b.WriteString(strconv.Itoa(len(l)))
		b.WriteByte(':')
		b.WriteString(l)
	}
	return b.String()
}

// Equal reports whether both combinations hold the same labels in the same positions.
func (c Combination) Equal(o Combination) bool {
	if len(c) != len(o) {
		return false
	}
	for i := range c {
		if c[i] != o[i] {
			return false
		}
	}
	return true
}

func (c Combination) String() string {
	return "(" + strings.Join(c, ", ") + ")"
}

// LabelSet is the order-free view of a combination used for rule matching.
type LabelSet map[string]struct{}

// NewLabelSet builds the label set of c.
func NewLabelSet(c Combination) LabelSet {
	s := make(LabelSet, len(c))
	for _, l := range c {
		s[l] = struct{}{}
	}
	return s
}

// ContainsAll reports whether every element is in the set. An empty element list is always contained.
func (s LabelSet) ContainsAll(elements []string) bool {
	for _, e := range elements {
		if _, ok := s[e]; !ok {
			return false
		}
	}
	return true
}

// ScoredCombination is a combination with its final score.
type ScoredCombination struct {
	Combination Combination `json:"combination" yaml:"combination"`
	Score       float64     `json:"score" yaml:"score"`
}

// Mode is how a result set was produced.
type Mode string

const (
	ModeExhaustive Mode = "exhaustive"
	ModeSampling   Mode = "sampling"
)

// ResultSet is the generator output in production order. It is not deduplicated.
type ResultSet struct {
	Results      []ScoredCombination
	Mode         Mode
	Strategy     Strategy
	Total        uint64
	Target       uint64
	SkippedRules int
}
