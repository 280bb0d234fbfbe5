package config

// Example returns the month/activity/weather definition used to demo the engine.
func Example() *Definition {
	top := 5
	pct := 50.0
	return &Definition{
		Name: "vacation",
		Top:  &top,
		Sampling: Sampling{
			Enabled:    true,
			Percentage: &pct,
		},
		Variables: []Variable{
			{Name: "month", Choices: Choices{{"May", 1}, {"June", 2}, {"July", 3}}},
			{Name: "activity", Choices: Choices{{"vacation", 10}, {"work", -1}}},
			{Name: "weather", Choices: Choices{{"sun", 5}, {"rain", -2}}},
		},
		Rules: []Rule{
			{Name: "penalty", Elements: []string{"May", "vacation"}, Operation: "addition", Adjustment: -2},
			{Name: "bonus", Elements: []string{"July", "sun"}, Operation: "addition", Adjustment: 3},
			{Name: "multiplication", Elements: []string{"June", "rain"}, Operation: "multiplication", Adjustment: 0.5},
			{Name: "division", Elements: []string{"July", "work"}, Operation: "division", Adjustment: 2},
		},
	}
}
