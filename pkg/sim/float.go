package sim

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// JSONFloat is a float64 that survives JSON encoding when it is not finite.
// NaN and infinities are written as the strings "NaN", "+Inf" and "-Inf".
type JSONFloat float64

func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *JSONFloat) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", s, err)
		}
		*f = JSONFloat(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = JSONFloat(v)
	return nil
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (s ScoredCombination) MarshalJSON() ([]byte, error) {
	type plain ScoredCombination
	return json.Marshal(struct {
		plain
		Score JSONFloat `json:"score"`
	}{plain(s), JSONFloat(s.Score)})
}

func (s *ScoredCombination) UnmarshalJSON(b []byte) error {
	type plain ScoredCombination
	aux := struct {
		*plain
		Score JSONFloat `json:"score"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s.Score = float64(aux.Score)
	return nil
}

func (s Summary) MarshalJSON() ([]byte, error) {
	type plain Summary
	return json.Marshal(struct {
		plain
		Min    JSONFloat `json:"min"`
		Max    JSONFloat `json:"max"`
		Mean   JSONFloat `json:"mean"`
		StdDev JSONFloat `json:"stddev"`
	}{plain(s), JSONFloat(s.Min), JSONFloat(s.Max), JSONFloat(s.Mean), JSONFloat(s.StdDev)})
}

func (s *Summary) UnmarshalJSON(b []byte) error {
	type plain Summary
	aux := struct {
		*plain
		Min    JSONFloat `json:"min"`
		Max    JSONFloat `json:"max"`
		Mean   JSONFloat `json:"mean"`
		StdDev JSONFloat `json:"stddev"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s.Min, s.Max = float64(aux.Min), float64(aux.Max)
	s.Mean, s.StdDev = float64(aux.Mean), float64(aux.StdDev)
	return nil
}

func (f TopFrequency) MarshalJSON() ([]byte, error) {
	type plain TopFrequency
	return json.Marshal(struct {
		plain
		Score JSONFloat `json:"score"`
	}{plain(f), JSONFloat(f.Score)})
}

func (f *TopFrequency) UnmarshalJSON(b []byte) error {
	type plain TopFrequency
	aux := struct {
		*plain
		Score JSONFloat `json:"score"`
	}{plain: (*plain)(f)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	f.Score = float64(aux.Score)
	return nil
}

func (r TrialReport) MarshalJSON() ([]byte, error) {
	type plain TrialReport
	return json.Marshal(struct {
		plain
		BestScoreMean JSONFloat `json:"best_score_mean"`
		BestScoreStd  JSONFloat `json:"best_score_stddev"`
	}{plain(r), JSONFloat(r.BestScoreMean), JSONFloat(r.BestScoreStd)})
}

func (r *TrialReport) UnmarshalJSON(b []byte) error {
	type plain TrialReport
	aux := struct {
		*plain
		BestScoreMean JSONFloat `json:"best_score_mean"`
		BestScoreStd  JSONFloat `json:"best_score_stddev"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.BestScoreMean, r.BestScoreStd = float64(aux.BestScoreMean), float64(aux.BestScoreStd)
	return nil
}
