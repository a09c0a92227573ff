// Package score holds the popularity formula for tools.
//
// ONE DEFINITION, TWO CONSUMERS:
// The repository registers Calculate as the SQLite function tool_score, so the
// ORDER BY of a list query and the "score" field in its JSON come from the same
// Go code. Never re-type the formula in SQL.
package score

import "math"

// SQLFunction is the name Calculate is registered under in the database.
const SQLFunction = "tool_score"

const (
	StarsWeight = 0.8
	VotesWeight = 0.2
)

// Calculate returns round2(log10(stars+1)*0.8 + votes*0.2).
// A nil or negative star count counts as zero stars. Non-finite results become 0.
func Calculate(stars *int, votes int) float64 {
	s := 0
	if stars != nil && *stars > 0 {
		s = *stars
	}
	return calculate(float64(s), float64(votes))
}

func calculate(stars, votes float64) float64 {
	if stars < 0 || math.IsNaN(stars) {
		stars = 0
	}
	raw := math.Log10(stars+1)*StarsWeight + votes*VotesWeight
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	return math.Round(raw*100) / 100
}

// FromSQL is the scalar-function body. SQLite hands over int64, float64 or nil.
func FromSQL(stars, votes any) float64 {
	return calculate(toFloat(stars), toFloat(votes))
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
