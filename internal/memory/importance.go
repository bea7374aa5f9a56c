package memory

import (
	"context"
	"strings"
	"unicode"
)

// Importance bounds.
const (
	MinImportance     = 1
	MaxImportance     = 10
	DefaultImportance = 5
)

// ImportanceEstimator scores how much a memory matters, 1 to 10.
type ImportanceEstimator interface {
	EstimateImportance(ctx context.Context, content string) (int, error)
}

// HeuristicImportance is the keyword fallback used when no estimator is
// configured. Checks run in priority order.
func HeuristicImportance(content string) int {
	c := strings.ToLower(content)
	switch {
	case containsAny(c, "reflection", "insight", "summary"):
		return 8
	case strings.Contains(c, "mentor"):
		return 10
	case containsAny(c, "says:", "asked:", "said:"):
		return 6
	case strings.Contains(c, "observed:") || hasWord(c, "saw"):
		return 4
	}
	return DefaultImportance
}

// ClampImportance forces a score into [MinImportance, MaxImportance].
func ClampImportance(v int) int {
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasWord(s, word string) bool {
	for _, w := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if w == word {
			return true
		}
	}
	return false
}

type heuristicEstimator struct{}

func (heuristicEstimator) EstimateImportance(_ context.Context, content string) (int, error) {
	return HeuristicImportance(content), nil
}
