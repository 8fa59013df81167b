package moderation

import (
	"context"
	"strings"
	"unicode"
)

// Classifier scores a body for abuse/spam likelihood in [0, 1]. Higher is
// worse. Implementations may call out to a model service; the pipeline wraps
// every call in a timeout and treats errors as unavailability.
type Classifier interface {
	Score(ctx context.Context, body string) (float64, error)
}

// HeuristicClassifier is the default in-process classifier: a deterministic
// score built from shouting, link spam, and character repetition signals.
type HeuristicClassifier struct{}

func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// Score implements Classifier.
func (h *HeuristicClassifier) Score(_ context.Context, body string) (float64, error) {
	if body == "" {
		return 0, nil
	}

	score := 0.0

	if ratio := upperRatio(body); ratio > 0.7 && len(body) > 12 {
		score += 0.35
	}

	switch links := strings.Count(strings.ToLower(body), "http://") + strings.Count(strings.ToLower(body), "https://"); {
	case links >= 4:
		score += 0.5
	case links >= 2:
		score += 0.25
	}

	if longestRun(body) >= 8 {
		score += 0.3
	}

	if bangs := strings.Count(body, "!"); bangs >= 6 {
		score += 0.2
	}

	if score > 1 {
		score = 1
	}
	return score, nil
}

func upperRatio(s string) float64 {
	var letters, uppers int
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(uppers) / float64(letters)
}

func longestRun(s string) int {
	var best, run int
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
		prev = r
	}
	return best
}
