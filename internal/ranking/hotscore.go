// Package ranking provides the hot-score formula used for default comment
// ordering. The score is a pure function of likes, replies, and age, so
// orderings are deterministic and testable.
package ranking

import (
	"math"
	"time"
)

// Config holds the hot-score weights.
type Config struct {
	Gravity      float64 // time decay exponent
	WeightLike   float64
	WeightReply  float64
	ScaleFactor  float64
}

// DefaultConfig keeps scores in a human-readable 0-100 range with a decay
// that halves a typical comment's score within a day.
var DefaultConfig = Config{
	Gravity:     1.5,
	WeightLike:  1.0,
	WeightReply: 2.0,
	ScaleFactor: 100.0,
}

// HotScore computes log10(weighted engagement + 1) * scale / (ageHours + 2)^gravity.
// now is passed explicitly so orderings are reproducible in tests.
func HotScore(createdAt time.Time, likes, replies int, now time.Time) float64 {
	hours := now.Sub(createdAt).Hours()
	if hours < 0 {
		hours = 0
	}

	weightedSum := float64(likes)*DefaultConfig.WeightLike + float64(replies)*DefaultConfig.WeightReply
	if weightedSum < 0 {
		weightedSum = 0
	}

	numerator := math.Log10(weightedSum+1) * DefaultConfig.ScaleFactor
	decay := math.Pow(hours+2, DefaultConfig.Gravity)

	return numerator / decay
}
