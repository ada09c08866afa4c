// Package compose rates a width/height pair for suitability as a headline
// image. Pure arithmetic; recomputed whenever needed, never persisted.
package compose

import "math"

// NeutralScore is used when dimensions are unknown: such candidates are not
// preferred, but not unconditionally excluded either.
const NeutralScore = 55

// Aspect ratios a headline placement works well with, best first. Landscape
// dominates; portrait is actively penalized.
var idealRatios = []struct {
	ratio float64
	score int
}{
	{16.0 / 9.0, 100},
	{3.0 / 2.0, 95},
	{4.0 / 3.0, 85},
	{1.0, 60},
	{2.0 / 3.0, 40},
	{9.0 / 16.0, 20},
}

const (
	extremeWide    = 3.0
	extremeTall    = 0.4
	extremePenalty = 30
)

// Score rates the pair on a 0-100 scale. Zero or negative dimensions count
// as unknown and return NeutralScore.
func Score(width, height int) int {
	if width <= 0 || height <= 0 {
		return NeutralScore
	}

	ratio := float64(width) / float64(height)

	best := idealRatios[0].score
	bestDist := math.Abs(ratio - idealRatios[0].ratio)
	for _, e := range idealRatios[1:] {
		if d := math.Abs(ratio - e.ratio); d < bestDist {
			bestDist = d
			best = e.score
		}
	}

	if ratio > extremeWide || ratio < extremeTall {
		best -= extremePenalty
	}
	if best < 0 {
		best = 0
	}
	return best
}
