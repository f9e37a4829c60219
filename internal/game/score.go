package game

import "math"

// Award computes the points for a single answer. Incorrect or late
// answers earn nothing; a correct answer earns between half and full
// base points depending on how much of the time limit was left:
//
//	points = round(base * (0.5 + 0.5 * (limit-taken)/limit))
//
// An instant answer earns the full base value, an answer exactly at the
// deadline earns half.
func Award(basePoints, timeLimitMs, timeTakenMs int, correct bool) int {
	if !correct || timeLimitMs <= 0 || timeTakenMs > timeLimitMs {
		return 0
	}
	if timeTakenMs < 0 {
		timeTakenMs = 0
	}
	timeBonus := float64(timeLimitMs-timeTakenMs) / float64(timeLimitMs)
	return int(math.Round(float64(basePoints) * (0.5 + 0.5*timeBonus)))
}
