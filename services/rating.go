// services/rating.go - Elo rating engine
package services

import (
	"fmt"
	"math"
	"time"
)

// DefaultKFactor is the adjustment scale applied to every rated match.
const DefaultKFactor = 32

// Actual score values for Delta.
const (
	ScoreWin  = 1.0
	ScoreDraw = 0.5
	ScoreLoss = 0.0
)

// ExpectedScore returns the probability of the rating-a side winning
// against the rating-b side under the Elo model.
func ExpectedScore(a, b int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(b-a)/400.0))
}

// Delta returns the signed rating adjustment for a player rated `rating`
// against an opponent rated `opponent`, given the actual score. The
// result is rounded to the nearest integer, so equal-rated players
// always move by a nonzero amount on a decisive result.
func Delta(rating, opponent int, actual float64) int {
	expected := ExpectedScore(rating, opponent)
	return int(math.Round(DefaultKFactor * (actual - expected)))
}

// TeamDeltas computes the per-player adjustment for one team against the
// opposing team's average rating. Each player is rated individually
// against that average, so a low-rated player on a winning team gains
// more than a high-rated teammate.
func TeamDeltas(ratings []int, opponentAvg int, actual float64) []int {
	deltas := make([]int, len(ratings))
	for i, r := range ratings {
		deltas[i] = Delta(r, opponentAvg, actual)
	}
	return deltas
}

// SeasonID returns the current season identifier, e.g. "2026-Q3".
// Leaderboard rows are partitioned by this value.
func SeasonID(now time.Time) string {
	quarter := (int(now.UTC().Month())-1)/3 + 1
	return fmt.Sprintf("%d-Q%d", now.UTC().Year(), quarter)
}
