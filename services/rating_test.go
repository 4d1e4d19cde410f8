package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpectedScore(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedScore(1500, 1500), 0.0001)
	assert.InDelta(t, 0.76, ExpectedScore(1600, 1400), 0.01)
	assert.InDelta(t, 1.0, ExpectedScore(1500, 1500)+ExpectedScore(1500, 1500), 0.0001)

	// Expected scores of two opponents always sum to 1.
	assert.InDelta(t, 1.0, ExpectedScore(1400, 1700)+ExpectedScore(1700, 1400), 0.0001)
}

func TestDeltaEqualRatings(t *testing.T) {
	assert.Equal(t, 16, Delta(1500, 1500, ScoreWin))
	assert.Equal(t, -16, Delta(1500, 1500, ScoreLoss))
	assert.Equal(t, 0, Delta(1500, 1500, ScoreDraw))
}

func TestDeltaUnderdog(t *testing.T) {
	underdogWin := Delta(1400, 1600, ScoreWin)
	favoriteLoss := Delta(1600, 1400, ScoreLoss)

	assert.Greater(t, underdogWin, 16, "underdog win should pay more than an even win")
	assert.Equal(t, -underdogWin, favoriteLoss)

	favoriteWin := Delta(1600, 1400, ScoreWin)
	assert.Less(t, favoriteWin, 16, "favorite win should pay less than an even win")
	assert.Greater(t, favoriteWin, 0)
}

func TestTeamDeltas(t *testing.T) {
	deltas := TeamDeltas([]int{1400, 1600}, 1500, ScoreWin)

	assert.Len(t, deltas, 2)
	assert.Greater(t, deltas[0], deltas[1], "lower rated teammate gains more")
	for _, d := range deltas {
		assert.Greater(t, d, 0)
	}
}

func TestSeasonID(t *testing.T) {
	assert.Equal(t, "2026-Q1", SeasonID(time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-Q2", SeasonID(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-Q3", SeasonID(time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-Q4", SeasonID(time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)))
}
