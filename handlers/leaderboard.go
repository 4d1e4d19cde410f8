// handlers/leaderboard.go - Season leaderboard HTTP API
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"partyhub/services"
)

type LeaderboardHandler struct {
	players *services.PlayerService
}

func NewLeaderboardHandler(players *services.PlayerService) *LeaderboardHandler {
	return &LeaderboardHandler{players: players}
}

// Get handles GET /v1/leaderboard/:season? — the path season wins over
// the query parameter; both empty means the current season.
func (h *LeaderboardHandler) Get(c *fiber.Ctx) error {
	season := c.Params("season")
	if season == "" {
		season = c.Query("season")
	}

	page, err := h.players.GetLeaderboard(
		season,
		c.QueryInt("limit", 20),
		c.QueryInt("offset", 0),
	)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(page)
}
