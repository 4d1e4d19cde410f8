// handlers/profile.go - Player profile HTTP API
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"partyhub/middleware"
	"partyhub/services"
)

type ProfileHandler struct {
	players *services.PlayerService
}

func NewProfileHandler(players *services.PlayerService) *ProfileHandler {
	return &ProfileHandler{players: players}
}

// Get handles GET /v1/profile/:player_id.
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	profile, err := h.players.GetProfile(c.Params("player_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(profile)
}

type updateProfileRequest struct {
	Region string `json:"region"`
}

// Update handles PATCH /v1/profile, region changes for the caller.
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	playerID, err := middleware.GetPlayerID(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	profile, err := h.players.UpdateRegion(playerID, req.Region)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(profile)
}

// History handles GET /v1/profile/:player_id/history.
func (h *ProfileHandler) History(c *fiber.Ctx) error {
	page, err := h.players.GetHistory(
		c.Params("player_id"),
		c.Query("mode"),
		c.QueryInt("limit", 20),
		c.QueryInt("offset", 0),
	)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(page)
}
