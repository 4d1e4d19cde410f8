// handlers/session.go - Match session HTTP API
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"partyhub/middleware"
	"partyhub/services"
)

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type heartbeatRequest struct {
	ServerID      string `json:"server_id"`
	ActivePlayers int    `json:"active_players"`
}

// Get handles GET /v1/session/:match_id. Participants only.
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	playerID, err := middleware.GetPlayerID(c)
	if err != nil {
		return err
	}

	match, err := h.sessions.GetSession(c.Params("match_id"), playerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(match)
}

// Heartbeat handles POST /v1/session/:match_id/heartbeat, the game
// server liveness callback.
func (h *SessionHandler) Heartbeat(c *fiber.Ctx) error {
	var req heartbeatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ServerID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "server_id is required"})
	}

	matchID := c.Params("match_id")
	if err := h.sessions.Heartbeat(c.Context(), matchID, req.ServerID, req.ActivePlayers); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Heartbeat recorded", "match_id": matchID})
}

// Result handles POST /v1/session/:match_id/result, submitted once by
// the game server when the match ends.
func (h *SessionHandler) Result(c *fiber.Ctx) error {
	var req services.MatchResult
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	matchID := c.Params("match_id")
	if err := h.sessions.SubmitResult(c.Context(), matchID, req); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Result recorded", "match_id": matchID})
}
