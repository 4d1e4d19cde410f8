// handlers/party.go - Party HTTP API
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"partyhub/middleware"
	"partyhub/services"
)

type PartyHandler struct {
	parties *services.PartyService
}

func NewPartyHandler(parties *services.PartyService) *PartyHandler {
	return &PartyHandler{parties: parties}
}

type createPartyRequest struct {
	Region  string `json:"region"`
	MaxSize int    `json:"max_size"`
}

type queueRequest struct {
	Mode     string `json:"mode"`
	TeamSize int    `json:"team_size"`
}

// Create handles POST /v1/party.
func (h *PartyHandler) Create(c *fiber.Ctx) error {
	playerID, err := middleware.GetPlayerID(c)
	if err != nil {
		return err
	}

	var req createPartyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Region == "" {
		return c.Status(400).JSON(fiber.Map{"error": "region is required"})
	}

	view, err := h.parties.Create(c.Context(), playerID, req.Region, req.MaxSize)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(view)
}

// Get handles GET /v1/party/:party_id.
func (h *PartyHandler) Get(c *fiber.Ctx) error {
	view, err := h.parties.Get(c.Context(), c.Params("party_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(view)
}

// Join handles POST /v1/party/:party_id/join.
func (h *PartyHandler) Join(c *fiber.Ctx) error {
	playerID, err := middleware.GetPlayerID(c)
	if err != nil {
		return err
	}

	view, err := h.parties.Join(c.Context(), c.Params("party_id"), playerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(view)
}

// Leave handles POST /v1/party/:party_id/leave.
func (h *PartyHandler) Leave(c *fiber.Ctx) error {
	playerID, err := middleware.GetPlayerID(c)
	if err != nil {
		return err
	}

	partyID := c.Params("party_id")
	disbanded, err := h.parties.Leave(c.Context(), partyID, playerID)
	if err != nil {
		return fail(c, err)
	}

	message := "Left party successfully"
	if disbanded {
		message = "Party disbanded"
	}
	return c.JSON(fiber.Map{"message": message, "party_id": partyID})
}

// Ready handles POST /v1/party/:party_id/ready.
func (h *PartyHandler) Ready(c *fiber.Ctx) error {
	playerID, err := middleware.GetPlayerID(c)
	if err != nil {
		return err
	}

	result, err := h.parties.ToggleReady(c.Context(), c.Params("party_id"), playerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(result)
}

// Queue handles POST /v1/party/:party_id/queue.
func (h *PartyHandler) Queue(c *fiber.Ctx) error {
	playerID, err := middleware.GetPlayerID(c)
	if err != nil {
		return err
	}

	var req queueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	view, err := h.parties.EnterQueue(c.Context(), c.Params("party_id"), playerID, req.Mode, req.TeamSize)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(view)
}

// Unqueue handles POST /v1/party/:party_id/unqueue.
func (h *PartyHandler) Unqueue(c *fiber.Ctx) error {
	playerID, err := middleware.GetPlayerID(c)
	if err != nil {
		return err
	}

	view, err := h.parties.LeaveQueue(c.Context(), c.Params("party_id"), playerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(view)
}

// QueuePosition handles GET /v1/party/:party_id/queue.
func (h *PartyHandler) QueuePosition(c *fiber.Ctx) error {
	playerID, err := middleware.GetPlayerID(c)
	if err != nil {
		return err
	}

	status, err := h.parties.QueuePosition(c.Context(), c.Params("party_id"), playerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(status)
}
