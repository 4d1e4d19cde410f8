// handlers/ws.go - Party WebSocket endpoint
package handlers

import (
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"partyhub/middleware"
	"partyhub/realtime"
	"partyhub/store"
)

type WSHandler struct {
	hub       *realtime.Hub
	store     *store.Store
	jwtSecret string
}

func NewWSHandler(hub *realtime.Hub, st *store.Store, jwtSecret string) *WSHandler {
	return &WSHandler{hub: hub, store: st, jwtSecret: jwtSecret}
}

// Upgrade authenticates the connection before the protocol switch. The
// token rides in the query string because browsers cannot set headers
// on WebSocket requests. Membership is checked against the store, not
// the cache.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	playerID, username, err := middleware.VerifyToken(h.jwtSecret, c.Query("token"))
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	partyID := c.Params("party_id")
	isMember, err := h.store.IsPartyMember(partyID, playerID)
	if err != nil {
		return fail(c, err)
	}
	if !isMember {
		return c.Status(403).JSON(fiber.Map{"error": "You are not in this party"})
	}

	c.Locals("playerId", playerID)
	c.Locals("username", username)
	return c.Next()
}

type clientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Serve runs one socket's read loop until the client disconnects. All
// writes, including direct replies, go through the hub's per-connection
// write pump; the read loop never touches the socket's write side.
func (h *WSHandler) Serve(conn *websocket.Conn) {
	partyID := conn.Params("party_id")
	playerID, _ := conn.Locals("playerId").(string)
	username, _ := conn.Locals("username").(string)

	h.hub.Register(partyID, playerID, conn)
	defer h.hub.Unregister(partyID, conn)

	h.hub.Send(partyID, conn, "connected", fiber.Map{
		"party_id":  partyID,
		"player_id": playerID,
		"username":  username,
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Unexpected close for player %s in party %s: %v", playerID, partyID, err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.hub.Send(partyID, conn, "error", fiber.Map{"message": "Invalid message"})
			continue
		}

		switch msg.Event {
		case "ping":
			h.hub.Send(partyID, conn, "pong", fiber.Map{})
		default:
			h.hub.Send(partyID, conn, "error", fiber.Map{
				"message": "Unknown event: " + msg.Event,
			})
		}
	}
}
