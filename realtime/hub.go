// realtime/hub.go - WebSocket broadcast hub keyed by party
package realtime

import (
	"log"
	"sync"
	"time"
)

const sendBufferSize = 256

// Conn is the subset of the websocket connection the hub needs. Tests
// substitute fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Envelope is the wire format for every server-pushed event.
type Envelope struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEnvelope stamps an event with the current UTC time.
func NewEnvelope(event string, data interface{}) Envelope {
	return Envelope{Event: event, Data: data, Timestamp: time.Now().UTC()}
}

// client pairs a connection with its send queue. The write pump is the
// only goroutine that ever writes the connection; everyone else
// enqueues. A full queue drops the message rather than block a party
// behind one slow socket.
type client struct {
	conn     Conn
	playerID string
	send     chan Envelope
	closed   bool
}

// Hub fans events out to the sockets subscribed to each party. A player
// has at most one socket per party; a fresh connection replaces any
// stale one registered under the same player.
type Hub struct {
	mu      sync.Mutex
	parties map[string]map[Conn]*client
}

func NewHub() *Hub {
	return &Hub{
		parties: make(map[string]map[Conn]*client),
	}
}

// Register subscribes a connection to a party's events and starts its
// write pump. An existing connection for the same player is dropped and
// replaced.
func (h *Hub) Register(partyID, playerID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.parties[partyID]
	if !ok {
		clients = make(map[Conn]*client)
		h.parties[partyID] = clients
	}

	for existing, cl := range clients {
		if cl.playerID == playerID && existing != conn {
			h.dropLocked(partyID, cl)
		}
	}

	cl := &client{
		conn:     conn,
		playerID: playerID,
		send:     make(chan Envelope, sendBufferSize),
	}
	clients[conn] = cl
	go h.writePump(partyID, cl)
}

// Unregister removes a connection and stops its write pump. Idempotent.
func (h *Hub) Unregister(partyID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.parties[partyID]
	if !ok {
		return
	}
	if cl, ok := clients[conn]; ok {
		h.dropLocked(partyID, cl)
	}
}

// dropLocked removes a client and closes its send queue, which ends the
// write pump. Caller holds h.mu.
func (h *Hub) dropLocked(partyID string, cl *client) {
	if cl.closed {
		return
	}
	cl.closed = true
	close(cl.send)

	clients := h.parties[partyID]
	delete(clients, cl.conn)
	if len(clients) == 0 {
		delete(h.parties, partyID)
	}
}

// writePump drains one client's queue onto the socket. On a write error
// the client is evicted and the rest of the queue discarded.
func (h *Hub) writePump(partyID string, cl *client) {
	defer cl.conn.Close()

	for envelope := range cl.send {
		if err := cl.conn.WriteJSON(envelope); err != nil {
			log.Printf("Dropping dead connection for player %s in party %s: %v", cl.playerID, partyID, err)
			h.Unregister(partyID, cl.conn)
			for range cl.send {
			}
			return
		}
	}
}

// enqueueLocked queues an envelope for one client, dropping it if the
// client's buffer is full. Caller holds h.mu, so the queue cannot close
// underneath the send.
func (h *Hub) enqueueLocked(cl *client, envelope Envelope) {
	select {
	case cl.send <- envelope:
	default:
		log.Printf("⚠️ Send buffer full for player %s, dropping event %s", cl.playerID, envelope.Event)
	}
}

// Send queues an event for a single connection, used for direct replies
// on the socket's own read loop.
func (h *Hub) Send(partyID string, conn Conn, event string, data interface{}) {
	envelope := NewEnvelope(event, data)

	h.mu.Lock()
	defer h.mu.Unlock()

	if cl, ok := h.parties[partyID][conn]; ok {
		h.enqueueLocked(cl, envelope)
	}
}

// Broadcast queues an event for every socket in the party.
func (h *Hub) Broadcast(partyID, event string, data interface{}) {
	h.broadcast(partyID, event, data, "")
}

// BroadcastExcept queues an event for everyone in the party except one
// player, used when the actor already got a direct HTTP response.
func (h *Hub) BroadcastExcept(partyID, excludePlayerID, event string, data interface{}) {
	h.broadcast(partyID, event, data, excludePlayerID)
}

func (h *Hub) broadcast(partyID, event string, data interface{}, exclude string) {
	envelope := NewEnvelope(event, data)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, cl := range h.parties[partyID] {
		if exclude != "" && cl.playerID == exclude {
			continue
		}
		h.enqueueLocked(cl, envelope)
	}
}

// ConnectionCount reports the live socket count for a party.
func (h *Hub) ConnectionCount(partyID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.parties[partyID])
}
