// services/deps.go - Injected side-channel dependencies
package services

import (
	"partyhub/bus"
)

// Broadcaster pushes events to every live socket in a party. Satisfied
// by *realtime.Hub; nil disables realtime fanout.
type Broadcaster interface {
	Broadcast(partyID, event string, data interface{})
	BroadcastExcept(partyID, excludePlayerID, event string, data interface{})
}

// QueuePublisher emits queue traffic to the matchmaker. Satisfied by
// *bus.Bus; nil means the bus is down and queue ops degrade to
// store-only updates.
type QueuePublisher interface {
	PublishQueueEnter(ev bus.QueueEnterEvent) error
	PublishQueueLeave(ev bus.QueueLeaveEvent) error
}

// Allocator reserves and releases game server capacity for matches.
type Allocator interface {
	Allocate(matchID, region, mode string) (endpoint string, err error)
	Deallocate(matchID string)
}
