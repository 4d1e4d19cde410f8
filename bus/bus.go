// bus/bus.go - NATS event bus for matchmaking traffic
package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects. Queue traffic is partitioned by mode and region so matchmaker
// workers can subscribe to exactly the pools they serve.
const (
	subjectQueuePrefix = "matchmaker.queue"
	SubjectMatchFound  = "match.found"
)

func queueSubject(mode, region string) string {
	return fmt.Sprintf("%s.%s.%s", subjectQueuePrefix, mode, region)
}

// QueueEnterEvent announces a party entering matchmaking.
type QueueEnterEvent struct {
	EventType string    `json:"event_type"`
	PartyID   string    `json:"party_id"`
	Region    string    `json:"region"`
	Mode      string    `json:"mode"`
	TeamSize  int       `json:"team_size"`
	AvgMMR    int       `json:"avg_mmr"`
	PlayerIDs []string  `json:"player_ids"`
	Timestamp time.Time `json:"timestamp"`
}

// QueueLeaveEvent announces a party withdrawing from matchmaking.
type QueueLeaveEvent struct {
	EventType string    `json:"event_type"`
	PartyID   string    `json:"party_id"`
	Region    string    `json:"region"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

// MatchFoundEvent is published by the matchmaker when it has assembled a
// match from queued parties.
type MatchFoundEvent struct {
	EventType    string     `json:"event_type"`
	MatchID      string     `json:"match_id"`
	Mode         string     `json:"mode"`
	Region       string     `json:"region"`
	AvgMMR       int        `json:"avg_mmr"`
	QualityScore float64    `json:"quality_score"`
	PartyIDs     []string   `json:"party_ids"`
	Teams        [][]string `json:"teams"`
	Timestamp    time.Time  `json:"timestamp"`
}

// Bus wraps the NATS connection. Publish failures are surfaced to the
// caller, which logs and continues: the bus is an availability-over-
// consistency dependency, same as the cache.
type Bus struct {
	nc *nats.Conn
}

// Connect dials NATS with bounded reconnect behavior.
func Connect(url string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("partyhub"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Bus{nc: nc}, nil
}

// New wraps an existing connection, used by tests running an embedded
// server.
func New(nc *nats.Conn) *Bus {
	return &Bus{nc: nc}
}

func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

func (b *Bus) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishQueueEnter emits a queue entry on matchmaker.queue.{mode}.{region}.
func (b *Bus) PublishQueueEnter(ev QueueEnterEvent) error {
	ev.EventType = "queue_enter"
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return b.publish(queueSubject(ev.Mode, ev.Region), ev)
}

// PublishQueueLeave emits a queue withdrawal on the same subject.
func (b *Bus) PublishQueueLeave(ev QueueLeaveEvent) error {
	ev.EventType = "queue_leave"
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return b.publish(queueSubject(ev.Mode, ev.Region), ev)
}

// PublishMatchFound emits a match assembly event. Exposed for the
// matchmaker side and for tests driving the consumer.
func (b *Bus) PublishMatchFound(ev MatchFoundEvent) error {
	ev.EventType = "match_found"
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return b.publish(SubjectMatchFound, ev)
}

// SubscribeMatchFound registers the match.found consumer. Malformed
// payloads are logged and dropped; handler errors are logged, leaving
// redelivery to the matchmaker's retry policy.
func (b *Bus) SubscribeMatchFound(handler func(MatchFoundEvent) error) (*nats.Subscription, error) {
	return b.nc.Subscribe(SubjectMatchFound, func(msg *nats.Msg) {
		var ev MatchFoundEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("Dropping malformed match.found payload: %v", err)
			return
		}
		if err := handler(ev); err != nil {
			log.Printf("Failed to process match %s: %v", ev.MatchID, err)
		}
	})
}

// Flush waits, with a bound, for buffered publishes to reach the server.
func (b *Bus) Flush() error {
	return b.nc.FlushTimeout(5 * time.Second)
}
