package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	natsserver "github.com/nats-io/nats-server/v2/test"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	srv := natsserver.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	b, err := Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestQueueSubjects(t *testing.T) {
	assert.Equal(t, "matchmaker.queue.ranked_2v2.us-west", queueSubject("ranked_2v2", "us-west"))
	assert.Equal(t, "matchmaker.queue.casual.eu-west", queueSubject("casual", "eu-west"))
}

func TestPublishQueueEnter(t *testing.T) {
	b := newTestBus(t)

	received := make(chan QueueEnterEvent, 1)
	sub, err := b.nc.Subscribe("matchmaker.queue.ranked_1v1.us-west", func(msg *nats.Msg) {
		var ev QueueEnterEvent
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		received <- ev
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.PublishQueueEnter(QueueEnterEvent{
		PartyID:   "party-1",
		Region:    "us-west",
		Mode:      "ranked_1v1",
		TeamSize:  1,
		AvgMMR:    1500,
		PlayerIDs: []string{"p1"},
	}))
	require.NoError(t, b.Flush())

	select {
	case ev := <-received:
		assert.Equal(t, "queue_enter", ev.EventType)
		assert.Equal(t, "party-1", ev.PartyID)
		assert.Equal(t, 1500, ev.AvgMMR)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("queue enter event not delivered")
	}
}

func TestPublishQueueLeave(t *testing.T) {
	b := newTestBus(t)

	received := make(chan QueueLeaveEvent, 1)
	sub, err := b.nc.Subscribe("matchmaker.queue.casual.eu-west", func(msg *nats.Msg) {
		var ev QueueLeaveEvent
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		received <- ev
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.PublishQueueLeave(QueueLeaveEvent{
		PartyID: "party-1",
		Region:  "eu-west",
		Mode:    "casual",
	}))
	require.NoError(t, b.Flush())

	select {
	case ev := <-received:
		assert.Equal(t, "queue_leave", ev.EventType)
		assert.Equal(t, "party-1", ev.PartyID)
	case <-time.After(2 * time.Second):
		t.Fatal("queue leave event not delivered")
	}
}

func TestSubscribeMatchFound(t *testing.T) {
	b := newTestBus(t)

	received := make(chan MatchFoundEvent, 1)
	sub, err := b.SubscribeMatchFound(func(ev MatchFoundEvent) error {
		received <- ev
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.PublishMatchFound(MatchFoundEvent{
		MatchID:      "m-1",
		Mode:         "ranked_1v1",
		Region:       "us-west",
		AvgMMR:       1500,
		QualityScore: 0.9,
		PartyIDs:     []string{"party-1", "party-2"},
		Teams:        [][]string{{"p1"}, {"p2"}},
	}))
	require.NoError(t, b.Flush())

	select {
	case ev := <-received:
		assert.Equal(t, "m-1", ev.MatchID)
		assert.Equal(t, [][]string{{"p1"}, {"p2"}}, ev.Teams)
	case <-time.After(2 * time.Second):
		t.Fatal("match found event not delivered")
	}
}

func TestSubscribeMatchFoundDropsMalformed(t *testing.T) {
	b := newTestBus(t)

	received := make(chan MatchFoundEvent, 1)
	sub, err := b.SubscribeMatchFound(func(ev MatchFoundEvent) error {
		received <- ev
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.nc.Publish(SubjectMatchFound, []byte("{not json")))
	require.NoError(t, b.Flush())

	select {
	case <-received:
		t.Fatal("malformed payload should not reach the handler")
	case <-time.After(200 * time.Millisecond):
	}
}
