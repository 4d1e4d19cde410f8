package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partyhub/apperr"
	"partyhub/models"
)

func TestCreateParty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leader := env.seedPlayer(t, "alice", 1500)

	view, err := env.parties.Create(ctx, leader.ID, "us-west", 0)
	require.NoError(t, err)

	assert.Equal(t, leader.ID, view.LeaderID)
	assert.Equal(t, models.PartyStatusIdle, view.Status)
	assert.Equal(t, 1, view.Size)
	assert.Equal(t, DefaultMaxPartySize, view.MaxSize)
	require.Len(t, view.Members, 1)
	assert.True(t, view.Members[0].Ready, "leader is auto-ready")

	// Second create while still in a party is rejected.
	_, err = env.parties.Create(ctx, leader.ID, "us-west", 0)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestJoinParty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leader := env.seedPlayer(t, "alice", 1500)
	joiner := env.seedPlayer(t, "bob", 1400)

	party, err := env.parties.Create(ctx, leader.ID, "us-west", 2)
	require.NoError(t, err)

	view, err := env.parties.Join(ctx, party.ID, joiner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Size)
	require.Len(t, view.Members, 2)
	assert.False(t, view.Members[1].Ready, "joiner starts not ready")

	assert.Contains(t, env.hub.eventsFor(party.ID), "member_joined")

	// Party is now full.
	third := env.seedPlayer(t, "carol", 1450)
	_, err = env.parties.Join(ctx, party.ID, third.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// Joining a second party while in one is rejected.
	other, err := env.parties.Create(ctx, third.ID, "us-west", 0)
	require.NoError(t, err)
	_, err = env.parties.Join(ctx, other.ID, joiner.ID)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

// Concurrent joins against one party must never push size past
// max_size or produce duplicate membership rows.
func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leader := env.seedPlayer(t, "alice", 1500)

	party, err := env.parties.Create(ctx, leader.ID, "us-west", 3)
	require.NoError(t, err)

	joiners := make([]models.Player, 6)
	for i := range joiners {
		joiners[i] = env.seedPlayer(t, fmt.Sprintf("player%d", i), 1500)
	}

	errs := make(chan error, len(joiners))
	var wg sync.WaitGroup
	for _, p := range joiners {
		wg.Add(1)
		go func(playerID string) {
			defer wg.Done()
			_, err := env.parties.Join(ctx, party.ID, playerID)
			errs <- err
		}(p.ID)
	}
	wg.Wait()
	close(errs)

	succeeded, rejected := 0, 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		rejected++
	}
	assert.Equal(t, 2, succeeded, "exactly the free slots are won")
	assert.Equal(t, 4, rejected)

	view, err := env.parties.Get(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Size)
	assert.Len(t, view.Members, 3)

	var count int64
	require.NoError(t, env.db.Model(&models.PartyMember{}).Where("party_id = ?", party.ID).Count(&count).Error)
	assert.EqualValues(t, 3, count, "no duplicate membership rows")
}

func TestConcurrentDuplicateJoin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leader := env.seedPlayer(t, "alice", 1500)
	joiner := env.seedPlayer(t, "bob", 1500)

	party, err := env.parties.Create(ctx, leader.ID, "us-west", 5)
	require.NoError(t, err)

	errs := make(chan error, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.parties.Join(ctx, party.ID, joiner.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		}
	}
	assert.Equal(t, 1, succeeded, "the same player joins at most once")

	var count int64
	require.NoError(t, env.db.Model(&models.PartyMember{}).
		Where("party_id = ? AND player_id = ?", party.ID, joiner.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestJoinUnknownParty(t *testing.T) {
	env := newTestEnv(t)
	player := env.seedPlayer(t, "alice", 1500)

	_, err := env.parties.Join(context.Background(), "no-such-party", player.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestLeaveParty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leader := env.seedPlayer(t, "alice", 1500)
	member := env.seedPlayer(t, "bob", 1400)

	party, err := env.parties.Create(ctx, leader.ID, "us-west", 0)
	require.NoError(t, err)
	_, err = env.parties.Join(ctx, party.ID, member.ID)
	require.NoError(t, err)

	disbanded, err := env.parties.Leave(ctx, party.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, disbanded)

	view, err := env.parties.Get(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Size)

	// Leaving twice fails.
	_, err = env.parties.Leave(ctx, party.ID, member.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestLeaderLeaveDisbands(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leader := env.seedPlayer(t, "alice", 1500)
	member := env.seedPlayer(t, "bob", 1400)

	party, err := env.parties.Create(ctx, leader.ID, "us-west", 0)
	require.NoError(t, err)
	_, err = env.parties.Join(ctx, party.ID, member.ID)
	require.NoError(t, err)

	disbanded, err := env.parties.Leave(ctx, party.ID, leader.ID)
	require.NoError(t, err)
	assert.True(t, disbanded, "leader leaving always disbands, never transfers leadership")

	var p models.Party
	require.NoError(t, env.db.First(&p, "id = ?", party.ID).Error)
	assert.Equal(t, models.PartyStatusDisbanded, p.Status)

	// No membership rows survive a disband, so both players are free.
	var count int64
	require.NoError(t, env.db.Model(&models.PartyMember{}).Where("party_id = ?", party.ID).Count(&count).Error)
	assert.Zero(t, count)

	_, err = env.parties.Create(ctx, member.ID, "us-west", 0)
	assert.NoError(t, err)
}

func TestToggleReady(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leader := env.seedPlayer(t, "alice", 1500)
	member := env.seedPlayer(t, "bob", 1400)

	party, err := env.parties.Create(ctx, leader.ID, "us-west", 0)
	require.NoError(t, err)
	_, err = env.parties.Join(ctx, party.ID, member.ID)
	require.NoError(t, err)

	result, err := env.parties.ToggleReady(ctx, party.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ReadyCount)
	assert.Equal(t, 2, result.TotalCount)
	assert.True(t, result.AllReady)
	assert.Empty(t, result.NotReadyPlayers)

	// Toggling again flips back.
	result, err = env.parties.ToggleReady(ctx, party.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, result.AllReady)
	assert.Equal(t, []string{"bob"}, result.NotReadyPlayers)

	// Non-members cannot toggle.
	stranger := env.seedPlayer(t, "carol", 1450)
	_, err = env.parties.ToggleReady(ctx, party.ID, stranger.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestEnterQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leader := env.seedPlayer(t, "alice", 1600)
	member := env.seedPlayer(t, "bob", 1400)

	party, err := env.parties.Create(ctx, leader.ID, "us-west", 0)
	require.NoError(t, err)
	_, err = env.parties.Join(ctx, party.ID, member.ID)
	require.NoError(t, err)

	// Not all members are ready yet.
	_, err = env.parties.EnterQueue(ctx, party.ID, leader.ID, "ranked_2v2", 2)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = env.parties.ToggleReady(ctx, party.ID, member.ID)
	require.NoError(t, err)

	// Only the leader can queue.
	_, err = env.parties.EnterQueue(ctx, party.ID, member.ID, "ranked_2v2", 2)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	view, err := env.parties.EnterQueue(ctx, party.ID, leader.ID, "ranked_2v2", 2)
	require.NoError(t, err)
	assert.Equal(t, models.PartyStatusQueueing, view.Status)
	require.NotNil(t, view.AvgMMR)
	assert.Equal(t, 1500, *view.AvgMMR)

	require.Len(t, env.queue.enters, 1)
	ev := env.queue.enters[0]
	assert.Equal(t, party.ID, ev.PartyID)
	assert.Equal(t, "ranked_2v2", ev.Mode)
	assert.Equal(t, 1500, ev.AvgMMR)
	assert.ElementsMatch(t, []string{leader.ID, member.ID}, ev.PlayerIDs)

	assert.Contains(t, env.hub.eventsFor(party.ID), "queue_entered")

	// Re-queueing a queueing party is rejected.
	_, err = env.parties.EnterQueue(ctx, party.ID, leader.ID, "ranked_2v2", 2)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestLeaveQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leader := env.seedPlayer(t, "alice", 1500)

	party, err := env.parties.Create(ctx, leader.ID, "us-west", 0)
	require.NoError(t, err)

	// Not queueing yet.
	_, err = env.parties.LeaveQueue(ctx, party.ID, leader.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	_, err = env.parties.EnterQueue(ctx, party.ID, leader.ID, "ranked_1v1", 1)
	require.NoError(t, err)

	view, err := env.parties.LeaveQueue(ctx, party.ID, leader.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PartyStatusIdle, view.Status)
	assert.Nil(t, view.QueueMode)
	assert.Nil(t, view.AvgMMR)

	require.Len(t, env.queue.leaves, 1)
	assert.Equal(t, "ranked_1v1", env.queue.leaves[0].Mode)
	assert.Contains(t, env.hub.eventsFor(party.ID), "queue_left")
}

func TestQueuePosition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leader := env.seedPlayer(t, "alice", 1500)
	stranger := env.seedPlayer(t, "bob", 1500)

	party, err := env.parties.Create(ctx, leader.ID, "us-west", 0)
	require.NoError(t, err)

	_, err = env.parties.QueuePosition(ctx, party.ID, stranger.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = env.parties.EnterQueue(ctx, party.ID, leader.ID, "ranked_1v1", 1)
	require.NoError(t, err)

	status, err := env.parties.QueuePosition(ctx, party.ID, leader.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, status.Position, "no position reported yet")

	env.cache.CacheQueuePosition(ctx, party.ID, 3)
	status, err = env.parties.QueuePosition(ctx, party.ID, leader.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Position)
}

func TestExpireQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	leader := env.seedPlayer(t, "alice", 1500)

	party, err := env.parties.Create(ctx, leader.ID, "us-west", 0)
	require.NoError(t, err)
	_, err = env.parties.EnterQueue(ctx, party.ID, leader.ID, "ranked_1v1", 1)
	require.NoError(t, err)

	require.NoError(t, env.parties.ExpireQueue(ctx, party.ID))

	view, err := env.parties.Get(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PartyStatusIdle, view.Status)
	require.Len(t, env.queue.leaves, 1)

	// Second expiry is an invalid-state error the watchdog ignores.
	err = env.parties.ExpireQueue(ctx, party.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}
