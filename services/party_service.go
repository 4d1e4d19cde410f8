// services/party_service.go - Party lifecycle and matchmaking queue entry
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"partyhub/apperr"
	"partyhub/bus"
	"partyhub/cache"
	"partyhub/models"
	"partyhub/store"
)

const (
	DefaultMaxPartySize = 5
	MaxPartySizeLimit   = 10
)

// PartyService owns party membership, ready checks, and queue entry.
// Every mutation commits to the store first; cache, bus, and socket
// traffic happen after commit and never fail the operation.
type PartyService struct {
	store *store.Store
	cache *cache.Cache
	hub   Broadcaster
	queue QueuePublisher

	readyCheckWindow time.Duration
}

func NewPartyService(st *store.Store, c *cache.Cache, hub Broadcaster, queue QueuePublisher, readyCheckWindow time.Duration) *PartyService {
	if readyCheckWindow <= 0 {
		readyCheckWindow = cache.ReadyCheckTTL
	}
	return &PartyService{
		store:            st,
		cache:            c,
		hub:              hub,
		queue:            queue,
		readyCheckWindow: readyCheckWindow,
	}
}

// Create makes a new party with the caller as leader. The leader is
// auto-ready; a player already in a party cannot create another.
func (s *PartyService) Create(ctx context.Context, leaderID, region string, maxSize int) (*models.PartyView, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxPartySize
	}
	if maxSize > MaxPartySizeLimit {
		return nil, apperr.InvalidState("max_size cannot exceed %d", MaxPartySizeLimit)
	}

	existing, err := s.store.MemberPartyID(leaderID)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, apperr.Conflict("Player is already in a party")
	}

	partyID := uuid.New().String()
	err = s.store.Transaction(func(tx *gorm.DB) error {
		party := models.Party{
			ID:       partyID,
			LeaderID: leaderID,
			Region:   region,
			Size:     1,
			MaxSize:  maxSize,
			Status:   models.PartyStatusIdle,
		}
		if err := tx.Create(&party).Error; err != nil {
			return err
		}

		member := models.PartyMember{
			PartyID:  partyID,
			PlayerID: leaderID,
			Ready:    true,
			JoinedAt: time.Now().UTC(),
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		return nil, err
	}

	view, err := s.refreshView(ctx, partyID)
	if err != nil {
		return nil, err
	}
	s.cache.TrackPlayerSession(ctx, leaderID, partyID, cache.PlayerSessionTTL)

	log.Printf("Party %s created by %s in %s", partyID, leaderID, region)
	return view, nil
}

// Get returns the party view, cache first.
func (s *PartyService) Get(ctx context.Context, partyID string) (*models.PartyView, error) {
	if view := s.cache.GetPartyView(ctx, partyID); view != nil {
		return view, nil
	}
	return s.refreshView(ctx, partyID)
}

// Join adds a player to a joinable party.
func (s *PartyService) Join(ctx context.Context, partyID, playerID string) (*models.PartyView, error) {
	existing, err := s.store.MemberPartyID(playerID)
	if err != nil {
		return nil, err
	}
	if existing != "" {
		return nil, apperr.Conflict("Player is already in a party")
	}

	var username string
	err = s.store.WithPartyLock(partyID, func(tx *gorm.DB, party *models.Party) error {
		if !party.Joinable() {
			return apperr.InvalidState("Party is %s and cannot be joined", party.Status)
		}
		if party.Size >= party.MaxSize {
			return apperr.Conflict("Party is full")
		}

		var player models.Player
		if err := tx.First(&player, "id = ?", playerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Player not found")
			}
			return err
		}
		username = player.Username

		member := models.PartyMember{
			PartyID:  partyID,
			PlayerID: playerID,
			Ready:    false,
			JoinedAt: time.Now().UTC(),
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		return tx.Model(party).Update("size", party.Size+1).Error
	})
	if err != nil {
		return nil, err
	}

	view, err := s.refreshView(ctx, partyID)
	if err != nil {
		return nil, err
	}
	s.cache.TrackPlayerSession(ctx, playerID, partyID, cache.PlayerSessionTTL)
	if s.hub != nil {
		s.hub.Broadcast(partyID, "member_joined", map[string]interface{}{
			"player_id": playerID,
			"username":  username,
		})
	}
	return view, nil
}

// Leave removes a player. The leader leaving, or the last member
// leaving, disbands the party entirely; disbanding deletes every
// remaining membership row so no player stays bound to a dead party.
func (s *PartyService) Leave(ctx context.Context, partyID, playerID string) (disbanded bool, err error) {
	var remaining []string
	err = s.store.WithPartyLock(partyID, func(tx *gorm.DB, party *models.Party) error {
		var member models.PartyMember
		if err := tx.First(&member, "party_id = ? AND player_id = ?", partyID, playerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Player is not in this party")
			}
			return err
		}

		if err := tx.Delete(&models.PartyMember{}, "party_id = ? AND player_id = ?", partyID, playerID).Error; err != nil {
			return err
		}

		if party.LeaderID == playerID || party.Size <= 1 {
			disbanded = true

			var members []models.PartyMember
			if err := tx.Where("party_id = ?", partyID).Find(&members).Error; err != nil {
				return err
			}
			for _, m := range members {
				remaining = append(remaining, m.PlayerID)
			}
			if err := tx.Delete(&models.PartyMember{}, "party_id = ?", partyID).Error; err != nil {
				return err
			}

			return tx.Model(party).Updates(map[string]interface{}{
				"status": models.PartyStatusDisbanded,
				"size":   0,
			}).Error
		}

		return tx.Model(party).Update("size", party.Size-1).Error
	})
	if err != nil {
		return false, err
	}

	s.cache.ClearPlayerSession(ctx, playerID)
	if disbanded {
		for _, pid := range remaining {
			s.cache.ClearPlayerSession(ctx, pid)
		}
		s.cache.InvalidatePartyView(ctx, partyID)
		s.cache.ClearReadyCheckTimer(ctx, partyID)
		if s.hub != nil {
			s.hub.Broadcast(partyID, "party_updated", map[string]interface{}{
				"party_id": partyID,
				"status":   models.PartyStatusDisbanded,
			})
		}
		log.Printf("Party %s disbanded", partyID)
		return true, nil
	}

	if _, err := s.refreshView(ctx, partyID); err != nil {
		log.Printf("Failed to refresh party view %s: %v", partyID, err)
	}
	if s.hub != nil {
		s.hub.Broadcast(partyID, "member_left", map[string]interface{}{
			"player_id": playerID,
		})
	}
	return false, nil
}

// ToggleReady flips the caller's ready flag and returns the party's
// ready aggregate.
func (s *PartyService) ToggleReady(ctx context.Context, partyID, playerID string) (*models.ReadyCheckResult, error) {
	var (
		result   models.ReadyCheckResult
		nowReady bool
		username string
	)

	err := s.store.WithPartyLock(partyID, func(tx *gorm.DB, party *models.Party) error {
		var member models.PartyMember
		if err := tx.First(&member, "party_id = ? AND player_id = ?", partyID, playerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Player is not in this party")
			}
			return err
		}

		nowReady = !member.Ready
		if err := tx.Model(&member).Update("ready", nowReady).Error; err != nil {
			return err
		}

		var members []models.PartyMember
		if err := tx.Preload("Player").Where("party_id = ?", partyID).Find(&members).Error; err != nil {
			return err
		}

		result = models.ReadyCheckResult{PartyID: partyID, TotalCount: len(members)}
		for _, m := range members {
			name := m.PlayerID
			if m.Player != nil {
				name = m.Player.Username
			}
			if m.PlayerID == playerID {
				username = name
			}
			if m.Ready {
				result.ReadyCount++
			} else {
				result.NotReadyPlayers = append(result.NotReadyPlayers, name)
			}
		}
		result.AllReady = result.ReadyCount == result.TotalCount
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.refreshView(ctx, partyID); err != nil {
		log.Printf("Failed to refresh party view %s: %v", partyID, err)
	}
	if s.hub != nil {
		s.hub.Broadcast(partyID, "member_ready", map[string]interface{}{
			"player_id": playerID,
			"username":  username,
			"ready":     nowReady,
		})
	}
	return &result, nil
}

// EnterQueue moves an idle party into matchmaking. Leader only; every
// member must be ready. The queue event reaching the matchmaker is
// best effort, the committed queueing status is what the watchdog
// reconciles against.
func (s *PartyService) EnterQueue(ctx context.Context, partyID, playerID, mode string, teamSize int) (*models.PartyView, error) {
	if mode == "" {
		return nil, apperr.InvalidState("Queue mode is required")
	}
	if teamSize < 1 {
		return nil, apperr.InvalidState("team_size must be at least 1")
	}

	var (
		region    string
		avgMMR    int
		playerIDs []string
	)

	err := s.store.WithPartyLock(partyID, func(tx *gorm.DB, party *models.Party) error {
		if party.LeaderID != playerID {
			return apperr.Forbidden("Only party leader can queue")
		}
		if party.Status != models.PartyStatusIdle {
			return apperr.InvalidState("Party is %s and cannot queue", party.Status)
		}

		var members []models.PartyMember
		if err := tx.Preload("Player").Where("party_id = ?", partyID).Find(&members).Error; err != nil {
			return err
		}
		for _, m := range members {
			if !m.Ready {
				return apperr.InvalidState("All members must be ready before queueing")
			}
		}

		sum := 0
		for _, m := range members {
			playerIDs = append(playerIDs, m.PlayerID)
			if m.Player != nil {
				sum += m.Player.MMR
			} else {
				sum += models.BaseMMR
			}
		}
		avgMMR = sum / len(members)
		region = party.Region

		return tx.Model(party).Updates(map[string]interface{}{
			"status":     models.PartyStatusQueueing,
			"queue_mode": mode,
			"team_size":  teamSize,
			"avg_mmr":    avgMMR,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if s.queue != nil {
		if err := s.queue.PublishQueueEnter(bus.QueueEnterEvent{
			PartyID:   partyID,
			Region:    region,
			Mode:      mode,
			TeamSize:  teamSize,
			AvgMMR:    avgMMR,
			PlayerIDs: playerIDs,
		}); err != nil {
			log.Printf("Failed to publish queue enter for party %s: %v", partyID, err)
		}
	}

	s.cache.SetReadyCheckTimer(ctx, partyID, s.readyCheckWindow)
	view, err := s.refreshView(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.Broadcast(partyID, "queue_entered", map[string]interface{}{
			"party_id":  partyID,
			"mode":      mode,
			"team_size": teamSize,
			"avg_mmr":   avgMMR,
		})
	}

	log.Printf("Party %s entered queue mode=%s team_size=%d avg_mmr=%d", partyID, mode, teamSize, avgMMR)
	return view, nil
}

// LeaveQueue withdraws a queueing party back to idle. Leader only.
func (s *PartyService) LeaveQueue(ctx context.Context, partyID, playerID string) (*models.PartyView, error) {
	var (
		region string
		mode   string
	)

	err := s.store.WithPartyLock(partyID, func(tx *gorm.DB, party *models.Party) error {
		if party.LeaderID != playerID {
			return apperr.Forbidden("Only party leader can leave queue")
		}
		if party.Status != models.PartyStatusQueueing {
			return apperr.InvalidState("Party is not in queue")
		}

		region = party.Region
		if party.QueueMode != nil {
			mode = *party.QueueMode
		}

		return tx.Model(party).Updates(map[string]interface{}{
			"status":     models.PartyStatusIdle,
			"queue_mode": nil,
			"team_size":  nil,
			"avg_mmr":    nil,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if s.queue != nil && mode != "" {
		if err := s.queue.PublishQueueLeave(bus.QueueLeaveEvent{
			PartyID: partyID,
			Region:  region,
			Mode:    mode,
		}); err != nil {
			log.Printf("Failed to publish queue leave for party %s: %v", partyID, err)
		}
	}

	s.cache.ClearReadyCheckTimer(ctx, partyID)
	view, err := s.refreshView(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.Broadcast(partyID, "queue_left", map[string]interface{}{
			"party_id": partyID,
		})
	}
	return view, nil
}

// QueueStatus is the advisory queue placement for one party.
type QueueStatus struct {
	PartyID  string `json:"party_id"`
	Status   string `json:"status"`
	Position int    `json:"position"`
}

// QueuePosition returns the party's cached queue placement. Position is
// -1 when the matchmaker has not reported one yet.
func (s *PartyService) QueuePosition(ctx context.Context, partyID, playerID string) (*QueueStatus, error) {
	isMember, err := s.store.IsPartyMember(partyID, playerID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, apperr.Forbidden("You are not in this party")
	}

	view, err := s.Get(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if view.Status != models.PartyStatusQueueing {
		return nil, apperr.InvalidState("Party is not in queue")
	}

	return &QueueStatus{
		PartyID:  partyID,
		Status:   view.Status,
		Position: s.cache.QueuePosition(ctx, partyID),
	}, nil
}

// ExpireQueue is the watchdog path: a queueing party whose ready-check
// window lapsed without a match is returned to idle.
func (s *PartyService) ExpireQueue(ctx context.Context, partyID string) error {
	var (
		region string
		mode   string
	)

	err := s.store.WithPartyLock(partyID, func(tx *gorm.DB, party *models.Party) error {
		if party.Status != models.PartyStatusQueueing {
			return apperr.InvalidState("Party is not in queue")
		}
		region = party.Region
		if party.QueueMode != nil {
			mode = *party.QueueMode
		}

		return tx.Model(party).Updates(map[string]interface{}{
			"status":     models.PartyStatusIdle,
			"queue_mode": nil,
			"team_size":  nil,
			"avg_mmr":    nil,
		}).Error
	})
	if err != nil {
		return err
	}

	if s.queue != nil && mode != "" {
		if err := s.queue.PublishQueueLeave(bus.QueueLeaveEvent{
			PartyID: partyID,
			Region:  region,
			Mode:    mode,
		}); err != nil {
			log.Printf("Failed to publish queue leave for party %s: %v", partyID, err)
		}
	}

	if _, err := s.refreshView(ctx, partyID); err != nil {
		log.Printf("Failed to refresh party view %s: %v", partyID, err)
	}
	if s.hub != nil {
		s.hub.Broadcast(partyID, "queue_left", map[string]interface{}{
			"party_id": partyID,
			"reason":   "ready_check_expired",
		})
	}

	log.Printf("Party %s queue entry expired", partyID)
	return nil
}

// refreshView rebuilds the view from the store and re-caches it.
func (s *PartyService) refreshView(ctx context.Context, partyID string) (*models.PartyView, error) {
	view, err := s.store.PartyView(nil, partyID)
	if err != nil {
		return nil, err
	}
	s.cache.PutPartyView(ctx, view, cache.PartyViewTTL)
	return view, nil
}
