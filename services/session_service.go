// services/session_service.go - Match session lifecycle orchestration
package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"partyhub/apperr"
	"partyhub/bus"
	"partyhub/cache"
	"partyhub/models"
	"partyhub/store"
)

// MatchResult is the payload submitted once by the game server when a
// match ends.
type MatchResult struct {
	WinnerTeam      int                               `json:"winner_team"`
	PlayerStats     map[string]map[string]interface{} `json:"player_stats,omitempty"`
	DurationSeconds int                               `json:"duration_seconds"`
	Metadata        map[string]interface{}            `json:"metadata,omitempty"`
}

// SessionService drives a match from the match.found event through
// allocation, the active session, and result settlement. All state
// transitions happen under the match row lock; the allocator and all
// cache traffic stay outside it.
type SessionService struct {
	store  *store.Store
	cache  *cache.Cache
	hub    Broadcaster
	alloc  Allocator
	secret []byte
}

func NewSessionService(st *store.Store, c *cache.Cache, hub Broadcaster, alloc Allocator, sessionSecret string) *SessionService {
	return &SessionService{
		store:  st,
		cache:  c,
		hub:    hub,
		alloc:  alloc,
		secret: []byte(sessionSecret),
	}
}

// ValidateSessionTransition checks a status edge against the session
// state machine.
func ValidateSessionTransition(from, to string) error {
	allowed := map[string][]string{
		models.SessionStatusAllocating: {models.SessionStatusActive, models.SessionStatusCancelled},
		models.SessionStatusActive:     {models.SessionStatusEnded, models.SessionStatusCancelled},
	}
	for _, next := range allowed[from] {
		if next == to {
			return nil
		}
	}
	return apperr.InvalidState("Invalid session transition: %s -> %s", from, to)
}

// GenerateToken derives the shared session token for a match roster.
// The game server receives the same token out of band and uses it to
// authenticate player connections.
func (s *SessionService) GenerateToken(matchID string, playerIDs []string) string {
	sorted := make([]string, len(playerIDs))
	copy(sorted, playerIDs)
	sort.Strings(sorted)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(matchID + ":" + strings.Join(sorted, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyToken checks a presented token in constant time.
func (s *SessionService) VerifyToken(matchID string, playerIDs []string, token string) bool {
	expected := s.GenerateToken(matchID, playerIDs)
	return hmac.Equal([]byte(expected), []byte(token))
}

// HandleMatchFound consumes one match.found event: persist the match
// and its roster, move the parties to in_match, allocate a server, then
// activate the session. Duplicate deliveries for an already-created
// match are no-ops.
func (s *SessionService) HandleMatchFound(ev bus.MatchFoundEvent) error {
	playerIDs := make([]string, 0)
	for _, team := range ev.Teams {
		playerIDs = append(playerIDs, team...)
	}
	if ev.MatchID == "" || len(playerIDs) == 0 {
		return apperr.InvalidState("Match event missing id or roster")
	}

	err := s.store.Transaction(func(tx *gorm.DB) error {
		var players []models.Player
		if err := tx.Where("id IN ?", playerIDs).Find(&players).Error; err != nil {
			return err
		}
		if len(players) != len(playerIDs) {
			return apperr.InvalidState("Match %s references unknown players", ev.MatchID)
		}
		ratings := make(map[string]int, len(players))
		for _, p := range players {
			ratings[p.ID] = p.MMR
		}

		metadata, err := json.Marshal(models.MatchMetadata{
			QualityScore: ev.QualityScore,
			PartyIDs:     ev.PartyIDs,
			Teams:        ev.Teams,
		})
		if err != nil {
			return err
		}

		match := models.Match{
			ID:       ev.MatchID,
			Mode:     ev.Mode,
			Region:   ev.Region,
			AvgMMR:   ev.AvgMMR,
			Status:   models.SessionStatusAllocating,
			Metadata: string(metadata),
		}
		if err := tx.Create(&match).Error; err != nil {
			return err
		}

		for teamIdx, team := range ev.Teams {
			for _, playerID := range team {
				mp := models.MatchPlayer{
					MatchID:   ev.MatchID,
					PlayerID:  playerID,
					Team:      teamIdx,
					MMRBefore: ratings[playerID],
					MMRAfter:  ratings[playerID],
					Result:    models.MatchResultPending,
				}
				if err := tx.Create(&mp).Error; err != nil {
					return err
				}
			}
		}

		if len(ev.PartyIDs) > 0 {
			if err := tx.Model(&models.Party{}).
				Where("id IN ?", ev.PartyIDs).
				Update("status", models.PartyStatusInMatch).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			log.Printf("Duplicate match.found for %s, ignoring", ev.MatchID)
			return nil
		}
		return err
	}

	// Server allocation happens outside any row lock.
	endpoint, err := s.alloc.Allocate(ev.MatchID, ev.Region, ev.Mode)
	if err != nil {
		log.Printf("Allocation failed for match %s: %v", ev.MatchID, err)
		if cancelErr := s.CancelMatch(context.Background(), ev.MatchID, "allocation_failed"); cancelErr != nil {
			log.Printf("Failed to cancel match %s after allocation failure: %v", ev.MatchID, cancelErr)
		}
		return apperr.Wrap(apperr.KindUnavailable, err, "No game server available")
	}

	token := s.GenerateToken(ev.MatchID, playerIDs)
	now := time.Now().UTC()

	err = s.store.WithMatchLock(ev.MatchID, func(tx *gorm.DB, match *models.Match) error {
		if match.Status != models.SessionStatusAllocating {
			// Raced with a cancel; leave the allocated endpoint to the
			// deallocation below.
			return apperr.InvalidState("Match %s is %s, not allocating", match.ID, match.Status)
		}
		return tx.Model(match).Updates(map[string]interface{}{
			"server_endpoint": endpoint,
			"server_token":    token,
			"status":          models.SessionStatusActive,
			"started_at":      now,
		}).Error
	})
	if err != nil {
		s.alloc.Deallocate(ev.MatchID)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	payload := map[string]interface{}{
		"match_id":        ev.MatchID,
		"mode":            ev.Mode,
		"region":          ev.Region,
		"server_endpoint": endpoint,
		"session_token":   token,
		"teams":           ev.Teams,
		"quality_score":   ev.QualityScore,
	}
	for _, partyID := range ev.PartyIDs {
		s.cache.InvalidatePartyView(ctx, partyID)
		s.cache.ClearReadyCheckTimer(ctx, partyID)
		if s.hub != nil {
			s.hub.Broadcast(partyID, "match_found", payload)
		}
	}

	log.Printf("Match %s active on %s (%d players)", ev.MatchID, endpoint, len(playerIDs))
	return nil
}

// GetSession returns the match with its roster. Only participants may
// read a session.
func (s *SessionService) GetSession(matchID, playerID string) (*models.Match, error) {
	var match models.Match
	if err := s.store.DB().Preload("Players").First(&match, "id = ?", matchID).Error; err != nil {
		return nil, store.Translate(err)
	}

	participant := false
	for _, mp := range match.Players {
		if mp.PlayerID == playerID {
			participant = true
			break
		}
	}
	if !participant {
		return nil, apperr.Forbidden("You are not part of this match")
	}
	return &match, nil
}

// Heartbeat records a liveness beat from the game server hosting an
// active match.
func (s *SessionService) Heartbeat(ctx context.Context, matchID, serverID string, activePlayers int) error {
	var match models.Match
	if err := s.store.DB().Select("id", "status").First(&match, "id = ?", matchID).Error; err != nil {
		return store.Translate(err)
	}
	if match.Status != models.SessionStatusActive {
		return apperr.InvalidState("Match %s is %s, not active", matchID, match.Status)
	}

	s.cache.TrackHeartbeat(ctx, matchID, serverID, activePlayers)
	return nil
}

// SubmitResult settles an active match: per-player rating deltas,
// immutable history rows, the season leaderboard aggregate, and the
// parties' return to idle, all in one transaction.
func (s *SessionService) SubmitResult(ctx context.Context, matchID string, result MatchResult) error {
	now := time.Now().UTC()
	season := SeasonID(now)
	var partyIDs []string

	err := s.store.WithMatchLock(matchID, func(tx *gorm.DB, match *models.Match) error {
		if err := ValidateSessionTransition(match.Status, models.SessionStatusEnded); err != nil {
			return err
		}

		meta, err := match.DecodeMetadata()
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "Corrupt match metadata")
		}
		if result.WinnerTeam < 0 || result.WinnerTeam >= len(meta.Teams) {
			return apperr.InvalidState("Invalid winner_team: %d", result.WinnerTeam)
		}
		partyIDs = meta.PartyIDs

		var rows []models.MatchPlayer
		if err := tx.Where("match_id = ?", matchID).Find(&rows).Error; err != nil {
			return err
		}
		byPlayer := make(map[string]*models.MatchPlayer, len(rows))
		for i := range rows {
			byPlayer[rows[i].PlayerID] = &rows[i]
		}

		// Opponent average for a team is the mean pre-match rating of
		// everyone outside it. A roster player without a match_player
		// row is a hard error, never a silent skip.
		teamSum := make([]int, len(meta.Teams))
		teamCount := make([]int, len(meta.Teams))
		total := 0
		for teamIdx, team := range meta.Teams {
			for _, playerID := range team {
				row, ok := byPlayer[playerID]
				if !ok {
					return apperr.Internal("Match %s roster player %s has no match_player row", matchID, playerID)
				}
				teamSum[teamIdx] += row.MMRBefore
				teamCount[teamIdx]++
				total += row.MMRBefore
			}
		}

		for teamIdx, team := range meta.Teams {
			others := len(rows) - teamCount[teamIdx]
			if others == 0 {
				return apperr.Internal("Match %s has no opponents for team %d", matchID, teamIdx)
			}
			opponentAvg := (total - teamSum[teamIdx]) / others

			actual := ScoreLoss
			resultType := models.MatchResultLoss
			if teamIdx == result.WinnerTeam {
				actual = ScoreWin
				resultType = models.MatchResultWin
			}

			for _, playerID := range team {
				row := byPlayer[playerID]
				delta := Delta(row.MMRBefore, opponentAvg, actual)
				after := row.MMRBefore + delta

				stats := ""
				if ps, ok := result.PlayerStats[playerID]; ok {
					data, err := json.Marshal(ps)
					if err != nil {
						return err
					}
					stats = string(data)
				}

				if err := tx.Model(&models.MatchPlayer{}).
					Where("id = ?", row.ID).
					Updates(map[string]interface{}{
						"result":    resultType,
						"mmr_after": after,
						"stats":     stats,
					}).Error; err != nil {
					return err
				}

				if err := tx.Model(&models.Player{}).
					Where("id = ?", playerID).
					Update("mmr", after).Error; err != nil {
					return err
				}

				history := models.MatchHistory{
					PlayerID:  playerID,
					MatchID:   matchID,
					PlayedAt:  now,
					Mode:      match.Mode,
					Result:    resultType,
					MMRChange: delta,
					Team:      teamIdx,
					Stats:     stats,
				}
				if err := tx.Create(&history).Error; err != nil {
					return err
				}

				if err := upsertLeaderboard(tx, season, playerID, after, resultType, now); err != nil {
					return err
				}
			}
		}

		outcome, err := json.Marshal(models.MatchOutcome{
			WinnerTeam:      result.WinnerTeam,
			DurationSeconds: result.DurationSeconds,
			Metadata:        result.Metadata,
		})
		if err != nil {
			return err
		}
		if err := tx.Model(match).Updates(map[string]interface{}{
			"status":   models.SessionStatusEnded,
			"result":   string(outcome),
			"ended_at": now,
		}).Error; err != nil {
			return err
		}

		return releaseParties(tx, partyIDs)
	})
	if err != nil {
		return err
	}

	s.cache.ClearHeartbeat(ctx, matchID)
	s.alloc.Deallocate(matchID)
	s.notifyParties(ctx, partyIDs)

	log.Printf("Match %s ended, winner: team %d", matchID, result.WinnerTeam)
	return nil
}

// CancelMatch aborts a non-terminal match and returns its parties to
// idle.
func (s *SessionService) CancelMatch(ctx context.Context, matchID, reason string) error {
	now := time.Now().UTC()
	var partyIDs []string

	err := s.store.WithMatchLock(matchID, func(tx *gorm.DB, match *models.Match) error {
		if err := ValidateSessionTransition(match.Status, models.SessionStatusCancelled); err != nil {
			return err
		}

		meta, err := match.DecodeMetadata()
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "Corrupt match metadata")
		}
		partyIDs = meta.PartyIDs

		outcome, err := json.Marshal(map[string]interface{}{"cancelled": true, "reason": reason})
		if err != nil {
			return err
		}
		if err := tx.Model(match).Updates(map[string]interface{}{
			"status":   models.SessionStatusCancelled,
			"result":   string(outcome),
			"ended_at": now,
		}).Error; err != nil {
			return err
		}

		return releaseParties(tx, partyIDs)
	})
	if err != nil {
		return err
	}

	s.cache.ClearHeartbeat(ctx, matchID)
	s.alloc.Deallocate(matchID)
	s.notifyParties(ctx, partyIDs)

	log.Printf("Match %s cancelled: %s", matchID, reason)
	return nil
}

// releaseParties returns a match's parties to idle and clears queue
// state and ready flags (leaders stay ready, matching party creation).
func releaseParties(tx *gorm.DB, partyIDs []string) error {
	if len(partyIDs) == 0 {
		return nil
	}

	var parties []models.Party
	if err := tx.Where("id IN ?", partyIDs).Find(&parties).Error; err != nil {
		return err
	}

	if err := tx.Model(&models.Party{}).
		Where("id IN ?", partyIDs).
		Updates(map[string]interface{}{
			"status":     models.PartyStatusIdle,
			"queue_mode": nil,
			"team_size":  nil,
			"avg_mmr":    nil,
		}).Error; err != nil {
		return err
	}

	if err := tx.Model(&models.PartyMember{}).
		Where("party_id IN ?", partyIDs).
		Update("ready", false).Error; err != nil {
		return err
	}
	for _, p := range parties {
		if err := tx.Model(&models.PartyMember{}).
			Where("party_id = ? AND player_id = ?", p.ID, p.LeaderID).
			Update("ready", true).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionService) notifyParties(ctx context.Context, partyIDs []string) {
	for _, partyID := range partyIDs {
		s.cache.InvalidatePartyView(ctx, partyID)

		view, err := s.store.PartyView(nil, partyID)
		if err != nil {
			log.Printf("Failed to rebuild party view %s: %v", partyID, err)
			continue
		}
		s.cache.PutPartyView(ctx, view, cache.PartyViewTTL)
		if s.hub != nil {
			s.hub.Broadcast(partyID, "party_updated", view)
		}
	}
}

// upsertLeaderboard folds one settled result into the player's season
// aggregate.
func upsertLeaderboard(tx *gorm.DB, season, playerID string, rating int, resultType string, now time.Time) error {
	var entry models.LeaderboardEntry
	err := tx.Where("season = ? AND player_id = ?", season, playerID).First(&entry).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry = models.LeaderboardEntry{Season: season, PlayerID: playerID}
	}

	entry.Rating = rating
	entry.GamesPlayed++
	switch resultType {
	case models.MatchResultWin:
		entry.Wins++
	case models.MatchResultLoss:
		entry.Losses++
	}
	entry.UpdatedAt = now

	return tx.Save(&entry).Error
}
