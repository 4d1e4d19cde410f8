// services/player_service.go - Player profiles, history, and leaderboard reads
package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"partyhub/apperr"
	"partyhub/models"
	"partyhub/store"
)

const maxPageSize = 100

// PlayerService serves the read-mostly player surface: profiles, match
// history, and the season leaderboard.
type PlayerService struct {
	store *store.Store
}

func NewPlayerService(st *store.Store) *PlayerService {
	return &PlayerService{store: st}
}

// PlayerProfile is the public profile shape. Email and password hash
// never leave the service.
type PlayerProfile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Region    string    `json:"region"`
	MMR       int       `json:"mmr"`
	CreatedAt time.Time `json:"created_at"`
}

// GetProfile returns a player's public profile.
func (s *PlayerService) GetProfile(playerID string) (*PlayerProfile, error) {
	var player models.Player
	if err := s.store.DB().First(&player, "id = ?", playerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Player not found")
		}
		return nil, store.Translate(err)
	}
	return &PlayerProfile{
		ID:        player.ID,
		Username:  player.Username,
		Region:    player.Region,
		MMR:       player.MMR,
		CreatedAt: player.CreatedAt,
	}, nil
}

// UpdateRegion moves the player's home region. Players in a party must
// leave it first so queued parties keep a consistent region.
func (s *PlayerService) UpdateRegion(playerID, region string) (*PlayerProfile, error) {
	if region == "" {
		return nil, apperr.InvalidState("region is required")
	}

	partyID, err := s.store.MemberPartyID(playerID)
	if err != nil {
		return nil, err
	}
	if partyID != "" {
		return nil, apperr.Conflict("Leave your party before changing region")
	}

	res := s.store.DB().Model(&models.Player{}).Where("id = ?", playerID).Update("region", region)
	if res.Error != nil {
		return nil, store.Translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("Player not found")
	}
	return s.GetProfile(playerID)
}

// MatchHistoryPage is one page of a player's completed matches, newest
// first.
type MatchHistoryPage struct {
	PlayerID string                `json:"player_id"`
	Total    int64                 `json:"total"`
	Entries  []models.MatchHistory `json:"entries"`
}

// GetHistory returns the player's match history page, optionally
// filtered by mode.
func (s *PlayerService) GetHistory(playerID, mode string, limit, offset int) (*MatchHistoryPage, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	query := s.store.DB().Model(&models.MatchHistory{}).Where("player_id = ?", playerID)
	if mode != "" {
		query = query.Where("mode = ?", mode)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, store.Translate(err)
	}

	var entries []models.MatchHistory
	if err := query.
		Order("played_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, store.Translate(err)
	}

	return &MatchHistoryPage{PlayerID: playerID, Total: total, Entries: entries}, nil
}

// LeaderboardPage is one page of the season leaderboard, rating order.
type LeaderboardPage struct {
	Season  string                    `json:"season"`
	Total   int64                     `json:"total"`
	Entries []models.LeaderboardEntry `json:"entries"`
}

// GetLeaderboard returns the season leaderboard page. An empty season
// defaults to the current one.
func (s *PlayerService) GetLeaderboard(season string, limit, offset int) (*LeaderboardPage, error) {
	if season == "" {
		season = SeasonID(time.Now())
	}
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.store.DB().Model(&models.LeaderboardEntry{}).
		Where("season = ?", season).
		Count(&total).Error; err != nil {
		return nil, store.Translate(err)
	}

	var entries []models.LeaderboardEntry
	if err := s.store.DB().
		Preload("Player").
		Where("season = ?", season).
		Order("rating DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error; err != nil {
		return nil, store.Translate(err)
	}

	return &LeaderboardPage{Season: season, Total: total, Entries: entries}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
