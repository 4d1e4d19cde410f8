// models/leaderboard.go
package models

import (
	"time"
)

// LeaderboardEntry is the per-season aggregate for one player, updated
// incrementally at match end. Rank is derived from rating order and only
// materialized periodically by a background worker.
type LeaderboardEntry struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Season      string `gorm:"not null;uniqueIndex:idx_season_player;size:16" json:"season"`
	PlayerID    string `gorm:"not null;uniqueIndex:idx_season_player;size:36" json:"player_id"`
	Rating      int    `gorm:"not null;default:1500;index" json:"rating"`
	Wins        int    `gorm:"not null;default:0" json:"wins"`
	Losses      int    `gorm:"not null;default:0" json:"losses"`
	GamesPlayed int    `gorm:"not null;default:0" json:"games_played"`
	Rank        int    `gorm:"not null;default:0" json:"rank"`

	UpdatedAt time.Time `json:"updated_at"`

	Player *Player `gorm:"foreignKey:PlayerID" json:"player,omitempty"`
}

func (LeaderboardEntry) TableName() string {
	return "leaderboard"
}

// WinRate returns the fraction of games won.
func (e *LeaderboardEntry) WinRate() float64 {
	if e.GamesPlayed == 0 {
		return 0
	}
	return float64(e.Wins) / float64(e.GamesPlayed)
}
