// models/match.go - Match session, per-player results, and history
package models

import (
	"encoding/json"
	"time"
)

// Session statuses. Transitions: allocating -> {active, cancelled},
// active -> {ended, cancelled}; ended and cancelled are terminal.
const (
	SessionStatusAllocating = "allocating"
	SessionStatusActive     = "active"
	SessionStatusEnded      = "ended"
	SessionStatusCancelled  = "cancelled"
)

// Match results per player.
const (
	MatchResultWin     = "win"
	MatchResultLoss    = "loss"
	MatchResultDraw    = "draw"
	MatchResultPending = "pending"
)

type Match struct {
	ID             string  `gorm:"primaryKey;size:64" json:"id"`
	Mode           string  `gorm:"not null;size:32" json:"mode"`
	Region         string  `gorm:"not null;size:32" json:"region"`
	AvgMMR         int     `gorm:"not null;default:0" json:"avg_mmr"`
	Status         string  `gorm:"not null;size:20;index" json:"status"`
	ServerEndpoint *string `gorm:"size:255" json:"server_endpoint,omitempty"`
	ServerToken    *string `gorm:"size:128" json:"server_token,omitempty"`

	// JSON blob holding teams, party ids and quality score. Teams are
	// immutable once set.
	Metadata string `gorm:"type:text" json:"metadata,omitempty"`
	// JSON blob holding the final outcome, set once at result submission.
	Result string `gorm:"type:text" json:"result,omitempty"`

	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	Players []MatchPlayer `gorm:"foreignKey:MatchID" json:"players,omitempty"`
}

func (Match) TableName() string {
	return "matches"
}

// MatchMetadata is the decoded shape of Match.Metadata.
type MatchMetadata struct {
	QualityScore float64    `json:"quality_score"`
	PartyIDs     []string   `json:"party_ids"`
	Teams        [][]string `json:"teams"`
}

// DecodeMetadata parses the metadata blob. An empty blob yields a zero
// value, not an error.
func (m *Match) DecodeMetadata() (MatchMetadata, error) {
	var meta MatchMetadata
	if m.Metadata == "" {
		return meta, nil
	}
	err := json.Unmarshal([]byte(m.Metadata), &meta)
	return meta, err
}

// MatchOutcome is the decoded shape of Match.Result.
type MatchOutcome struct {
	WinnerTeam      int                    `json:"winner_team"`
	DurationSeconds int                    `json:"duration_seconds"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// MatchPlayer is one player's participation in a match. One row per
// (match, player); created with the match, updated exactly once at
// result submission.
type MatchPlayer struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	MatchID   string `gorm:"not null;uniqueIndex:idx_match_player;size:64" json:"match_id"`
	PlayerID  string `gorm:"not null;uniqueIndex:idx_match_player;index;size:36" json:"player_id"`
	Team      int    `gorm:"not null" json:"team"`
	MMRBefore int    `gorm:"not null" json:"mmr_before"`
	MMRAfter  int    `gorm:"not null" json:"mmr_after"`
	Result    string `gorm:"not null;default:'pending';size:10" json:"result"`
	Stats     string `gorm:"type:text" json:"stats,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MatchPlayer) TableName() string {
	return "match_players"
}

// MatchHistory is an append-only per-player record of a completed match.
// Rows are never mutated or deleted by the service.
type MatchHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PlayerID  string    `gorm:"not null;index;size:36" json:"player_id"`
	MatchID   string    `gorm:"not null;size:64" json:"match_id"`
	PlayedAt  time.Time `gorm:"not null;index" json:"played_at"`
	Mode      string    `gorm:"not null;size:32;index" json:"mode"`
	Result    string    `gorm:"not null;size:10" json:"result"`
	MMRChange int       `gorm:"not null" json:"mmr_change"`
	Team      int       `gorm:"not null" json:"team"`
	Stats     string    `gorm:"type:text" json:"stats,omitempty"`
}

func (MatchHistory) TableName() string {
	return "match_history"
}
