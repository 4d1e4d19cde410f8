// models/party.go - Party and membership models
package models

import (
	"time"
)

// Party statuses. Transitions: idle <-> queueing -> in_match -> idle,
// disbanded is terminal from any state.
const (
	PartyStatusIdle      = "idle"
	PartyStatusQueueing  = "queueing"
	PartyStatusReady     = "ready"
	PartyStatusInMatch   = "in_match"
	PartyStatusDisbanded = "disbanded"
)

type Party struct {
	ID       string  `gorm:"primaryKey;size:36" json:"id"`
	LeaderID string  `gorm:"not null;index;size:36" json:"leader_id"`
	Region   string  `gorm:"not null;size:32" json:"region"`
	Size     int     `gorm:"not null;default:1" json:"size"`
	MaxSize  int     `gorm:"not null;default:5" json:"max_size"`
	Status   string  `gorm:"not null;default:'idle';size:20;index" json:"status"`
	QueueMode *string `gorm:"size:32" json:"queue_mode,omitempty"`
	TeamSize  *int    `json:"team_size,omitempty"`
	AvgMMR    *int    `json:"avg_mmr,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Members []PartyMember `gorm:"foreignKey:PartyID" json:"members,omitempty"`
}

func (Party) TableName() string {
	return "parties"
}

// Joinable reports whether new members may enter in the current status.
func (p *Party) Joinable() bool {
	return p.Status == PartyStatusIdle || p.Status == PartyStatusQueueing
}

// PartyMember is one player's membership in a party. Rows are created on
// join and deleted on leave or disband; the unique index on player_id
// enforces one active party per player.
type PartyMember struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	PartyID  string  `gorm:"not null;index;size:36" json:"party_id"`
	PlayerID string  `gorm:"not null;uniqueIndex;size:36" json:"player_id"`
	Ready    bool    `gorm:"not null;default:false" json:"ready"`
	Role     *string `gorm:"size:32" json:"role,omitempty"`

	JoinedAt time.Time `json:"joined_at"`

	Player *Player `gorm:"foreignKey:PlayerID" json:"player,omitempty"`
}

func (PartyMember) TableName() string {
	return "party_members"
}

// PartyView is the composed party representation served to clients and
// held in the cache. It is always rebuildable from the store.
type PartyView struct {
	ID        string            `json:"id"`
	LeaderID  string            `json:"leader_id"`
	Region    string            `json:"region"`
	Size      int               `json:"size"`
	MaxSize   int               `json:"max_size"`
	Status    string            `json:"status"`
	QueueMode *string           `json:"queue_mode,omitempty"`
	TeamSize  *int              `json:"team_size,omitempty"`
	AvgMMR    *int              `json:"avg_mmr,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Members   []PartyMemberView `json:"members"`
}

type PartyMemberView struct {
	PlayerID string    `json:"player_id"`
	Username string    `json:"username"`
	Ready    bool      `json:"ready"`
	Role     *string   `json:"role,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// ReadyCheckResult is the aggregate returned by the ready toggle.
type ReadyCheckResult struct {
	PartyID         string   `json:"party_id"`
	ReadyCount      int      `json:"ready_count"`
	TotalCount      int      `json:"total_count"`
	AllReady        bool     `json:"all_ready"`
	NotReadyPlayers []string `json:"not_ready_players"`
}
