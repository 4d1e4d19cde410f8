// models/player.go
package models

import (
	"time"
)

// BaseMMR is the rating assigned to new players.
const BaseMMR = 1500

type Player struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null;size:32" json:"username"`
	Email        *string   `gorm:"uniqueIndex;size:255" json:"email,omitempty"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Region       string    `gorm:"not null;size:32;default:'us-west'" json:"region"`
	MMR          int       `gorm:"not null;default:1500;index" json:"mmr"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Player) TableName() string {
	return "players"
}
