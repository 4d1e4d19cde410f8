// store/store.go - Transactional record store with row-level locking
package store

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"partyhub/apperr"
	"partyhub/models"
)

// Store wraps the database handle and exposes the two hot-path locking
// primitives. All multi-row writes inside one logical operation run in a
// single transaction: either all succeed or all roll back.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the raw handle for read-only queries that need no locking.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// lockRow applies SELECT ... FOR UPDATE on dialects that support it.
// SQLite (used in tests) serializes writers at the database level, so the
// clause is skipped there.
func (s *Store) lockRow(tx *gorm.DB) *gorm.DB {
	if s.db.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// WithPartyLock runs fn in a transaction with the party row locked for
// the duration. Concurrent callers serialize on that row; other parties
// remain concurrently accessible.
func (s *Store) WithPartyLock(partyID string, fn func(tx *gorm.DB, party *models.Party) error) error {
	return Translate(s.db.Transaction(func(tx *gorm.DB) error {
		var party models.Party
		if err := s.lockRow(tx).First(&party, "id = ?", partyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Party not found")
			}
			return err
		}
		return fn(tx, &party)
	}))
}

// WithMatchLock runs fn in a transaction with the match row locked for
// the duration.
func (s *Store) WithMatchLock(matchID string, fn func(tx *gorm.DB, match *models.Match) error) error {
	return Translate(s.db.Transaction(func(tx *gorm.DB) error {
		var match models.Match
		if err := s.lockRow(tx).First(&match, "id = ?", matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Match not found")
			}
			return err
		}
		return fn(tx, &match)
	}))
}

// Transaction runs fn in a plain transaction without a pre-locked row.
func (s *Store) Transaction(fn func(tx *gorm.DB) error) error {
	return Translate(s.db.Transaction(fn))
}

// PartyView composes the cached/served party representation from the
// store. Pass a transaction to read inside one, or nil for the shared
// handle.
func (s *Store) PartyView(tx *gorm.DB, partyID string) (*models.PartyView, error) {
	if tx == nil {
		tx = s.db
	}

	var party models.Party
	if err := tx.First(&party, "id = ?", partyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Party not found")
		}
		return nil, Translate(err)
	}

	var members []models.PartyMember
	if err := tx.Preload("Player").
		Where("party_id = ?", partyID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, Translate(err)
	}

	view := &models.PartyView{
		ID:        party.ID,
		LeaderID:  party.LeaderID,
		Region:    party.Region,
		Size:      party.Size,
		MaxSize:   party.MaxSize,
		Status:    party.Status,
		QueueMode: party.QueueMode,
		TeamSize:  party.TeamSize,
		AvgMMR:    party.AvgMMR,
		CreatedAt: party.CreatedAt,
		UpdatedAt: party.UpdatedAt,
		Members:   make([]models.PartyMemberView, 0, len(members)),
	}

	for _, m := range members {
		username := ""
		if m.Player != nil {
			username = m.Player.Username
		}
		view.Members = append(view.Members, models.PartyMemberView{
			PlayerID: m.PlayerID,
			Username: username,
			Ready:    m.Ready,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}

	return view, nil
}

// MemberPartyID returns the id of the party the player currently belongs
// to, or "" if none. This is the store-backed reverse index; the cached
// one in Redis is advisory only.
func (s *Store) MemberPartyID(playerID string) (string, error) {
	var member models.PartyMember
	err := s.db.Select("party_id").First(&member, "player_id = ?", playerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", Translate(err)
	}
	return member.PartyID, nil
}

// IsPartyMember reports current membership, checked against the store.
func (s *Store) IsPartyMember(partyID, playerID string) (bool, error) {
	var count int64
	err := s.db.Model(&models.PartyMember{}).
		Where("party_id = ? AND player_id = ?", partyID, playerID).
		Count(&count).Error
	if err != nil {
		return false, Translate(err)
	}
	return count > 0, nil
}

// Translate converts driver and ORM errors into the typed taxonomy.
// Typed errors pass through untouched.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.KindNotFound, err, "Record not found")
	}

	msg := err.Error()
	if strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.KindConflict, err, "Record already exists")
	}

	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") {
		return apperr.Wrap(apperr.KindUnavailable, err, "Database unavailable")
	}

	return err
}
