// database/migrate.go - Database Migration Runner
package database

import (
	"log"

	"gorm.io/gorm"

	"partyhub/models"
)

// Migrate runs all schema migrations.
func Migrate(db *gorm.DB) error {
	log.Println("🔄 Running database migrations...")

	if err := db.AutoMigrate(
		&models.Player{},
		&models.Party{},
		&models.PartyMember{},
		&models.Match{},
		&models.MatchPlayer{},
		&models.MatchHistory{},
		&models.LeaderboardEntry{},
	); err != nil {
		return err
	}

	log.Println("✅ Migrations completed")
	return nil
}
