// cmd/seed-players/main.go - Seed demo players for local development
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"partyhub/config"
	"partyhub/database"
	"partyhub/middleware"
	"partyhub/models"
)

var usernames = []string{
	"shadowstrike", "pixelmage", "frostbyte", "novadrift", "ironclaw",
	"quickshot", "stormcaller", "nightowl", "emberfox", "voidwalker",
	"lunarflare", "grimreach", "steelwing", "wildcard", "hexhunter",
	"rampart", "skirmish", "deadbolt", "cinderpaw", "bluntforce",
}

var regions = []string{"us-east", "us-west", "eu-west", "ap-south"}

func main() {
	count := flag.Int("count", 20, "number of players to seed")
	tokens := flag.Bool("tokens", false, "print a JWT for each seeded player")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Fatalf("❌ Failed to run migrations: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("demo-password"), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("❌ Failed to hash password: %v", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	seeded := 0

	for i := 0; i < *count; i++ {
		username := usernames[i%len(usernames)]
		if i >= len(usernames) {
			username = fmt.Sprintf("%s%d", username, i/len(usernames)+1)
		}

		player := models.Player{
			ID:           uuid.New().String(),
			Username:     username,
			PasswordHash: string(hash),
			Region:       regions[rng.Intn(len(regions))],
			MMR:          models.BaseMMR + rng.Intn(601) - 300,
		}

		result := db.Where("username = ?", username).FirstOrCreate(&player)
		if result.Error != nil {
			log.Printf("Failed to seed player %s: %v", username, result.Error)
			continue
		}
		if result.RowsAffected == 0 {
			log.Printf("Player %s already exists, skipping", username)
			continue
		}
		seeded++

		if *tokens {
			token, err := middleware.SignToken(cfg.JWTSecret, player.ID, player.Username, 24*time.Hour)
			if err != nil {
				log.Printf("Failed to sign token for %s: %v", username, err)
				continue
			}
			fmt.Printf("%s\t%s\t%s\n", player.ID, player.Username, token)
		}
	}

	log.Printf("✅ Seeded %d players", seeded)
}
