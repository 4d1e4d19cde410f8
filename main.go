// main.go
package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"

	"partyhub/apperr"
	"partyhub/bus"
	"partyhub/cache"
	"partyhub/config"
	"partyhub/database"
	"partyhub/handlers"
	"partyhub/middleware"
	"partyhub/realtime"
	"partyhub/services"
	"partyhub/store"
	"partyhub/workers"
)

func main() {
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

	cacheClient, err := cache.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("❌ Invalid Redis configuration: %v", err)
	}
	defer cacheClient.Close()

	// The bus is an availability dependency: queue events degrade to
	// store-only updates when NATS is down.
	var queuePub services.QueuePublisher
	eventBus, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		log.Printf("⚠️  NATS unavailable, running without matchmaker bus: %v", err)
	} else {
		defer eventBus.Close()
		queuePub = eventBus
	}

	st := store.New(db)
	hub := realtime.NewHub()
	alloc := services.NewMockAllocator(cfg.AllocatorHost, cfg.AllocatorBasePort)

	partySvc := services.NewPartyService(st, cacheClient, hub, queuePub, cfg.ReadyCheckWindow)
	sessionSvc := services.NewSessionService(st, cacheClient, hub, alloc, cfg.SessionSecret)
	playerSvc := services.NewPlayerService(st)

	if eventBus != nil {
		if _, err := eventBus.SubscribeMatchFound(sessionSvc.HandleMatchFound); err != nil {
			log.Fatalf("❌ Failed to subscribe to match.found: %v", err)
		}
	}

	supervisor, err := workers.NewSupervisor(st, cacheClient, sessionSvc, partySvc,
		cfg.SweepInterval, cfg.RankInterval, cfg.ReadyCheckWindow)
	if err != nil {
		log.Fatalf("❌ Failed to create workers: %v", err)
	}
	if err := supervisor.Start(); err != nil {
		log.Fatalf("❌ Failed to start workers: %v", err)
	}
	defer supervisor.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "partyhub",
		ErrorHandler: errorHandler,
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	registerRoutes(app, cfg, st, hub, partySvc, sessionSvc, playerSvc)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		log.Println("🔄 Shutting down server...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 partyhub listening on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}

func registerRoutes(app *fiber.App, cfg *config.Config, st *store.Store, hub *realtime.Hub,
	partySvc *services.PartyService, sessionSvc *services.SessionService, playerSvc *services.PlayerService) {

	partyHandler := handlers.NewPartyHandler(partySvc)
	sessionHandler := handlers.NewSessionHandler(sessionSvc)
	profileHandler := handlers.NewProfileHandler(playerSvc)
	leaderboardHandler := handlers.NewLeaderboardHandler(playerSvc)
	wsHandler := handlers.NewWSHandler(hub, st, cfg.JWTSecret)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "env": cfg.AppEnv})
	})

	v1 := app.Group("/v1")
	auth := middleware.Auth(cfg.JWTSecret)

	party := v1.Group("/party", auth)
	party.Post("", partyHandler.Create)
	party.Get("/:party_id", partyHandler.Get)
	party.Post("/:party_id/join", partyHandler.Join)
	party.Post("/:party_id/leave", partyHandler.Leave)
	party.Post("/:party_id/ready", partyHandler.Ready)
	party.Post("/:party_id/queue", partyHandler.Queue)
	party.Get("/:party_id/queue", partyHandler.QueuePosition)
	party.Post("/:party_id/unqueue", partyHandler.Unqueue)

	session := v1.Group("/session")
	session.Get("/:match_id", auth, sessionHandler.Get)
	// Game server callbacks authenticate out of band via the session
	// token baked into the allocation handoff.
	session.Post("/:match_id/heartbeat", sessionHandler.Heartbeat)
	session.Post("/:match_id/result", sessionHandler.Result)

	profile := v1.Group("/profile", auth)
	profile.Patch("", profileHandler.Update)
	profile.Get("/:player_id", profileHandler.Get)
	profile.Get("/:player_id/history", profileHandler.History)

	v1.Get("/leaderboard/:season?", leaderboardHandler.Get)

	v1.Use("/ws/:party_id", wsHandler.Upgrade)
	v1.Get("/ws/:party_id", websocket.New(wsHandler.Serve))
}

// errorHandler renders errors that escape a handler, mapping typed
// errors to their status and everything else through apperr's generic
// internal message.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}
	return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": apperr.Message(err)})
}
