// workers/workers.go - Background reconciliation jobs
package workers

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"partyhub/apperr"
	"partyhub/cache"
	"partyhub/models"
	"partyhub/services"
	"partyhub/store"
)

// Grace period after activation before a missing heartbeat counts as a
// dead server. Covers the window between allocation and the first beat.
const heartbeatGrace = 90 * time.Second

// Supervisor owns the periodic jobs that reconcile store state against
// reality: dead game servers, abandoned queue entries, and leaderboard
// ranks.
type Supervisor struct {
	store    *store.Store
	cache    *cache.Cache
	sessions *services.SessionService
	parties  *services.PartyService

	sweepInterval    time.Duration
	rankInterval     time.Duration
	readyCheckWindow time.Duration

	scheduler gocron.Scheduler
}

func NewSupervisor(st *store.Store, c *cache.Cache, sessions *services.SessionService, parties *services.PartyService, sweepInterval, rankInterval, readyCheckWindow time.Duration) (*Supervisor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		store:            st,
		cache:            c,
		sessions:         sessions,
		parties:          parties,
		sweepInterval:    sweepInterval,
		rankInterval:     rankInterval,
		readyCheckWindow: readyCheckWindow,
		scheduler:        scheduler,
	}, nil
}

// Start registers and launches all jobs.
func (s *Supervisor) Start() error {
	jobs := []struct {
		name     string
		interval time.Duration
		run      func()
	}{
		{"stale-session-sweeper", s.sweepInterval, s.sweepStaleSessions},
		{"queue-watchdog", s.sweepInterval, s.expireAbandonedQueues},
		{"rank-materializer", s.rankInterval, s.materializeRanks},
	}

	for _, job := range jobs {
		if _, err := s.scheduler.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(job.run),
			gocron.WithName(job.name),
		); err != nil {
			return err
		}
	}

	s.scheduler.Start()
	log.Println("✅ Background workers started")
	return nil
}

// Stop drains the scheduler.
func (s *Supervisor) Stop() {
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("Failed to shut down scheduler: %v", err)
	}
}

// sweepStaleSessions cancels active matches whose game server stopped
// heartbeating. When Redis is unreachable liveness is unknown, and the
// sweeper does nothing rather than cancel healthy matches.
func (s *Supervisor) sweepStaleSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-heartbeatGrace)

	var matches []models.Match
	if err := s.store.DB().
		Select("id", "started_at").
		Where("status = ? AND started_at < ?", models.SessionStatusActive, cutoff).
		Find(&matches).Error; err != nil {
		log.Printf("Stale session sweep query failed: %v", err)
		return
	}

	for _, match := range matches {
		alive, known := s.cache.IsServerAlive(ctx, match.ID)
		if !known || alive {
			continue
		}

		err := s.sessions.CancelMatch(ctx, match.ID, "server_timeout")
		if err != nil && apperr.KindOf(err) != apperr.KindInvalidState {
			log.Printf("Failed to cancel stale match %s: %v", match.ID, err)
			continue
		}
		if err == nil {
			log.Printf("Cancelled stale match %s (no heartbeat)", match.ID)
		}
	}
}

// expireAbandonedQueues returns queueing parties to idle once their
// ready-check window has lapsed with no match. The Redis timer alone is
// not trusted: the store timestamp must agree before a party is pulled
// out of the queue.
func (s *Supervisor) expireAbandonedQueues() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.readyCheckWindow)

	var parties []models.Party
	if err := s.store.DB().
		Select("id", "updated_at").
		Where("status = ? AND updated_at < ?", models.PartyStatusQueueing, cutoff).
		Find(&parties).Error; err != nil {
		log.Printf("Queue watchdog query failed: %v", err)
		return
	}

	for _, party := range parties {
		ttl, known := s.cache.ReadyCheckTTL(ctx, party.ID)
		if !known || ttl > 0 {
			continue
		}

		err := s.parties.ExpireQueue(ctx, party.ID)
		if err != nil && apperr.KindOf(err) != apperr.KindInvalidState {
			log.Printf("Failed to expire queue for party %s: %v", party.ID, err)
		}
	}
}

// materializeRanks rewrites the rank column for the current season in
// rating order. Ranks are advisory between runs.
func (s *Supervisor) materializeRanks() {
	season := services.SeasonID(time.Now())

	var entries []models.LeaderboardEntry
	if err := s.store.DB().
		Select("id", "rank").
		Where("season = ?", season).
		Order("rating DESC, games_played DESC").
		Find(&entries).Error; err != nil {
		log.Printf("Rank materializer query failed: %v", err)
		return
	}

	updated := 0
	for i, entry := range entries {
		rank := i + 1
		if entry.Rank == rank {
			continue
		}
		if err := s.store.DB().Model(&models.LeaderboardEntry{}).
			Where("id = ?", entry.ID).
			Update("rank", rank).Error; err != nil {
			log.Printf("Failed to update rank for entry %d: %v", entry.ID, err)
			return
		}
		updated++
	}

	if updated > 0 {
		log.Printf("Materialized %d leaderboard ranks for season %s", updated, season)
	}
}
