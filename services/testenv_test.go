package services

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"partyhub/bus"
	"partyhub/cache"
	"partyhub/database"
	"partyhub/models"
	"partyhub/store"
)

// fakeHub records broadcasts instead of writing to sockets.
type fakeHub struct {
	mu     sync.Mutex
	events []hubEvent
}

type hubEvent struct {
	PartyID string
	Event   string
	Exclude string
}

func (f *fakeHub) Broadcast(partyID, event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, hubEvent{PartyID: partyID, Event: event})
}

func (f *fakeHub) BroadcastExcept(partyID, excludePlayerID, event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, hubEvent{PartyID: partyID, Event: event, Exclude: excludePlayerID})
}

func (f *fakeHub) eventsFor(partyID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, ev := range f.events {
		if ev.PartyID == partyID {
			names = append(names, ev.Event)
		}
	}
	return names
}

// fakeQueue records bus traffic.
type fakeQueue struct {
	mu     sync.Mutex
	enters []bus.QueueEnterEvent
	leaves []bus.QueueLeaveEvent
}

func (f *fakeQueue) PublishQueueEnter(ev bus.QueueEnterEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enters = append(f.enters, ev)
	return nil
}

func (f *fakeQueue) PublishQueueLeave(ev bus.QueueLeaveEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, ev)
	return nil
}

type testEnv struct {
	db       *gorm.DB
	store    *store.Store
	cache    *cache.Cache
	hub      *fakeHub
	queue    *fakeQueue
	alloc    *MockAllocator
	parties  *PartyService
	sessions *SessionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "partyhub.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	// sqlite has a single writer; one pooled conn keeps concurrent
	// service calls from tripping over busy errors.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	mr := miniredis.RunT(t)
	c := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	st := store.New(db)
	hub := &fakeHub{}
	queue := &fakeQueue{}
	alloc := NewMockAllocator("game.test", 7777)

	return &testEnv{
		db:       db,
		store:    st,
		cache:    c,
		hub:      hub,
		queue:    queue,
		alloc:    alloc,
		parties:  NewPartyService(st, c, hub, queue, 30*time.Second),
		sessions: NewSessionService(st, c, hub, alloc, "test-session-secret"),
	}
}

func (e *testEnv) seedPlayer(t *testing.T, username string, mmr int) models.Player {
	t.Helper()
	player := models.Player{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: "x",
		Region:       "us-west",
		MMR:          mmr,
	}
	require.NoError(t, e.db.Create(&player).Error)
	return player
}
