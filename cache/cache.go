// cache/cache.go - Redis-backed party cache, timers, and reverse index
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"partyhub/models"
)

// Default TTLs. Every entry is advisory and bounded; a miss always means
// "recompute from the store", never "does not exist".
const (
	PartyViewTTL     = 5 * time.Minute
	ReadyCheckTTL    = 30 * time.Second
	QueuePositionTTL = 60 * time.Second
	PlayerSessionTTL = time.Hour
)

// Cache wraps the Redis client. Every operation logs and swallows Redis
// errors: the cache is never a hard dependency for correctness, only for
// latency.
type Cache struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Connect parses a redis:// URL and returns a connected cache.
func Connect(url string) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return New(redis.NewClient(opts)), nil
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}

// ---------------- Party views ----------------

func partyKey(partyID string) string {
	return "party:" + partyID
}

// PutPartyView caches the composed party view.
func (c *Cache) PutPartyView(ctx context.Context, view *models.PartyView, ttl time.Duration) {
	data, err := json.Marshal(view)
	if err != nil {
		log.Printf("Failed to marshal party view %s: %v", view.ID, err)
		return
	}
	if err := c.rdb.Set(ctx, partyKey(view.ID), data, ttl).Err(); err != nil {
		log.Printf("Failed to cache party %s: %v", view.ID, err)
	}
}

// GetPartyView returns the cached view or nil on miss or error.
func (c *Cache) GetPartyView(ctx context.Context, partyID string) *models.PartyView {
	data, err := c.rdb.Get(ctx, partyKey(partyID)).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		log.Printf("Failed to get cached party %s: %v", partyID, err)
		return nil
	}

	var view models.PartyView
	if err := json.Unmarshal(data, &view); err != nil {
		log.Printf("Corrupt party view cache for %s: %v", partyID, err)
		return nil
	}
	return &view
}

// InvalidatePartyView drops the cached view.
func (c *Cache) InvalidatePartyView(ctx context.Context, partyID string) {
	if err := c.rdb.Del(ctx, partyKey(partyID)).Err(); err != nil {
		log.Printf("Failed to invalidate party cache %s: %v", partyID, err)
	}
}

// ---------------- Ready-check timers ----------------

func readyCheckKey(partyID string) string {
	return "ready_check:" + partyID
}

// SetReadyCheckTimer arms the ready-check expiry timer for a party.
func (c *Cache) SetReadyCheckTimer(ctx context.Context, partyID string, timeout time.Duration) {
	if err := c.rdb.Set(ctx, readyCheckKey(partyID), "1", timeout).Err(); err != nil {
		log.Printf("Failed to set ready check timer for party %s: %v", partyID, err)
	}
}

// ReadyCheckTTL returns the remaining timer duration. The second return
// is false when Redis was unreachable, so callers can tell "expired"
// apart from "unknown".
func (c *Cache) ReadyCheckTTL(ctx context.Context, partyID string) (time.Duration, bool) {
	ttl, err := c.rdb.TTL(ctx, readyCheckKey(partyID)).Result()
	if err != nil {
		log.Printf("Failed to get ready check TTL for party %s: %v", partyID, err)
		return 0, false
	}
	if ttl < 0 {
		return 0, true
	}
	return ttl, true
}

// ClearReadyCheckTimer disarms the timer.
func (c *Cache) ClearReadyCheckTimer(ctx context.Context, partyID string) {
	if err := c.rdb.Del(ctx, readyCheckKey(partyID)).Err(); err != nil {
		log.Printf("Failed to clear ready check timer for party %s: %v", partyID, err)
	}
}

// ---------------- Queue position ----------------

func queuePosKey(partyID string) string {
	return "queue_pos:" + partyID
}

// CacheQueuePosition stores the party's advisory queue position.
func (c *Cache) CacheQueuePosition(ctx context.Context, partyID string, position int) {
	if err := c.rdb.Set(ctx, queuePosKey(partyID), position, QueuePositionTTL).Err(); err != nil {
		log.Printf("Failed to cache queue position for party %s: %v", partyID, err)
	}
}

// QueuePosition returns the cached position, or -1 on miss.
func (c *Cache) QueuePosition(ctx context.Context, partyID string) int {
	pos, err := c.rdb.Get(ctx, queuePosKey(partyID)).Int()
	if err == redis.Nil {
		return -1
	}
	if err != nil {
		log.Printf("Failed to get queue position for party %s: %v", partyID, err)
		return -1
	}
	return pos
}

// ---------------- Player session reverse index ----------------

func playerSessionKey(playerID string) string {
	return "player_session:" + playerID
}

// TrackPlayerSession records the player -> party reverse index entry.
func (c *Cache) TrackPlayerSession(ctx context.Context, playerID, partyID string, ttl time.Duration) {
	if err := c.rdb.Set(ctx, playerSessionKey(playerID), partyID, ttl).Err(); err != nil {
		log.Printf("Failed to track player session for %s: %v", playerID, err)
	}
}

// PlayerSession returns the party id the player was last seen in, or ""
// on miss. Absence means "check the store", not "not in a party".
func (c *Cache) PlayerSession(ctx context.Context, playerID string) string {
	partyID, err := c.rdb.Get(ctx, playerSessionKey(playerID)).Result()
	if err == redis.Nil {
		return ""
	}
	if err != nil {
		log.Printf("Failed to get player session for %s: %v", playerID, err)
		return ""
	}
	return partyID
}

// ClearPlayerSession drops the reverse index entry.
func (c *Cache) ClearPlayerSession(ctx context.Context, playerID string) {
	if err := c.rdb.Del(ctx, playerSessionKey(playerID)).Err(); err != nil {
		log.Printf("Failed to clear player session for %s: %v", playerID, err)
	}
}
