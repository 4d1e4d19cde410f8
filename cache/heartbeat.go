// cache/heartbeat.go - Game server liveness tracking
package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// HeartbeatTTL is how long a beat stays fresh. A server that misses two
// consecutive windows is considered dead by the sweeper.
const HeartbeatTTL = 30 * time.Second

func heartbeatKey(matchID string) string {
	return "heartbeat:" + matchID
}

// Heartbeat is the decoded liveness record for one match's game server.
type Heartbeat struct {
	ServerID      string
	ActivePlayers int
}

// TrackHeartbeat records a beat from the game server hosting a match.
func (c *Cache) TrackHeartbeat(ctx context.Context, matchID, serverID string, activePlayers int) {
	value := fmt.Sprintf("%s:%d", serverID, activePlayers)
	if err := c.rdb.Set(ctx, heartbeatKey(matchID), value, HeartbeatTTL).Err(); err != nil {
		log.Printf("Failed to track heartbeat for match %s: %v", matchID, err)
	}
}

// LastHeartbeat returns the most recent beat, or nil when none is fresh.
func (c *Cache) LastHeartbeat(ctx context.Context, matchID string) *Heartbeat {
	value, err := c.rdb.Get(ctx, heartbeatKey(matchID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		log.Printf("Failed to read heartbeat for match %s: %v", matchID, err)
		return nil
	}

	idx := strings.LastIndex(value, ":")
	if idx < 0 {
		return &Heartbeat{ServerID: value}
	}
	players, _ := strconv.Atoi(value[idx+1:])
	return &Heartbeat{ServerID: value[:idx], ActivePlayers: players}
}

// IsServerAlive reports whether a fresh beat exists for the match. The
// second return is false when Redis was unreachable, in which case the
// caller must not treat the match as stale.
func (c *Cache) IsServerAlive(ctx context.Context, matchID string) (bool, bool) {
	n, err := c.rdb.Exists(ctx, heartbeatKey(matchID)).Result()
	if err != nil {
		log.Printf("Failed to check heartbeat for match %s: %v", matchID, err)
		return false, false
	}
	return n > 0, true
}

// ClearHeartbeat drops the liveness record once the match is over.
func (c *Cache) ClearHeartbeat(ctx context.Context, matchID string) {
	if err := c.rdb.Del(ctx, heartbeatKey(matchID)).Err(); err != nil {
		log.Printf("Failed to clear heartbeat for match %s: %v", matchID, err)
	}
}
