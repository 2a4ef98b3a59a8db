package presence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL = 2 * time.Minute
	keyPrefix  = "arena:presence:"
)

// compare-and-expire and compare-and-delete on the session id
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Redis shares presence between server instances. Claims expire after ttl
// unless refreshed, so a crashed instance does not lock identities out.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func (s *Redis) key(playerID string) string { return keyPrefix + strings.TrimSpace(playerID) }

func (s *Redis) Acquire(ctx context.Context, playerID, sessionID string) error {
	ok, err := s.rdb.SetNX(ctx, s.key(playerID), sessionID, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("presence acquire: %w", err)
	}
	if ok {
		return nil
	}
	held, err := s.rdb.Get(ctx, s.key(playerID)).Result()
	if err == redis.Nil {
		// expired between the two calls
		return s.Acquire(ctx, playerID, sessionID)
	}
	if err != nil {
		return fmt.Errorf("presence acquire: %w", err)
	}
	if held != sessionID {
		return ErrAlreadyOnline
	}
	return s.Refresh(ctx, playerID, sessionID)
}

func (s *Redis) Refresh(ctx context.Context, playerID, sessionID string) error {
	n, err := refreshScript.Run(ctx, s.rdb, []string{s.key(playerID)}, sessionID, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("presence refresh: %w", err)
	}
	if n == 0 {
		return ErrAlreadyOnline
	}
	return nil
}

func (s *Redis) Release(ctx context.Context, playerID, sessionID string) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{s.key(playerID)}, sessionID).Err(); err != nil {
		return fmt.Errorf("presence release: %w", err)
	}
	return nil
}

func (s *Redis) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("presence count: %w", err)
	}
	return n, nil
}
