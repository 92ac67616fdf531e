package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thejerf/abtime"
)

// pruneLedgerLua drops entries created at least one ttl ago. Shared by the
// write scripts so an active user's ledger only holds live tokens.
// Expects KEYS[1] = ledger key, now and ttl as numbers.
const pruneLedgerLua = `
local function prune(key, now, ttl)
  local entries = redis.call('HGETALL', key)
  for i = 1, #entries, 2 do
    local value = entries[i + 1]
    local sep = string.find(value, ':', 1, true)
    local created = tonumber(sep and string.sub(value, 1, sep - 1) or value)
    if created == nil or created + ttl <= now then
      redis.call('HDEL', key, entries[i])
    end
  end
end
`

// upsertRefreshLua writes one ledger entry, keeping the original creation
// time, and widens the key TTL when needed.
// KEYS[1] = ledger key
// ARGV[1] = token hash
// ARGV[2] = now (unix ms)
// ARGV[3] = ttl (ms)
var upsertRefreshLua = redis.NewScript(pruneLedgerLua + `
local now = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local created = ARGV[2]
local existing = redis.call('HGET', KEYS[1], ARGV[1])
if existing then
  local sep = string.find(existing, ':', 1, true)
  if sep then
    created = string.sub(existing, 1, sep - 1)
  end
end
prune(KEYS[1], now, ttl)
redis.call('HSET', KEYS[1], ARGV[1], created .. ':' .. ARGV[2])
local pttl = redis.call('PTTL', KEYS[1])
if pttl < ttl then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// rotateRefreshLua swaps the presented hash for the replacement. A missing
// presented hash means replay: the whole ledger is dropped and 0 returned.
// KEYS[1] = ledger key
// ARGV[1] = presented hash
// ARGV[2] = replacement hash
// ARGV[3] = now (unix ms)
// ARGV[4] = ttl (ms)
var rotateRefreshLua = redis.NewScript(pruneLedgerLua + `
local removed = redis.call('HDEL', KEYS[1], ARGV[1])
if removed == 0 then
  redis.call('DEL', KEYS[1])
  return 0
end
local ttl = tonumber(ARGV[4])
prune(KEYS[1], tonumber(ARGV[3]), ttl)
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3] .. ':' .. ARGV[3])
local pttl = redis.call('PTTL', KEYS[1])
if pttl < ttl then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// RefreshTokenStore keeps the set of live refresh-token hashes per user.
type RefreshTokenStore struct {
	redis  redis.UniversalClient
	prefix string
	clock  abtime.AbstractTime
}

func NewRefreshTokenStore(client redis.UniversalClient, prefix string, clock abtime.AbstractTime) *RefreshTokenStore {
	if prefix == "" {
		prefix = "ac"
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &RefreshTokenStore{redis: client, prefix: prefix, clock: clock}
}

func (s *RefreshTokenStore) key(userID string) string {
	return s.prefix + ":rt:" + userID
}

// Upsert inserts or refreshes the entry for (userID, tokenHash).
func (s *RefreshTokenStore) Upsert(ctx context.Context, userID, tokenHash string, ttl time.Duration) error {
	now := s.clock.Now().UnixMilli()
	if err := upsertRefreshLua.Run(ctx, s.redis, []string{s.key(userID)}, tokenHash, now, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAll removes every entry for userID.
func (s *RefreshTokenStore) DeleteAll(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rotate atomically replaces presentedHash with replacementHash. When
// presentedHash is absent every entry of the user is removed and
// ErrRefreshTokenNotFound returned.
func (s *RefreshTokenStore) Rotate(ctx context.Context, userID, presentedHash, replacementHash string, ttl time.Duration) error {
	now := s.clock.Now().UnixMilli()
	result, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{s.key(userID)},
		presentedHash,
		replacementHash,
		now,
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if result == 0 {
		return ErrRefreshTokenNotFound
	}
	return nil
}

// Count returns the number of live entries for userID.
func (s *RefreshTokenStore) Count(ctx context.Context, userID string) (int, error) {
	n, err := s.redis.HLen(ctx, s.key(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}
