package stores

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thejerf/abtime"
)

// consumeCodeLua deletes the record only when the stored code matches.
// KEYS[1] = code key
// ARGV[1] = presented code
// Returns 1 on consume, 0 when absent, -1 on mismatch.
var consumeCodeLua = redis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'code')
if not stored then
  return 0
end
if stored ~= ARGV[1] then
  return -1
end
redis.call('DEL', KEYS[1])
return 1
`)

// restoreCodeLua writes a record only when no code is stored for the pair.
// KEYS[1] = code key
// ARGV[1] = code
// ARGV[2] = expiry (unix ms)
// ARGV[3] = ttl (ms)
var restoreCodeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'code', ARGV[1], 'exp', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// VerificationRecord is the single live code for one (user, purpose).
type VerificationRecord struct {
	UserID    string
	Purpose   string
	Code      string
	ExpiresAt time.Time
}

// VerificationStore persists one code per (user, purpose). Records outlive
// their expiry by the retention grace so an expired code is still
// distinguishable from a missing one.
type VerificationStore struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	clock     abtime.AbstractTime
}

func NewVerificationStore(client redis.UniversalClient, prefix string, retention time.Duration, clock abtime.AbstractTime) *VerificationStore {
	if prefix == "" {
		prefix = "ac"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &VerificationStore{redis: client, prefix: prefix, retention: retention, clock: clock}
}

func (s *VerificationStore) key(purpose, userID string) string {
	return s.prefix + ":vc:" + purpose + ":" + userID
}

// Save upserts record, replacing any previous code for the same pair.
func (s *VerificationStore) Save(ctx context.Context, record *VerificationRecord) error {
	key := s.key(record.Purpose, record.UserID)
	ttl := s.ttl(record)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "code", record.Code, "exp", record.ExpiresAt.UnixMilli())
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Restore writes record unless the pair already holds a code.
func (s *VerificationStore) Restore(ctx context.Context, record *VerificationRecord) error {
	err := restoreCodeLua.Run(ctx, s.redis,
		[]string{s.key(record.Purpose, record.UserID)},
		record.Code,
		record.ExpiresAt.UnixMilli(),
		s.ttl(record).Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *VerificationStore) ttl(record *VerificationRecord) time.Duration {
	ttl := record.ExpiresAt.Add(s.retention).Sub(s.clock.Now())
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	return ttl
}

// Load returns the stored record for (userID, purpose).
func (s *VerificationStore) Load(ctx context.Context, userID, purpose string) (*VerificationRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(purpose, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	code, ok := fields["code"]
	if !ok {
		return nil, ErrVerificationNotFound
	}
	exp, err := strconv.ParseInt(fields["exp"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt expiry %q", ErrRedisUnavailable, fields["exp"])
	}
	return &VerificationRecord{
		UserID:    userID,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: time.UnixMilli(exp),
	}, nil
}

// Consume deletes the record iff its code equals code.
func (s *VerificationStore) Consume(ctx context.Context, userID, purpose, code string) error {
	result, err := consumeCodeLua.Run(ctx, s.redis, []string{s.key(purpose, userID)}, code).Int()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	switch result {
	case 1:
		return nil
	case 0:
		return ErrVerificationNotFound
	default:
		return ErrVerificationMismatch
	}
}

// Delete removes the record for (userID, purpose).
func (s *VerificationStore) Delete(ctx context.Context, userID, purpose string) error {
	if err := s.redis.Del(ctx, s.key(purpose, userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// CodesEqual compares two codes in constant time.
func CodesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
