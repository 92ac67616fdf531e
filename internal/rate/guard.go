package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thejerf/abtime"
)

// Purpose scopes a counter to one operation.
type Purpose string

const (
	PurposeLogin             Purpose = "login"
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// Policy is supplied per call site.
type Policy struct {
	Max    int
	Window time.Duration
}

// recordAttemptLua increments the counter and stamps the attempt time in one step.
// KEYS[1] = counter key
// ARGV[1] = now (unix ms)
var recordAttemptLua = redis.NewScript(`
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSET', KEYS[1], 'last', ARGV[1])
return count
`)

// Guard evaluates and mutates attempt counters in Redis.
type Guard struct {
	redis  redis.UniversalClient
	prefix string
	clock  abtime.AbstractTime
}

// New creates a Guard. An empty prefix defaults to "ac".
func New(client redis.UniversalClient, prefix string, clock abtime.AbstractTime) *Guard {
	if prefix == "" {
		prefix = "ac"
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Guard{redis: client, prefix: prefix, clock: clock}
}

// Attempt is the accounting capability handed out by a permitted Check. The
// caller records on failure and resets on success once the guarded
// operation resolves.
type Attempt struct {
	guard   *Guard
	key     string
	Purpose Purpose
	Address string
}

// Check decides whether address may perform purpose under policy. A nil
// error comes with the Attempt used for post-operation accounting; a
// lockout returns a *LimitError.
func (g *Guard) Check(ctx context.Context, address string, purpose Purpose, policy Policy) (*Attempt, error) {
	if policy.Max < 1 || policy.Window < 0 {
		return nil, ErrInvalidPolicy
	}

	attempt := &Attempt{guard: g, key: g.key(purpose, address), Purpose: purpose, Address: address}

	count, last, err := g.read(ctx, attempt.key)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return attempt, nil
	}

	limit := int64(policy.Max)
	tier := count / limit
	deadline := last.Add(time.Duration(tier) * policy.Window)
	now := g.clock.Now()

	if count%limit == 0 && now.Before(deadline) {
		return nil, &LimitError{Purpose: purpose, RetryAfter: roundUpSeconds(deadline.Sub(now))}
	}

	return attempt, nil
}

// RecordAttempt increments the counter, creating it at 1, and sets the last
// attempt time to now.
func (a *Attempt) RecordAttempt(ctx context.Context) error {
	now := a.guard.clock.Now().UnixMilli()
	if err := recordAttemptLua.Run(ctx, a.guard.redis, []string{a.key}, now).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Reset deletes the counter. Absent counters are a no-op.
func (a *Attempt) Reset(ctx context.Context) error {
	if err := a.guard.redis.Del(ctx, a.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (g *Guard) read(ctx context.Context, key string) (int64, time.Time, error) {
	values, err := g.redis.HMGet(ctx, key, "count", "last").Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count := parseField(values[0])
	if count <= 0 {
		return 0, time.Time{}, nil
	}
	return count, time.UnixMilli(parseField(values[1])), nil
}

func (g *Guard) key(purpose Purpose, address string) string {
	return g.prefix + ":at:" + string(purpose) + ":" + address
}

func parseField(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func roundUpSeconds(d time.Duration) time.Duration {
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}
