// Command authcore-loadtest measures Authorize and Refresh throughput of
// an Engine backed by Redis (or an in-process miniredis) and the memory
// user store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/mail"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/userstore/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	seedPassword = "load-test-password"
	agent        = "authcore-loadtest/1.0"
)

type sessionState struct {
	mu      sync.Mutex
	ctx     context.Context
	access  string
	refresh string
}

func main() {
	var (
		users       = flag.Int("users", 2000, "number of accounts to seed and log in")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (authorize + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "redis key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	client, cleanup, err := redisClient(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engine, store, err := buildEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d sessions...\n", *users)
	startSeed := time.Now()
	states, err := seed(store, engine, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authorizeStats := runPhase(states, *ops, *concurrency, func(s *sessionState) error {
		_, err := engine.Authorize(s.ctx, "Bearer "+s.access)
		return err
	})
	refreshStats := runPhase(states, *ops, *concurrency, func(s *sessionState) error {
		pair, err := engine.Refresh(s.ctx, s.refresh)
		if err != nil {
			return err
		}
		s.access, s.refresh = pair.AccessToken, pair.RefreshToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("authorize", authorizeStats)
	printStats("refresh", refreshStats)
	fmt.Printf("replays detected: %d\n", engine.MetricsSnapshot().Counters[authcore.MetricReplayDetected])
}

func redisClient(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildEngine(client redis.UniversalClient, prefix string) (*authcore.Engine, *memory.Store, error) {
	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessSecret = "loadtest-access"
	cfg.JWT.RefreshSecret = "loadtest-refresh"
	cfg.Redis.Prefix = prefix
	cfg.Password = authcore.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Metrics.Enabled = true

	store := memory.New()
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(store).
		WithMailer(mail.NewLog(slog.New(slog.NewTextHandler(io.Discard, nil)))).
		Build()
	return engine, store, err
}

// seed creates verified accounts directly in the store, sharing one
// password hash, then logs each in from its own address so no attempt
// policy is hit.
func seed(store *memory.Store, engine *authcore.Engine, n int) ([]*sessionState, error) {
	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(seedPassword)
	if err != nil {
		return nil, err
	}

	states := make([]*sessionState, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("user-%d@loadtest.local", i)
		if _, err := store.Create(context.Background(), &authcore.User{
			ID:           uuid.NewString(),
			Email:        email,
			PasswordHash: hash,
			Role:         authcore.DefaultRole,
			Verified:     true,
		}); err != nil {
			return nil, err
		}

		ctx := authcore.WithClientIP(context.Background(), fmt.Sprintf("10.%d.%d.%d", i>>16&0xff, i>>8&0xff, i&0xff))
		ctx = authcore.WithFingerprint(ctx, agent)
		pair, err := engine.Login(ctx, email, seedPassword)
		if err != nil {
			return nil, fmt.Errorf("login %s: %w", email, err)
		}
		states[i] = &sessionState{ctx: ctx, access: pair.AccessToken, refresh: pair.RefreshToken}
	}
	return states, nil
}

// runPhase calls op on random sessions. A session is held exclusively
// for the duration of op so refresh tokens are never redeemed twice.
func runPhase(states []*sessionState, ops, concurrency int, op func(*sessionState) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				state := states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				err := op(state)
				d := time.Since(t0)
				state.mu.Unlock()

				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	switch {
	case len(samples) == 0:
		return 0
	case p <= 0:
		return samples[0]
	case p >= 100:
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
