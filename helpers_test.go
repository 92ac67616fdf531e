package authcore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/thejerf/abtime"
)

var testEpoch = time.Unix(1700000000, 0).UTC()

type mockUserStore struct {
	mu      sync.Mutex
	byID    map[string]*User
	n       atomic.Int64
	failErr error
	// updateErr fails Update only.
	updateErr error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{byID: map[string]*User{}}
}

func (s *mockUserStore) calls() int64 { return s.n.Load() }

func (s *mockUserStore) Create(_ context.Context, u *User) (*User, error) {
	s.n.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	for _, existing := range s.byID {
		if existing.Email == u.Email {
			return nil, ErrEmailTaken
		}
	}
	cp := *u
	s.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *mockUserStore) FindByID(_ context.Context, id string) (*User, error) {
	s.n.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *mockUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.n.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	for _, u := range s.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *mockUserStore) Update(_ context.Context, u *User) (*User, error) {
	s.n.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	if _, ok := s.byID[u.ID]; !ok {
		return nil, ErrUserNotFound
	}
	for id, existing := range s.byID {
		if id != u.ID && existing.Email == u.Email {
			return nil, ErrEmailTaken
		}
	}
	cp := *u
	s.byID[u.ID] = &cp
	out := cp
	return &out, nil
}

func (s *mockUserStore) get(id string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.byID[id]
	return &cp
}

type sentMail struct {
	To       string
	Template string
	Data     MailData
}

type mockMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *mockMailer) Send(_ context.Context, to, template string, data MailData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Template: template, Data: data})
	return nil
}

func (m *mockMailer) last(t *testing.T, template string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Template == template {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail sent", template)
	return sentMail{}
}

func (m *mockMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockVerifier struct {
	calls   atomic.Int64
	profile FederatedProfile
	err     error
	onCall  func()
}

func (v *mockVerifier) Verify(context.Context, string) (FederatedProfile, error) {
	v.calls.Add(1)
	if v.onCall != nil {
		v.onCall()
	}
	return v.profile, v.err
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(v string) bool {
	return strings.Contains(b.String(), v)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newJSONLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}

type testHarness struct {
	engine *Engine
	mr     *miniredis.Miniredis
	clock  *abtime.ManualTime
	users  *mockUserStore
	mail   *mockMailer
	fed    *mockVerifier
	logs   *syncBuffer
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = "access-secret"
	cfg.JWT.RefreshSecret = "refresh-secret"
	cfg.Federated.ClientID = "client-1"
	cfg.Redis.Prefix = "test"
	cfg.Password = PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func newTestEngine(t *testing.T, mutate ...func(*Config)) *testHarness {
	t.Helper()
	return newTestEngineWithSink(t, nil, mutate...)
}

func newTestEngineWithSink(t *testing.T, sink AuditSink, mutate ...func(*Config)) *testHarness {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	mr, rdb := newTestRedis(t)
	h := &testHarness{
		mr:    mr,
		clock: abtime.NewManualAtTime(testEpoch),
		users: newMockUserStore(),
		mail:  &mockMailer{},
		fed:   &mockVerifier{},
		logs:  &syncBuffer{},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(h.users).
		WithMailer(h.mail).
		WithIdentityVerifier(h.fed).
		WithLogger(newJSONLogger(h.logs)).
		WithClock(h.clock).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	h.engine = engine
	return h
}

func (h *testHarness) request(ip, fp string) context.Context {
	return WithFingerprint(WithClientIP(context.Background(), ip), fp)
}

func (h *testHarness) seedUser(t *testing.T, email, plain string, verified bool) *User {
	t.Helper()
	hash := ""
	if plain != "" {
		var err error
		hash, err = h.engine.passwordHash.Hash(plain)
		if err != nil {
			t.Fatalf("hash failed: %v", err)
		}
	}
	u, err := h.users.Create(context.Background(), &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         DefaultRole,
		Verified:     verified,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (h *testHarness) seedVerifiedUser(t *testing.T, email, plain string) *User {
	t.Helper()
	return h.seedUser(t, email, plain, true)
}

func assertKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error of kind %v, got %T %v", want, err, err)
	}
	if e.Kind != want {
		t.Fatalf("expected kind %v, got %v (%v)", want, e.Kind, e)
	}
	return e
}
