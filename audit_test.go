package authcore

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *captureSink) collect(t *testing.T, max int) []AuditEvent {
	t.Helper()
	events := make([]AuditEvent, 0, max)
	timeout := time.After(2 * time.Second)
	for len(events) < max {
		select {
		case ev := <-s.events:
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

// stuckSink never returns before its delivery deadline.
type stuckSink struct {
	calls atomic.Int64
}

func (s *stuckSink) Emit(ctx context.Context, _ AuditEvent) {
	s.calls.Add(1)
	<-ctx.Done()
}

func enableAudit(buffer int) func(*Config) {
	return func(cfg *Config) {
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = buffer
	}
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	h := newTestEngineWithSink(t, sink)
	h.seedVerifiedUser(t, "alice@example.com", "correct-password-123")

	_, _ = h.engine.Login(h.request("203.0.113.1", "agent-1"), "alice@example.com", "wrong-password")
	h.engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditEnabledSinkReceivesEventWithFields(t *testing.T) {
	sink := newCaptureSink(8)
	h := newTestEngineWithSink(t, sink, enableAudit(16))
	u := h.seedVerifiedUser(t, "alice@example.com", "correct-password-123")

	_, _ = h.engine.Login(h.request("198.51.100.33", "agent-1"), "alice@example.com", "super-secret-password")

	select {
	case ev := <-sink.events:
		if ev.EventType != AuditLogin || ev.Success {
			t.Fatalf("expected failed login event, got %+v", ev)
		}
		if ev.IP != "198.51.100.33" {
			t.Fatalf("expected IP 198.51.100.33, got %q", ev.IP)
		}
		if ev.UserID != "" && ev.UserID != u.ID {
			t.Fatalf("unexpected user id %q", ev.UserID)
		}
		if ev.Error != "Wrong password" {
			t.Fatalf("expected public error message, got %q", ev.Error)
		}
		if ev.Kind != "unauthorized" {
			t.Fatalf("expected unauthorized kind, got %q", ev.Kind)
		}
		if !ev.Timestamp.Equal(testEpoch) {
			t.Fatalf("expected engine clock timestamp, got %v", ev.Timestamp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event to be received")
	}
}

func TestAuditRateLimitedEvent(t *testing.T) {
	sink := newCaptureSink(16)
	h := newTestEngineWithSink(t, sink, enableAudit(16))
	h.seedVerifiedUser(t, "alice@example.com", "correct-password-123")
	ctx := h.request("198.51.100.7", "agent-1")

	for i := 0; i < 4; i++ {
		_, _ = h.engine.Login(ctx, "alice@example.com", "wrong")
	}

	var limited *AuditEvent
	for _, ev := range sink.collect(t, 4) {
		if ev.EventType == AuditRateLimited {
			ev := ev
			limited = &ev
		}
	}
	if limited == nil {
		t.Fatal("expected a rate_limited event")
	}
	if limited.Metadata["purpose"] != "login" {
		t.Fatalf("expected login purpose, got %+v", limited.Metadata)
	}
	if !strings.HasPrefix(limited.Error, "Max tries reached") {
		t.Fatalf("unexpected error text %q", limited.Error)
	}
	if limited.Kind != "too_many_attempts" {
		t.Fatalf("expected too_many_attempts kind, got %q", limited.Kind)
	}
}

func TestAuditQueueFullDropsWithoutBlocking(t *testing.T) {
	sink := newGateSink()
	q := startAuditQueue(sink, 1, time.Second)
	defer func() {
		close(sink.gate)
		q.Close()
	}()

	// One event is held by the gated sink, one fills the buffer.
	q.Enqueue(AuditEvent{EventType: AuditLogin})
	time.Sleep(20 * time.Millisecond)
	q.Enqueue(AuditEvent{EventType: AuditLogin})

	start := time.Now()
	if q.Enqueue(AuditEvent{EventType: AuditLogin}) {
		t.Fatal("expected full queue to reject the event")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected enqueue on a full queue to return immediately")
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected one dropped event, got %d", q.Dropped())
	}
}

func TestAuditQueueCloseBoundedByDeliveryTimeout(t *testing.T) {
	sink := &stuckSink{}
	q := startAuditQueue(sink, 4, 20*time.Millisecond)

	q.Enqueue(AuditEvent{EventType: AuditRefresh})
	q.Enqueue(AuditEvent{EventType: AuditRefresh})

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Close to return once each delivery hits its deadline")
	}
	if got := sink.calls.Load(); got != 2 {
		t.Fatalf("expected queued events to be delivered before stop, got %d", got)
	}
}

func TestEngineAuditDroppedReportsQueueDrops(t *testing.T) {
	sink := newGateSink()
	h := newTestEngineWithSink(t, sink, enableAudit(1))
	defer close(sink.gate)
	h.seedVerifiedUser(t, "alice@example.com", "correct-password-123")
	ctx := h.request("192.0.2.10", "agent-1")

	for i := 0; i < 3; i++ {
		_, _ = h.engine.Login(ctx, "alice@example.com", "wrong")
	}
	if h.engine.AuditDropped() == 0 {
		t.Fatal("expected drops while the sink is stalled")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: AuditLogin,
		UserID:    "u1",
		IP:        "127.0.0.1",
		Success:   true,
	})

	if !buf.Contains(`"event_type":"login"`) {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains(`"user_id":"u1"`) {
		t.Fatal("expected JSON log line to contain user id")
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatal("expected newline-terminated record")
	}
}

func TestAuditQueueCloseIdempotentAndEnqueueAfterCloseIgnored(t *testing.T) {
	sink := &countingSink{}
	q := newAuditQueue(AuditConfig{Enabled: true, BufferSize: 4}, sink)

	q.Enqueue(AuditEvent{EventType: AuditLogin})
	q.Close()
	q.Close()

	if q.Enqueue(AuditEvent{EventType: AuditLogin}) {
		t.Fatal("expected enqueue after close to be rejected")
	}
	if sink.Count() != 1 {
		t.Fatalf("expected queued event delivered on close, got %d", sink.Count())
	}
	if q.Dropped() != 0 {
		t.Fatalf("events after close are not drops, got %d", q.Dropped())
	}
}

func TestAuditQueueDisabled(t *testing.T) {
	if q := newAuditQueue(AuditConfig{BufferSize: 8}, &countingSink{}); q != nil {
		t.Fatal("expected no queue when audit is disabled")
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	sink := newCaptureSink(32)
	h := newTestEngineWithSink(t, sink, enableAudit(32))

	sensitivePassword := "correct-password-123"
	u := h.seedVerifiedUser(t, "alice@example.com", sensitivePassword)
	ctx := h.request("10.0.0.1", "agent-1")

	pair, err := h.engine.Login(ctx, "alice@example.com", sensitivePassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	needles := []string{sensitivePassword, pair.RefreshToken, pair.AccessToken, u.PasswordHash}

	events := sink.collect(t, 2)
	if len(events) == 0 {
		t.Fatal("expected at least one audit event")
	}

	for _, ev := range events {
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field: %q", needle)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata: %q", needle)
				}
			}
		}
	}
}

func TestSlogSinkWritesRecord(t *testing.T) {
	var buf syncBuffer
	sink := NewSlogSink(newJSONLogger(&buf))
	sink.Emit(context.Background(), AuditEvent{
		EventType: AuditRefreshReplay,
		UserID:    "u1",
		Error:     "There is no existing session of Refresh Token",
	})

	for _, want := range []string{`"msg":"audit"`, `"event":"refresh_replay"`, `"user_id":"u1"`} {
		if !buf.Contains(want) {
			t.Fatalf("expected %s in %s", want, buf.String())
		}
	}
}

func TestAuditLogoutAllCountsRevokedSessions(t *testing.T) {
	sink := newCaptureSink(16)
	h := newTestEngineWithSink(t, sink, enableAudit(16))
	u := h.seedVerifiedUser(t, "alice@example.com", "correct-password-123")

	for i, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		if _, err := h.engine.Login(h.request(ip, "agent-1"), "alice@example.com", "correct-password-123"); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
	if err := h.engine.LogoutAll(h.request("10.0.0.1", "agent-1"), u.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}

	var logout *AuditEvent
	for _, ev := range sink.collect(t, 3) {
		if ev.EventType == AuditLogoutAll {
			ev := ev
			logout = &ev
		}
	}
	if logout == nil {
		t.Fatal("expected a logout_all event")
	}
	if logout.Metadata["sessions"] != "2" {
		t.Fatalf("expected two revoked sessions, got %+v", logout.Metadata)
	}
}
