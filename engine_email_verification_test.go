package authcore

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func registerUnverified(t *testing.T, h *testHarness, email string) (*User, string) {
	t.Helper()
	u, err := h.engine.Register(h.request("10.9.9.9", "agent-1"), validRegisterInput(email))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return u, h.mail.last(t, TemplateEmailVerification).Data.Code
}

func otherCode(code string) string {
	if code[0] == '9' {
		return "0" + code[1:]
	}
	return string([]byte{code[0] + 1}) + code[1:]
}

func TestConfirmEmailVerificationSingleUse(t *testing.T) {
	h := newTestEngine(t)
	u, code := registerUnverified(t, h, "ada@example.com")
	ctx := h.request("10.0.0.1", "agent-1")

	if err := h.engine.ConfirmEmailVerification(ctx, "ada@example.com", code); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !h.users.get(u.ID).Verified {
		t.Fatal("expected account to be verified")
	}
	if h.mr.Exists("test:vc:email_verification:" + u.ID) {
		t.Fatal("expected code to be consumed")
	}

	err := h.engine.ConfirmEmailVerification(ctx, "ada@example.com", code)
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound on second use, got %v", err)
	}
	if status, _ := Public(err); status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestConfirmEmailVerificationErrors(t *testing.T) {
	h := newTestEngine(t)
	_, code := registerUnverified(t, h, "ada@example.com")

	err := h.engine.ConfirmEmailVerification(h.request("10.0.0.1", "agent-1"), "ada@example.com", otherCode(code))
	if !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	if status, msg := Public(err); status != 400 || msg != "Verification Token is invalid" {
		t.Fatalf("unexpected public error %d %q", status, msg)
	}

	h.clock.Advance(15 * time.Minute)
	err = h.engine.ConfirmEmailVerification(h.request("10.0.0.2", "agent-1"), "ada@example.com", code)
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired at the expiry instant, got %v", err)
	}

	err = h.engine.ConfirmEmailVerification(h.request("10.0.0.3", "agent-1"), "nobody@example.com", code)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	err = h.engine.ConfirmEmailVerification(h.request("10.0.0.4", "agent-1"), "ada@example.com", "")
	assertKind(t, err, KindValidation)
}

func TestConfirmEmailVerificationAlreadyVerified(t *testing.T) {
	h := newTestEngine(t)
	u, code := registerUnverified(t, h, "ada@example.com")

	// Verified out of band while the code is still live.
	stored := h.users.get(u.ID)
	stored.Verified = true
	if _, err := h.users.Update(h.request("", ""), stored); err != nil {
		t.Fatalf("update: %v", err)
	}

	err := h.engine.ConfirmEmailVerification(h.request("10.0.0.1", "agent-1"), "ada@example.com", code)
	if !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected ErrEmailAlreadyVerified, got %v", err)
	}
}

func TestConfirmEmailVerificationAccounting(t *testing.T) {
	h := newTestEngine(t)
	_, code := registerUnverified(t, h, "ada@example.com")
	ctx := h.request("10.0.0.1", "agent-1")

	for i := 0; i < 3; i++ {
		if err := h.engine.ConfirmEmailVerification(ctx, "ada@example.com", otherCode(code)); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i+1, err)
		}
	}
	if err := h.engine.ConfirmEmailVerification(ctx, "ada@example.com", code); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected lockout, got %v", err)
	}

	h.clock.Advance(15 * time.Second)
	if err := h.engine.ConfirmEmailVerification(ctx, "ada@example.com", code); err != nil {
		t.Fatalf("confirm after window: %v", err)
	}
	if h.mr.Exists("test:at:email_verification:10.0.0.1") {
		t.Fatal("successful confirmation must reset the counter")
	}
}

func TestRequestEmailVerificationRecordsSuccess(t *testing.T) {
	h := newTestEngine(t)
	registerUnverified(t, h, "ada@example.com")
	ctx := h.request("10.0.0.1", "agent-1")

	// Failed requests are not counted.
	if err := h.engine.RequestEmailVerification(ctx, "nobody@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	if err := h.engine.RequestEmailVerification(ctx, "ada@example.com"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	sent := h.mail.count()

	err := h.engine.RequestEmailVerification(ctx, "ada@example.com")
	e := assertKind(t, err, KindTooManyAttempts)
	if e.RetryAfter != time.Minute {
		t.Fatalf("expected 60s wait, got %v", e.RetryAfter)
	}
	if h.mail.count() != sent {
		t.Fatal("throttled request must not send mail")
	}

	h.clock.Advance(time.Minute)
	if err := h.engine.RequestEmailVerification(ctx, "ada@example.com"); err != nil {
		t.Fatalf("request after window: %v", err)
	}
}

func TestRequestEmailVerificationAlreadyVerified(t *testing.T) {
	h := newTestEngine(t)
	h.seedVerifiedUser(t, "a@example.com", "pw")

	err := h.engine.RequestEmailVerification(h.request("10.0.0.1", "agent-1"), "a@example.com")
	if !errors.Is(err, ErrEmailAlreadyVerified) {
		t.Fatalf("expected ErrEmailAlreadyVerified, got %v", err)
	}
	if h.mail.count() != 0 {
		t.Fatal("no mail expected")
	}
}

func TestReissuedCodeSupersedesPrevious(t *testing.T) {
	h := newTestEngine(t)
	_, first := registerUnverified(t, h, "ada@example.com")

	second := first
	for i := 0; second == first && i < 5; i++ {
		if err := h.engine.RequestEmailVerification(h.request(fmt.Sprintf("10.0.2.%d", i), "agent-1"), "ada@example.com"); err != nil {
			t.Fatalf("request: %v", err)
		}
		second = h.mail.last(t, TemplateEmailVerification).Data.Code
	}
	if second == first {
		t.Fatal("expected a different code after re-issuance")
	}

	err := h.engine.ConfirmEmailVerification(h.request("10.0.0.1", "agent-1"), "ada@example.com", first)
	if !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch for superseded code, got %v", err)
	}
	if err := h.engine.ConfirmEmailVerification(h.request("10.0.0.2", "agent-1"), "ada@example.com", second); err != nil {
		t.Fatalf("confirm latest code: %v", err)
	}
}

func TestConfirmEmailVerificationRestoresCodeWhenUpdateFails(t *testing.T) {
	h := newTestEngine(t)
	u, code := registerUnverified(t, h, "ada@example.com")

	h.users.updateErr = errors.New("db error: connection reset")
	if err := h.engine.ConfirmEmailVerification(h.request("10.0.0.1", "agent-1"), "ada@example.com", code); KindOf(err) != KindUpstream {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	if !h.mr.Exists("test:vc:email_verification:" + u.ID) {
		t.Fatal("expected code to be put back")
	}

	h.users.updateErr = nil
	if err := h.engine.ConfirmEmailVerification(h.request("10.0.0.2", "agent-1"), "ada@example.com", code); err != nil {
		t.Fatalf("confirm retry: %v", err)
	}
	if !h.users.get(u.ID).Verified {
		t.Fatal("expected account to be verified")
	}
}

func TestConfirmEmailVerificationWrongLengthIsMismatch(t *testing.T) {
	h := newTestEngine(t)
	registerUnverified(t, h, "ada@example.com")

	err := h.engine.ConfirmEmailVerification(h.request("10.0.0.1", "agent-1"), "ada@example.com", "12345")
	if !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	if got := h.mr.HGet("test:at:email_verification:10.0.0.1", "count"); got != "1" {
		t.Fatalf("expected the attempt to be recorded, count = %q", got)
	}
}
