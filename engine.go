package authcore

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/identity"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/verification"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/google/uuid"
	"github.com/thejerf/abtime"
)

// Engine implements every account and session operation. It is safe for
// concurrent use once built; all shared state lives in Redis and the
// UserStore.
type Engine struct {
	config       Config
	users        UserStore
	mailer       Mailer
	verifier     IdentityVerifier
	log          *slog.Logger
	clock        abtime.AbstractTime
	passwordHash *password.Argon2
	codec        *jwt.Codec
	resolver     *identity.Resolver
	guard        *rate.Guard
	codes        *verification.Issuer
	sessions     *flows.Sessions
	audit        *auditQueue
	metrics      *Metrics
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		mapped := classify(err)
		event.Kind = mapped.Kind.String()
		_, event.Error = Public(mapped)
	}

	if !e.audit.Enqueue(event) {
		e.log.DebugContext(ctx, "audit event dropped", slog.String("event", eventType))
	}
}

// fail converts err into the *Error returned to callers. Internal kinds
// are logged with their cause and masked.
func (e *Engine) fail(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}

	mapped := classify(err)
	if mapped.Kind.Internal() {
		e.metricInc(MetricUpstreamFailure)
		e.log.ErrorContext(ctx, "operation failed",
			slog.String("op", op),
			slog.String("ip", clientIPFromContext(ctx)),
			slog.String("error", err.Error()),
		)
		return &Error{Kind: mapped.Kind, Message: InternalMessage, Cause: err}
	}
	return mapped
}

func classify(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	var limit *rate.LimitError
	if errors.As(err, &limit) {
		return tooManyAttempts(limit.RetryAfter)
	}

	switch {
	case errors.Is(err, identity.ErrEmailNotRegistered):
		return ErrEmailNotRegistered
	case errors.Is(err, identity.ErrEmailNotVerified):
		return ErrEmailNotVerified
	case errors.Is(err, identity.ErrPasswordNotSet):
		return ErrPasswordNotSet
	case errors.Is(err, identity.ErrWrongPassword):
		return ErrWrongPassword

	case errors.Is(err, verification.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, verification.ErrCodeMismatch):
		return ErrCodeMismatch
	case errors.Is(err, verification.ErrCodeExpired):
		return ErrCodeExpired

	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalid), errors.Is(err, flows.ErrSubjectMismatch):
		return ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrConfig):
		return &Error{Kind: KindConfig, Message: InternalMessage, Cause: err}
	case errors.Is(err, flows.ErrSessionNotFound):
		return ErrSessionNotFound

	case errors.Is(err, ErrUserNotFound):
		return ErrAccountNotFound
	case errors.Is(err, ErrEmailTaken):
		return ErrEmailAlreadyRegistered
	case errors.Is(err, ErrFederatedTokenInvalid):
		return ErrFederatedInvalid
	case errors.Is(err, ErrFederatedAudienceMismatch):
		return ErrFederatedAudience
	case errors.Is(err, password.ErrEmptyPassword):
		return validationError("password must not be empty")
	}

	return upstreamError(err)
}

// checkAttempt runs the rate guard for the caller's address.
func (e *Engine) checkAttempt(ctx context.Context, purpose rate.Purpose, policy LimitPolicy) (*rate.Attempt, error) {
	attempt, err := e.guard.Check(ctx, clientIPFromContext(ctx), purpose, rate.Policy{Max: policy.Max, Window: policy.Window})
	if err == nil {
		return attempt, nil
	}

	var limit *rate.LimitError
	if errors.As(err, &limit) {
		e.metricInc(MetricRateLimitHit)
		e.log.WarnContext(ctx, "attempt throttled",
			slog.String("purpose", string(purpose)),
			slog.String("ip", clientIPFromContext(ctx)),
			slog.Duration("retry_after", limit.RetryAfter),
		)
		e.emitAudit(ctx, AuditRateLimited, false, "", err, map[string]string{"purpose": string(purpose)})
	}
	return nil, err
}

// settle applies failure/success accounting to attempt: a failure records
// an attempt, a success resets the counter. Accounting errors are logged
// and never replace the operation's own result.
func (e *Engine) settle(ctx context.Context, attempt *rate.Attempt, opErr error) {
	if attempt == nil {
		return
	}

	var err error
	if opErr != nil {
		err = attempt.RecordAttempt(ctx)
	} else {
		err = attempt.Reset(ctx)
	}
	if err != nil {
		e.log.ErrorContext(ctx, "attempt accounting failed",
			slog.String("purpose", string(attempt.Purpose)),
			slog.String("ip", attempt.Address),
			slog.String("error", err.Error()),
		)
	}
}

// recordOnSuccess counts a successful request against attempt; used by
// the mail-sending endpoints.
func (e *Engine) recordOnSuccess(ctx context.Context, attempt *rate.Attempt, opErr error) {
	if attempt == nil || opErr != nil {
		return
	}
	if err := attempt.RecordAttempt(ctx); err != nil {
		e.log.ErrorContext(ctx, "attempt accounting failed",
			slog.String("purpose", string(attempt.Purpose)),
			slog.String("ip", attempt.Address),
			slog.String("error", err.Error()),
		)
	}
}

func validEmail(email string) bool {
	if strings.TrimSpace(email) != email || email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func principalOf(u *User) flows.Principal {
	return flows.Principal{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// identityStore adapts UserStore to the resolver.
type identityStore struct {
	users UserStore
	clock abtime.AbstractTime
}

func (s *identityStore) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return accountOf(u), nil
}

func (s *identityStore) CreateFederated(ctx context.Context, a identity.Account) (*identity.Account, error) {
	now := s.clock.Now().UTC()
	u, err := s.users.Create(ctx, &User{
		ID:        uuid.NewString(),
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Role:      a.Role,
		Verified:  a.Verified,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return accountOf(u), nil
}

func accountOf(u *User) *identity.Account {
	return &identity.Account{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Verified:     u.Verified,
	}
}

func principalOfAccount(a *identity.Account) flows.Principal {
	return flows.Principal{UserID: a.ID, Email: a.Email, Role: a.Role}
}
