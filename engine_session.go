package authcore

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/verification"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/google/uuid"
)

// Register creates an unverified account and mails its first
// verification code. A mail failure is reported after the account exists;
// the caller may request another code.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	if err := validateRegister(in); err != nil {
		return nil, err
	}

	hash, err := e.passwordHash.Hash(in.Password)
	if err != nil {
		return nil, e.fail(ctx, "register", err)
	}

	now := e.clock.Now().UTC()
	created, err := e.users.Create(ctx, &User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Address:      in.Address,
		Role:         DefaultRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if KindOf(classify(err)) == KindConflict {
			e.metricInc(MetricRegisterDuplicate)
		}
		e.emitAudit(ctx, AuditRegister, false, "", err, nil)
		return nil, e.fail(ctx, "register", err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditRegister, true, created.ID, nil, nil)

	if err := e.sendCode(ctx, created, verification.PurposeEmailVerification); err != nil {
		return nil, e.fail(ctx, "register", err)
	}

	return created.public(), nil
}

func validateRegister(in RegisterInput) error {
	for _, f := range []struct{ name, value string }{
		{"email", in.Email},
		{"phone", in.Phone},
		{"password", in.Password},
		{"first_name", in.FirstName},
		{"last_name", in.LastName},
		{"address", in.Address},
	} {
		if strings.TrimSpace(f.value) == "" {
			return validationError("%s should not be empty", f.name)
		}
	}
	if !validEmail(in.Email) {
		return validationError("email must be an email")
	}
	return nil
}

// Login authenticates local credentials and starts a session bound to the
// request fingerprint. Guarded by the login attempt policy.
func (e *Engine) Login(ctx context.Context, email, password string) (TokenPair, error) {
	if e == nil || e.sessions == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	if email == "" || password == "" {
		return TokenPair{}, validationError("email and password should not be empty")
	}
	if !validEmail(email) {
		return TokenPair{}, validationError("email must be an email")
	}

	attempt, err := e.checkAttempt(ctx, rate.PurposeLogin, e.config.Limits.Login)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return TokenPair{}, e.fail(ctx, "login", err)
	}

	pair, userID, err := e.login(ctx, email, password)
	e.settle(ctx, attempt, err)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLogin, false, userID, err, nil)
		return TokenPair{}, e.fail(ctx, "login", err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLogin, true, userID, nil, nil)
	return pair, nil
}

func (e *Engine) login(ctx context.Context, email, password string) (TokenPair, string, error) {
	account, err := e.sessions.Authenticate(ctx, email, password)
	if err != nil {
		return TokenPair{}, "", err
	}
	e.rehashIfWeak(ctx, account.ID, account.PasswordHash, password)

	pair, err := e.sessions.IssueSession(ctx, principalOfAccount(account), fingerprintFromContext(ctx))
	if err != nil {
		return TokenPair{}, account.ID, err
	}
	e.metricInc(MetricSessionCreated)
	return TokenPair{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, account.ID, nil
}

// Refresh rotates refreshToken. The token is verified under the request
// fingerprint before any lookup. Redeeming a token that was already
// rotated revokes every session of its user.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil || e.sessions == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if refreshToken == "" {
		return TokenPair{}, validationError("refreshToken should not be empty")
	}

	fp := fingerprintFromContext(ctx)
	claims, err := e.sessions.VerifyRefresh(refreshToken, fp)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, e.fail(ctx, "refresh", err)
	}

	user, err := e.users.FindByID(ctx, claims.UID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return TokenPair{}, e.fail(ctx, "refresh", err)
	}

	pair, err := e.sessions.RotateVerified(ctx, refreshToken, principalOf(user), fp)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if KindOf(classify(err)) == KindSessionReplay {
			e.metricInc(MetricReplayDetected)
			e.log.WarnContext(ctx, "refresh token replay, sessions revoked",
				slog.String("user_id", user.ID),
				slog.String("ip", clientIPFromContext(ctx)),
			)
			e.emitAudit(ctx, AuditRefreshReplay, false, user.ID, err, nil)
		}
		return TokenPair{}, e.fail(ctx, "refresh", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditRefresh, true, user.ID, nil, nil)
	return TokenPair{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Authorize verifies an Authorization header value carrying an access
// token bound to the request fingerprint. It performs no store access.
func (e *Engine) Authorize(ctx context.Context, header string) (*Claims, error) {
	if e == nil || e.codec == nil {
		return nil, ErrEngineNotReady
	}

	start := e.clock.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricAuthorizeLatency, e.clock.Now().Sub(start))
		}
	}()

	token, err := jwt.TokenFromBearer(header)
	if err != nil {
		return nil, e.fail(ctx, "authorize", err)
	}
	claims, err := e.codec.VerifyAccess(token, fingerprintFromContext(ctx))
	if err != nil {
		return nil, e.fail(ctx, "authorize", err)
	}

	out := &Claims{UserID: claims.UID, Email: claims.Email, Role: claims.Role}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// LogoutAll revokes every refresh token of userID.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	var metadata map[string]string
	if e.audit != nil {
		if n, err := e.sessions.Live(ctx, userID); err == nil {
			metadata = map[string]string{"sessions": strconv.Itoa(n)}
		}
	}
	if err := e.sessions.RevokeAll(ctx, userID); err != nil {
		return e.fail(ctx, "logout_all", err)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, AuditLogoutAll, true, userID, nil, metadata)
	return nil
}

// sendCode issues a code of purpose for u and mails it.
func (e *Engine) sendCode(ctx context.Context, u *User, purpose verification.Purpose) error {
	lifetime, template, subject := e.config.Verification.EmailTTL, TemplateEmailVerification, "Email Verification"
	if purpose == verification.PurposePasswordReset {
		lifetime, template, subject = e.config.Verification.ResetTTL, TemplateForgotPassword, "Forgot Password"
	}

	code, err := e.codes.Issue(ctx, u.ID, purpose, lifetime)
	if err != nil {
		return err
	}

	if err := e.mailer.Send(ctx, u.Email, template, MailData{
		Subject: subject,
		Code:    code.Code,
		Expires: code.ExpiresAt,
	}); err != nil {
		e.metricInc(MetricMailFailure)
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// rehashIfWeak replaces a stored hash made under weaker argon2 parameters
// than the current config. The login has already succeeded, so failures
// are only logged.
func (e *Engine) rehashIfWeak(ctx context.Context, userID, encoded, plain string) {
	weak, err := e.passwordHash.NeedsUpgrade(encoded)
	if err != nil || !weak {
		return
	}

	hash, err := e.passwordHash.Hash(plain)
	if err != nil {
		e.log.WarnContext(ctx, "password rehash failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return
	}
	u, err := e.users.FindByID(ctx, userID)
	if err != nil {
		e.log.WarnContext(ctx, "password rehash failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return
	}
	u.PasswordHash = hash
	u.UpdatedAt = e.clock.Now().UTC()
	if _, err := e.users.Update(ctx, u); err != nil {
		e.log.WarnContext(ctx, "password rehash failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return
	}
	e.log.InfoContext(ctx, "password hash upgraded", slog.String("user_id", userID))
}
