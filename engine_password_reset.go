package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/verification"
)

// RequestPasswordReset mails a reset code to email. The account must be
// verified.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.codes == nil {
		return ErrEngineNotReady
	}
	if !validEmail(email) {
		return validationError("email must be an email")
	}

	attempt, err := e.checkAttempt(ctx, rate.PurposePasswordReset, e.config.Limits.RequestPasswordReset)
	if err != nil {
		return e.fail(ctx, "request_password_reset", err)
	}

	userID, err := e.requestPasswordReset(ctx, email)
	e.recordOnSuccess(ctx, attempt, err)
	e.emitAudit(ctx, AuditPasswordResetRequest, err == nil, userID, err, nil)
	if err != nil {
		return e.fail(ctx, "request_password_reset", err)
	}

	e.metricInc(MetricPasswordResetRequest)
	return nil
}

func (e *Engine) requestPasswordReset(ctx context.Context, email string) (string, error) {
	u, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if !u.Verified {
		return u.ID, ErrEmailNotVerified
	}
	return u.ID, e.sendCode(ctx, u, verification.PurposePasswordReset)
}

// ConfirmPasswordReset replaces the password of in.Email when in.Code is
// its live reset code. A new password equal to the current one is a
// conflict and leaves the code valid.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, in PasswordResetInput) error {
	if e == nil || e.codes == nil {
		return ErrEngineNotReady
	}
	if !validEmail(in.Email) {
		return validationError("email must be an email")
	}
	if in.Password == "" {
		return validationError("password should not be empty")
	}
	if in.Code == "" {
		return validationError("token should not be empty")
	}

	attempt, err := e.checkAttempt(ctx, rate.PurposePasswordReset, e.config.Limits.ConfirmPasswordReset)
	if err != nil {
		return e.fail(ctx, "confirm_password_reset", err)
	}

	userID, err := e.confirmPasswordReset(ctx, in)
	e.settle(ctx, attempt, err)
	e.emitAudit(ctx, AuditPasswordResetConfirm, err == nil, userID, err, nil)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return e.fail(ctx, "confirm_password_reset", err)
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	return nil
}

func (e *Engine) confirmPasswordReset(ctx context.Context, in PasswordResetInput) (string, error) {
	u, err := e.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return "", err
	}
	if !u.Verified {
		return u.ID, ErrEmailNotVerified
	}

	live, err := e.codes.Validate(ctx, u.ID, verification.PurposePasswordReset, in.Code)
	if err != nil {
		return u.ID, err
	}

	if u.PasswordHash != "" {
		same, err := e.passwordHash.Verify(in.Password, u.PasswordHash)
		if err != nil {
			return u.ID, err
		}
		if same {
			return u.ID, ErrPasswordUnchanged
		}
	}

	hash, err := e.passwordHash.Hash(in.Password)
	if err != nil {
		return u.ID, err
	}

	if err := e.codes.Consume(ctx, u.ID, verification.PurposePasswordReset, in.Code); err != nil {
		return u.ID, err
	}

	u.PasswordHash = hash
	u.UpdatedAt = e.clock.Now().UTC()
	if _, err := e.users.Update(ctx, u); err != nil {
		e.restoreCode(ctx, u.ID, verification.PurposePasswordReset, live)
		return u.ID, err
	}
	return u.ID, nil
}
