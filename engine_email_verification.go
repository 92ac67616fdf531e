package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/verification"
)

// RequestEmailVerification mails a fresh verification code to email. Each
// successful request counts against the request policy of the caller.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if e == nil || e.codes == nil {
		return ErrEngineNotReady
	}
	if !validEmail(email) {
		return validationError("email must be an email")
	}

	attempt, err := e.checkAttempt(ctx, rate.PurposeEmailVerification, e.config.Limits.RequestEmailVerification)
	if err != nil {
		return e.fail(ctx, "request_email_verification", err)
	}

	userID, err := e.requestEmailVerification(ctx, email)
	e.recordOnSuccess(ctx, attempt, err)
	e.emitAudit(ctx, AuditEmailVerificationRequest, err == nil, userID, err, nil)
	if err != nil {
		return e.fail(ctx, "request_email_verification", err)
	}

	e.metricInc(MetricEmailVerificationRequest)
	return nil
}

func (e *Engine) requestEmailVerification(ctx context.Context, email string) (string, error) {
	u, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if u.Verified {
		return u.ID, ErrEmailAlreadyVerified
	}
	return u.ID, e.sendCode(ctx, u, verification.PurposeEmailVerification)
}

// ConfirmEmailVerification marks the account of email verified when code
// is its live, unexpired verification code. The code is consumed.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, email, code string) error {
	if e == nil || e.codes == nil {
		return ErrEngineNotReady
	}
	if !validEmail(email) {
		return validationError("email must be an email")
	}
	if code == "" {
		return validationError("token should not be empty")
	}

	attempt, err := e.checkAttempt(ctx, rate.PurposeEmailVerification, e.config.Limits.ConfirmEmailVerification)
	if err != nil {
		return e.fail(ctx, "confirm_email_verification", err)
	}

	userID, err := e.confirmEmailVerification(ctx, email, code)
	e.settle(ctx, attempt, err)
	e.emitAudit(ctx, AuditEmailVerificationConfirm, err == nil, userID, err, nil)
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		return e.fail(ctx, "confirm_email_verification", err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	return nil
}

func (e *Engine) confirmEmailVerification(ctx context.Context, email, code string) (string, error) {
	u, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	// The code is checked first so a consumed code reports not found.
	live, err := e.codes.Validate(ctx, u.ID, verification.PurposeEmailVerification, code)
	if err != nil {
		return u.ID, err
	}
	if u.Verified {
		return u.ID, ErrEmailAlreadyVerified
	}
	if err := e.codes.Consume(ctx, u.ID, verification.PurposeEmailVerification, code); err != nil {
		return u.ID, err
	}

	u.Verified = true
	u.UpdatedAt = e.clock.Now().UTC()
	if _, err := e.users.Update(ctx, u); err != nil {
		e.restoreCode(ctx, u.ID, verification.PurposeEmailVerification, live)
		return u.ID, err
	}
	return u.ID, nil
}
