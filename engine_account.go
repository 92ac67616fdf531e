package authcore

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/MrEthical07/authcore/internal/verification"
)

// GetSelf returns the account of userID without its password hash.
func (e *Engine) GetSelf(ctx context.Context, userID string) (*User, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	u, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return nil, e.fail(ctx, "get_self", err)
	}
	return u.public(), nil
}

// EditSelf applies the non-nil fields of in. An email owned by another
// account is a conflict; a new password is hashed before storage.
func (e *Engine) EditSelf(ctx context.Context, userID string, in EditInput) (*User, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	if err := validateEdit(in); err != nil {
		return nil, err
	}

	u, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return nil, e.fail(ctx, "edit_self", err)
	}

	emailChanged := in.Email != nil && *in.Email != u.Email
	if emailChanged {
		owner, err := e.users.FindByEmail(ctx, *in.Email)
		switch {
		case err == nil && owner.ID != u.ID:
			return nil, ErrEmailInUse
		case err != nil && !errors.Is(err, ErrUserNotFound):
			return nil, e.fail(ctx, "edit_self", err)
		}
		u.Email = *in.Email
	}
	if in.Password != nil {
		hash, err := e.passwordHash.Hash(*in.Password)
		if err != nil {
			return nil, e.fail(ctx, "edit_self", err)
		}
		u.PasswordHash = hash
	}
	if in.Phone != nil {
		u.Phone = *in.Phone
	}
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Address != nil {
		u.Address = *in.Address
	}
	u.UpdatedAt = e.clock.Now().UTC()

	updated, err := e.users.Update(ctx, u)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailInUse
		}
		return nil, e.fail(ctx, "edit_self", err)
	}

	if in.Password != nil {
		e.revokeCode(ctx, updated.ID, verification.PurposePasswordReset)
	}
	if emailChanged {
		e.revokeCode(ctx, updated.ID, verification.PurposeEmailVerification)
	}

	e.metricInc(MetricProfileUpdated)
	e.emitAudit(ctx, AuditProfileUpdate, true, updated.ID, nil, nil)
	return updated.public(), nil
}

// revokeCode drops a pending code made stale by a profile change. The
// profile is already stored, so a failure is only logged.
func (e *Engine) revokeCode(ctx context.Context, userID string, purpose verification.Purpose) {
	if err := e.codes.Revoke(ctx, userID, purpose); err != nil {
		e.log.WarnContext(ctx, "revoke code failed",
			slog.String("user_id", userID),
			slog.String("purpose", string(purpose)),
			slog.String("error", err.Error()),
		)
	}
}

func validateEdit(in EditInput) error {
	if in.Email != nil && !validEmail(*in.Email) {
		return validationError("email must be an email")
	}
	if in.Password != nil && *in.Password == "" {
		return validationError("password should not be empty")
	}
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"first_name", in.FirstName},
		{"last_name", in.LastName},
	} {
		if f.value != nil && strings.TrimSpace(*f.value) == "" {
			return validationError("%s should not be empty", f.name)
		}
	}
	return nil
}

// restoreCode puts back a code consumed by a confirm whose account update
// failed, so the user can retry with the same code.
func (e *Engine) restoreCode(ctx context.Context, userID string, purpose verification.Purpose, code verification.Code) {
	if err := e.codes.Restore(ctx, userID, purpose, code); err != nil {
		e.log.WarnContext(ctx, "restore code failed",
			slog.String("user_id", userID),
			slog.String("purpose", string(purpose)),
			slog.String("error", err.Error()),
		)
	}
}
