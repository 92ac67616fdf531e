package stores

import "errors"

var (
	// ErrRefreshTokenNotFound is returned when the presented token hash is not in the ledger.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrVerificationNotFound is returned when no code exists for the user and purpose.
	ErrVerificationNotFound = errors.New("verification code not found")
	// ErrVerificationMismatch is returned by Consume when the stored code differs.
	ErrVerificationMismatch = errors.New("verification code mismatch")
	// ErrRedisUnavailable wraps transport and script failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
