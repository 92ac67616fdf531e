// Package verification issues and checks the single-use numeric codes used
// for email verification and password reset.
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/thejerf/abtime"
)

// CodeDigits is the width of every issued code.
const CodeDigits = 6

// Purpose scopes a code. Codes of different purposes never collide.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

var (
	ErrNotFound     = errors.New("verification code not found")
	ErrCodeMismatch = errors.New("verification code is invalid")
	ErrCodeExpired  = errors.New("verification code has expired")
	ErrInvalidTTL   = errors.New("verification lifetime must be > 0")
	ErrStoreFailure = errors.New("verification store failure")
)

// Code is the result of a successful Issue.
type Code struct {
	Code      string
	ExpiresAt time.Time
}

// Issuer generates codes and keeps the single live record per (user, purpose).
type Issuer struct {
	store  *stores.VerificationStore
	clock  abtime.AbstractTime
	random io.Reader
}

// NewIssuer returns an Issuer over store. A nil clock uses real time.
func NewIssuer(store *stores.VerificationStore, clock abtime.AbstractTime) *Issuer {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Issuer{store: store, clock: clock, random: rand.Reader}
}

// Issue creates a fresh code valid for lifetime, overwriting any previous
// code for the same user and purpose.
func (i *Issuer) Issue(ctx context.Context, userID string, purpose Purpose, lifetime time.Duration) (Code, error) {
	if lifetime <= 0 {
		return Code{}, ErrInvalidTTL
	}

	code, err := internal.NewNumericCode(i.random, CodeDigits)
	if err != nil {
		return Code{}, fmt.Errorf("generate code: %w", err)
	}

	expiresAt := i.clock.Now().Add(lifetime)
	if err := i.store.Save(ctx, &stores.VerificationRecord{
		UserID:    userID,
		Purpose:   string(purpose),
		Code:      code,
		ExpiresAt: expiresAt,
	}); err != nil {
		return Code{}, mapStoreError(err)
	}

	return Code{Code: code, ExpiresAt: expiresAt}, nil
}

// Validate checks presented against the live record without consuming it
// and returns that record. Mismatch is reported before expiry.
func (i *Issuer) Validate(ctx context.Context, userID string, purpose Purpose, presented string) (Code, error) {
	record, err := i.store.Load(ctx, userID, string(purpose))
	if err != nil {
		return Code{}, mapStoreError(err)
	}
	if !stores.CodesEqual(record.Code, presented) {
		return Code{}, ErrCodeMismatch
	}
	if !i.clock.Now().Before(record.ExpiresAt) {
		return Code{}, ErrCodeExpired
	}
	return Code{Code: record.Code, ExpiresAt: record.ExpiresAt}, nil
}

// Consume deletes the record iff it still holds presented. A concurrent
// consumer or a re-issue in between yields ErrNotFound.
func (i *Issuer) Consume(ctx context.Context, userID string, purpose Purpose, presented string) error {
	err := i.store.Consume(ctx, userID, string(purpose), presented)
	if errors.Is(err, stores.ErrVerificationMismatch) {
		return ErrNotFound
	}
	return mapStoreError(err)
}

// Restore puts back a consumed code when the operation it guarded could not
// be stored. A code issued in the meantime wins.
func (i *Issuer) Restore(ctx context.Context, userID string, purpose Purpose, code Code) error {
	return mapStoreError(i.store.Restore(ctx, &stores.VerificationRecord{
		UserID:    userID,
		Purpose:   string(purpose),
		Code:      code.Code,
		ExpiresAt: code.ExpiresAt,
	}))
}

// Revoke drops any live code for the pair.
func (i *Issuer) Revoke(ctx context.Context, userID string, purpose Purpose) error {
	return mapStoreError(i.store.Delete(ctx, userID, string(purpose)))
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrVerificationNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
}
