package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/fingerprint"
	"github.com/MrEthical07/authcore/internal/identity"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
)

var (
	// ErrSessionNotFound is returned when the presented refresh token has no
	// ledger entry. Every entry of the user has been revoked by then.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSubjectMismatch is returned when a refresh token belongs to another user.
	ErrSubjectMismatch = errors.New("refresh token subject mismatch")
	// ErrLedger wraps refresh ledger failures.
	ErrLedger = errors.New("refresh ledger failure")
)

// Principal is the identity a session is minted for.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

// Pair is an access/refresh token pair bound to one fingerprint.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// SessionDeps captures session flow dependencies.
type SessionDeps struct {
	Codec    *jwt.Codec
	Ledger   *stores.RefreshTokenStore
	Resolver *identity.Resolver
}

type Sessions struct {
	deps SessionDeps
}

func NewSessions(deps SessionDeps) *Sessions {
	return &Sessions{deps: deps}
}

// Authenticate resolves local credentials to an account.
func (s *Sessions) Authenticate(ctx context.Context, email, password string) (*identity.Account, error) {
	return s.deps.Resolver.FromCredentials(ctx, email, password)
}

// IssueSession mints a pair for p under fp and records the refresh hash.
// Tokens are only returned once the ledger write succeeded.
func (s *Sessions) IssueSession(ctx context.Context, p Principal, fp string) (Pair, error) {
	pair, hash, err := s.mint(p, fp)
	if err != nil {
		return Pair{}, err
	}
	if err := s.deps.Ledger.Upsert(ctx, p.UserID, hash, s.deps.Codec.RefreshTTL()); err != nil {
		return Pair{}, fmt.Errorf("%w: %v", ErrLedger, err)
	}
	return pair, nil
}

// VerifyRefresh checks presented under fp without touching the ledger.
func (s *Sessions) VerifyRefresh(presented, fp string) (*jwt.RefreshClaims, error) {
	return s.deps.Codec.VerifyRefresh(presented, fp)
}

// Rotate redeems presented for p. The token is verified under fp before any
// ledger access. A verified token without a ledger entry revokes every
// session of p and returns ErrSessionNotFound.
func (s *Sessions) Rotate(ctx context.Context, presented string, p Principal, fp string) (Pair, error) {
	claims, err := s.VerifyRefresh(presented, fp)
	if err != nil {
		return Pair{}, err
	}
	if claims.UID != p.UserID {
		return Pair{}, ErrSubjectMismatch
	}
	return s.RotateVerified(ctx, presented, p, fp)
}

// RotateVerified is Rotate for a token the caller already verified under fp.
func (s *Sessions) RotateVerified(ctx context.Context, presented string, p Principal, fp string) (Pair, error) {
	pair, hash, err := s.mint(p, fp)
	if err != nil {
		return Pair{}, err
	}

	err = s.deps.Ledger.Rotate(ctx, p.UserID, fingerprint.Hash(presented), hash, s.deps.Codec.RefreshTTL())
	switch {
	case err == nil:
		return pair, nil
	case errors.Is(err, stores.ErrRefreshTokenNotFound):
		return Pair{}, ErrSessionNotFound
	default:
		return Pair{}, fmt.Errorf("%w: %v", ErrLedger, err)
	}
}

// RevokeAll removes every ledger entry of userID.
func (s *Sessions) RevokeAll(ctx context.Context, userID string) error {
	if err := s.deps.Ledger.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrLedger, err)
	}
	return nil
}

// Live reports how many refresh entries userID holds.
func (s *Sessions) Live(ctx context.Context, userID string) (int, error) {
	n, err := s.deps.Ledger.Count(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedger, err)
	}
	return n, nil
}

func (s *Sessions) mint(p Principal, fp string) (Pair, string, error) {
	access, err := s.deps.Codec.IssueAccess(jwt.AccessPayload{UserID: p.UserID, Email: p.Email, Role: p.Role}, fp)
	if err != nil {
		return Pair{}, "", err
	}
	refresh, err := s.deps.Codec.IssueRefresh(jwt.RefreshPayload{UserID: p.UserID}, fp)
	if err != nil {
		return Pair{}, "", err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, fingerprint.Hash(refresh), nil
}
