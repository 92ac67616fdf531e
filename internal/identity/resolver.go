// Package identity turns presented credentials or a federated profile into
// a user account.
//
// It must not import authcore; the engine supplies a Store adapter and the
// sentinel errors it should recognise.
package identity

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmailNotRegistered = errors.New("email is not registered")
	ErrEmailNotVerified   = errors.New("email is not yet verified")
	ErrPasswordNotSet     = errors.New("password is not set")
	ErrWrongPassword      = errors.New("wrong password")
)

// Account is the resolver-local user model.
type Account struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         string
	Verified     bool
}

// Profile is an identity asserted by a federated provider.
type Profile struct {
	Email      string
	GivenName  string
	FamilyName string
}

// Store is the slice of the user store the resolver needs.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// CreateFederated inserts a verified, password-less account.
	CreateFederated(ctx context.Context, account Account) (*Account, error)
}

// PasswordVerifier compares plaintext against a stored encoding.
type PasswordVerifier interface {
	Verify(plain, encoded string) (bool, error)
}

// Deps captures resolver dependencies.
type Deps struct {
	Store        Store
	Passwords    PasswordVerifier
	IsNotFound   func(error) bool
	IsEmailTaken func(error) bool
	DefaultRole  string
}

// Resolver is stateless; one instance serves every request.
type Resolver struct {
	deps Deps
}

func NewResolver(deps Deps) *Resolver {
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}
	if deps.IsEmailTaken == nil {
		deps.IsEmailTaken = func(error) bool { return false }
	}
	return &Resolver{deps: deps}
}

// FromCredentials authenticates a local login. Failures are reported in a
// fixed order: unknown email, unverified account, missing password, wrong
// password.
func (r *Resolver) FromCredentials(ctx context.Context, email, password string) (*Account, error) {
	account, err := r.deps.Store.FindByEmail(ctx, email)
	if err != nil {
		if r.deps.IsNotFound(err) {
			return nil, ErrEmailNotRegistered
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !account.Verified {
		return nil, ErrEmailNotVerified
	}
	if account.PasswordHash == "" {
		return nil, ErrPasswordNotSet
	}

	ok, err := r.deps.Passwords.Verify(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrWrongPassword
	}
	return account, nil
}

// FromFederatedProfile returns the account owning profile.Email, creating a
// verified account without a password on first sight. Losing a concurrent
// create race re-reads the winner.
func (r *Resolver) FromFederatedProfile(ctx context.Context, profile Profile) (*Account, error) {
	account, err := r.deps.Store.FindByEmail(ctx, profile.Email)
	if err == nil {
		return account, nil
	}
	if !r.deps.IsNotFound(err) {
		return nil, fmt.Errorf("find user: %w", err)
	}

	created, err := r.deps.Store.CreateFederated(ctx, Account{
		Email:     profile.Email,
		FirstName: profile.GivenName,
		LastName:  profile.FamilyName,
		Role:      r.deps.DefaultRole,
		Verified:  true,
	})
	if err == nil {
		return created, nil
	}
	if !r.deps.IsEmailTaken(err) {
		return nil, fmt.Errorf("create user: %w", err)
	}

	account, err = r.deps.Store.FindByEmail(ctx, profile.Email)
	if err != nil {
		return nil, fmt.Errorf("find user after conflict: %w", err)
	}
	return account, nil
}
