package authcore

import (
	"context"
	"time"
)

// DefaultRole is assigned to accounts created by Register and first-time
// federated logins.
const DefaultRole = "USER"

// User is an account as seen by the Engine. PasswordHash is never
// returned from an Engine operation.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Address      string    `json:"address,omitempty"`
	Role         string    `json:"role"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) public() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.PasswordHash = ""
	return &cp
}

// UserStore persists accounts. Email uniqueness is enforced by the store:
// Create and Update return ErrEmailTaken on a duplicate. Lookups of absent
// accounts return ErrUserNotFound.
type UserStore interface {
	Create(ctx context.Context, user *User) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) (*User, error)
}

// Mailer delivers templated mail. A non-nil error means the mail was not
// sent.
type Mailer interface {
	Send(ctx context.Context, to, template string, data MailData) error
}

// MailData is the template context of verification mails.
type MailData struct {
	Subject string
	Code    string
	Expires time.Time
}

// Mail templates.
const (
	TemplateEmailVerification = "email-verification"
	TemplateForgotPassword    = "forgot-password"
)

// FederatedProfile is the identity asserted by a federated provider.
type FederatedProfile struct {
	Email      string
	GivenName  string
	FamilyName string
}

// IdentityVerifier validates an opaque provider access token and returns
// the asserted profile. Invalid tokens return ErrFederatedTokenInvalid and
// tokens minted for another client return ErrFederatedAudienceMismatch;
// any other error is a transport failure.
type IdentityVerifier interface {
	Verify(ctx context.Context, accessToken string) (FederatedProfile, error)
}

// TokenPair is returned by every operation that starts or continues a session.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Claims is the verified content of an access token.
type Claims struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// RegisterInput is the registration payload. Every field is required.
type RegisterInput struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address   string `json:"address"`
}

// EditInput carries optional profile changes; nil fields are left as is.
type EditInput struct {
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Password  *string `json:"password,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Address   *string `json:"address,omitempty"`
}

// PasswordResetInput is the payload of ConfirmPasswordReset.
type PasswordResetInput struct {
	Email    string `json:"email"`
	Code     string `json:"token"`
	Password string `json:"password"`
}
