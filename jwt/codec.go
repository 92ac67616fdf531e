package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/fingerprint"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/thejerf/abtime"
)

const bearerScheme = "Bearer"

var (
	// ErrConfig reports a missing secret or lifetime at issuance time.
	ErrConfig = errors.New("token codec misconfigured")
	// ErrTokenExpired is returned when a token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers signature mismatch and malformed token structure.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenMalformed is returned when the bearer framing is wrong.
	ErrTokenMalformed = errors.New("invalid token bearer")
)

// Config carries the codec's secrets and lifetimes. Clock defaults to real time.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Clock         abtime.AbstractTime
}

// Validate reports the first unset secret or non-positive lifetime.
func (c Config) Validate() error {
	switch {
	case c.AccessSecret == "":
		return fmt.Errorf("%w: access secret is empty", ErrConfig)
	case c.RefreshSecret == "":
		return fmt.Errorf("%w: refresh secret is empty", ErrConfig)
	case c.AccessTTL <= 0:
		return fmt.Errorf("%w: access lifetime must be > 0", ErrConfig)
	case c.RefreshTTL <= 0:
		return fmt.Errorf("%w: refresh lifetime must be > 0", ErrConfig)
	}
	return nil
}

// AccessPayload is the caller-supplied part of an access token.
type AccessPayload struct {
	UserID string
	Email  string
	Role   string
}

// RefreshPayload is the caller-supplied part of a refresh token.
type RefreshPayload struct {
	UserID string
}

// AccessClaims is the decoded form of an access token.
type AccessClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the decoded form of a refresh token. The registered ID
// (jti) is random so two refresh tokens for one user never collide.
type RefreshClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// Codec signs, verifies and decodes bearer tokens. It holds no mutable state.
type Codec struct {
	config Config
	clock  abtime.AbstractTime
}

// NewCodec returns a codec for cfg. Misconfiguration surfaces as ErrConfig on
// the first issuance so callers can construct the codec before secrets load.
func NewCodec(cfg Config) *Codec {
	clock := cfg.Clock
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Codec{config: cfg, clock: clock}
}

// DeriveKey returns the signing key for secret under fingerprint.
func DeriveKey(secret, fp string) []byte {
	return fingerprint.DeriveKey(secret, fp)
}

// AccessTTL returns the configured access lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.config.AccessTTL }

// RefreshTTL returns the configured refresh lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.config.RefreshTTL }

// IssueAccess signs p with the access secret bound to fp.
func (c *Codec) IssueAccess(p AccessPayload, fp string) (string, error) {
	if c.config.AccessSecret == "" || c.config.AccessTTL <= 0 {
		return "", ErrConfig
	}

	claims := AccessClaims{
		UID:              p.UserID,
		Email:            p.Email,
		Role:             p.Role,
		RegisteredClaims: c.registered(c.config.AccessTTL),
	}
	return c.sign(claims, c.config.AccessSecret, fp)
}

// IssueRefresh signs p with the refresh secret bound to fp.
func (c *Codec) IssueRefresh(p RefreshPayload, fp string) (string, error) {
	if c.config.RefreshSecret == "" || c.config.RefreshTTL <= 0 {
		return "", ErrConfig
	}

	claims := RefreshClaims{
		UID:              p.UserID,
		RegisteredClaims: c.registered(c.config.RefreshTTL),
	}
	claims.ID = uuid.NewString()
	return c.sign(claims, c.config.RefreshSecret, fp)
}

// Verify checks the signature of token under DeriveKey(secret, fp) and its
// expiry against the codec clock.
func (c *Codec) Verify(token, secret, fp string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if err := c.verify(token, secret, fp, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyAccess verifies token as an access token issued to fp.
func (c *Codec) VerifyAccess(token, fp string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(token, c.config.AccessSecret, fp, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh verifies token as a refresh token issued to fp.
func (c *Codec) VerifyRefresh(token, fp string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.verify(token, c.config.RefreshSecret, fp, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Decode parses token into claims without checking the signature. Only call
// it on a token that already passed Verify in the same call path.
func Decode(token string, claims jwt.Claims) error {
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ErrTokenInvalid
	}
	return nil
}

// TokenFromBearer extracts the token from an Authorization header value:
// the literal scheme word, one space, one non-empty segment.
func TokenFromBearer(header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != bearerScheme || parts[1] == "" {
		return "", ErrTokenMalformed
	}
	return parts[1], nil
}

func (c *Codec) registered(ttl time.Duration) jwt.RegisteredClaims {
	now := c.clock.Now()
	return jwt.RegisteredClaims{
		Issuer:    c.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *Codec) sign(claims jwt.Claims, secret, fp string) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(DeriveKey(secret, fp))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *Codec) verify(token, secret, fp string, claims jwt.Claims) error {
	if secret == "" {
		return ErrConfig
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	key := DeriveKey(secret, fp)
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}
