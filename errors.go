package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies every error the Engine returns.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindTokenExpired
	KindTokenInvalid
	KindTokenMalformed
	KindCodeMismatch
	KindCodeExpired
	KindTooManyAttempts
	KindSessionReplay
	KindUpstream
	KindConfig
)

var kindNames = [...]string{
	KindUnknown:         "unknown",
	KindValidation:      "validation",
	KindNotFound:        "not_found",
	KindConflict:        "conflict",
	KindUnauthorized:    "unauthorized",
	KindTokenExpired:    "token_expired",
	KindTokenInvalid:    "token_invalid",
	KindTokenMalformed:  "token_malformed",
	KindCodeMismatch:    "code_mismatch",
	KindCodeExpired:     "code_expired",
	KindTooManyAttempts: "too_many_attempts",
	KindSessionReplay:   "session_replay",
	KindUpstream:        "upstream",
	KindConfig:          "config",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// HTTPStatus maps k to the status code used by the HTTP transport.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindCodeMismatch, KindCodeExpired:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized, KindTokenExpired, KindTokenInvalid, KindTokenMalformed, KindSessionReplay:
		return http.StatusUnauthorized
	case KindTooManyAttempts:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Internal reports whether k is a server-side failure whose detail must
// not leave the process.
func (k Kind) Internal() bool {
	return k.HTTPStatus() >= http.StatusInternalServerError
}

// InternalMessage is the only message carried by internal errors.
const InternalMessage = "Internal Server Error"

// Error is the typed error returned by every Engine operation. Message is
// safe to show to clients. Cause is for logs only.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches a target *Error by kind and, when the target has one, message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Public returns the status code and client-facing message for err.
// Anything that is not an internal-kind *Error collapses to 500.
func Public(err error) (int, string) {
	var e *Error
	if !errors.As(err, &e) || e.Kind.Internal() {
		return http.StatusInternalServerError, InternalMessage
	}
	return e.Kind.HTTPStatus(), e.Error()
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func upstreamError(cause error) *Error {
	return &Error{Kind: KindUpstream, Message: InternalMessage, Cause: cause}
}

func tooManyAttempts(retryAfter time.Duration) *Error {
	seconds := int64(retryAfter / time.Second)
	return &Error{
		Kind:       KindTooManyAttempts,
		Message:    fmt.Sprintf("Max tries reached, try again in %d seconds", seconds),
		RetryAfter: retryAfter,
	}
}

var (
	// Store boundary sentinels. UserStore implementations return these.
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already taken")

	// Federated boundary sentinels. IdentityVerifier implementations return these.
	ErrFederatedTokenInvalid     = errors.New("federated token invalid")
	ErrFederatedAudienceMismatch = errors.New("federated token audience mismatch")
)

var (
	ErrEmailAlreadyRegistered = newError(KindConflict, "Email already registered")
	ErrEmailNotRegistered     = newError(KindNotFound, "Email is not registered")
	ErrEmailNotVerified       = newError(KindUnauthorized, "Email is not yet verified")
	ErrPasswordNotSet         = newError(KindUnauthorized, "Password is not set")
	ErrWrongPassword          = newError(KindUnauthorized, "Wrong password")
	ErrAccountNotFound        = newError(KindNotFound, "User not found")
	ErrEmailAlreadyVerified   = newError(KindConflict, "Email is already verified")
	ErrEmailInUse             = newError(KindConflict, "Email already in use")

	ErrCodeNotFound      = newError(KindNotFound, "Verification Token not found")
	ErrCodeMismatch      = newError(KindCodeMismatch, "Verification Token is invalid")
	ErrCodeExpired       = newError(KindCodeExpired, "Verification Token has expired")
	ErrPasswordUnchanged = newError(KindConflict, "New password cannot be same as old password")

	ErrTokenExpired    = newError(KindTokenExpired, "Token has expired")
	ErrTokenInvalid    = newError(KindTokenInvalid, "Invalid token")
	ErrTokenMalformed  = newError(KindTokenMalformed, "Invalid token bearer")
	ErrSessionNotFound = newError(KindSessionReplay, "There is no existing session of Refresh Token")

	ErrFederatedInvalid  = newError(KindUnauthorized, "Invalid Token")
	ErrFederatedAudience = newError(KindUnauthorized, "Invalid Client ID")

	// ErrTooManyAttempts matches every throttling error regardless of wait.
	ErrTooManyAttempts = &Error{Kind: KindTooManyAttempts}
	ErrInternal        = newError(KindUpstream, InternalMessage)
	ErrConfig          = newError(KindConfig, InternalMessage)
	ErrEngineNotReady  = newError(KindConfig, "engine not initialized")
)
