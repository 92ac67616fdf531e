package rate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTooManyAttempts matches every *LimitError via errors.Is.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrRedisUnavailable wraps transport failures from the counter store.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidPolicy is returned for a policy with Max < 1 or Window < 0.
	ErrInvalidPolicy = errors.New("invalid rate policy")
)

// LimitError is returned by Check when the pair is locked out.
type LimitError struct {
	Purpose    Purpose
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s locked for %d seconds", ErrTooManyAttempts, e.Purpose, e.Seconds())
}

// Is reports ErrTooManyAttempts as a match.
func (e *LimitError) Is(target error) bool {
	return target == ErrTooManyAttempts
}

// Seconds returns RetryAfter in whole seconds.
func (e *LimitError) Seconds() int64 {
	return int64(e.RetryAfter / time.Second)
}
