package authcore

import (
	"errors"
	"fmt"
	"time"
)

// Config is the complete Engine configuration. Values are consumed as
// already loaded; the Engine never reads the environment.
type Config struct {
	JWT          JWTConfig
	Verification VerificationConfig
	Federated    FederatedConfig
	Password     PasswordConfig
	Limits       LimitsConfig
	Redis        RedisConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the signing secrets and lifetimes of both token kinds.
// Signing keys are derived per request from a secret and the client
// fingerprint.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig sets the lifetimes of email-verification and
// password-reset codes. Retention keeps expired codes around long enough
// to be reported as expired rather than missing; zero uses 24h.
type VerificationConfig struct {
	EmailTTL  time.Duration
	ResetTTL  time.Duration
	Retention time.Duration
}

// FederatedConfig identifies this application to the identity provider.
type FederatedConfig struct {
	ClientID string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
LIMITS CONFIG
====================================
*/

// LimitPolicy is one attempt-throttling rule.
type LimitPolicy struct {
	Max    int
	Window time.Duration
}

// LimitsConfig holds the attempt policy of each guarded call site.
type LimitsConfig struct {
	Login                    LimitPolicy
	RequestEmailVerification LimitPolicy
	ConfirmEmailVerification LimitPolicy
	RequestPasswordReset     LimitPolicy
	ConfirmPasswordReset     LimitPolicy
}

// RedisConfig scopes every key the Engine writes.
type RedisConfig struct {
	Prefix string
}

// AuditConfig sizes the audit queue. Events beyond BufferSize are dropped
// and counted rather than blocking the operation that emitted them.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a Config with production defaults. Secrets and
// the federated client id are left empty and must be set by the caller.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Verification: VerificationConfig{
			EmailTTL:  15 * time.Minute,
			ResetTTL:  15 * time.Minute,
			Retention: 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 4,
			SaltLength:  16,
			KeyLength:   32,
		},
		Limits: LimitsConfig{
			Login:                    LimitPolicy{Max: 3, Window: 15 * time.Second},
			RequestEmailVerification: LimitPolicy{Max: 1, Window: time.Minute},
			ConfirmEmailVerification: LimitPolicy{Max: 3, Window: 15 * time.Second},
			RequestPasswordReset:     LimitPolicy{Max: 1, Window: time.Minute},
			ConfirmPasswordReset:     LimitPolicy{Max: 3, Window: 15 * time.Second},
		},
		Redis: RedisConfig{
			Prefix: "ac",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessSecret == "" {
		return errors.New("JWT AccessSecret must be set")
	}
	if c.JWT.RefreshSecret == "" {
		return errors.New("JWT RefreshSecret must be set")
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}

	// Verification
	if c.Verification.EmailTTL <= 0 {
		return errors.New("Verification EmailTTL must be > 0")
	}
	if c.Verification.ResetTTL <= 0 {
		return errors.New("Verification ResetTTL must be > 0")
	}
	if c.Verification.Retention < 0 {
		return errors.New("Verification Retention must be >= 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Limits
	for _, l := range []struct {
		name   string
		policy LimitPolicy
	}{
		{"Login", c.Limits.Login},
		{"RequestEmailVerification", c.Limits.RequestEmailVerification},
		{"ConfirmEmailVerification", c.Limits.ConfirmEmailVerification},
		{"RequestPasswordReset", c.Limits.RequestPasswordReset},
		{"ConfirmPasswordReset", c.Limits.ConfirmPasswordReset},
	} {
		if l.policy.Max < 1 {
			return fmt.Errorf("Limits %s Max must be >= 1", l.name)
		}
		if l.policy.Window <= 0 {
			return fmt.Errorf("Limits %s Window must be > 0", l.name)
		}
	}

	if c.Redis.Prefix == "" {
		return errors.New("Redis Prefix must be set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
