package authcore

import (
	"errors"
	"io"
	"log/slog"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/identity"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/internal/verification"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/redis/go-redis/v9"
	"github.com/thejerf/abtime"
)

// Builder collects dependencies and configuration for an Engine. A
// Builder produces exactly one Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users    UserStore
	mailer   Mailer
	verifier IdentityVerifier

	logger    *slog.Logger
	clock     abtime.AbstractTime
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client used for refresh ledgers, verification codes
// and attempt counters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithIdentityVerifier enables LoginWithFederatedIdentity.
func (b *Builder) WithIdentityVerifier(v IdentityVerifier) *Builder {
	b.verifier = v
	return b
}

// WithLogger sets the logger for upstream failures and throttle hits. The
// default discards everything.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock replaces real time. Tests pass an abtime.ManualTime.
func (b *Builder) WithClock(c abtime.AbstractTime) *Builder {
	b.clock = c
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.mailer == nil {
		return nil, errors.New("mailer required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clock := b.clock
	if clock == nil {
		clock = abtime.NewRealTime()
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	codec := jwt.NewCodec(jwt.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Clock:         clock,
	})

	resolver := identity.NewResolver(identity.Deps{
		Store:        &identityStore{users: b.users, clock: clock},
		Passwords:    ph,
		IsNotFound:   func(err error) bool { return errors.Is(err, ErrUserNotFound) },
		IsEmailTaken: func(err error) bool { return errors.Is(err, ErrEmailTaken) },
		DefaultRole:  DefaultRole,
	})

	engine := &Engine{
		config:       cfg,
		users:        b.users,
		mailer:       b.mailer,
		verifier:     b.verifier,
		log:          logger,
		clock:        clock,
		passwordHash: ph,
		codec:        codec,
		resolver:     resolver,
		guard:        rate.New(b.redis, cfg.Redis.Prefix, clock),
		codes: verification.NewIssuer(
			stores.NewVerificationStore(b.redis, cfg.Redis.Prefix, cfg.Verification.Retention, clock),
			clock,
		),
		sessions: flows.NewSessions(flows.SessionDeps{
			Codec:    codec,
			Ledger:   stores.NewRefreshTokenStore(b.redis, cfg.Redis.Prefix, clock),
			Resolver: resolver,
		}),
		audit:   newAuditQueue(cfg.Audit, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	b.built = true

	return engine, nil
}
