package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

var (
	// ErrEmptyPassword is returned by Hash for a zero-length plaintext.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrInvalidHash is returned when an encoded hash is not a PHC argon2id string.
	ErrInvalidHash = errors.New("invalid argon2id hash")
	// ErrIncompatibleVersion is returned for hashes produced by another argon2 revision.
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// Config holds the argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the fixed cost used for stored credentials:
// 64 MiB, three passes, four lanes.
func DefaultConfig() Config {
	return Config{
		Memory:      65536,
		Time:        3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes and verifies passwords. It is safe for concurrent use.
type Argon2 struct {
	config Config
	rand   io.Reader
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < 8*1024:
		return nil, errors.New("password memory must be >= 8192 KiB")
	case cfg.Time < 1:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < 16:
		return nil, errors.New("password salt length must be >= 16")
	case cfg.KeyLength < 16:
		return nil, errors.New("password key length must be >= 16")
	}

	return &Argon2{config: cfg, rand: rand.Reader}, nil
}

// Hash returns the PHC encoding of an argon2id digest of plain under a fresh salt.
func (a *Argon2) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(a.rand, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches encoded. The parameters embedded in
// encoded are used, so hashes made under an older Config still verify.
func (a *Argon2) Verify(plain, encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(plain), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the hasher's current Config.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}

	return p.memory < a.config.Memory ||
		p.time < a.config.Time ||
		p.parallelism < a.config.Parallelism ||
		uint32(len(p.key)) != a.config.KeyLength, nil
}

type params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decode(encoded string) (*params, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return nil, ErrIncompatibleVersion
	}

	p := &params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return nil, ErrInvalidHash
	}
	if p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, ErrInvalidHash
	}

	var err error
	if p.salt, err = decodeSegment(parts[4]); err != nil || len(p.salt) < 16 {
		return nil, ErrInvalidHash
	}
	if p.key, err = decodeSegment(parts[5]); err != nil || len(p.key) == 0 {
		return nil, ErrInvalidHash
	}

	return p, nil
}

// decodeSegment accepts both the unpadded form written by Hash and padded
// base64 from other PHC producers.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
