package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	maxMemoryKB    uint32 = 1024 * 1024
	maxTimeCost    uint32 = 64
	maxParallelism uint8  = 64
	maxKeyLength   uint32 = 256
	maxPassBytes          = 1024
	algorithmID           = "argon2id"
)

// ErrPolicy is returned by Hash when the plaintext violates the length policy.
var ErrPolicy = errors.New("password policy violation")

// Config holds the argon2id cost parameters used for new digests.
//
// Stored digests carry their own parameters, so raising these values never
// invalidates existing credentials; NeedsRehash reports which digests lag behind.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// DefaultConfig returns the production cost profile (64 MiB, t=3, p=2).
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
	}
}

// Hasher produces argon2id PHC digests and verifies both argon2id and legacy
// bcrypt digests.
//
// Hasher instances are immutable after NewHasher and safe for concurrent use.
type Hasher struct {
	config Config
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

// NewHasher validates cfg and returns a Hasher.
//
// NewHasher returns an error when any cost parameter falls below the hardened minimums.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Hasher{config: cfg}, nil
}

// Hash derives a salted argon2id digest of plaintext and encodes it in PHC form:
// $argon2id$v=19$m=<kib>,t=<iterations>,p=<lanes>$<salt>$<hash>.
//
// Hash returns ErrPolicy when plaintext is shorter than MinLength or longer than 1024 bytes.
func (h *Hasher) Hash(plaintext string) (string, error) {
	// Raw bytes are hashed exactly as provided; no Unicode normalization.
	if len(plaintext) < h.config.MinLength {
		return "", fmt.Errorf("%w: must be at least %d bytes", ErrPolicy, h.config.MinLength)
	}
	if len(plaintext) > maxPassBytes {
		return "", fmt.Errorf("%w: must be at most %d bytes", ErrPolicy, maxPassBytes)
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(plaintext),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches digest.
//
// Malformed, truncated, or unsupported digests verify as false; Verify never
// panics on stored data. Comparison of derived keys is constant time.
func (h *Hasher) Verify(plaintext, digest string) bool {
	if isBcrypt(digest) {
		return verifyBcrypt(plaintext, digest)
	}

	parsed, err := parsePHC(digest)
	if err != nil || !h.withinBudget(parsed) {
		return false
	}

	computed := argon2.IDKey(
		[]byte(plaintext),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1
}

// NeedsRehash reports whether digest should be replaced with a fresh Hash of
// the same plaintext: legacy bcrypt digests, unparsable digests, and argon2id
// digests with weaker parameters than the current Config all qualify.
func (h *Hasher) NeedsRehash(digest string) bool {
	if isBcrypt(digest) {
		return true
	}

	parsed, err := parsePHC(digest)
	if err != nil {
		return true
	}

	switch {
	case h.config.Memory > parsed.memory:
		return true
	case h.config.Time > parsed.time:
		return true
	case h.config.Parallelism > parsed.parallelism:
		return true
	case h.config.KeyLength != parsed.keyLength:
		return true
	}

	return false
}

// withinBudget caps the work a stored digest can demand relative to the
// configured cost, so a corrupted record cannot stall Verify.
func (h *Hasher) withinBudget(p *parsedPHC) bool {
	return uint64(p.memory) <= 4*uint64(h.config.Memory) &&
		uint64(p.time) <= 16*uint64(h.config.Time)
}

func parsePHC(digest string) (*parsedPHC, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}

	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	versionPart := parts[2]
	if !strings.HasPrefix(versionPart, "v=") {
		return nil, errors.New("missing argon2 version")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(versionPart, "v="))
	if err != nil {
		return nil, errors.New("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := decodeSegment(parts[4])
	if err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if len(salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt length")
	}

	key, err := decodeSegment(parts[5])
	if err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(key) < int(minKeyLength) || len(key) > int(maxKeyLength) {
		return nil, errors.New("invalid hash length")
	}

	return &parsedPHC{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		hash:        key,
		keyLength:   uint32(len(key)),
	}, nil
}

// decodeSegment accepts both padded and unpadded standard base64, since
// digests written by other PHC implementations may carry '=' padding.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, errors.New("invalid parameter format")
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}

		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) || v > uint64(maxMemoryKB) {
				return nil, errors.New("invalid memory parameter")
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) || v > uint64(maxTimeCost) {
				return nil, errors.New("invalid time parameter")
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) || v > uint64(maxParallelism) {
				return nil, errors.New("invalid parallelism parameter")
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, errors.New("unsupported parameter")
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return nil, errors.New("missing parameters")
	}

	return &params, nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB || cfg.Memory > maxMemoryKB {
		return errors.New("password memory must be between 8192 KB and 1 GiB")
	}
	if cfg.Time < minTimeCost || cfg.Time > maxTimeCost {
		return errors.New("password time must be between 1 and 64")
	}
	if cfg.Parallelism < minParallelism || cfg.Parallelism > maxParallelism {
		return errors.New("password parallelism must be between 1 and 64")
	}
	if cfg.KeyLength > maxKeyLength {
		return errors.New("password key length must be <= 256")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if cfg.MinLength < 1 || cfg.MinLength > maxPassBytes {
		return errors.New("password min length must be between 1 and 1024")
	}

	return nil
}
