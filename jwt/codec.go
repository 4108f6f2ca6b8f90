package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretBytes is the shortest HMAC secret NewCodec accepts.
const MinSecretBytes = 32

var (
	// ErrInvalidToken is the single opaque failure returned by Verify.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrConfiguration is returned by NewCodec for a missing or unusable secret or algorithm.
	ErrConfiguration = errors.New("invalid access token configuration")
)

// Algorithm names an HMAC signing algorithm.
type Algorithm string

const (
	// HS256 is the default algorithm.
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// ParseAlgorithm resolves a configured algorithm name. Matching is
// case-insensitive and an empty name selects HS256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", string(HS256):
		return HS256, nil
	case string(HS384):
		return HS384, nil
	case string(HS512):
		return HS512, nil
	default:
		return "", fmt.Errorf("%w: unsupported algorithm %q", ErrConfiguration, name)
	}
}

// Config controls access-token signing.
type Config struct {
	Secret    []byte
	Algorithm Algorithm
	AccessTTL time.Duration
	// Issuer is stamped into iss and required on Verify when non-empty.
	Issuer string
}

// Claims is the verified content of an access token.
type Claims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Codec issues and verifies short-lived access tokens.
//
// Codec holds only immutable configuration and is safe for concurrent use.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	issuer string
}

// NewCodec validates cfg and returns a Codec.
//
// NewCodec returns an error wrapping ErrConfiguration when the secret is shorter
// than MinSecretBytes, the algorithm is not an HMAC variant, or AccessTTL is not positive.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("%w: secret is required", ErrConfiguration)
	}
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", ErrConfiguration, MinSecretBytes)
	}
	if cfg.AccessTTL <= 0 {
		return nil, fmt.Errorf("%w: access TTL must be positive", ErrConfiguration)
	}

	alg, err := ParseAlgorithm(string(cfg.Algorithm))
	if err != nil {
		return nil, err
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return &Codec{
		secret: secret,
		method: signingMethod(alg),
		ttl:    cfg.AccessTTL,
		issuer: cfg.Issuer,
	}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (c *Codec) AccessTTL() time.Duration {
	return c.ttl
}

// Algorithm returns the signing algorithm in use.
func (c *Codec) Algorithm() Algorithm {
	return Algorithm(c.method.Alg())
}

// Issue signs a token for userID carrying role, with iat=now and exp=now+AccessTTL.
func (c *Codec) Issue(userID, role string, now time.Time) (string, error) {
	if userID == "" || role == "" {
		return "", errors.New("access token requires subject and role")
	}

	claims := accessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	return jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
}

// Verify checks the signature, algorithm and lifetime of token at instant now.
//
// A token is expired once now reaches exp. Every failure, whatever its cause,
// is reported as ErrInvalidToken.
func (c *Codec) Verify(token string, now time.Time) (Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(token, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		Subject:   claims.Subject,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func signingMethod(alg Algorithm) jwt.SigningMethod {
	switch alg {
	case HS384:
		return jwt.SigningMethodHS384
	case HS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}
