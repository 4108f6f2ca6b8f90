package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T, alg Algorithm) *Codec {
	t.Helper()
	c, err := NewCodec(Config{Secret: testSecret, Algorithm: alg, AccessTTL: 15 * time.Minute})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func signRaw(t *testing.T, method gjwt.SigningMethod, key interface{}, claims gjwt.Claims) string {
	t.Helper()
	tok, err := gjwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	for _, alg := range []Algorithm{HS256, HS384, HS512} {
		c := newTestCodec(t, alg)
		if c.Algorithm() != alg {
			t.Fatalf("expected algorithm %s, got %s", alg, c.Algorithm())
		}

		token, err := c.Issue("user-1", "admin", now)
		if err != nil {
			t.Fatalf("issue %s: %v", alg, err)
		}

		got, err := c.Verify(token, now.Add(time.Minute))
		if err != nil {
			t.Fatalf("verify %s: %v", alg, err)
		}

		want := Claims{
			Subject:   "user-1",
			Role:      "admin",
			IssuedAt:  now,
			ExpiresAt: now.Add(15 * time.Minute),
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("claims mismatch for %s (-want +got):\n%s", alg, diff)
		}
	}
}

func TestVerifyExpiryBoundary(t *testing.T) {
	c := newTestCodec(t, HS256)
	now := time.Unix(1_700_000_000, 0).UTC()

	token, err := c.Issue("user-1", "user", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := c.Verify(token, now.Add(15*time.Minute-time.Second)); err != nil {
		t.Fatalf("expected token to be valid just before exp: %v", err)
	}
	if _, err := c.Verify(token, now.Add(15*time.Minute)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken at exp, got %v", err)
	}
	if _, err := c.Verify(token, now.Add(time.Hour)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after exp, got %v", err)
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	c := newTestCodec(t, HS256)
	now := time.Unix(1_700_000_000, 0).UTC()

	token, err := c.Issue("user-1", "user", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := c.Verify(tampered, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected tampered signature to fail, got %v", err)
	}

	other, err := NewCodec(Config{Secret: []byte("ffffffffffffffffffffffffffffffff"), AccessTTL: time.Minute})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if _, err := other.Verify(token, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected foreign secret to fail, got %v", err)
	}
}

func TestVerifyRejectsUnexpectedAlgorithm(t *testing.T) {
	c := newTestCodec(t, HS256)
	now := time.Unix(1_700_000_000, 0).UTC()

	claims := accessClaims{Role: "admin", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  gjwt.NewNumericDate(now),
		ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
	}}

	hs512 := signRaw(t, gjwt.SigningMethodHS512, testSecret, claims)
	if _, err := c.Verify(hs512, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected HS512 token to be rejected by HS256 codec, got %v", err)
	}

	none := signRaw(t, gjwt.SigningMethodNone, gjwt.UnsafeAllowNoneSignatureType, claims)
	if _, err := c.Verify(none, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected alg=none to be rejected, got %v", err)
	}
}

func TestVerifyRequiresClaims(t *testing.T) {
	c := newTestCodec(t, HS256)
	now := time.Unix(1_700_000_000, 0).UTC()

	cases := map[string]accessClaims{
		"missing role": {RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
		}},
		"missing sub": {Role: "user", RegisteredClaims: gjwt.RegisteredClaims{
			IssuedAt:  gjwt.NewNumericDate(now),
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
		}},
		"missing exp": {Role: "user", RegisteredClaims: gjwt.RegisteredClaims{
			Subject:  "user-1",
			IssuedAt: gjwt.NewNumericDate(now),
		}},
		"missing iat": {Role: "user", RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
		}},
		"iat in future": {Role: "user", RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  gjwt.NewNumericDate(now.Add(time.Hour)),
			ExpiresAt: gjwt.NewNumericDate(now.Add(2 * time.Hour)),
		}},
	}

	for name, claims := range cases {
		token := signRaw(t, gjwt.SigningMethodHS256, testSecret, claims)
		if _, err := c.Verify(token, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	c := newTestCodec(t, HS256)
	now := time.Unix(1_700_000_000, 0).UTC()

	for _, input := range []string{"", "not.a.jwt", "a.b", "eyJhbGciOiJIUzI1NiJ9..", strings.Repeat("x", 4096)} {
		if _, err := c.Verify(input, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected %q to fail with ErrInvalidToken, got %v", input, err)
		}
	}
}

func TestVerifyIssuer(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	c, err := NewCodec(Config{Secret: testSecret, AccessTTL: time.Minute, Issuer: "greenauth"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	token, err := c.Issue("user-1", "user", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c.Verify(token, now); err != nil {
		t.Fatalf("expected matching issuer to verify: %v", err)
	}

	plain := newTestCodec(t, HS256)
	foreign, err := plain.Issue("user-1", "user", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := c.Verify(foreign, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected missing issuer to fail, got %v", err)
	}
}

func TestNewCodecConfiguration(t *testing.T) {
	cases := map[string]Config{
		"no secret":     {AccessTTL: time.Minute},
		"short secret":  {Secret: []byte("short"), AccessTTL: time.Minute},
		"zero ttl":      {Secret: testSecret},
		"bad algorithm": {Secret: testSecret, AccessTTL: time.Minute, Algorithm: "RS256"},
	}
	for name, cfg := range cases {
		if _, err := NewCodec(cfg); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	cases := map[string]Algorithm{"": HS256, "hs256": HS256, "HS384": HS384, " hs512 ": HS512}
	for in, want := range cases {
		got, err := ParseAlgorithm(in)
		if err != nil || got != want {
			t.Fatalf("ParseAlgorithm(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := ParseAlgorithm("none"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected none to be rejected, got %v", err)
	}
}

func FuzzVerify(f *testing.F) {
	c, err := NewCodec(Config{Secret: testSecret, AccessTTL: 5 * time.Minute})
	if err != nil {
		f.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0).UTC()
	valid, err := c.Issue("uid1", "user", now)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := c.Verify(input, now)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("unexpected error type: %v", err)
			}
			return
		}
		if claims.Subject == "" || claims.Role == "" {
			t.Fatal("Verify accepted a token without subject or role")
		}
	})
}
