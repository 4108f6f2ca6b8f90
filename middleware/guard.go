package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/greenauth"
)

// Authenticator resolves an access token to a live principal.
// *greenauth.Engine satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*greenauth.Principal, error)
}

// ErrorWriter renders a rejected request. status is 401 or 403, or 503 when
// the account lookup could not reach the store.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, err error)

type principalContextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *greenauth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal a guard attached to ctx.
func PrincipalFromContext(ctx context.Context) (*greenauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*greenauth.Principal)
	return p, ok && p != nil
}

// Guard authenticates the bearer token on every request and admits the
// caller when allow returns true. A nil allow admits any authenticated
// caller. Missing or invalid bearers and unknown or disabled accounts get
// 401; a principal that fails allow gets 403.
func Guard(auth Authenticator, allow func(*greenauth.Principal) bool, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = plainError
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				onError(w, r, http.StatusUnauthorized, greenauth.ErrInvalidToken)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				onError(w, r, http.StatusUnauthorized, greenauth.ErrInvalidToken)
				return
			}

			p, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, greenauth.ErrStoreUnavailable) {
					status = http.StatusServiceUnavailable
				}
				onError(w, r, status, err)
				return
			}

			if allow != nil && !allow(p) {
				onError(w, r, http.StatusForbidden, greenauth.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func plainError(w http.ResponseWriter, _ *http.Request, status int, _ error) {
	http.Error(w, strings.ToLower(http.StatusText(status)), status)
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
