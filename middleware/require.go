package middleware

import (
	"net/http"

	"github.com/MrEthical07/greenauth"
)

// RequireUserOrAdmin admits any enabled account holding a known role.
func RequireUserOrAdmin(auth Authenticator, onError ErrorWriter) func(http.Handler) http.Handler {
	return Guard(auth, greenauth.IsUserOrAdmin, onError)
}

// RequireAdmin admits admins only.
func RequireAdmin(auth Authenticator, onError ErrorWriter) func(http.Handler) http.Handler {
	return Guard(auth, greenauth.IsAdmin, onError)
}
