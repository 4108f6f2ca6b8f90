package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/MrEthical07/greenauth"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeUnavailable = "unavailable"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // the client may already be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// errorResponse maps an engine error to its HTTP form.
func errorResponse(err error) Error {
	kind := greenauth.KindOf(err)
	e := Error{Code: kind.String()}

	switch kind {
	case greenauth.KindInvalidCredentials, greenauth.KindAccountDisabled:
		// A disabled account is indistinguishable from a wrong password.
		e.Status, e.Code, e.Message = http.StatusUnauthorized, greenauth.KindInvalidCredentials.String(), "invalid credentials"
	case greenauth.KindInvalidToken:
		e.Status, e.Message = http.StatusUnauthorized, "invalid token"
	case greenauth.KindTokenRevoked:
		e.Status, e.Message = http.StatusUnauthorized, "token revoked"
	case greenauth.KindTokenExpired:
		e.Status, e.Message = http.StatusUnauthorized, "token expired"
	case greenauth.KindForbidden:
		e.Status, e.Message = http.StatusForbidden, "forbidden"
	case greenauth.KindAccountNotFound:
		e.Status, e.Code, e.Message = http.StatusNotFound, ErrCodeNotFound, "user not found"
	case greenauth.KindRateLimited:
		e.Status, e.Message = http.StatusTooManyRequests, "too many login attempts"
	case greenauth.KindAccountExists:
		e.Status, e.Message = http.StatusConflict, "username or email already exists"
	case greenauth.KindInvalidAccount, greenauth.KindInvalidRole, greenauth.KindPasswordPolicy:
		e.Status, e.Code, e.Message = http.StatusBadRequest, ErrCodeValidation, err.Error()
	case greenauth.KindSelfDeactivation:
		e.Status, e.Message = http.StatusBadRequest, "you cannot deactivate yourself"
	case greenauth.KindStoreUnavailable:
		e.Status, e.Code, e.Message = http.StatusServiceUnavailable, ErrCodeUnavailable, "service unavailable"
	default:
		e.Status, e.Code, e.Message = http.StatusInternalServerError, ErrCodeInternal, "internal server error"
	}
	return e
}

// writeEngineError renders err and reports server-side failures to Sentry.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	e := errorResponse(err)
	if e.Status >= http.StatusInternalServerError {
		s.captureError(r, err)
	}
	writeJSON(w, e.Status, e)
}

// writeRefreshError keeps every account problem at 401 so a client only
// learns that it has to log in again.
func (s *Server) writeRefreshError(w http.ResponseWriter, r *http.Request, err error) {
	switch greenauth.KindOf(err) {
	case greenauth.KindAccountDisabled, greenauth.KindAccountNotFound:
		writeError(w, http.StatusUnauthorized, greenauth.KindOf(err).String(), "account unavailable")
	default:
		s.writeEngineError(w, r, err)
	}
}

// guardError renders rejections from the access guard.
func (s *Server) guardError(w http.ResponseWriter, r *http.Request, status int, err error) {
	e := Error{Status: status, Code: greenauth.KindOf(err).String()}
	switch {
	case status == http.StatusForbidden:
		e.Message = "forbidden"
	case status == http.StatusServiceUnavailable:
		e.Code, e.Message = ErrCodeUnavailable, "service unavailable"
		s.captureError(r, err)
	case errors.Is(err, greenauth.ErrAccountDisabled), errors.Is(err, greenauth.ErrAccountNotFound):
		e.Message = "account unavailable"
	default:
		e.Message = "invalid token"
	}
	writeJSON(w, e.Status, e)
}

func (s *Server) captureError(r *http.Request, err error) {
	s.logger.Error("request failed",
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestIDFromContext(r.Context()),
	)
	hub := sentry.GetHubFromContext(r.Context())
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}
