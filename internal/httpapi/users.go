package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/greenauth"
	"github.com/MrEthical07/greenauth/middleware"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.auth.ListAccounts(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": accounts,
		"count": len(accounts),
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req greenauth.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	acc, err := s.auth.CreateAccount(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	s.setUserActive(w, r, s.auth.DeactivateAccount, "user deactivated")
}

func (s *Server) handleReactivateUser(w http.ResponseWriter, r *http.Request) {
	s.setUserActive(w, r, s.auth.ReactivateAccount, "user reactivated")
}

func (s *Server) setUserActive(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, actorID, targetID string) error,
	message string,
) {
	actor, _ := middleware.PrincipalFromContext(r.Context())
	if err := apply(r.Context(), actor.UserID, chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}
