package greenauth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/MrEthical07/greenauth/internal/stores"
	"github.com/MrEthical07/greenauth/password"
)

// CreateAccount stores a new active account. An empty role creates a user.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	created, err := e.createAccount(ctx, req)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricAccountCreationDuplicate)
		}
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventAccountCreationFailure,
			err:       err,
		})
		return nil, err
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventAccountCreated,
		success:   true,
		userID:    created.ID,
		metadata: func() map[string]string {
			return map[string]string{"role": string(created.Role)}
		},
	})
	return created, nil
}

func (e *Engine) createAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	username := strings.TrimSpace(req.Username)
	email := stores.NormalizeEmail(req.Email)
	if username == "" || email == "" {
		return nil, ErrInvalidAccount
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, ErrInvalidAccount
	}

	role, err := ParseRole(string(req.Role))
	if err != nil {
		return nil, err
	}

	digest, err := e.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrPolicy) {
			return nil, ErrPasswordPolicy
		}
		return nil, err
	}

	acc, err := e.accounts.Create(ctx, stores.Account{
		Username:     username,
		Email:        email,
		PasswordHash: digest,
		Role:         string(role),
		Active:       true,
		CreatedAt:    e.now(),
	})
	if err != nil {
		if errors.Is(err, stores.ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, e.unavailable(err)
	}

	out := accountFromStore(acc)
	return &out, nil
}

// Account returns the account with id.
func (e *Engine) Account(ctx context.Context, id string) (*Account, error) {
	acc, err := e.accounts.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, stores.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, e.unavailable(err)
	}
	out := accountFromStore(acc)
	return &out, nil
}

// ListAccounts returns every account in creation order.
func (e *Engine) ListAccounts(ctx context.Context) ([]Account, error) {
	accs, err := e.accounts.List(ctx)
	if err != nil {
		return nil, e.unavailable(err)
	}
	out := make([]Account, 0, len(accs))
	for _, acc := range accs {
		out = append(out, accountFromStore(acc))
	}
	return out, nil
}

// DeactivateAccount disables targetID on behalf of actorID. An admin cannot
// deactivate themselves. Outstanding access tokens stop authenticating on
// their next request; refresh tokens stop rotating.
func (e *Engine) DeactivateAccount(ctx context.Context, actorID, targetID string) error {
	if actorID != "" && actorID == targetID {
		e.emitAudit(ctx, auditRecord{
			eventType: auditEventAccountStatusChange,
			userID:    targetID,
			err:       ErrSelfDeactivation,
		})
		return ErrSelfDeactivation
	}
	if err := e.setActive(ctx, actorID, targetID, false); err != nil {
		return err
	}
	e.metricInc(MetricAccountDeactivated)
	return nil
}

// ReactivateAccount re-enables targetID and clears deactivated_at.
func (e *Engine) ReactivateAccount(ctx context.Context, actorID, targetID string) error {
	if err := e.setActive(ctx, actorID, targetID, true); err != nil {
		return err
	}
	e.metricInc(MetricAccountReactivated)
	return nil
}

func (e *Engine) setActive(ctx context.Context, actorID, targetID string, active bool) error {
	status := "deactivated"
	if active {
		status = "active"
	}

	err := e.accounts.SetActive(ctx, targetID, active, e.now())
	if err != nil {
		if errors.Is(err, stores.ErrAccountNotFound) {
			err = ErrAccountNotFound
		} else {
			err = e.unavailable(err)
		}
	}

	e.emitAudit(ctx, auditRecord{
		eventType: auditEventAccountStatusChange,
		success:   err == nil,
		userID:    targetID,
		err:       err,
		metadata: func() map[string]string {
			return map[string]string{"status": status, "actor_id": actorID}
		},
	})
	return err
}

// BootstrapAdmin creates an admin account unless one with email already
// exists. It reports whether an account was created.
func (e *Engine) BootstrapAdmin(ctx context.Context, username, email, plaintext string) (bool, error) {
	_, err := e.accounts.ByEmail(ctx, email)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, stores.ErrAccountNotFound):
		return false, e.unavailable(err)
	}

	if _, err := e.CreateAccount(ctx, CreateAccountRequest{
		Username: username,
		Email:    email,
		Password: plaintext,
		Role:     RoleAdmin,
	}); err != nil {
		return false, err
	}
	return true, nil
}
