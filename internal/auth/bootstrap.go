// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/pkg/normalize"
	"github.com/taibuivan/yomira-auth/pkg/uuid"
)

// # Provisioning

/*
BootstrapAdmin seeds the initial admin account when it does not exist yet.

Description: The admin starts in ADMIN_PENDING_SETUP: no email, first-login
set. Running it again, or racing another instance, is a no-op.

Parameters:
  - context: context.Context
  - username: string
  - password: string (initial password, replaced during setup)

Returns:
  - bool: Whether the account was created by this call
  - error: Hashing or storage failures
*/
func (service *Service) BootstrapAdmin(context context.Context, username, password string) (bool, error) {
	key := normalize.Identifier(username)
	identities := service.store.Repositories().Identities

	_, err := identities.FindByUsername(context, key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return false, err
	}

	passwordHash, err := service.hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("auth_bootstrap_hash_failed: %w", err)
	}

	now := service.now()
	admin := &Identity{
		ID:           uuid.New(),
		Username:     key,
		PasswordHash: passwordHash,
		Role:         sec.RoleAdmin,
		FirstLogin:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := identities.Create(context, admin); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return false, nil
		}
		return false, err
	}

	ctxutil.GetLogger(context).Info("auth_admin_bootstrapped",
		slog.String("identity_id", admin.ID),
		slog.String("username", admin.Username),
	)
	return true, nil
}

// ProvisionInput carries the data an admin supplies for a new user.
type ProvisionInput struct {
	Username          string
	Email             string
	TemporaryPassword string
}

/*
ProvisionUser creates a user in USER_PENDING_ACTIVATION on behalf of an admin.

Description: The user signs in with the temporary password, receives a
one-time password by email, and then chooses a password of their own.

Parameters:
  - context: context.Context
  - actor: *sec.Claims (the caller; must hold the ADMIN role)
  - input: ProvisionInput

Returns:
  - *Identity: The created identity
  - error: Forbidden, ErrUsernameTaken, ErrEmailTaken or storage failures
*/
func (service *Service) ProvisionUser(context context.Context, actor *sec.Claims, input ProvisionInput) (*Identity, error) {
	if actor == nil || !actor.Role.AtLeast(sec.RoleAdmin) {
		return nil, apperr.Forbidden("Only administrators can provision users")
	}

	email := normalize.Email(input.Email)
	if email == nil {
		return nil, apperr.ValidationError("Email is required")
	}

	passwordHash, err := service.hasher.Hash(input.TemporaryPassword)
	if err != nil {
		return nil, fmt.Errorf("auth_provision_hash_failed: %w", err)
	}

	now := service.now()
	identity := &Identity{
		ID:           uuid.New(),
		Username:     normalize.Identifier(input.Username),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         sec.RoleUser,
		FirstLogin:   true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := service.store.Repositories().Identities.Create(context, identity); err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).Info("auth_user_provisioned",
		slog.String("identity_id", identity.ID),
		slog.String("actor_id", actor.IdentityID),
	)
	return identity, nil
}
