// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/pkg/normalize"
)

// timingPlaceholder is hashed once and verified against when an identifier
// is unknown, so that both failure paths cost one hash verification.
const timingPlaceholder = "yomira-auth-unknown-identity"

// # Configuration

// Options tunes a [Service]. Zero values select production defaults.
type Options struct {
	// RefreshTokenTTL is the lifetime of a refresh session.
	RefreshTokenTTL time.Duration

	// Clock replaces time.Now.
	Clock func() time.Time

	// CodeGenerator replaces the six-digit OTP generator.
	CodeGenerator CodeGenerator
}

// Dependencies lists the collaborators of a [Service].
type Dependencies struct {
	Store      Store
	Challenges OtpChallengeRepository
	Hasher     Hasher
	Signer     Signer
	Deliverer  Deliverer
}

// Service orchestrates the lifecycle flows of an identity.
//
// # Review Process
//
// This service is critical for security. Changes to credential checks, the
// order of failure checks, or session issuance need a security review.
type Service struct {
	store     Store
	hasher    Hasher
	signer    Signer
	otp       *OtpManager
	refresh   *RefreshManager
	now       func() time.Time
	dummyHash func() string
}

// NewService constructs a [Service].
func NewService(deps Dependencies, opts Options) *Service {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	hasher := deps.Hasher
	return &Service{
		store:   deps.Store,
		hasher:  hasher,
		signer:  deps.Signer,
		otp:     NewOtpManager(deps.Challenges, hasher, deps.Deliverer, opts.CodeGenerator, now),
		refresh: NewRefreshManager(deps.Store, deps.Signer, opts.RefreshTokenTTL, now),
		now:     now,
		dummyHash: sync.OnceValue(func() string {
			hash, _ := hasher.Hash(timingPlaceholder)
			return hash
		}),
	}
}

// # Login Flow

/*
Login authenticates identifier and password and reports the next step.

Description: The identifier is normalized and matched against emails first,
then usernames. An ACTIVE identity receives a token pair; an identity still
in a first-login state receives only its status and no session.

Parameters:
  - context: context.Context
  - identifier: string (username or email, any case)
  - password: string

Returns:
  - *LoginOutcome: Status, identity and, on SUCCESS, tokens
  - error: ErrInvalidCredentials for unknown identifiers and wrong passwords
*/
func (service *Service) Login(context context.Context, identifier, password string) (*LoginOutcome, error) {
	identity, err := service.authenticate(context, identifier, password)
	if err != nil {
		return nil, err
	}

	switch identity.State() {
	case StateAdminPendingSetup:
		return &LoginOutcome{Status: LoginAdminSetupRequired, Identity: identity}, nil

	case StateUserPendingActivation:
		if err := service.otp.Issue(context, identity, activationMessage); err != nil {
			return nil, err
		}
		return &LoginOutcome{Status: LoginActivationRequired, Identity: identity}, nil
	}

	tokens, err := service.refresh.Issue(context, identity)
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).Info("auth_login_succeeded", slog.String("identity_id", identity.ID))
	return &LoginOutcome{Status: LoginSuccess, Identity: identity, Tokens: tokens}, nil
}

func (service *Service) authenticate(context context.Context, identifier, password string) (*Identity, error) {
	identity, err := service.lookup(context, normalize.Identifier(identifier))
	if errors.Is(err, ErrIdentityNotFound) {
		service.hasher.Verify(password, service.dummyHash())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !service.hasher.Verify(password, identity.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return identity, nil
}

// lookup resolves a normalized identifier as an email, then as a username.
func (service *Service) lookup(context context.Context, key string) (*Identity, error) {
	if key == "" {
		return nil, ErrIdentityNotFound
	}

	identities := service.store.Repositories().Identities
	identity, err := identities.FindByEmail(context, key)
	if err == nil || !errors.Is(err, ErrIdentityNotFound) {
		return identity, err
	}
	return identities.FindByUsername(context, key)
}

// # Admin First-Time Setup

// SetupAdminInput carries the admin setup form.
type SetupAdminInput struct {
	Username        string
	CurrentPassword string
	NewEmail        string
	NewPassword     string
}

/*
SetupAdmin completes the first-time setup of an admin and logs it in.

Description: Checks run in a fixed order: the identity must exist and be an
admin, setup must not be completed yet, the current password must match, and
the new email must be free. The identity update and the new session commit
together.

Returns:
  - *LoginOutcome: SUCCESS with tokens
  - error: ErrIdentityNotFound, ErrAlreadyCompleted, ErrInvalidCredentials or ErrEmailTaken
*/
func (service *Service) SetupAdmin(ctx context.Context, input SetupAdminInput) (*LoginOutcome, error) {
	identity, err := service.store.Repositories().Identities.FindByUsername(ctx, normalize.Identifier(input.Username))
	if err != nil {
		return nil, err
	}

	// Users finish their first login through activation, never through setup.
	if identity.Role != sec.RoleAdmin {
		return nil, ErrIdentityNotFound
	}
	if identity.State() != StateAdminPendingSetup {
		return nil, ErrAlreadyCompleted
	}
	if !service.hasher.Verify(input.CurrentPassword, identity.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	email := normalize.Email(input.NewEmail)
	if email == nil {
		return nil, apperr.ValidationError("Email is required")
	}
	if err := service.ensureEmailFree(ctx, *email, identity.ID); err != nil {
		return nil, err
	}

	passwordHash, err := service.hasher.Hash(input.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	outcome, err := service.complete(ctx, identity.ID, StateAdminPendingSetup, func(locked *Identity) {
		locked.Email = email
		locked.PasswordHash = passwordHash
		locked.FirstLogin = false
	})
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(ctx).Info("auth_admin_setup_completed", slog.String("identity_id", identity.ID))
	return outcome, nil
}

// ensureEmailFree reports ErrEmailTaken when email belongs to anyone but ownerID.
func (service *Service) ensureEmailFree(context context.Context, email, ownerID string) error {
	owner, err := service.store.Repositories().Identities.FindByEmail(context, email)
	switch {
	case err == nil && owner.ID == ownerID:
		return nil
	case err == nil:
		return ErrEmailTaken
	case errors.Is(err, ErrIdentityNotFound):
		return nil
	default:
		return err
	}
}

// # User Activation

// ActivateInput carries the activation form.
type ActivateInput struct {
	Username          string
	TemporaryPassword string
	OtpCode           string
	NewPassword       string
}

/*
Activate completes the first login of a provisioned user.

Description: Checks run in a fixed order: the identity must exist, the
temporary password must match, activation must not be completed yet, and the
one-time password must validate. The password change and the new session
commit together.

Returns:
  - *LoginOutcome: SUCCESS with tokens
  - error: ErrIdentityNotFound, ErrInvalidCredentials, ErrAlreadyCompleted, ErrOtpInvalid or ErrOtpLocked
*/
func (service *Service) Activate(ctx context.Context, input ActivateInput) (*LoginOutcome, error) {
	identity, err := service.store.Repositories().Identities.FindByUsername(ctx, normalize.Identifier(input.Username))
	if err != nil {
		return nil, err
	}

	if !service.hasher.Verify(input.TemporaryPassword, identity.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if identity.State() != StateUserPendingActivation {
		return nil, ErrAlreadyCompleted
	}

	result, err := service.otp.Validate(ctx, identity.ID, input.OtpCode)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	passwordHash, err := service.hasher.Hash(input.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	outcome, err := service.complete(ctx, identity.ID, StateUserPendingActivation, func(locked *Identity) {
		locked.PasswordHash = passwordHash
		locked.FirstLogin = false
	})
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(ctx).Info("auth_activation_completed", slog.String("identity_id", identity.ID))
	return outcome, nil
}

// complete applies mutate to the locked identity, provided it is still in
// state expected, and opens its first session in the same transaction.
func (service *Service) complete(ctx context.Context, identityID string, expected IdentityState, mutate func(locked *Identity)) (*LoginOutcome, error) {
	var outcome *LoginOutcome

	err := service.store.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		locked, err := repos.Identities.FindByIDForUpdate(ctx, identityID)
		if err != nil {
			return err
		}
		if locked.State() != expected {
			return ErrAlreadyCompleted
		}

		mutate(locked)
		locked.UpdatedAt = service.now()
		if err := repos.Identities.Save(ctx, locked); err != nil {
			return err
		}

		tokens, err := service.refresh.mint(ctx, repos, locked)
		if err != nil {
			return err
		}
		outcome = &LoginOutcome{Status: LoginSuccess, Identity: locked, Tokens: tokens}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// # Session Flows

// Refresh rotates a refresh token into a new token pair.
func (service *Service) Refresh(context context.Context, refreshToken string) (*SessionTokens, error) {
	return service.refresh.Rotate(context, refreshToken)
}

// Logout revokes the session of refreshToken. It succeeds for unknown tokens.
func (service *Service) Logout(context context.Context, refreshToken string) error {
	return service.refresh.Revoke(context, refreshToken)
}

// Me returns the identity behind an authenticated request.
func (service *Service) Me(context context.Context, identityID string) (*Identity, error) {
	return service.store.Repositories().Identities.FindByID(context, identityID)
}

// AccessTokenTTL is the lifetime of the access tokens this service issues.
func (service *Service) AccessTokenTTL() time.Duration {
	return service.signer.AccessTTL()
}
