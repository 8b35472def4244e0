// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/taibuivan/yomira-auth/internal/platform/constants"
	"github.com/taibuivan/yomira-auth/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-auth/pkg/normalize"
)

// PurposePasswordReset marks tokens that authorize a password change.
const PurposePasswordReset = "password_reset"

// passwordFingerprint binds a reset token to the password it replaces: once
// the hash changes, every outstanding reset token stops matching.
func passwordFingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}

// # Password Reset Flow

/*
RequestPasswordReset sends a reset code to an active identity.

Description: The call succeeds whether or not the email is registered, so
responses do not reveal which addresses exist.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: Storage failures only
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) error {
	identity, err := service.activeByEmail(context, email)
	if errors.Is(err, ErrIdentityNotFound) {
		ctxutil.GetLogger(context).Debug("auth_password_reset_ignored")
		return nil
	}
	if err != nil {
		return err
	}

	if err := service.otp.Issue(context, identity, passwordResetMessage); err != nil {
		return err
	}

	ctxutil.GetLogger(context).Info("auth_password_reset_requested", slog.String("identity_id", identity.ID))
	return nil
}

/*
VerifyPasswordReset exchanges a valid reset code for a short-lived reset token.

Returns:
  - *ResetGrant: The reset token and its expiry
  - error: ErrOtpInvalid (also for unknown emails) or ErrOtpLocked
*/
func (service *Service) VerifyPasswordReset(context context.Context, email, code string) (*ResetGrant, error) {
	identity, err := service.activeByEmail(context, email)
	if errors.Is(err, ErrIdentityNotFound) {
		return nil, ErrOtpInvalid
	}
	if err != nil {
		return nil, err
	}

	result, err := service.otp.Validate(context, identity.ID, code)
	if err != nil {
		return nil, err
	}
	if err := result.Err(); err != nil {
		return nil, err
	}

	token, err := service.signer.IssuePurpose(
		identity.principal(),
		PurposePasswordReset,
		passwordFingerprint(identity.PasswordHash),
		constants.PasswordResetTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("auth_service_sign_reset_failed: %w", err)
	}

	return &ResetGrant{Token: token, ExpiresAt: service.now().Add(constants.PasswordResetTTL)}, nil
}

/*
ResetPassword sets a new password using a reset token and signs the identity
out everywhere.

Description: The token is single-use: it carries a fingerprint of the
password hash it was issued against, and the change it authorizes makes that
fingerprint stale.

Returns:
  - error: Token errors, ErrResetTokenUsed or storage failures
*/
func (service *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	claims, err := service.signer.VerifyPurpose(resetToken, PurposePasswordReset)
	if err != nil {
		return err
	}

	passwordHash, err := service.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	err = service.store.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		identity, err := repos.Identities.FindByIDForUpdate(ctx, claims.IdentityID)
		if err != nil {
			return err
		}
		if passwordFingerprint(identity.PasswordHash) != claims.Fingerprint {
			return ErrResetTokenUsed
		}

		identity.PasswordHash = passwordHash
		identity.UpdatedAt = service.now()
		if err := repos.Identities.Save(ctx, identity); err != nil {
			return err
		}
		return repos.Sessions.DeleteByIdentity(ctx, identity.ID)
	})
	if err != nil {
		return err
	}

	ctxutil.GetLogger(ctx).Info("auth_password_reset_completed", slog.String("identity_id", claims.IdentityID))
	return nil
}

// activeByEmail resolves an ACTIVE identity by email; anything else is not found.
func (service *Service) activeByEmail(context context.Context, email string) (*Identity, error) {
	key := normalize.Email(email)
	if key == nil {
		return nil, ErrIdentityNotFound
	}

	identity, err := service.store.Repositories().Identities.FindByEmail(context, *key)
	if err != nil {
		return nil, err
	}
	if identity.State() != StateActive {
		return nil, ErrIdentityNotFound
	}
	return identity, nil
}
