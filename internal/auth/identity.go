// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the authentication and session lifecycle engine.

It owns the identity entity and the flows that move it between lifecycle
states: admin first-time setup, user activation with a one-time password,
credential login, refresh-token rotation and logout, and password reset.

# Architecture

  - Entities (this file) carry no storage or transport dependencies.
  - Contracts (store.go) describe persistence and collaborators.
  - Managers (otp.go, refresh.go) hold the single-purpose state machines.
  - The [Service] orchestrates them; [Handler] exposes it over HTTP.
*/
package auth

import (
	"time"

	"github.com/taibuivan/yomira-auth/internal/platform/sec"
)

// # Domain Entities

// IdentityState is derived from the persisted fields; it is never stored.
type IdentityState string

const (
	// StateAdminPendingSetup is an admin that has not completed first-time setup.
	StateAdminPendingSetup IdentityState = "ADMIN_PENDING_SETUP"

	// StateUserPendingActivation is a provisioned user still holding a temporary password.
	StateUserPendingActivation IdentityState = "USER_PENDING_ACTIVATION"

	// StateActive is an identity allowed to hold sessions.
	StateActive IdentityState = "ACTIVE"
)

// Identity is an account that can authenticate.
//
// Username and Email are stored normalized. Email may be nil only while an
// admin has not completed first-time setup.
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         sec.Role  `json:"role"`
	FirstLogin   bool      `json:"first_login"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// State reports the lifecycle state of the identity.
func (identity *Identity) State() IdentityState {
	switch {
	case !identity.FirstLogin:
		return StateActive
	case identity.Role == sec.RoleAdmin:
		return StateAdminPendingSetup
	default:
		return StateUserPendingActivation
	}
}

// LoginKey is the identifier embedded as the token subject: the email once set,
// the username before that.
func (identity *Identity) LoginKey() string {
	if identity.Email != nil {
		return *identity.Email
	}
	return identity.Username
}

// principal returns the view of the identity the token signer needs.
func (identity *Identity) principal() sec.Principal {
	return sec.Principal{
		IdentityID: identity.ID,
		Subject:    identity.LoginKey(),
		Role:       identity.Role,
	}
}

// RefreshSession is the single server-side record of a long-lived credential.
// Only the SHA-256 digest of the opaque token is persisted.
type RefreshSession struct {
	ID         string
	IdentityID string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// OtpChallenge is the pending one-time password of an identity.
// At most one exists per identity at any instant.
type OtpChallenge struct {
	IdentityID string
	CodeHash   string
	ExpiresAt  time.Time
	Attempts   int
	Used       bool
	CreatedAt  time.Time
}

// # Flow Outputs

// LoginStatus tells the client what a successful credential check unlocked.
type LoginStatus string

const (
	LoginSuccess            LoginStatus = "SUCCESS"
	LoginAdminSetupRequired LoginStatus = "ADMIN_SETUP_REQUIRED"
	LoginActivationRequired LoginStatus = "ACTIVATION_REQUIRED"
)

// SessionTokens is the credential pair handed to a client.
type SessionTokens struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

// LoginOutcome is the result of [Service.Login] and of the completion flows.
// Tokens is nil unless Status is [LoginSuccess].
type LoginOutcome struct {
	Status   LoginStatus
	Identity *Identity
	Tokens   *SessionTokens
}

// ResetGrant authorizes a single password change.
type ResetGrant struct {
	Token     string
	ExpiresAt time.Time
}

// # Field Identifiers

// JSON and validation field names used across the authentication domain.
const (
	FieldUsername          = "username"
	FieldEmail             = "email"
	FieldPassword          = "password"
	FieldIdentifier        = "identifier"
	FieldCurrentPassword   = "current_password"
	FieldNewEmail          = "new_email"
	FieldNewPassword       = "new_password"
	FieldTemporaryPassword = "temporary_password"
	FieldOtpCode           = "otp_code"
	FieldRefreshToken      = "refresh_token"
	FieldResetToken        = "reset_token"
)
