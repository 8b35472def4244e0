// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
)

// # Error Taxonomy

// Every flow fails with one of these kinds. Callers match with errors.Is,
// which compares the machine-readable code.
var (
	// ErrInvalidCredentials covers unknown identifiers and wrong passwords alike.
	ErrInvalidCredentials = apperr.New("INVALID_CREDENTIALS", "Invalid login credentials", http.StatusUnauthorized)

	// ErrIdentityNotFound is returned when a flow names an identity that does not exist.
	ErrIdentityNotFound = apperr.NotFound("Identity")

	// ErrSessionNotFound is returned for refresh tokens with no live session.
	ErrSessionNotFound = apperr.New("NOT_FOUND", "Refresh session not found", http.StatusUnauthorized)

	// ErrAlreadyCompleted is returned when a one-time flow is replayed.
	ErrAlreadyCompleted = apperr.New("ALREADY_COMPLETED", "This step has already been completed", http.StatusConflict)

	// ErrOtpInvalid is a wrong, expired or missing one-time password.
	ErrOtpInvalid = apperr.New("OTP_INVALID", "One-time password is invalid or expired", http.StatusBadRequest)

	// ErrOtpLocked is returned when a challenge was discarded after too many wrong guesses.
	ErrOtpLocked = apperr.New("OTP_LOCKED", "Too many invalid attempts; request a new code", http.StatusLocked)

	// ErrEmailTaken is returned when an email already belongs to another identity.
	ErrEmailTaken = apperr.Conflict("Email is already in use")

	// ErrUsernameTaken is returned when a username already exists.
	ErrUsernameTaken = apperr.Conflict("Username is already in use")

	// ErrResetTokenUsed is returned for a reset token whose password was already changed.
	ErrResetTokenUsed = sec.ErrTokenExpired.WithMessage("Reset token has already been used")
)

// Token failures surface unchanged from the signer.
var (
	ErrTokenExpired          = sec.ErrTokenExpired
	ErrTokenMalformed        = sec.ErrTokenMalformed
	ErrTokenInvalidSignature = sec.ErrTokenInvalidSignature
)
