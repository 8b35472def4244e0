// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/yomira-auth/internal/platform/constants"
	"github.com/taibuivan/yomira-auth/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-auth/internal/platform/mailer"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
)

// OtpResult is the outcome of a validation attempt.
type OtpResult string

const (
	OtpOK               OtpResult = "OK"
	OtpInvalidOrExpired OtpResult = "INVALID_OR_EXPIRED"
	OtpLocked           OtpResult = "LOCKED"
)

// Err maps a non-OK result to its error kind.
func (result OtpResult) Err() error {
	switch result {
	case OtpOK:
		return nil
	case OtpLocked:
		return ErrOtpLocked
	default:
		return ErrOtpInvalid
	}
}

// CodeGenerator produces a fresh one-time code.
type CodeGenerator func() (string, error)

// SixDigitCode draws a uniform code in [100000, 999999] from a CSPRNG.
func SixDigitCode() (string, error) {
	return sec.GenerateNumericCode(constants.OtpCodeMin, constants.OtpCodeMax)
}

// OtpManager issues and validates per-identity one-time passwords.
type OtpManager struct {
	challenges OtpChallengeRepository
	hasher     Hasher
	deliverer  Deliverer
	generate   CodeGenerator
	now        func() time.Time
}

// NewOtpManager wires the manager. A nil generator defaults to [SixDigitCode]
// and a nil clock to time.Now.
func NewOtpManager(challenges OtpChallengeRepository, hasher Hasher, deliverer Deliverer, generate CodeGenerator, now func() time.Time) *OtpManager {
	if generate == nil {
		generate = SixDigitCode
	}
	if now == nil {
		now = time.Now
	}
	return &OtpManager{
		challenges: challenges,
		hasher:     hasher,
		deliverer:  deliverer,
		generate:   generate,
		now:        now,
	}
}

/*
Issue creates a fresh challenge for identity and sends the code to its email.

Description: Any pending challenge of the identity is replaced atomically.
A failed delivery is logged and does not fail the call; the plaintext code
never leaves this function except through the deliverer.

Parameters:
  - context: context.Context
  - identity: *Identity (must carry an email to receive the code)
  - message: func(code string) mailer.Message (renders the notice)

Returns:
  - error: Generation, hashing or storage failures
*/
func (manager *OtpManager) Issue(context context.Context, identity *Identity, message func(code string) mailer.Message) error {
	code, err := manager.generate()
	if err != nil {
		return fmt.Errorf("otp_generate_failed: %w", err)
	}

	codeHash, err := manager.hasher.Hash(code)
	if err != nil {
		return fmt.Errorf("otp_hash_failed: %w", err)
	}

	now := manager.now()
	challenge := &OtpChallenge{
		IdentityID: identity.ID,
		CodeHash:   codeHash,
		ExpiresAt:  now.Add(constants.OtpLifetime),
		Attempts:   0,
		Used:       false,
		CreatedAt:  now,
	}
	if err := manager.challenges.Replace(context, challenge); err != nil {
		return err
	}

	logger := ctxutil.GetLogger(context)
	if identity.Email == nil {
		logger.Warn("otp_delivery_skipped",
			slog.String("identity_id", identity.ID),
			slog.String("reason", "no_email"),
		)
		return nil
	}

	if err := manager.deliverer.Deliver(context, *identity.Email, message(code)); err != nil {
		logger.Error("otp_delivery_failed",
			slog.String("identity_id", identity.ID),
			slog.Any("error", err),
		)
	}
	return nil
}

/*
Validate checks code against the pending challenge of identityID.

Description: A matching code consumes the challenge. A wrong code counts an
attempt; the attempt that pushes the count past [constants.OtpMaxAttempts]
discards the challenge and reports LOCKED. An expired or missing challenge is
reported as INVALID_OR_EXPIRED, and an expired one is discarded.

Returns:
  - OtpResult: OK, INVALID_OR_EXPIRED or LOCKED
  - error: Storage failures only
*/
func (manager *OtpManager) Validate(context context.Context, identityID, code string) (OtpResult, error) {
	var result OtpResult

	err := manager.challenges.Update(context, identityID, func(challenge *OtpChallenge) (OtpDecision, error) {
		switch {
		case challenge == nil || challenge.Used:
			result = OtpInvalidOrExpired
			return OtpKeep, nil

		case !manager.now().Before(challenge.ExpiresAt):
			result = OtpInvalidOrExpired
			return OtpDelete, nil

		case manager.hasher.Verify(code, challenge.CodeHash):
			challenge.Used = true
			result = OtpOK
			return OtpDelete, nil
		}

		challenge.Attempts++
		if challenge.Attempts > constants.OtpMaxAttempts {
			result = OtpLocked
			return OtpDelete, nil
		}
		result = OtpInvalidOrExpired
		return OtpPersist, nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// # Notices

func activationMessage(code string) mailer.Message {
	return mailer.Message{
		Subject: "Your Yomira activation code",
		Body: fmt.Sprintf("Your activation code is %s.\nIt expires in %d minutes.",
			code, int(constants.OtpLifetime/time.Minute)),
	}
}

func passwordResetMessage(code string) mailer.Message {
	return mailer.Message{
		Subject: "Your Yomira password reset code",
		Body: fmt.Sprintf("Your password reset code is %s.\nIt expires in %d minutes.\nIf you did not ask for a reset, ignore this message.",
			code, int(constants.OtpLifetime/time.Minute)),
	}
}
