// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/taibuivan/yomira-auth/internal/platform/mailer"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
)

// # Storage Contracts

// IdentityRepository is the durable store of identities.
//
// Lookups take normalized keys. Missing rows are reported as [ErrIdentityNotFound].
type IdentityRepository interface {
	// FindByID returns the identity with the given ID.
	FindByID(ctx context.Context, id string) (*Identity, error)

	// FindByIDForUpdate is FindByID holding a row lock until the surrounding
	// transaction ends. Outside a transaction it behaves like FindByID.
	FindByIDForUpdate(ctx context.Context, id string) (*Identity, error)

	// FindByUsername returns the identity registered under username.
	FindByUsername(ctx context.Context, username string) (*Identity, error)

	// FindByEmail returns the identity owning email.
	FindByEmail(ctx context.Context, email string) (*Identity, error)

	// Create inserts a new identity.
	// Unique violations surface as [ErrUsernameTaken] or [ErrEmailTaken].
	Create(ctx context.Context, identity *Identity) error

	// Save persists the mutable fields (email, password hash, first-login flag).
	// An email collision surfaces as [ErrEmailTaken].
	Save(ctx context.Context, identity *Identity) error
}

// RefreshSessionRepository is the durable store of refresh sessions.
// It holds at most one session per identity.
type RefreshSessionRepository interface {
	// Upsert stores session, replacing any session the identity already holds.
	Upsert(ctx context.Context, session *RefreshSession) error

	// TakeByTokenHash atomically removes and returns the session with the given
	// digest. Of two concurrent callers exactly one receives it; the other gets
	// [ErrSessionNotFound].
	TakeByTokenHash(ctx context.Context, tokenHash string) (*RefreshSession, error)

	// FindByTokenHash returns the session without removing it.
	FindByTokenHash(ctx context.Context, tokenHash string) (*RefreshSession, error)

	// DeleteByTokenHash removes the session with the given digest, if any.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByIdentity removes every session of an identity.
	DeleteByIdentity(ctx context.Context, identityID string) error
}

// Repositories groups the durable repositories bound to one connection or transaction.
type Repositories struct {
	Identities IdentityRepository
	Sessions   RefreshSessionRepository
}

// Store hands out repositories and runs units of work.
type Store interface {
	// Repositories returns repositories outside of any transaction.
	Repositories() Repositories

	// WithinTx runs fn with repositories bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// OtpDecision tells [OtpChallengeRepository.Update] what to do with the challenge it read.
type OtpDecision int

const (
	// OtpKeep leaves storage untouched.
	OtpKeep OtpDecision = iota

	// OtpPersist writes back the mutated attempt counter and used flag.
	OtpPersist

	// OtpDelete removes the challenge.
	OtpDelete
)

// OtpChallengeRepository is the volatile store of OTP challenges, keyed by identity.
type OtpChallengeRepository interface {
	// Replace atomically discards any existing challenge of the identity and
	// stores challenge in its place.
	Replace(ctx context.Context, challenge *OtpChallenge) error

	// Find returns the pending challenge, or nil when there is none.
	Find(ctx context.Context, identityID string) (*OtpChallenge, error)

	// Update reads the challenge of identityID, passes it to fn (nil when
	// absent) and applies fn's decision atomically with respect to concurrent
	// updates. fn may run more than once and must not have side effects.
	Update(ctx context.Context, identityID string, fn func(challenge *OtpChallenge) (OtpDecision, error)) error
}

// # Collaborators

// Hasher hashes and verifies secrets with an adaptive one-way function.
type Hasher interface {
	Hash(plainText string) (string, error)
	Verify(plainText, existingHash string) bool
}

// Signer issues and checks signed tokens.
type Signer interface {
	AccessTTL() time.Duration
	Issue(principal sec.Principal) (string, error)
	IssuePurpose(principal sec.Principal, purpose, fingerprint string, ttl time.Duration) (string, error)
	VerifyPurpose(token, purpose string) (*sec.Claims, error)
}

// Deliverer sends a message to an email address.
type Deliverer interface {
	Deliver(ctx context.Context, recipient string, message mailer.Message) error
}
