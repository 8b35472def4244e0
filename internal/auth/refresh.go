// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taibuivan/yomira-auth/internal/platform/constants"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/pkg/uuid"
)

// RefreshManager owns the refresh-session lifecycle: one live session per
// identity, single-use tokens, and revocation.
type RefreshManager struct {
	store  Store
	signer Signer
	ttl    time.Duration
	now    func() time.Time
}

// NewRefreshManager wires the manager. A nil clock defaults to time.Now.
func NewRefreshManager(store Store, signer Signer, ttl time.Duration, now func() time.Time) *RefreshManager {
	if now == nil {
		now = time.Now
	}
	return &RefreshManager{store: store, signer: signer, ttl: ttl, now: now}
}

// Issue opens a session for identity, replacing any session it already holds,
// and returns a fresh token pair.
func (manager *RefreshManager) Issue(context context.Context, identity *Identity) (*SessionTokens, error) {
	return manager.mint(context, manager.store.Repositories(), identity)
}

/*
mint stores a new session through repos and signs the matching access token.

Description: Callers completing a lifecycle flow pass transactional repos so
that the identity update and the session become visible together.
*/
func (manager *RefreshManager) mint(context context.Context, repos Repositories, identity *Identity) (*SessionTokens, error) {
	raw, err := sec.GenerateSecureToken(constants.RefreshTokenBytes)
	if err != nil {
		return nil, err
	}

	now := manager.now()
	session := &RefreshSession{
		ID:         uuid.New(),
		IdentityID: identity.ID,
		TokenHash:  sec.HashToken(raw),
		ExpiresAt:  now.Add(manager.ttl),
		CreatedAt:  now,
	}
	if err := repos.Sessions.Upsert(context, session); err != nil {
		return nil, err
	}

	accessToken, err := manager.signer.Issue(identity.principal())
	if err != nil {
		return nil, fmt.Errorf("refresh_sign_access_failed: %w", err)
	}

	return &SessionTokens{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  now.Add(manager.signer.AccessTTL()),
		RefreshToken:          raw,
		RefreshTokenExpiresAt: session.ExpiresAt,
	}, nil
}

// Verify returns nil for a live session. An expired session is deleted and
// [ErrTokenExpired] is returned.
func (manager *RefreshManager) Verify(context context.Context, session *RefreshSession) error {
	return manager.verify(context, manager.store.Repositories().Sessions, session)
}

func (manager *RefreshManager) verify(context context.Context, sessions RefreshSessionRepository, session *RefreshSession) error {
	if manager.now().Before(session.ExpiresAt) {
		return nil
	}
	if err := sessions.DeleteByTokenHash(context, session.TokenHash); err != nil {
		return err
	}
	return ErrTokenExpired
}

/*
Rotate exchanges a refresh token for a new token pair.

Description: The presented session is consumed by a single atomic delete, so
of two concurrent rotations of the same token exactly one succeeds and the
other observes [ErrSessionNotFound]. An expired session stays deleted.

Parameters:
  - ctx: context.Context
  - token: string (opaque refresh token)

Returns:
  - *SessionTokens: The new pair
  - error: ErrSessionNotFound, ErrTokenExpired or storage failures
*/
func (manager *RefreshManager) Rotate(ctx context.Context, token string) (*SessionTokens, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	var (
		tokens  *SessionTokens
		expired bool
	)
	err := manager.store.WithinTx(ctx, func(ctx context.Context, repos Repositories) error {
		session, err := repos.Sessions.TakeByTokenHash(ctx, sec.HashToken(token))
		if err != nil {
			return err
		}

		if err := manager.verify(ctx, repos.Sessions, session); err != nil {
			if errors.Is(err, ErrTokenExpired) {
				expired = true
				return nil
			}
			return err
		}

		identity, err := repos.Identities.FindByID(ctx, session.IdentityID)
		if err != nil {
			if errors.Is(err, ErrIdentityNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		tokens, err = manager.mint(ctx, repos, identity)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrTokenExpired
	}
	return tokens, nil
}

// Revoke deletes the session matching token. Unknown or empty tokens are ignored.
func (manager *RefreshManager) Revoke(context context.Context, token string) error {
	if token == "" {
		return nil
	}
	return manager.store.Repositories().Sessions.DeleteByTokenHash(context, sec.HashToken(token))
}

// RevokeIdentity deletes every session of identityID.
func (manager *RefreshManager) RevokeIdentity(context context.Context, identityID string) error {
	return manager.store.Repositories().Sessions.DeleteByIdentity(context, identityID)
}
