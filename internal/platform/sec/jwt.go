// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (hashing, randomness, JWT signing)
// from the domain logic. The auth domain consumes it through small interfaces so
// tests can substitute deterministic doubles.
package sec

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/constants"
)

// # Token Errors

var (
	// ErrTokenExpired is returned when the token's exp is not after the current time.
	ErrTokenExpired = apperr.New("TOKEN_EXPIRED", "Token has expired", http.StatusUnauthorized)

	// ErrTokenMalformed is returned when the token cannot be parsed or its claims are unusable.
	ErrTokenMalformed = apperr.New("TOKEN_MALFORMED", "Token is malformed", http.StatusUnauthorized)

	// ErrTokenInvalidSignature is returned when the HMAC does not verify.
	ErrTokenInvalidSignature = apperr.New("TOKEN_INVALID_SIGNATURE", "Token signature is invalid", http.StatusUnauthorized)
)

// signingKeyLength is the HS256 key size derived from the configured secret.
const signingKeyLength = 32

// Claims represents the payload embedded inside a signed token.
//
// The subject is the identity's login key (its email once set). IdentityID and
// Role let [middleware.Authenticate] rebuild the principal without a database hit.
type Claims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	IdentityID string `json:"uid"`
	Role       Role   `json:"rol"`

	// Purpose is empty for access tokens and names the flow otherwise.
	Purpose string `json:"pur,omitempty"`

	// Fingerprint binds a purpose token to mutable identity state.
	Fingerprint string `json:"fpr,omitempty"`

	// ExpiresAtNano is the exact expiry in Unix nanoseconds. The registered
	// exp claim only has second precision and is rounded up to cover it.
	ExpiresAtNano int64 `json:"xpn"`
}

// Principal is what the signer needs to know about an identity.
type Principal struct {
	IdentityID string
	Subject    string
	Role       Role
}

// TokenSigner creates and verifies HS256 tokens.
//
// It holds only immutable state after construction and is safe for concurrent use.
type TokenSigner struct {
	key       []byte
	issuer    string
	accessTTL time.Duration
	now       func() time.Time
}

// SignerOption customizes a [TokenSigner].
type SignerOption func(*TokenSigner)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) SignerOption {
	return func(signer *TokenSigner) { signer.now = now }
}

// WithIssuer overrides the default 'iss' claim.
func WithIssuer(issuer string) SignerOption {
	return func(signer *TokenSigner) { signer.issuer = issuer }
}

/*
NewTokenSigner derives the signing key from secret and returns a ready signer.

Parameters:
  - secret: string (configured signing secret, at least 32 bytes)
  - accessTTL: time.Duration (lifetime of access tokens)

Returns:
  - *TokenSigner: The signer
  - error: When the secret is too short or key derivation fails
*/
func NewTokenSigner(secret string, accessTTL time.Duration, opts ...SignerOption) (*TokenSigner, error) {
	if len(secret) < signingKeyLength {
		return nil, fmt.Errorf("sec_signer_init_failed: secret must be at least %d bytes", signingKeyLength)
	}
	if accessTTL <= 0 {
		return nil, errors.New("sec_signer_init_failed: access TTL must be positive")
	}

	key := make([]byte, signingKeyLength)
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(constants.TokenKeyInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("sec_signer_init_failed: %w", err)
	}

	signer := &TokenSigner{
		key:       key,
		issuer:    constants.AuthIssuer,
		accessTTL: accessTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(signer)
	}
	return signer, nil
}

// AccessTTL returns the configured access-token lifetime.
func (signer *TokenSigner) AccessTTL() time.Duration {
	return signer.accessTTL
}

// # Issuance

// Issue creates an access token for principal expiring after the access TTL.
func (signer *TokenSigner) Issue(principal Principal) (string, error) {
	return signer.sign(principal, "", "", signer.accessTTL)
}

// IssuePurpose creates a token usable only by the flow named purpose.
func (signer *TokenSigner) IssuePurpose(principal Principal, purpose, fingerprint string, ttl time.Duration) (string, error) {
	if purpose == "" {
		return "", errors.New("sec_sign_failed: purpose must not be empty")
	}
	return signer.sign(principal, purpose, fingerprint, ttl)
}

func (signer *TokenSigner) sign(principal Principal, purpose, fingerprint string, ttl time.Duration) (string, error) {
	if principal.Subject == "" {
		return "", errors.New("sec_sign_failed: subject must not be empty")
	}

	issuedAt := signer.now()
	expiresAt := issuedAt.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principal.Subject,
			Issuer:    signer.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(expiresAt)),
		},
		IdentityID:    principal.IdentityID,
		Role:          principal.Role,
		Purpose:       purpose,
		Fingerprint:   fingerprint,
		ExpiresAtNano: expiresAt.UnixNano(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signer.key)
	if err != nil {
		return "", fmt.Errorf("sec_sign_failed: %w", err)
	}
	return signed, nil
}

// # Verification

// Verify checks signature and expiry and returns the embedded subject.
func (signer *TokenSigner) Verify(token string) (string, error) {
	claims, err := signer.Claims(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Claims verifies an access token and returns its full claim set.
// Purpose-scoped tokens are rejected.
func (signer *TokenSigner) Claims(token string) (*Claims, error) {
	claims, err := signer.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// VerifyPurpose verifies a token minted by [TokenSigner.IssuePurpose] for purpose.
func (signer *TokenSigner) VerifyPurpose(token, purpose string) (*Claims, error) {
	claims, err := signer.parse(token)
	if err != nil {
		return nil, err
	}
	if purpose == "" || claims.Purpose != purpose {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// ExtractSubject reads the subject without checking the signature.
// The result must never be treated as authenticated.
func (signer *TokenSigner) ExtractSubject(token string) (string, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", ErrTokenMalformed.WithCause(err)
	}
	if claims.Subject == "" {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}

func (signer *TokenSigner) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return signer.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(signer.issuer),
		jwt.WithTimeFunc(signer.now),
	)

	switch {
	case err == nil && parsed.Valid:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired.WithCause(err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenInvalidSignature.WithCause(err)
	default:
		return nil, ErrTokenMalformed.WithCause(err)
	}

	if claims.Subject == "" || claims.IdentityID == "" || claims.ExpiresAtNano == 0 {
		return nil, ErrTokenMalformed
	}

	// The token is expired at the exact bound, not only once the rounded exp passes.
	if !signer.now().Before(time.Unix(0, claims.ExpiresAtNano)) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// ceilSecond rounds t up to the next whole second unless it already is one.
func ceilSecond(t time.Time) time.Time {
	truncated := t.Truncate(time.Second)
	if truncated.Equal(t) {
		return truncated
	}
	return truncated.Add(time.Second)
}
