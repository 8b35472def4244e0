// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-auth/internal/platform/sec"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	accessTTL  = 15 * time.Minute
)

// clock is a settable time source shared by a signer under test.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newSigner(t *testing.T, c *clock) *sec.TokenSigner {
	t.Helper()
	signer, err := sec.NewTokenSigner(testSecret, accessTTL, sec.WithClock(c.Now))
	require.NoError(t, err)
	return signer
}

var alice = sec.Principal{IdentityID: "0190a1b2-0000-7000-8000-000000000001", Subject: "alice@x.com", Role: sec.RoleUser}

/*
TestTokenSigner_RoundTrip verifies that a token verifies to its subject at every
instant strictly before issue time plus lifetime and expires at or after it.
*/
func TestTokenSigner_RoundTrip(t *testing.T) {
	issueTimes := map[string]time.Time{
		"whole second": time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		"sub second":   time.Date(2026, 3, 1, 12, 0, 0, 900_000_000, time.UTC),
	}

	tests := []struct {
		name    string
		offset  time.Duration
		wantErr error
	}{
		{"at issue", 0, nil},
		{"mid life", accessTTL / 2, nil},
		{"one second before expiry", accessTTL - time.Second, nil},
		{"half a second before expiry", accessTTL - 500*time.Millisecond, nil},
		{"one nanosecond before expiry", accessTTL - time.Nanosecond, nil},
		{"exactly at expiry", accessTTL, sec.ErrTokenExpired},
		{"half a second after expiry", accessTTL + 500*time.Millisecond, sec.ErrTokenExpired},
		{"after expiry", accessTTL + time.Hour, sec.ErrTokenExpired},
	}

	for issueName, issuedAt := range issueTimes {
		for _, tt := range tests {
			t.Run(issueName+"/"+tt.name, func(t *testing.T) {
				c := &clock{now: issuedAt}
				signer := newSigner(t, c)

				token, err := signer.Issue(alice)
				require.NoError(t, err)

				c.now = issuedAt.Add(tt.offset)
				subject, err := signer.Verify(token)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					assert.Empty(t, subject)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, alice.Subject, subject)
			})
		}
	}
}

/*
TestTokenSigner_Errors maps tampering and garbage onto the token error taxonomy.
*/
func TestTokenSigner_Errors(t *testing.T) {
	c := &clock{now: time.Now()}
	signer := newSigner(t, c)

	token, err := signer.Issue(alice)
	require.NoError(t, err)

	other, err := sec.NewTokenSigner(strings.Repeat("z", 40), accessTTL, sec.WithClock(c.Now))
	require.NoError(t, err)
	foreign, err := other.Issue(alice)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice@x.com", "uid": "x", "exp": time.Now().Add(time.Hour).Unix()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"other key", foreign, sec.ErrTokenInvalidSignature},
		{"tampered signature", tampered, sec.ErrTokenInvalidSignature},
		{"garbage", "not-a-token", sec.ErrTokenMalformed},
		{"empty", "", sec.ErrTokenMalformed},
		{"alg none", unsigned, sec.ErrTokenInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := signer.Verify(tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

/*
TestTokenSigner_Claims exposes identity id and role to the middleware.
*/
func TestTokenSigner_Claims(t *testing.T) {
	signer := newSigner(t, &clock{now: time.Now()})

	token, err := signer.Issue(alice)
	require.NoError(t, err)

	claims, err := signer.Claims(token)
	require.NoError(t, err)
	assert.Equal(t, alice.IdentityID, claims.IdentityID)
	assert.Equal(t, sec.RoleUser, claims.Role)
	assert.Empty(t, claims.Purpose)
	assert.NotEmpty(t, claims.ID)
}

/*
TestTokenSigner_Purpose keeps purpose tokens and access tokens apart.
*/
func TestTokenSigner_Purpose(t *testing.T) {
	signer := newSigner(t, &clock{now: time.Now()})

	reset, err := signer.IssuePurpose(alice, "password_reset", "fp-1", time.Minute)
	require.NoError(t, err)

	// 1. A purpose token is not an access token
	_, err = signer.Verify(reset)
	assert.ErrorIs(t, err, sec.ErrTokenMalformed)

	// 2. Verified for its own purpose with the fingerprint intact
	claims, err := signer.VerifyPurpose(reset, "password_reset")
	require.NoError(t, err)
	assert.Equal(t, "fp-1", claims.Fingerprint)

	// 3. Rejected for another purpose
	_, err = signer.VerifyPurpose(reset, "email_change")
	assert.ErrorIs(t, err, sec.ErrTokenMalformed)

	// 4. An access token is not a purpose token
	access, err := signer.Issue(alice)
	require.NoError(t, err)
	_, err = signer.VerifyPurpose(access, "password_reset")
	assert.ErrorIs(t, err, sec.ErrTokenMalformed)
}

/*
TestTokenSigner_ExtractSubject reads the subject even from expired tokens.
*/
func TestTokenSigner_ExtractSubject(t *testing.T) {
	c := &clock{now: time.Now()}
	signer := newSigner(t, c)

	token, err := signer.Issue(alice)
	require.NoError(t, err)

	c.now = c.now.Add(24 * time.Hour)
	subject, err := signer.ExtractSubject(token)
	require.NoError(t, err)
	assert.Equal(t, alice.Subject, subject)

	_, err = signer.ExtractSubject("###")
	assert.ErrorIs(t, err, sec.ErrTokenMalformed)
}

/*
TestNewTokenSigner_RejectsShortSecret enforces the minimum secret length.
*/
func TestNewTokenSigner_RejectsShortSecret(t *testing.T) {
	_, err := sec.NewTokenSigner("short", accessTTL)
	assert.Error(t, err)

	_, err = sec.NewTokenSigner(testSecret, 0)
	assert.Error(t, err)
}
