// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-auth/internal/auth"
	"github.com/taibuivan/yomira-auth/internal/platform/mailer"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/pkg/pointer"
)

func fixedCode(code string) auth.CodeGenerator {
	return func() (string, error) { return code, nil }
}

func plainMessage(code string) mailer.Message {
	return mailer.Message{Subject: "code", Body: "code " + code}
}

/*
TestSixDigitCode stays within the six-digit range.
*/
func TestSixDigitCode(t *testing.T) {
	for range 200 {
		code, err := auth.SixDigitCode()
		require.NoError(t, err)
		require.Len(t, code, 6)

		value, err := strconv.Atoi(code)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, value, 100000)
		assert.LessOrEqual(t, value, 999999)
	}
}

/*
TestOtpManager_Validate covers the result taxonomy of a single challenge.
*/
func TestOtpManager_Validate(t *testing.T) {
	ctx := context.Background()
	identity := &auth.Identity{ID: "id-1", Email: pointer.To("bob@x.com")}

	tests := []struct {
		name    string
		advance time.Duration
		guesses []string
		want    []auth.OtpResult
	}{
		{"correct code", 0, []string{"424242"}, []auth.OtpResult{auth.OtpOK}},
		{"correct code consumed", 0, []string{"424242", "424242"}, []auth.OtpResult{auth.OtpOK, auth.OtpInvalidOrExpired}},
		{"one second before expiry", 5*time.Minute - time.Second, []string{"424242"}, []auth.OtpResult{auth.OtpOK}},
		{"exactly at expiry", 5 * time.Minute, []string{"424242"}, []auth.OtpResult{auth.OtpInvalidOrExpired}},
		{
			"lock on fourth wrong guess",
			0,
			[]string{"111111", "111111", "111111", "111111", "424242"},
			[]auth.OtpResult{auth.OtpInvalidOrExpired, auth.OtpInvalidOrExpired, auth.OtpInvalidOrExpired, auth.OtpLocked, auth.OtpInvalidOrExpired},
		},
		{
			"correct after wrong guesses",
			0,
			[]string{"111111", "111111", "111111", "424242"},
			[]auth.OtpResult{auth.OtpInvalidOrExpired, auth.OtpInvalidOrExpired, auth.OtpInvalidOrExpired, auth.OtpOK},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClock()
			challenges := newMemoryChallenges()
			deliverer := newCapturingDeliverer()
			manager := auth.NewOtpManager(challenges, sec.NewBcryptHasher(4), deliverer, fixedCode("424242"), c.Now)

			require.NoError(t, manager.Issue(ctx, identity, plainMessage))
			assert.Equal(t, "424242", deliverer.lastCode(t, "bob@x.com"))

			c.Advance(tt.advance)
			for i, guess := range tt.guesses {
				result, err := manager.Validate(ctx, identity.ID, guess)
				require.NoError(t, err)
				assert.Equal(t, tt.want[i], result, "guess %d", i+1)
			}
		})
	}
}

/*
TestOtpManager_IssueStoresOnlyHash never persists the plaintext code.
*/
func TestOtpManager_IssueStoresOnlyHash(t *testing.T) {
	ctx := context.Background()
	challenges := newMemoryChallenges()
	hasher := sec.NewBcryptHasher(4)
	manager := auth.NewOtpManager(challenges, hasher, newCapturingDeliverer(), fixedCode("135790"), nil)

	require.NoError(t, manager.Issue(ctx, &auth.Identity{ID: "id-2"}, plainMessage))

	challenge, err := challenges.Find(ctx, "id-2")
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.NotEqual(t, "135790", challenge.CodeHash)
	assert.True(t, hasher.Verify("135790", challenge.CodeHash))
}

/*
TestOtpResult_Err maps results onto error kinds.
*/
func TestOtpResult_Err(t *testing.T) {
	assert.NoError(t, auth.OtpOK.Err())
	assert.ErrorIs(t, auth.OtpInvalidOrExpired.Err(), auth.ErrOtpInvalid)
	assert.ErrorIs(t, auth.OtpLocked.Err(), auth.ErrOtpLocked)
}
