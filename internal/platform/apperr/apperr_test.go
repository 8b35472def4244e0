// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
)

/*
TestAppError_IsMatchesByCode verifies that sentinel errors survive re-creation and wrapping.
*/
func TestAppError_IsMatchesByCode(t *testing.T) {
	sentinel := apperr.New("OTP_LOCKED", "Too many attempts", http.StatusLocked)

	// 1. A copy with a different message still matches
	assert.ErrorIs(t, sentinel.WithMessage("locked out"), sentinel)

	// 2. Wrapped with fmt.Errorf still matches
	wrapped := fmt.Errorf("auth_service_activate_failed: %w", sentinel)
	assert.ErrorIs(t, wrapped, sentinel)

	// 3. A different code does not match
	assert.NotErrorIs(t, apperr.Conflict("dup"), sentinel)
	assert.NotErrorIs(t, errors.New("OTP_LOCKED"), sentinel)
}

/*
TestAppError_Internal keeps the cause for logging but hides it from the message.
*/
func TestAppError_Internal(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperr.Internal(cause)

	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.NotContains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

/*
TestAs extracts the AppError from a wrapped chain.
*/
func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", apperr.NotFound("Identity"))

	ae := apperr.As(wrapped)
	require.NotNil(t, ae)
	assert.Equal(t, "NOT_FOUND", ae.Code)
	assert.Equal(t, "Identity not found", ae.Message)

	assert.Nil(t, apperr.As(errors.New("plain")))
	assert.True(t, apperr.IsAppError(wrapped))
}
