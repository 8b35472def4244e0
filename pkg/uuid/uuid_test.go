// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package uuid_test

import (
	"testing"

	googleuuid "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-auth/pkg/uuid"
)

/*
TestNew returns distinct version 7 identifiers.
*/
func TestNew(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.NotEqual(t, a, b)

	parsed, err := googleuuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, googleuuid.Version(7), parsed.Version())
	assert.True(t, uuid.Valid(a))
}

/*
TestValid rejects non-canonical forms.
*/
func TestValid(t *testing.T) {
	assert.False(t, uuid.Valid(""))
	assert.False(t, uuid.Valid("not-a-uuid"))
	assert.False(t, uuid.Valid("urn:uuid:0190a1b2-0000-7000-8000-000000000001"))
	assert.True(t, uuid.Valid("0190a1b2-0000-7000-8000-000000000001"))
}
