// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dberr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/yomira-auth/internal/platform/dberr"
)

/*
TestClassification recognizes pgx sentinels and SQLSTATE codes through wrapping.
*/
func TestClassification(t *testing.T) {
	unique := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "identity_email_key"}
	wrapped := fmt.Errorf("identity_store_save_failed: %w", unique)

	assert.True(t, dberr.IsUniqueViolation(wrapped, ""))
	assert.True(t, dberr.IsUniqueViolation(wrapped, "identity_email_key"))
	assert.False(t, dberr.IsUniqueViolation(wrapped, "identity_username_key"))
	assert.False(t, dberr.IsUniqueViolation(errors.New("plain"), ""))

	assert.True(t, dberr.IsNotFound(fmt.Errorf("x: %w", pgx.ErrNoRows)))
	assert.False(t, dberr.IsNotFound(unique))

	assert.True(t, dberr.IsSerializationFailure(&pgconn.PgError{Code: pgerrcode.SerializationFailure}))
	assert.False(t, dberr.IsSerializationFailure(unique))
}

/*
TestWrap keeps the cause reachable and passes nil through.
*/
func TestWrap(t *testing.T) {
	assert.NoError(t, dberr.Wrap(nil, "identity_store_find"))

	err := dberr.Wrap(pgx.ErrNoRows, "identity_store_find")
	assert.EqualError(t, err, "identity_store_find_failed: no rows in result set")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
