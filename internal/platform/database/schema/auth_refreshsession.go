// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package schema

import "strings"

// AuthRefreshSessionTable represents the 'auth.refreshsession' table
type AuthRefreshSessionTable struct {
	Table      string
	ID         string
	IdentityID string
	TokenHash  string
	ExpiresAt  string
	CreatedAt  string

	// IdentityKey is the unique constraint allowing one session per identity.
	IdentityKey string
}

// AuthRefreshSession is the schema definition for auth.refreshsession
var AuthRefreshSession = AuthRefreshSessionTable{
	Table:       "auth.refreshsession",
	ID:          "id",
	IdentityID:  "identityid",
	TokenHash:   "tokenhash",
	ExpiresAt:   "expiresat",
	CreatedAt:   "createdat",
	IdentityKey: "refreshsession_identityid_key",
}

// Columns returns all standard column names
func (t AuthRefreshSessionTable) Columns() []string {
	return []string{t.ID, t.IdentityID, t.TokenHash, t.ExpiresAt, t.CreatedAt}
}

// ColumnList returns the columns joined for a SELECT or INSERT list.
func (t AuthRefreshSessionTable) ColumnList() string {
	return strings.Join(t.Columns(), ", ")
}
