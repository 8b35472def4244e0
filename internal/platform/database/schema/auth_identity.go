// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package schema names the tables and columns of the PostgreSQL schema.

Repositories build their SQL from these definitions so a column rename in a
migration has exactly one Go counterpart.
*/
package schema

import "strings"

// AuthIdentityTable represents the 'auth.identity' table
type AuthIdentityTable struct {
	Table        string
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	FirstLogin   string
	CreatedAt    string
	UpdatedAt    string

	// Unique constraints
	UsernameKey string
	EmailKey    string
}

// AuthIdentity is the schema definition for auth.identity
var AuthIdentity = AuthIdentityTable{
	Table:        "auth.identity",
	ID:           "id",
	Username:     "username",
	Email:        "email",
	PasswordHash: "passwordhash",
	Role:         "role",
	FirstLogin:   "firstlogin",
	CreatedAt:    "createdat",
	UpdatedAt:    "updatedat",
	UsernameKey:  "identity_username_key",
	EmailKey:     "identity_email_key",
}

// Columns returns all standard column names
func (t AuthIdentityTable) Columns() []string {
	return []string{t.ID, t.Username, t.Email, t.PasswordHash, t.Role, t.FirstLogin, t.CreatedAt, t.UpdatedAt}
}

// ColumnList returns the columns joined for a SELECT or INSERT list.
func (t AuthIdentityTable) ColumnList() string {
	return strings.Join(t.Columns(), ", ")
}
