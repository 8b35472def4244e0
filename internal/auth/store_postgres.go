// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/yomira-auth/internal/platform/database/schema"
	"github.com/taibuivan/yomira-auth/internal/platform/dberr"
	"github.com/taibuivan/yomira-auth/internal/platform/postgres"
)

var (
	identityTable = schema.AuthIdentity
	sessionTable  = schema.AuthRefreshSession
)

// # Queries

var (
	querySelectIdentity = fmt.Sprintf(`SELECT %s FROM %s`, identityTable.ColumnList(), identityTable.Table)

	queryIdentityByID       = fmt.Sprintf(`%s WHERE %s = $1`, querySelectIdentity, identityTable.ID)
	queryIdentityByIDLocked = queryIdentityByID + ` FOR UPDATE`
	queryIdentityByUsername = fmt.Sprintf(`%s WHERE %s = $1`, querySelectIdentity, identityTable.Username)
	queryIdentityByEmail    = fmt.Sprintf(`%s WHERE %s = $1`, querySelectIdentity, identityTable.Email)
	queryInsertIdentity     = fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, identityTable.Table, identityTable.ColumnList())
	queryUpdateIdentity     = fmt.Sprintf(`UPDATE %s SET %s = $2, %s = $3, %s = $4, %s = $5 WHERE %s = $1`,
		identityTable.Table, identityTable.Email, identityTable.PasswordHash, identityTable.FirstLogin, identityTable.UpdatedAt, identityTable.ID)

	queryUpsertSession = fmt.Sprintf(`INSERT INTO %[1]s (%[2]s) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT %[3]s
		DO UPDATE SET %[4]s = EXCLUDED.%[4]s, %[5]s = EXCLUDED.%[5]s, %[6]s = EXCLUDED.%[6]s, %[7]s = EXCLUDED.%[7]s`,
		sessionTable.Table, sessionTable.ColumnList(), sessionTable.IdentityKey,
		sessionTable.ID, sessionTable.TokenHash, sessionTable.ExpiresAt, sessionTable.CreatedAt)
	queryDeleteSessionByHash     = fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, sessionTable.Table, sessionTable.TokenHash)
	queryTakeSession             = fmt.Sprintf(`%s RETURNING %s`, queryDeleteSessionByHash, sessionTable.ColumnList())
	querySessionByHash           = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, sessionTable.ColumnList(), sessionTable.Table, sessionTable.TokenHash)
	queryDeleteSessionByIdentity = fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, sessionTable.Table, sessionTable.IdentityID)
)

// # Unit of Work

// PostgresDB is what the store needs from a pool: queries plus transactions.
// *pgxpool.Pool satisfies it.
type PostgresDB interface {
	postgres.DBTX
	postgres.TxStarter
}

// PostgresStore implements [Store] on PostgreSQL.
type PostgresStore struct {
	db PostgresDB
}

// NewPostgresStore creates a store backed by db.
func NewPostgresStore(db PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Repositories returns repositories running on the pool.
func (store *PostgresStore) Repositories() Repositories {
	return bindRepositories(store.db)
}

// WithinTx runs fn inside a single PostgreSQL transaction.
func (store *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return postgres.WithTx(ctx, store.db, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, bindRepositories(tx))
	})
}

func bindRepositories(db postgres.DBTX) Repositories {
	return Repositories{
		Identities: &PostgresIdentityRepository{db: db},
		Sessions:   &PostgresSessionRepository{db: db},
	}
}

// # Identity Repository

// PostgresIdentityRepository implements [IdentityRepository] over auth.identity.
type PostgresIdentityRepository struct {
	db postgres.DBTX
}

func scanIdentity(row pgx.Row) (*Identity, error) {
	identity := &Identity{}
	err := row.Scan(
		&identity.ID,
		&identity.Username,
		&identity.Email,
		&identity.PasswordHash,
		&identity.Role,
		&identity.FirstLogin,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (repository *PostgresIdentityRepository) findOne(context context.Context, action, query string, arg string) (*Identity, error) {
	identity, err := scanIdentity(repository.db.QueryRow(context, query, arg))
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, dberr.Wrap(err, action)
	}
	return identity, nil
}

// FindByID resolves an identity by primary key.
func (repository *PostgresIdentityRepository) FindByID(context context.Context, id string) (*Identity, error) {
	return repository.findOne(context, "identity_store_find_by_id", queryIdentityByID, id)
}

// FindByIDForUpdate locks the identity row for the rest of the transaction.
func (repository *PostgresIdentityRepository) FindByIDForUpdate(context context.Context, id string) (*Identity, error) {
	return repository.findOne(context, "identity_store_lock_by_id", queryIdentityByIDLocked, id)
}

// FindByUsername resolves an identity by its normalized username.
func (repository *PostgresIdentityRepository) FindByUsername(context context.Context, username string) (*Identity, error) {
	return repository.findOne(context, "identity_store_find_by_username", queryIdentityByUsername, username)
}

// FindByEmail resolves an identity by its normalized email.
func (repository *PostgresIdentityRepository) FindByEmail(context context.Context, email string) (*Identity, error) {
	return repository.findOne(context, "identity_store_find_by_email", queryIdentityByEmail, email)
}

/*
Create inserts a new identity row.

Parameters:
  - context: context.Context
  - identity: *Identity (ID and timestamps are set by the caller)

Returns:
  - error: ErrUsernameTaken, ErrEmailTaken or a wrapped database error
*/
func (repository *PostgresIdentityRepository) Create(context context.Context, identity *Identity) error {
	_, err := repository.db.Exec(context, queryInsertIdentity,
		identity.ID,
		identity.Username,
		identity.Email,
		identity.PasswordHash,
		identity.Role,
		identity.FirstLogin,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	return mapIdentityWriteError(err, "identity_store_create")
}

/*
Save writes the mutable fields of an existing identity.

Returns:
  - error: ErrIdentityNotFound when no row matched, ErrEmailTaken on collision
*/
func (repository *PostgresIdentityRepository) Save(context context.Context, identity *Identity) error {
	tag, err := repository.db.Exec(context, queryUpdateIdentity,
		identity.ID,
		identity.Email,
		identity.PasswordHash,
		identity.FirstLogin,
		identity.UpdatedAt,
	)
	if err != nil {
		return mapIdentityWriteError(err, "identity_store_save")
	}
	if tag.RowsAffected() == 0 {
		return ErrIdentityNotFound
	}
	return nil
}

func mapIdentityWriteError(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case dberr.IsUniqueViolation(err, identityTable.UsernameKey):
		return ErrUsernameTaken.WithCause(err)
	case dberr.IsUniqueViolation(err, identityTable.EmailKey):
		return ErrEmailTaken.WithCause(err)
	default:
		return dberr.Wrap(err, action)
	}
}

// # Refresh Session Repository

// PostgresSessionRepository implements [RefreshSessionRepository] over auth.refreshsession.
type PostgresSessionRepository struct {
	db postgres.DBTX
}

func scanSession(row pgx.Row) (*RefreshSession, error) {
	session := &RefreshSession{}
	err := row.Scan(
		&session.ID,
		&session.IdentityID,
		&session.TokenHash,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return session, nil
}

/*
Upsert stores session as the only session of its identity.

The unique key on identityid turns a second login into an in-place
replacement, so no window exists in which the identity holds two sessions.
*/
func (repository *PostgresSessionRepository) Upsert(context context.Context, session *RefreshSession) error {
	_, err := repository.db.Exec(context, queryUpsertSession,
		session.ID,
		session.IdentityID,
		session.TokenHash,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("session_store_upsert_failed: %w", err)
	}
	return nil
}

// TakeByTokenHash deletes and returns the session in one statement.
// Row locking guarantees that only one of two racing deletes returns a row.
func (repository *PostgresSessionRepository) TakeByTokenHash(context context.Context, tokenHash string) (*RefreshSession, error) {
	session, err := scanSession(repository.db.QueryRow(context, queryTakeSession, tokenHash))
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, dberr.Wrap(err, "session_store_take")
	}
	return session, nil
}

// FindByTokenHash reads a session without consuming it.
func (repository *PostgresSessionRepository) FindByTokenHash(context context.Context, tokenHash string) (*RefreshSession, error) {
	session, err := scanSession(repository.db.QueryRow(context, querySessionByHash, tokenHash))
	if err != nil {
		if dberr.IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, dberr.Wrap(err, "session_store_find")
	}
	return session, nil
}

// DeleteByTokenHash removes a session. Deleting a missing session is not an error.
func (repository *PostgresSessionRepository) DeleteByTokenHash(context context.Context, tokenHash string) error {
	if _, err := repository.db.Exec(context, queryDeleteSessionByHash, tokenHash); err != nil {
		return fmt.Errorf("session_store_delete_failed: %w", err)
	}
	return nil
}

// DeleteByIdentity removes all sessions of an identity.
func (repository *PostgresSessionRepository) DeleteByIdentity(context context.Context, identityID string) error {
	if _, err := repository.db.Exec(context, queryDeleteSessionByIdentity, identityID); err != nil {
		return fmt.Errorf("session_store_delete_by_identity_failed: %w", err)
	}
	return nil
}
