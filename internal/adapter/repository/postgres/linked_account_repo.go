package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/patrimo/valuation-backend/internal/domain"
)

// linkedAccountRepository implements domain.LinkedAccountRepository
type linkedAccountRepository struct {
	db *DB
}

// NewLinkedAccountRepository creates a new linked account repository
func NewLinkedAccountRepository(db *DB) domain.LinkedAccountRepository {
	return &linkedAccountRepository{db: db}
}

// ListActive retrieves the non-deleted, non-frozen linked accounts of a user
// account, optionally restricted to an explicit id subset.
func (r *linkedAccountRepository) ListActive(ctx context.Context, userAccountID int64, ids []int64) ([]*domain.LinkedAccount, error) {
	query := `
		SELECT id, user_account_id, provider_id, name, deleted, frozen
		FROM linked_accounts
		WHERE user_account_id = $1 AND NOT deleted AND NOT frozen
	`
	args := []interface{}{userAccountID}

	// An explicit subset further restricts the active set; it never widens it.
	if len(ids) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, pq.Array(ids))
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.LinkedAccount
	for rows.Next() {
		var acct domain.LinkedAccount
		if err := rows.Scan(
			&acct.ID,
			&acct.UserAccountID,
			&acct.ProviderID,
			&acct.Name,
			&acct.Deleted,
			&acct.Frozen,
		); err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		accounts = append(accounts, &acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate linked accounts: %w", err)
	}

	return accounts, nil
}

// ListUserAccountIDs retrieves every user account with at least one active
// linked account.
func (r *linkedAccountRepository) ListUserAccountIDs(ctx context.Context) ([]int64, error) {
	query := `
		SELECT DISTINCT user_account_id
		FROM linked_accounts
		WHERE NOT deleted AND NOT frozen
		ORDER BY user_account_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list user accounts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user account id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user account ids: %w", err)
	}

	return ids, nil
}

// credentialRepository implements domain.CredentialResolver over the stored
// credentials column. Decryption is handled upstream of this table; the core
// only sees the opaque payload.
type credentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new credential resolver
func NewCredentialRepository(db *DB) domain.CredentialResolver {
	return &credentialRepository{db: db}
}

// Resolve retrieves the opaque credentials payload of a linked account.
func (r *credentialRepository) Resolve(ctx context.Context, linkedAccountID int64) (json.RawMessage, error) {
	query := `
		SELECT credentials
		FROM linked_accounts
		WHERE id = $1
	`

	var creds pqtype.NullRawMessage
	err := r.db.QueryRowContext(ctx, query, linkedAccountID).Scan(&creds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrLinkedAccountNotFound
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}

	if !creds.Valid {
		return nil, nil
	}
	return json.RawMessage(creds.RawMessage), nil
}
