package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clawfinance/internal/domain/account"

	"github.com/google/uuid"
)

const accountColumns = `id, user_id, connection_id, institution_name, title, type, subtype, mask,
		balance_current, balance_available, balance_limit, currency_code, api_source, external_id,
		is_active, created_at, updated_at`

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var acc account.Account
	var mask sql.NullString

	err := row.Scan(
		&acc.ID, &acc.UserID, &acc.ConnectionID, &acc.InstitutionName, &acc.Title,
		&acc.Type, &acc.Subtype, &mask,
		&acc.BalanceCurrent, &acc.BalanceAvailable, &acc.BalanceLimit,
		&acc.CurrencyCode, &acc.APISource, &acc.ExternalID,
		&acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if mask.Valid {
		acc.Mask = mask.String
	}
	return &acc, nil
}

// UpsertByExternalID inserts the account or refreshes the stored one. Only
// balances and the active flag change on conflict. A row owned by another
// user is never touched.
func (r *AccountRepository) UpsertByExternalID(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	query := `
		INSERT INTO accounts (id, user_id, connection_id, institution_name, title, type, subtype, mask,
			balance_current, balance_available, balance_limit, currency_code, api_source, external_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (external_id) DO UPDATE SET
			balance_current = EXCLUDED.balance_current,
			balance_available = EXCLUDED.balance_available,
			balance_limit = EXCLUDED.balance_limit,
			is_active = TRUE,
			updated_at = NOW()
		WHERE accounts.user_id = EXCLUDED.user_id
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.UserID, params.ConnectionID, params.InstitutionName, params.Title,
		params.Type, params.Subtype, nullString(params.Mask),
		params.BalanceCurrent, params.BalanceAvailable, params.BalanceLimit,
		params.CurrencyCode, params.APISource, params.ExternalID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to upsert account %s: %w", params.ExternalID, account.ErrForbidden)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return acc, nil
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, account.ErrAccountNotFound
	}

	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// ListByUserID retrieves all accounts for a specific user
func (r *AccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE user_id = $1
		ORDER BY is_active DESC, institution_name, title`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
