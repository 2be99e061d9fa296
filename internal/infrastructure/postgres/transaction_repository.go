package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"clawfinance/internal/domain/transaction"

	"github.com/google/uuid"
)

const transactionColumns = `id, account_id, amount, date, description, merchant_name, category, pending,
		api_source, external_id, created_at, updated_at`

type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction
	var merchant, category sql.NullString

	err := row.Scan(
		&tx.ID, &tx.AccountID, &tx.Amount, &tx.Date, &tx.Description, &merchant, &category,
		&tx.Pending, &tx.APISource, &tx.ExternalID, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if merchant.Valid {
		tx.MerchantName = &merchant.String
	}
	if category.Valid {
		tx.Category = &category.String
	}
	return &tx, nil
}

// UpsertByExternalID refreshes only amount and description of a stored
// transaction.
func (r *TransactionRepository) UpsertByExternalID(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, error) {
	query := `
		INSERT INTO transactions (id, account_id, amount, date, description, merchant_name, category,
			pending, api_source, external_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (external_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			description = EXCLUDED.description,
			updated_at = NOW()
		RETURNING ` + transactionColumns

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.AccountID, params.Amount, params.Date.Format(transaction.DateLayout),
		params.Description, nullStringPtr(params.MerchantName), nullStringPtr(params.Category),
		params.Pending, params.APISource, params.ExternalID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return tx, nil
}

func (r *TransactionRepository) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1
		ORDER BY date DESC, created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*transaction.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

func (r *TransactionRepository) CountByAccountID(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
