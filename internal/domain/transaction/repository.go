package transaction

import "context"

// Repository defines the interface for transaction data access
type Repository interface {
	UpsertByExternalID(ctx context.Context, params UpsertParams) (*Transaction, error)
	ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, error)
	CountByAccountID(ctx context.Context, accountID string) (int64, error)
}
