package transaction

import (
	"context"
	"errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Service contains the business logic for transaction reads and writes.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// UpsertTransaction validates and stores a provider transaction.
func (s *Service) UpsertTransaction(ctx context.Context, params UpsertParams) (*Transaction, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.UpsertByExternalID(ctx, params)
}

// ListByAccount returns one page of an account's transactions and the total
// count. Ownership of the account is checked by the caller.
func (s *Service) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*Transaction, int64, error) {
	if accountID == "" {
		return nil, 0, errors.New("account ID is required")
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	txs, err := s.repo.ListByAccountID(ctx, accountID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountByAccountID(ctx, accountID)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}
