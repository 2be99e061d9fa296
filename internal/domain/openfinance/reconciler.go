// Package openfinance syncs provider data for a connection into the local
// account and transaction stores.
package openfinance

import (
	"context"
	"errors"
	"fmt"

	"clawfinance/internal/domain/account"
	"clawfinance/internal/domain/transaction"
	"clawfinance/internal/infrastructure/flinks"
)

// Target identifies whose data a reconciliation writes.
type Target struct {
	UserID       int64
	ConnectionID string
	Institution  string
}

// ReconcileResult counts the rows written. Rows that failed are not counted.
type ReconcileResult struct {
	Accounts     int
	Transactions int
}

// Reconciler upserts provider accounts and their transactions by external id.
type Reconciler struct {
	accounts     *account.Service
	transactions *transaction.Service
}

func NewReconciler(accounts *account.Service, transactions *transaction.Service) *Reconciler {
	return &Reconciler{accounts: accounts, transactions: transactions}
}

// Reconcile applies every account it can. A failed account skips its
// transactions; a failed transaction skips only itself. All failures are
// joined into the returned error.
func (r *Reconciler) Reconcile(ctx context.Context, target Target, accounts []flinks.Account) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	var errs []error

	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		params := flinks.NormalizeAccount(a, target.Institution)
		params.UserID = target.UserID
		params.ConnectionID = target.ConnectionID

		acc, err := r.accounts.UpsertAccount(ctx, params)
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", a.ID, err))
			continue
		}
		result.Accounts++

		for _, tx := range a.Transactions {
			txParams, err := flinks.NormalizeTransaction(tx, acc.ID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if _, err := r.transactions.UpsertTransaction(ctx, txParams); err != nil {
				errs = append(errs, fmt.Errorf("transaction %s: %w", tx.ID, err))
				continue
			}
			result.Transactions++
		}
	}

	return result, errors.Join(errs...)
}
