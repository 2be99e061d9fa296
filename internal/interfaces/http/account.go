package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"clawfinance/internal/domain/account"
	"clawfinance/internal/domain/transaction"
	"clawfinance/internal/shared/middleware"
)

// AccountHandler serves the reconciled accounts and transactions.
type AccountHandler struct {
	accounts     *account.Service
	transactions *transaction.Service
	logger       *slog.Logger
}

func NewAccountHandler(accounts *account.Service, transactions *transaction.Service, logger *slog.Logger) *AccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountHandler{accounts: accounts, transactions: transactions, logger: logger}
}

type accountResponse struct {
	ID               string              `json:"id"`
	ConnectionID     string              `json:"connection_id"`
	Institution      string              `json:"institution"`
	Title            string              `json:"title"`
	Type             string              `json:"type"`
	Subtype          string              `json:"subtype"`
	Mask             string              `json:"mask"`
	BalanceCurrent   decimal.Decimal     `json:"balance_current"`
	BalanceAvailable decimal.NullDecimal `json:"balance_available"`
	BalanceLimit     decimal.NullDecimal `json:"balance_limit"`
	Currency         string              `json:"currency"`
	IsActive         bool                `json:"is_active"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type transactionResponse struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	Date         string          `json:"date"`
	Description  string          `json:"description"`
	MerchantName *string         `json:"merchant_name"`
	Category     *string         `json:"category"`
	Pending      bool            `json:"pending"`
}

type transactionPage struct {
	Data   []transactionResponse `json:"data"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type pageQuery struct {
	Limit  int `json:"limit" validate:"min=0,max=500"`
	Offset int `json:"offset" validate:"min=0"`
}

// HandleListAccounts returns all accounts for the authenticated user
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	accounts, err := h.accounts.ListAccountsByUserID(r.Context(), userID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	data := make([]accountResponse, 0, len(accounts))
	for _, acc := range accounts {
		data = append(data, toAccountResponse(acc))
	}
	writeJSON(w, http.StatusOK, listResponse[accountResponse]{Data: data})
}

// HandleListTransactions pages through one of the caller's accounts, newest
// first.
func (h *AccountHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	accountID, ok := pathUUID(w, r)
	if !ok {
		return
	}

	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	if _, err := h.accounts.GetAccount(r.Context(), accountID, userID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	txs, total, err := h.transactions.ListByAccount(r.Context(), accountID, page.Limit, page.Offset)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	limit := page.Limit
	if limit == 0 {
		limit = transaction.DefaultPageSize
	}
	data := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		data = append(data, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, transactionPage{Data: data, Total: total, Limit: limit, Offset: page.Offset})
}

func parsePage(w http.ResponseWriter, r *http.Request) (pageQuery, bool) {
	var page pageQuery
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, validationResponse{
				Error:   "Validation failed",
				Details: []fieldError{{Field: name, Message: "must be an integer"}},
			})
			return page, false
		}
		*dst = n
	}
	if err := validate.Struct(page); err != nil {
		writeValidationError(w, err)
		return page, false
	}
	return page, true
}

func toAccountResponse(acc *account.Account) accountResponse {
	return accountResponse{
		ID:               acc.ID,
		ConnectionID:     acc.ConnectionID,
		Institution:      acc.InstitutionName,
		Title:            acc.Title,
		Type:             acc.Type,
		Subtype:          acc.Subtype,
		Mask:             acc.Mask,
		BalanceCurrent:   acc.BalanceCurrent,
		BalanceAvailable: acc.BalanceAvailable,
		BalanceLimit:     acc.BalanceLimit,
		Currency:         acc.CurrencyCode,
		IsActive:         acc.IsActive,
		UpdatedAt:        acc.UpdatedAt,
	}
}

func toTransactionResponse(tx *transaction.Transaction) transactionResponse {
	return transactionResponse{
		ID:           tx.ID,
		AccountID:    tx.AccountID,
		Amount:       tx.Amount,
		Date:         tx.Date.Format(transaction.DateLayout),
		Description:  tx.Description,
		MerchantName: tx.MerchantName,
		Category:     tx.Category,
		Pending:      tx.Pending,
	}
}
