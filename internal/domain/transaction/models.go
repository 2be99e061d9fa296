package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical date-only form of a transaction date.
const DateLayout = "2006-01-02"

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidDate         = errors.New("transaction date must be YYYY-MM-DD")
)

// Transaction is the canonical form of a provider transaction.
// Amount is positive for money leaving the account and negative for money
// coming in.
type Transaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description"`
	MerchantName *string         `json:"merchantName,omitempty"`
	Category     *string         `json:"category,omitempty"`
	Pending      bool            `json:"pending"`
	APISource    string          `json:"apiSource"`
	ExternalID   string          `json:"externalId"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// UpsertParams is used for syncing transactions from the provider. On
// conflict only Amount and Description are refreshed.
type UpsertParams struct {
	AccountID    string
	Amount       decimal.Decimal
	Date         time.Time
	Description  string
	MerchantName *string
	Category     *string
	Pending      bool
	APISource    string
	ExternalID   string
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.ExternalID == "" {
		return errors.New("external ID is required for upsert")
	}
	if p.AccountID == "" {
		return errors.New("account ID is required")
	}
	if p.APISource == "" {
		return errors.New("api source is required")
	}
	if p.Date.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// ParseDate truncates a provider timestamp to its date part.
func ParseDate(raw string) (time.Time, error) {
	if len(raw) < len(DateLayout) {
		return time.Time{}, ErrInvalidDate
	}
	d, err := time.Parse(DateLayout, raw[:len(DateLayout)])
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}
