package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Coarse account types.
const (
	TypeDepository = "depository"
	TypeCredit     = "credit"
	TypeInvestment = "investment"
	TypeLoan       = "loan"
	TypeMortgage   = "mortgage"
)

var (
	accountTypes = map[string]struct{}{
		TypeDepository: {},
		TypeCredit:     {},
		TypeInvestment: {},
		TypeLoan:       {},
		TypeMortgage:   {},
	}
)

// Domain errors
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrForbidden          = errors.New("access forbidden")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrInvalidCurrency    = errors.New("currency code is required")
	ErrInvalidMask        = errors.New("mask must hold at most the last 4 digits")
)

// Account is the canonical form of an account reported by a provider.
// Only the last four digits of the account number are ever kept.
type Account struct {
	ID               string              `json:"id"`
	UserID           int64               `json:"userId"`
	ConnectionID     string              `json:"connectionId"`
	InstitutionName  string              `json:"institutionName"`
	Title            string              `json:"title"`
	Type             string              `json:"type"`
	Subtype          string              `json:"subtype"`
	Mask             string              `json:"mask,omitempty"`
	BalanceCurrent   decimal.Decimal     `json:"balanceCurrent"`
	BalanceAvailable decimal.NullDecimal `json:"balanceAvailable"`
	BalanceLimit     decimal.NullDecimal `json:"balanceLimit"`
	CurrencyCode     string              `json:"currencyCode"`
	APISource        string              `json:"apiSource"`
	ExternalID       string              `json:"externalId"`
	IsActive         bool                `json:"isActive"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// UpsertParams carries one provider account into storage. ExternalID is the
// reconciliation key.
type UpsertParams struct {
	UserID           int64
	ConnectionID     string
	InstitutionName  string
	Title            string
	Type             string
	Subtype          string
	Mask             string
	BalanceCurrent   decimal.Decimal
	BalanceAvailable decimal.NullDecimal
	BalanceLimit     decimal.NullDecimal
	CurrencyCode     string
	APISource        string
	ExternalID       string
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.ExternalID == "" {
		return errors.New("external ID is required for upsert")
	}
	if p.UserID <= 0 {
		return errors.New("valid user ID is required for upsert")
	}
	if p.APISource == "" {
		return errors.New("api source is required")
	}
	if p.InstitutionName == "" {
		return errors.New("institution name is required")
	}
	if !IsValidAccountType(p.Type) {
		return ErrInvalidAccountType
	}
	if p.CurrencyCode == "" {
		return ErrInvalidCurrency
	}
	if len(p.Mask) > 4 {
		return ErrInvalidMask
	}
	return nil
}

// IsValidAccountType checks if the provided account type is valid.
func IsValidAccountType(t string) bool {
	_, ok := accountTypes[t]
	return ok
}
