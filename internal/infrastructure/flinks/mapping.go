package flinks

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"clawfinance/internal/domain/account"
	"clawfinance/internal/domain/transaction"
)

// Source tags every canonical row that came from this provider.
const Source = "flinks"

const defaultCurrency = "CAD"

var accountTypes = map[string]string{
	"Operations":  account.TypeDepository,
	"Credits":     account.TypeCredit,
	"Investments": account.TypeInvestment,
	"Loans":       account.TypeLoan,
	"Mortgages":   account.TypeMortgage,
	"Lines":       account.TypeCredit,
}

var accountSubtypes = map[string]string{
	"Chequing":     "checking",
	"Savings":      "savings",
	"CreditCard":   "credit_card",
	"RRSP":         "rrsp",
	"TFSA":         "tfsa",
	"RESP":         "resp",
	"PersonalLoan": "personal_loan",
	"Mortgage":     "mortgage",
	"LineOfCredit": "line_of_credit",
	"GIC":          "gic",
}

// MapAccountType maps a provider category to a coarse account type.
// Unknown categories are treated as depository accounts.
func MapAccountType(category string) string {
	if t, ok := accountTypes[category]; ok {
		return t
	}
	return account.TypeDepository
}

// MapAccountSubtype maps a provider account type to a subtype. Unknown
// types pass through lowercased.
func MapAccountSubtype(providerType string) string {
	if s, ok := accountSubtypes[providerType]; ok {
		return s
	}
	return strings.ToLower(providerType)
}

// ExternalID scopes a provider id to this provider.
func ExternalID(providerID string) string {
	return Source + "_" + providerID
}

// MaskAccountNumber keeps at most the last four characters.
func MaskAccountNumber(number string) string {
	number = strings.TrimSpace(number)
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}

// NetAmount is debit minus credit, with absent sides counted as zero.
// Positive means money left the account.
func NetAmount(debit, credit decimal.NullDecimal) decimal.Decimal {
	amount := decimal.Zero
	if debit.Valid {
		amount = amount.Add(debit.Decimal)
	}
	if credit.Valid {
		amount = amount.Sub(credit.Decimal)
	}
	return amount
}

// NormalizeAccount converts a provider account into upsert parameters. The
// caller fills in UserID and ConnectionID.
func NormalizeAccount(a Account, institution string) account.UpsertParams {
	currency := strings.ToUpper(strings.TrimSpace(a.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	return account.UpsertParams{
		InstitutionName:  institution,
		Title:            a.Title,
		Type:             MapAccountType(a.Category),
		Subtype:          MapAccountSubtype(a.Type),
		Mask:             MaskAccountNumber(a.AccountNumber),
		BalanceCurrent:   a.Balance.Current,
		BalanceAvailable: a.Balance.Available,
		BalanceLimit:     a.Balance.Limit,
		CurrencyCode:     currency,
		APISource:        Source,
		ExternalID:       ExternalID(a.ID),
	}
}

// NormalizeTransaction converts a provider transaction owned by accountID.
func NormalizeTransaction(tx Transaction, accountID string) (transaction.UpsertParams, error) {
	date, err := transaction.ParseDate(tx.Date)
	if err != nil {
		return transaction.UpsertParams{}, fmt.Errorf("transaction %s: %w", tx.ID, err)
	}

	return transaction.UpsertParams{
		AccountID:   accountID,
		Amount:      NetAmount(tx.Debit, tx.Credit),
		Date:        date,
		Description: tx.Description,
		Pending:     false,
		APISource:   Source,
		ExternalID:  ExternalID(tx.ID),
	}, nil
}
