package flinks

import "github.com/shopspring/decimal"

// Request bodies. Field names follow the provider's PascalCase JSON.

type credentialsRequest struct {
	Institution      string `json:"Institution"`
	Username         string `json:"Username"`
	Password         string `json:"Password"`
	MostRecentCached bool   `json:"MostRecentCached"`
	Save             bool   `json:"Save"`
}

type loginRequest struct {
	LoginID          string `json:"LoginId"`
	MostRecentCached bool   `json:"MostRecentCached"`
}

type challengeAnswerRequest struct {
	RequestID         string            `json:"RequestId"`
	SecurityResponses map[string]string `json:"SecurityResponses"`
}

type accountsDetailRequest struct {
	RequestID        string `json:"RequestId"`
	WithTransactions bool   `json:"WithTransactions"`
}

type accountsSummaryRequest struct {
	RequestID string `json:"RequestId"`
}

// authorizeResponse covers both the session and the challenge shape of
// /Authorize. It is turned into an AuthOutcome before leaving the package.
type authorizeResponse struct {
	RequestID          string              `json:"RequestId"`
	Login              *Login              `json:"Login"`
	Institution        string              `json:"Institution"`
	HTTPStatusCode     int                 `json:"HttpStatusCode"`
	SecurityChallenges []securityChallenge `json:"SecurityChallenges"`
}

type securityChallenge struct {
	Type      string   `json:"Type"`
	Prompt    string   `json:"Prompt"`
	Iterables []string `json:"Iterables"`
}

// Login describes the stored provider login behind a session.
type Login struct {
	Username           string `json:"Username"`
	ID                 string `json:"Id"`
	IsScheduledRefresh bool   `json:"IsScheduledRefresh"`
	LastRefresh        string `json:"LastRefresh"`
	Type               string `json:"Type"`
}

type accountsDetailResponse struct {
	RequestID      string    `json:"RequestId"`
	Accounts       []Account `json:"Accounts"`
	Login          *Login    `json:"Login"`
	Institution    string    `json:"Institution"`
	HTTPStatusCode int       `json:"HttpStatusCode"`
}

type accountsSummaryResponse struct {
	RequestID      string           `json:"RequestId"`
	Accounts       []AccountSummary `json:"Accounts"`
	Institution    string           `json:"Institution"`
	HTTPStatusCode int              `json:"HttpStatusCode"`
}

// errorResponse is the body of a failed provider call.
type errorResponse struct {
	Message        string `json:"Message"`
	FlinksCode     string `json:"FlinksCode"`
	HTTPStatusCode int    `json:"HttpStatusCode"`
}

// Account is a provider account as returned by GetAccountsDetail.
type Account struct {
	ID                string              `json:"Id"`
	TransitNumber     string              `json:"TransitNumber"`
	InstitutionNumber string              `json:"InstitutionNumber"`
	OverdraftLimit    decimal.NullDecimal `json:"OverdraftLimit"`
	Title             string              `json:"Title"`
	AccountNumber     string              `json:"AccountNumber"`
	Balance           Balance             `json:"Balance"`
	Category          string              `json:"Category"`
	Type              string              `json:"Type"`
	Currency          string              `json:"Currency"`
	Transactions      []Transaction       `json:"Transactions"`
}

type Balance struct {
	Current   decimal.Decimal     `json:"Current"`
	Available decimal.NullDecimal `json:"Available"`
	Limit     decimal.NullDecimal `json:"Limit"`
}

// Transaction reports money out as Debit and money in as Credit. Either may
// be absent.
type Transaction struct {
	ID          string              `json:"Id"`
	Date        string              `json:"Date"`
	Debit       decimal.NullDecimal `json:"Debit"`
	Credit      decimal.NullDecimal `json:"Credit"`
	Balance     decimal.NullDecimal `json:"Balance"`
	Description string              `json:"Description"`
	Code        string              `json:"Code"`
}

// AccountSummary is the lighter account view from GetAccountsSummary.
type AccountSummary struct {
	ID               string              `json:"Id"`
	Title            string              `json:"Title"`
	AccountNumber    string              `json:"AccountNumber"`
	Balance          Balance             `json:"Balance"`
	Category         string              `json:"Category"`
	Type             string              `json:"Type"`
	Currency         string              `json:"Currency"`
	EftEligibleRatio decimal.NullDecimal `json:"EftEligibleRatio"`
}

// DetailStatus tells whether account detail is ready or still being
// computed on the provider side.
type DetailStatus string

const (
	DetailReady   DetailStatus = "ready"
	DetailPending DetailStatus = "pending"
)

// AccountsDetail is the result of a detail fetch or poll.
type AccountsDetail struct {
	Status      DetailStatus
	RequestID   string
	Institution string
	Accounts    []Account
}
