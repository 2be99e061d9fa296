package flinks

import "context"

// ClientInterface defines the methods required from the Flinks API client
type ClientInterface interface {
	AuthorizeWithCredentials(ctx context.Context, institution, username, password string) (AuthOutcome, error)
	AuthorizeWithLogin(ctx context.Context, loginID string) (AuthOutcome, error)
	AnswerChallenge(ctx context.Context, requestID string, responses map[string]string) (AuthOutcome, error)
	GetAccountsDetail(ctx context.Context, requestID string) (*AccountsDetail, error)
	PollAccountsDetail(ctx context.Context, requestID string) (*AccountsDetail, error)
	GetAccountsSummary(ctx context.Context, requestID string) ([]AccountSummary, error)
}
