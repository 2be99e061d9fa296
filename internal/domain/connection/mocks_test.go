package connection

import (
	"context"
	"errors"
	"strings"
	"time"

	"clawfinance/internal/infrastructure/flinks"
)

// MockRepository is a mock implementation of Repository interface
type MockRepository struct {
	UpsertFunc           func(ctx context.Context, params UpsertParams) (*Connection, error)
	GetByIDFunc          func(ctx context.Context, userID int64, id string) (*Connection, error)
	GetByRequestIDFunc   func(ctx context.Context, userID int64, requestID string) (*Connection, error)
	ListByUserIDFunc     func(ctx context.Context, userID int64) ([]*Connection, error)
	ListActiveFunc       func(ctx context.Context) ([]*Connection, error)
	ActivateFunc         func(ctx context.Context, id, credentialHandle, requestID string) (*Connection, error)
	RequireChallengeFunc func(ctx context.Context, id, requestID string) (*Connection, error)
	UpdateRequestIDFunc  func(ctx context.Context, id, requestID string) error
	MarkSyncedFunc       func(ctx context.Context, id string, at time.Time) error
	MarkErrorFunc        func(ctx context.Context, id, message string) error
	DisconnectFunc       func(ctx context.Context, userID int64, id, apiSource string) (*Connection, int64, error)
}

func (m *MockRepository) Upsert(ctx context.Context, params UpsertParams) (*Connection, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return &Connection{ID: "conn-1", UserID: params.UserID, Institution: params.Institution,
		CredentialHandle: params.CredentialHandle, LastRequestID: params.RequestID, Status: params.Status}, nil
}

func (m *MockRepository) GetByID(ctx context.Context, userID int64, id string) (*Connection, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, userID, id)
	}
	return nil, ErrNotFound
}

func (m *MockRepository) GetByRequestID(ctx context.Context, userID int64, requestID string) (*Connection, error) {
	if m.GetByRequestIDFunc != nil {
		return m.GetByRequestIDFunc(ctx, userID, requestID)
	}
	return nil, ErrNotFound
}

func (m *MockRepository) ListByUserID(ctx context.Context, userID int64) ([]*Connection, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockRepository) ListActive(ctx context.Context) ([]*Connection, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}

func (m *MockRepository) Activate(ctx context.Context, id, credentialHandle, requestID string) (*Connection, error) {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, id, credentialHandle, requestID)
	}
	return &Connection{ID: id, CredentialHandle: credentialHandle, LastRequestID: requestID, Status: StatusActive}, nil
}

func (m *MockRepository) RequireChallenge(ctx context.Context, id, requestID string) (*Connection, error) {
	if m.RequireChallengeFunc != nil {
		return m.RequireChallengeFunc(ctx, id, requestID)
	}
	return &Connection{ID: id, LastRequestID: requestID, Status: StatusMFARequired}, nil
}

func (m *MockRepository) UpdateRequestID(ctx context.Context, id, requestID string) error {
	if m.UpdateRequestIDFunc != nil {
		return m.UpdateRequestIDFunc(ctx, id, requestID)
	}
	return nil
}

func (m *MockRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if m.MarkSyncedFunc != nil {
		return m.MarkSyncedFunc(ctx, id, at)
	}
	return nil
}

func (m *MockRepository) MarkError(ctx context.Context, id, message string) error {
	if m.MarkErrorFunc != nil {
		return m.MarkErrorFunc(ctx, id, message)
	}
	return nil
}

func (m *MockRepository) Disconnect(ctx context.Context, userID int64, id, apiSource string) (*Connection, int64, error) {
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc(ctx, userID, id, apiSource)
	}
	return nil, 0, ErrNotFound
}

// MockProvider is a mock implementation of flinks.ClientInterface
type MockProvider struct {
	AuthorizeWithCredentialsFunc func(ctx context.Context, institution, username, password string) (flinks.AuthOutcome, error)
	AuthorizeWithLoginFunc       func(ctx context.Context, loginID string) (flinks.AuthOutcome, error)
	AnswerChallengeFunc          func(ctx context.Context, requestID string, responses map[string]string) (flinks.AuthOutcome, error)
	GetAccountsSummaryFunc       func(ctx context.Context, requestID string) ([]flinks.AccountSummary, error)

	Calls int
}

func (m *MockProvider) AuthorizeWithCredentials(ctx context.Context, institution, username, password string) (flinks.AuthOutcome, error) {
	m.Calls++
	return m.AuthorizeWithCredentialsFunc(ctx, institution, username, password)
}

func (m *MockProvider) AuthorizeWithLogin(ctx context.Context, loginID string) (flinks.AuthOutcome, error) {
	m.Calls++
	return m.AuthorizeWithLoginFunc(ctx, loginID)
}

func (m *MockProvider) AnswerChallenge(ctx context.Context, requestID string, responses map[string]string) (flinks.AuthOutcome, error) {
	m.Calls++
	return m.AnswerChallengeFunc(ctx, requestID, responses)
}

func (m *MockProvider) GetAccountsDetail(ctx context.Context, requestID string) (*flinks.AccountsDetail, error) {
	m.Calls++
	return nil, errors.New("not expected")
}

func (m *MockProvider) PollAccountsDetail(ctx context.Context, requestID string) (*flinks.AccountsDetail, error) {
	m.Calls++
	return nil, errors.New("not expected")
}

func (m *MockProvider) GetAccountsSummary(ctx context.Context, requestID string) ([]flinks.AccountSummary, error) {
	m.Calls++
	return m.GetAccountsSummaryFunc(ctx, requestID)
}

// reverseCodec is a readable stand-in for the real encryptor.
type reverseCodec struct{}

func (reverseCodec) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (reverseCodec) Decrypt(s string) (string, error) {
	if !strings.HasPrefix(s, "enc:") {
		return "", errors.New("not encrypted")
	}
	return strings.TrimPrefix(s, "enc:"), nil
}
