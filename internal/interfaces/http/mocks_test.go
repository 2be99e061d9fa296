package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"clawfinance/internal/domain/account"
	"clawfinance/internal/domain/connection"
	"clawfinance/internal/domain/openfinance"
	"clawfinance/internal/domain/transaction"
	"clawfinance/internal/infrastructure/flinks"
	"clawfinance/internal/shared/logging"
	"clawfinance/internal/shared/middleware"
)

const testConnID = "6f1c2a54-9a4e-4c1b-8a43-2d6a1f0e9b11"

// MockConnectionRepo implements connection.Repository
type MockConnectionRepo struct {
	UpsertFunc           func(ctx context.Context, params connection.UpsertParams) (*connection.Connection, error)
	GetByIDFunc          func(ctx context.Context, userID int64, id string) (*connection.Connection, error)
	GetByRequestIDFunc   func(ctx context.Context, userID int64, requestID string) (*connection.Connection, error)
	ListByUserIDFunc     func(ctx context.Context, userID int64) ([]*connection.Connection, error)
	ActivateFunc         func(ctx context.Context, id, credentialHandle, requestID string) (*connection.Connection, error)
	RequireChallengeFunc func(ctx context.Context, id, requestID string) (*connection.Connection, error)
	MarkErrorFunc        func(ctx context.Context, id, message string) error
	DisconnectFunc       func(ctx context.Context, userID int64, id, apiSource string) (*connection.Connection, int64, error)
}

func (m *MockConnectionRepo) Upsert(ctx context.Context, params connection.UpsertParams) (*connection.Connection, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return &connection.Connection{ID: testConnID, UserID: params.UserID, Institution: params.Institution,
		CredentialHandle: params.CredentialHandle, LastRequestID: params.RequestID, Status: params.Status}, nil
}

func (m *MockConnectionRepo) GetByID(ctx context.Context, userID int64, id string) (*connection.Connection, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, userID, id)
	}
	return nil, connection.ErrNotFound
}

func (m *MockConnectionRepo) GetByRequestID(ctx context.Context, userID int64, requestID string) (*connection.Connection, error) {
	if m.GetByRequestIDFunc != nil {
		return m.GetByRequestIDFunc(ctx, userID, requestID)
	}
	return nil, connection.ErrNotFound
}

func (m *MockConnectionRepo) ListByUserID(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockConnectionRepo) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	return nil, nil
}

func (m *MockConnectionRepo) Activate(ctx context.Context, id, credentialHandle, requestID string) (*connection.Connection, error) {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, id, credentialHandle, requestID)
	}
	return &connection.Connection{ID: id, Institution: "FlinksCapital", CredentialHandle: credentialHandle,
		LastRequestID: requestID, Status: connection.StatusActive}, nil
}

func (m *MockConnectionRepo) RequireChallenge(ctx context.Context, id, requestID string) (*connection.Connection, error) {
	if m.RequireChallengeFunc != nil {
		return m.RequireChallengeFunc(ctx, id, requestID)
	}
	return &connection.Connection{ID: id, Institution: "FlinksCapital", LastRequestID: requestID,
		Status: connection.StatusMFARequired}, nil
}

func (m *MockConnectionRepo) UpdateRequestID(ctx context.Context, id, requestID string) error {
	return nil
}

func (m *MockConnectionRepo) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (m *MockConnectionRepo) MarkError(ctx context.Context, id, message string) error {
	if m.MarkErrorFunc != nil {
		return m.MarkErrorFunc(ctx, id, message)
	}
	return nil
}

func (m *MockConnectionRepo) Disconnect(ctx context.Context, userID int64, id, apiSource string) (*connection.Connection, int64, error) {
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc(ctx, userID, id, apiSource)
	}
	return nil, 0, connection.ErrNotFound
}

// MockProvider implements flinks.ClientInterface
type MockProvider struct {
	AuthorizeWithCredentialsFunc func(ctx context.Context, institution, username, password string) (flinks.AuthOutcome, error)
	AuthorizeWithLoginFunc       func(ctx context.Context, loginID string) (flinks.AuthOutcome, error)
	AnswerChallengeFunc          func(ctx context.Context, requestID string, responses map[string]string) (flinks.AuthOutcome, error)
	GetAccountsDetailFunc        func(ctx context.Context, requestID string) (*flinks.AccountsDetail, error)
	GetAccountsSummaryFunc       func(ctx context.Context, requestID string) ([]flinks.AccountSummary, error)

	Calls int
}

func (m *MockProvider) AuthorizeWithCredentials(ctx context.Context, institution, username, password string) (flinks.AuthOutcome, error) {
	m.Calls++
	if m.AuthorizeWithCredentialsFunc != nil {
		return m.AuthorizeWithCredentialsFunc(ctx, institution, username, password)
	}
	return nil, errors.New("not expected")
}

func (m *MockProvider) AuthorizeWithLogin(ctx context.Context, loginID string) (flinks.AuthOutcome, error) {
	m.Calls++
	if m.AuthorizeWithLoginFunc != nil {
		return m.AuthorizeWithLoginFunc(ctx, loginID)
	}
	return &flinks.Session{RequestID: "r2", LoginID: loginID}, nil
}

func (m *MockProvider) AnswerChallenge(ctx context.Context, requestID string, responses map[string]string) (flinks.AuthOutcome, error) {
	m.Calls++
	if m.AnswerChallengeFunc != nil {
		return m.AnswerChallengeFunc(ctx, requestID, responses)
	}
	return nil, errors.New("not expected")
}

func (m *MockProvider) GetAccountsDetail(ctx context.Context, requestID string) (*flinks.AccountsDetail, error) {
	m.Calls++
	if m.GetAccountsDetailFunc != nil {
		return m.GetAccountsDetailFunc(ctx, requestID)
	}
	return &flinks.AccountsDetail{Status: flinks.DetailReady, RequestID: requestID}, nil
}

func (m *MockProvider) PollAccountsDetail(ctx context.Context, requestID string) (*flinks.AccountsDetail, error) {
	m.Calls++
	return &flinks.AccountsDetail{Status: flinks.DetailPending, RequestID: requestID}, nil
}

func (m *MockProvider) GetAccountsSummary(ctx context.Context, requestID string) ([]flinks.AccountSummary, error) {
	m.Calls++
	if m.GetAccountsSummaryFunc != nil {
		return m.GetAccountsSummaryFunc(ctx, requestID)
	}
	return nil, nil
}

// MockAccountRepo implements account.Repository
type MockAccountRepo struct {
	UpsertByExternalIDFunc func(ctx context.Context, params account.UpsertParams) (*account.Account, error)
	GetByIDFunc            func(ctx context.Context, id string) (*account.Account, error)
	ListByUserIDFunc       func(ctx context.Context, userID int64) ([]*account.Account, error)
}

func (m *MockAccountRepo) UpsertByExternalID(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	if m.UpsertByExternalIDFunc != nil {
		return m.UpsertByExternalIDFunc(ctx, params)
	}
	return &account.Account{ID: "id-" + params.ExternalID, UserID: params.UserID}, nil
}

func (m *MockAccountRepo) GetByID(ctx context.Context, id string) (*account.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, account.ErrAccountNotFound
}

func (m *MockAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

// MockTransactionRepo implements transaction.Repository
type MockTransactionRepo struct {
	ListByAccountIDFunc  func(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error)
	CountByAccountIDFunc func(ctx context.Context, accountID string) (int64, error)
}

func (m *MockTransactionRepo) UpsertByExternalID(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, error) {
	return &transaction.Transaction{ID: "id-" + params.ExternalID, AccountID: params.AccountID}, nil
}

func (m *MockTransactionRepo) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	if m.ListByAccountIDFunc != nil {
		return m.ListByAccountIDFunc(ctx, accountID, limit, offset)
	}
	return nil, nil
}

func (m *MockTransactionRepo) CountByAccountID(ctx context.Context, accountID string) (int64, error) {
	if m.CountByAccountIDFunc != nil {
		return m.CountByAccountIDFunc(ctx, accountID)
	}
	return 0, nil
}

type noopLocker struct{}

func (noopLocker) Lock(ctx context.Context, key string) (func(), error) { return func() {}, nil }

// prefixCodec is a readable stand-in for the real encryptor.
type prefixCodec struct{}

func (prefixCodec) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (prefixCodec) Decrypt(s string) (string, error) {
	if !strings.HasPrefix(s, "enc:") {
		return "", errors.New("not encrypted")
	}
	return strings.TrimPrefix(s, "enc:"), nil
}

func newTestConnectionHandler(conns *MockConnectionRepo, provider *MockProvider) *ConnectionHandler {
	logger := logging.Discard()
	connSvc := connection.NewService(conns, provider, prefixCodec{}, logger)
	reconciler := openfinance.NewReconciler(
		account.NewService(&MockAccountRepo{}), transaction.NewService(&MockTransactionRepo{}))
	syncSvc := openfinance.NewSyncService(connSvc, provider, reconciler, nil, noopLocker{},
		openfinance.SyncConfig{PollInterval: time.Millisecond, MaxPolls: 2}, logger)
	return NewConnectionHandler(connSvc, syncSvc, logger)
}

func withUser(r *http.Request, userID int64) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, userID))
}

func activeConnection() *connection.Connection {
	return &connection.Connection{
		ID:               testConnID,
		UserID:           7,
		Institution:      "FlinksCapital",
		CredentialHandle: "enc:L1",
		LastRequestID:    "r1",
		Status:           connection.StatusActive,
	}
}
