package openfinance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"

	"clawfinance/internal/domain/account"
	"clawfinance/internal/domain/connection"
	"clawfinance/internal/domain/transaction"
	"clawfinance/internal/infrastructure/flinks"
)

// MockConnectionRepo implements connection.Repository
type MockConnectionRepo struct {
	GetByIDFunc          func(ctx context.Context, userID int64, id string) (*connection.Connection, error)
	ListActiveFunc       func(ctx context.Context) ([]*connection.Connection, error)
	RequireChallengeFunc func(ctx context.Context, id, requestID string) (*connection.Connection, error)
	UpdateRequestIDFunc  func(ctx context.Context, id, requestID string) error
	MarkSyncedFunc       func(ctx context.Context, id string, at time.Time) error
	MarkErrorFunc        func(ctx context.Context, id, message string) error
}

func (m *MockConnectionRepo) Upsert(ctx context.Context, params connection.UpsertParams) (*connection.Connection, error) {
	return nil, errors.New("not expected")
}

func (m *MockConnectionRepo) GetByID(ctx context.Context, userID int64, id string) (*connection.Connection, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, userID, id)
	}
	return nil, connection.ErrNotFound
}

func (m *MockConnectionRepo) GetByRequestID(ctx context.Context, userID int64, requestID string) (*connection.Connection, error) {
	return nil, connection.ErrNotFound
}

func (m *MockConnectionRepo) ListByUserID(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	return nil, nil
}

func (m *MockConnectionRepo) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}

func (m *MockConnectionRepo) Activate(ctx context.Context, id, credentialHandle, requestID string) (*connection.Connection, error) {
	return nil, errors.New("not expected")
}

func (m *MockConnectionRepo) RequireChallenge(ctx context.Context, id, requestID string) (*connection.Connection, error) {
	if m.RequireChallengeFunc != nil {
		return m.RequireChallengeFunc(ctx, id, requestID)
	}
	return &connection.Connection{ID: id, UserID: 7, Institution: "FlinksCapital",
		LastRequestID: requestID, Status: connection.StatusMFARequired}, nil
}

func (m *MockConnectionRepo) UpdateRequestID(ctx context.Context, id, requestID string) error {
	if m.UpdateRequestIDFunc != nil {
		return m.UpdateRequestIDFunc(ctx, id, requestID)
	}
	return nil
}

func (m *MockConnectionRepo) MarkSynced(ctx context.Context, id string, at time.Time) error {
	if m.MarkSyncedFunc != nil {
		return m.MarkSyncedFunc(ctx, id, at)
	}
	return nil
}

func (m *MockConnectionRepo) MarkError(ctx context.Context, id, message string) error {
	if m.MarkErrorFunc != nil {
		return m.MarkErrorFunc(ctx, id, message)
	}
	return nil
}

func (m *MockConnectionRepo) Disconnect(ctx context.Context, userID int64, id, apiSource string) (*connection.Connection, int64, error) {
	return nil, 0, connection.ErrNotFound
}

// MockProvider implements flinks.ClientInterface and counts every call.
type MockProvider struct {
	AuthorizeWithLoginFunc func(ctx context.Context, loginID string) (flinks.AuthOutcome, error)
	GetAccountsDetailFunc  func(ctx context.Context, requestID string) (*flinks.AccountsDetail, error)
	PollAccountsDetailFunc func(ctx context.Context, requestID string) (*flinks.AccountsDetail, error)

	Calls int
	Polls int
}

func (m *MockProvider) AuthorizeWithCredentials(ctx context.Context, institution, username, password string) (flinks.AuthOutcome, error) {
	m.Calls++
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
	m.Polls++
	if m.PollAccountsDetailFunc != nil {
		return m.PollAccountsDetailFunc(ctx, requestID)
	}
	return &flinks.AccountsDetail{Status: flinks.DetailPending, RequestID: requestID}, nil
}

func (m *MockProvider) GetAccountsSummary(ctx context.Context, requestID string) ([]flinks.AccountSummary, error) {
	m.Calls++
	return nil, errors.New("not expected")
}

// MockAccountRepo implements account.Repository
type MockAccountRepo struct {
	UpsertByExternalIDFunc func(ctx context.Context, params account.UpsertParams) (*account.Account, error)
	Upserted               []account.UpsertParams
}

func (m *MockAccountRepo) UpsertByExternalID(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	if m.UpsertByExternalIDFunc != nil {
		return m.UpsertByExternalIDFunc(ctx, params)
	}
	m.Upserted = append(m.Upserted, params)
	return &account.Account{ID: "id-" + params.ExternalID, UserID: params.UserID, ExternalID: params.ExternalID}, nil
}

func (m *MockAccountRepo) GetByID(ctx context.Context, id string) (*account.Account, error) {
	return nil, account.ErrAccountNotFound
}

func (m *MockAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	return nil, nil
}

// MockTransactionRepo implements transaction.Repository
type MockTransactionRepo struct {
	UpsertByExternalIDFunc func(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, error)
	Upserted               []transaction.UpsertParams
}

func (m *MockTransactionRepo) UpsertByExternalID(ctx context.Context, params transaction.UpsertParams) (*transaction.Transaction, error) {
	if m.UpsertByExternalIDFunc != nil {
		return m.UpsertByExternalIDFunc(ctx, params)
	}
	m.Upserted = append(m.Upserted, params)
	return &transaction.Transaction{ID: "id-" + params.ExternalID, AccountID: params.AccountID}, nil
}

func (m *MockTransactionRepo) ListByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*transaction.Transaction, error) {
	return nil, nil
}

func (m *MockTransactionRepo) CountByAccountID(ctx context.Context, accountID string) (int64, error) {
	return 0, nil
}

// MockMessenger implements notification.Messenger
type MockMessenger struct {
	Events []string
}

func (m *MockMessenger) SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error {
	m.Events = append(m.Events, data["event"])
	return nil
}

// MockLocker implements Locker
type MockLocker struct {
	LockFunc func(ctx context.Context, key string) (func(), error)

	mu       sync.Mutex
	Locked   []string
	Released int
}

func (m *MockLocker) Lock(ctx context.Context, key string) (func(), error) {
	if m.LockFunc != nil {
		return m.LockFunc(ctx, key)
	}
	m.mu.Lock()
	m.Locked = append(m.Locked, key)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.Released++
		m.mu.Unlock()
	}, nil
}

// fakeClock fires every timer at once and counts the waits.
type fakeClock struct {
	clock.Clock
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{Clock: clock.WallClock, now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- c.now.Add(d)
	return ch
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
