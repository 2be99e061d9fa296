package connection

import (
	"context"
	"errors"
	"testing"

	"clawfinance/internal/infrastructure/flinks"
	"clawfinance/internal/shared/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(repo *MockRepository, provider *MockProvider) *Service {
	return NewService(repo, provider, reverseCodec{}, logging.Discard())
}

func favoriteColorChallenge(requestID string) *flinks.Challenge {
	return &flinks.Challenge{
		RequestID: requestID,
		Challenges: []flinks.SecurityChallenge{
			{Type: "QuestionAndAnswer", Prompt: "Favorite color?"},
		},
	}
}

func validStart() StartParams {
	return StartParams{UserID: 7, Institution: "FlinksCapital", Username: "Greatday", Password: "Everyday"}
}

func TestService_Start_Challenge(t *testing.T) {
	var saved UpsertParams
	repo := &MockRepository{
		UpsertFunc: func(ctx context.Context, params UpsertParams) (*Connection, error) {
			saved = params
			return &Connection{ID: "conn-1", UserID: params.UserID, Institution: params.Institution,
				CredentialHandle: params.CredentialHandle, LastRequestID: params.RequestID, Status: params.Status}, nil
		},
	}
	provider := &MockProvider{
		AuthorizeWithCredentialsFunc: func(ctx context.Context, institution, username, password string) (flinks.AuthOutcome, error) {
			assert.Equal(t, "FlinksCapital", institution)
			assert.Equal(t, "Greatday", username)
			assert.Equal(t, "Everyday", password)
			return favoriteColorChallenge("r1"), nil
		},
	}

	result, err := newTestService(repo, provider).Start(context.Background(), validStart())
	require.NoError(t, err)

	require.NotNil(t, result.Challenge)
	assert.Nil(t, result.Session)
	assert.Equal(t, "r1", result.Challenge.RequestID)
	assert.Equal(t, "Favorite color?", result.Challenge.Challenges[0].Prompt)

	assert.Equal(t, StatusMFARequired, saved.Status)
	assert.Equal(t, "r1", saved.RequestID)
	assert.Equal(t, "enc:"+PendingHandle, saved.CredentialHandle)
	assert.True(t, saved.KeepHandle, "a challenge must not replace a stored login handle")
	assert.Equal(t, StatusMFARequired, result.Connection.Status)
}

func TestService_Start_Session(t *testing.T) {
	var saved UpsertParams
	repo := &MockRepository{
		UpsertFunc: func(ctx context.Context, params UpsertParams) (*Connection, error) {
			saved = params
			return &Connection{ID: "conn-1", Status: params.Status}, nil
		},
	}
	provider := &MockProvider{
		AuthorizeWithCredentialsFunc: func(ctx context.Context, institution, username, password string) (flinks.AuthOutcome, error) {
			return &flinks.Session{RequestID: "r1", LoginID: "L1", Institution: "FlinksCapital"}, nil
		},
	}

	result, err := newTestService(repo, provider).Start(context.Background(), validStart())
	require.NoError(t, err)

	require.NotNil(t, result.Session)
	assert.Nil(t, result.Challenge)
	assert.Equal(t, "L1", result.Session.LoginID)
	assert.Equal(t, StatusActive, saved.Status)
	assert.Equal(t, "enc:L1", saved.CredentialHandle)
	assert.False(t, saved.KeepHandle)
	assert.NotContains(t, saved.CredentialHandle, "Everyday")
}

func TestService_Start_InvalidInputSkipsProvider(t *testing.T) {
	provider := &MockProvider{}
	svc := newTestService(&MockRepository{}, provider)

	tests := []struct {
		name   string
		mutate func(p *StartParams)
	}{
		{"missing user", func(p *StartParams) { p.UserID = 0 }},
		{"blank institution", func(p *StartParams) { p.Institution = "  " }},
		{"missing username", func(p *StartParams) { p.Username = "" }},
		{"missing password", func(p *StartParams) { p.Password = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validStart()
			tt.mutate(&params)
			_, err := svc.Start(context.Background(), params)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Zero(t, provider.Calls)
}

func TestService_Start_ProviderErrorLeavesNoRow(t *testing.T) {
	repo := &MockRepository{
		UpsertFunc: func(ctx context.Context, params UpsertParams) (*Connection, error) {
			t.Fatal("upsert must not be called")
			return nil, nil
		},
	}
	provider := &MockProvider{
		AuthorizeWithCredentialsFunc: func(ctx context.Context, institution, username, password string) (flinks.AuthOutcome, error) {
			return nil, &flinks.ProviderError{Status: 401, Code: "INVALID_LOGIN", Message: "Invalid credentials"}
		},
	}

	_, err := newTestService(repo, provider).Start(context.Background(), validStart())
	pe, ok := flinks.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, 401, pe.Status)
}

func TestService_AnswerChallenge(t *testing.T) {
	pending := &Connection{ID: "conn-1", UserID: 7, Status: StatusMFARequired, LastRequestID: "r1"}

	t.Run("final answer activates", func(t *testing.T) {
		var activatedHandle, activatedRequest string
		repo := &MockRepository{
			GetByRequestIDFunc: func(ctx context.Context, userID int64, requestID string) (*Connection, error) {
				assert.Equal(t, int64(7), userID)
				assert.Equal(t, "r1", requestID)
				return pending, nil
			},
			ActivateFunc: func(ctx context.Context, id, handle, requestID string) (*Connection, error) {
				activatedHandle, activatedRequest = handle, requestID
				return &Connection{ID: id, Status: StatusActive, CredentialHandle: handle}, nil
			},
		}
		provider := &MockProvider{
			AnswerChallengeFunc: func(ctx context.Context, requestID string, responses map[string]string) (flinks.AuthOutcome, error) {
				assert.Equal(t, map[string]string{"Favorite color?": "blue"}, responses)
				return &flinks.Session{RequestID: "r2", LoginID: "L1"}, nil
			},
		}

		result, err := newTestService(repo, provider).AnswerChallenge(context.Background(), 7, "r1",
			map[string]string{"Favorite color?": "blue"})
		require.NoError(t, err)
		assert.Equal(t, StatusActive, result.Connection.Status)
		assert.Equal(t, "enc:L1", activatedHandle)
		assert.Equal(t, "r2", activatedRequest)
	})

	t.Run("chained challenge stays pending", func(t *testing.T) {
		var newRequest string
		repo := &MockRepository{
			GetByRequestIDFunc: func(ctx context.Context, userID int64, requestID string) (*Connection, error) {
				return pending, nil
			},
			RequireChallengeFunc: func(ctx context.Context, id, requestID string) (*Connection, error) {
				newRequest = requestID
				return &Connection{ID: id, Status: StatusMFARequired, LastRequestID: requestID}, nil
			},
		}
		provider := &MockProvider{
			AnswerChallengeFunc: func(ctx context.Context, requestID string, responses map[string]string) (flinks.AuthOutcome, error) {
				return favoriteColorChallenge("r3"), nil
			},
		}

		result, err := newTestService(repo, provider).AnswerChallenge(context.Background(), 7, "r1",
			map[string]string{"Favorite color?": "blue"})
		require.NoError(t, err)
		require.NotNil(t, result.Challenge)
		assert.Equal(t, "r3", newRequest)
		assert.Equal(t, StatusMFARequired, result.Connection.Status)
	})

	t.Run("unknown request id skips provider", func(t *testing.T) {
		provider := &MockProvider{}
		_, err := newTestService(&MockRepository{}, provider).AnswerChallenge(context.Background(), 7, "nope",
			map[string]string{"q": "a"})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Zero(t, provider.Calls)
	})

	t.Run("connection not awaiting answers", func(t *testing.T) {
		repo := &MockRepository{
			GetByRequestIDFunc: func(ctx context.Context, userID int64, requestID string) (*Connection, error) {
				return &Connection{ID: "conn-1", Status: StatusActive}, nil
			},
		}
		provider := &MockProvider{}
		_, err := newTestService(repo, provider).AnswerChallenge(context.Background(), 7, "r1",
			map[string]string{"q": "a"})

		var stateErr *InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, StatusActive, stateErr.Status)
		assert.Zero(t, provider.Calls)
	})

	t.Run("empty responses", func(t *testing.T) {
		_, err := newTestService(&MockRepository{}, &MockProvider{}).AnswerChallenge(context.Background(), 7, "r1", nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestService_Reauthorize_RequiresActive(t *testing.T) {
	for _, status := range []Status{StatusMFARequired, StatusError, StatusDisconnected} {
		t.Run(string(status), func(t *testing.T) {
			provider := &MockProvider{}
			conn := &Connection{ID: "conn-1", Status: status, CredentialHandle: "enc:L1"}

			_, err := newTestService(&MockRepository{}, provider).Reauthorize(context.Background(), conn)

			var stateErr *InvalidStateError
			require.ErrorAs(t, err, &stateErr)
			assert.Equal(t, status, stateErr.Status)
			assert.Equal(t, "Connection status is '"+string(status)+"'; re-authorize first", err.Error())
			assert.Zero(t, provider.Calls)
		})
	}
}

func TestService_Reauthorize_PendingHandle(t *testing.T) {
	provider := &MockProvider{}
	conn := &Connection{ID: "conn-1", Status: StatusActive, CredentialHandle: "enc:" + PendingHandle}

	_, err := newTestService(&MockRepository{}, provider).Reauthorize(context.Background(), conn)
	assert.ErrorIs(t, err, ErrNoStoredLogin)
	assert.Zero(t, provider.Calls)
}

func TestService_Reauthorize_ChallengeMovesToMFA(t *testing.T) {
	repo := &MockRepository{}
	provider := &MockProvider{
		AuthorizeWithLoginFunc: func(ctx context.Context, loginID string) (flinks.AuthOutcome, error) {
			assert.Equal(t, "L1", loginID)
			return favoriteColorChallenge("r9"), nil
		},
	}
	conn := &Connection{ID: "conn-1", Status: StatusActive, CredentialHandle: "enc:L1"}

	outcome, err := newTestService(repo, provider).Reauthorize(context.Background(), conn)
	require.NoError(t, err)
	assert.IsType(t, &flinks.Challenge{}, outcome)
	assert.Equal(t, StatusMFARequired, conn.Status)
	assert.Equal(t, "r9", conn.LastRequestID)
}

func TestService_AccountSummary(t *testing.T) {
	var recorded string
	repo := &MockRepository{
		GetByIDFunc: func(ctx context.Context, userID int64, id string) (*Connection, error) {
			return &Connection{ID: id, UserID: userID, Status: StatusActive, CredentialHandle: "enc:L1"}, nil
		},
		UpdateRequestIDFunc: func(ctx context.Context, id, requestID string) error {
			recorded = requestID
			return nil
		},
	}
	provider := &MockProvider{
		AuthorizeWithLoginFunc: func(ctx context.Context, loginID string) (flinks.AuthOutcome, error) {
			return &flinks.Session{RequestID: "r5", LoginID: loginID}, nil
		},
		GetAccountsSummaryFunc: func(ctx context.Context, requestID string) ([]flinks.AccountSummary, error) {
			assert.Equal(t, "r5", requestID)
			return []flinks.AccountSummary{{ID: "A1", Title: "Chequing"}}, nil
		},
	}

	result, err := newTestService(repo, provider).AccountSummary(context.Background(), 7, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "r5", recorded)
	require.Len(t, result.Accounts, 1)
	assert.Equal(t, "A1", result.Accounts[0].ID)
	assert.Nil(t, result.Challenge)
}

func TestService_Disconnect(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		_, err := newTestService(&MockRepository{}, &MockProvider{}).Disconnect(context.Background(), 7, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("scopes account deactivation to provider source", func(t *testing.T) {
		repo := &MockRepository{
			DisconnectFunc: func(ctx context.Context, userID int64, id, apiSource string) (*Connection, int64, error) {
				assert.Equal(t, flinks.Source, apiSource)
				return &Connection{ID: id, Status: StatusDisconnected}, 2, nil
			},
		}
		conn, err := newTestService(repo, &MockProvider{}).Disconnect(context.Background(), 7, "conn-1")
		require.NoError(t, err)
		assert.Equal(t, StatusDisconnected, conn.Status)
	})
}

func TestService_MarkError(t *testing.T) {
	t.Run("records message", func(t *testing.T) {
		var message string
		repo := &MockRepository{
			MarkErrorFunc: func(ctx context.Context, id, msg string) error {
				message = msg
				return nil
			},
		}
		newTestService(repo, &MockProvider{}).MarkError(context.Background(), "conn-1", errors.New("provider down"))
		assert.Equal(t, "provider down", message)
	})

	t.Run("storage failure is swallowed", func(t *testing.T) {
		repo := &MockRepository{
			MarkErrorFunc: func(ctx context.Context, id, msg string) error {
				return errors.New("db gone")
			},
		}
		assert.NotPanics(t, func() {
			newTestService(repo, &MockProvider{}).MarkError(context.Background(), "conn-1", errors.New("boom"))
		})
	})
}
