package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clawfinance/internal/infrastructure/flinks"
)

// Codec seals provider login ids for storage.
type Codec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AuthResult is the outcome of Start or AnswerChallenge. Exactly one of
// Session and Challenge is set.
type AuthResult struct {
	Connection *Connection
	Session    *flinks.Session
	Challenge  *flinks.Challenge
}

// SummaryResult is a live account view. Challenge is set when the
// institution asked for interactive authentication instead.
type SummaryResult struct {
	Connection *Connection
	Accounts   []flinks.AccountSummary
	Challenge  *flinks.Challenge
}

// Service owns the connection lifecycle:
//
//	(new) -> mfa_required <-> active -> error
//	mfa_required | active | error -> disconnected
type Service struct {
	repo     Repository
	provider flinks.ClientInterface
	codec    Codec
	logger   *slog.Logger
}

func NewService(repo Repository, provider flinks.ClientInterface, codec Codec, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, provider: provider, codec: codec, logger: logger}
}

// Start authorizes raw credentials with the provider and records the
// connection. A challenge leaves the connection in mfa_required.
func (s *Service) Start(ctx context.Context, params StartParams) (*AuthResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	outcome, err := s.provider.AuthorizeWithCredentials(ctx, params.Institution, params.Username, params.Password)
	if err != nil {
		return nil, err
	}

	switch o := outcome.(type) {
	case *flinks.Challenge:
		handle, err := s.codec.Encrypt(PendingHandle)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt placeholder handle: %w", err)
		}
		conn, err := s.repo.Upsert(ctx, UpsertParams{
			UserID:           params.UserID,
			Institution:      params.Institution,
			CredentialHandle: handle,
			RequestID:        o.RequestID,
			Status:           StatusMFARequired,
			KeepHandle:       true,
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info("connection awaiting challenge answers",
			"user_id", params.UserID, "connection_id", conn.ID, "challenges", len(o.Challenges))
		return &AuthResult{Connection: conn, Challenge: o}, nil

	case *flinks.Session:
		handle, err := s.codec.Encrypt(o.LoginID)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt login handle: %w", err)
		}
		conn, err := s.repo.Upsert(ctx, UpsertParams{
			UserID:           params.UserID,
			Institution:      params.Institution,
			CredentialHandle: handle,
			RequestID:        o.RequestID,
			Status:           StatusActive,
		})
		if err != nil {
			return nil, err
		}
		s.logger.Info("connection authorized", "user_id", params.UserID, "connection_id", conn.ID)
		return &AuthResult{Connection: conn, Session: o}, nil
	}

	return nil, fmt.Errorf("unexpected authorize outcome %T", outcome)
}

// AnswerChallenge forwards challenge answers for the caller's pending
// request. The connection is looked up before the provider is called.
func (s *Service) AnswerChallenge(ctx context.Context, userID int64, requestID string, responses map[string]string) (*AuthResult, error) {
	if requestID == "" || len(responses) == 0 {
		return nil, fmt.Errorf("%w: request id and responses are required", ErrInvalidInput)
	}

	conn, err := s.repo.GetByRequestID(ctx, userID, requestID)
	if err != nil {
		return nil, err
	}
	if conn.Status != StatusMFARequired {
		return nil, &InvalidStateError{Status: conn.Status}
	}

	outcome, err := s.provider.AnswerChallenge(ctx, requestID, responses)
	if err != nil {
		return nil, err
	}

	switch o := outcome.(type) {
	case *flinks.Challenge:
		updated, err := s.repo.RequireChallenge(ctx, conn.ID, o.RequestID)
		if err != nil {
			return nil, err
		}
		return &AuthResult{Connection: updated, Challenge: o}, nil

	case *flinks.Session:
		handle, err := s.codec.Encrypt(o.LoginID)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt login handle: %w", err)
		}
		updated, err := s.repo.Activate(ctx, conn.ID, handle, o.RequestID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("connection authorized after challenge", "user_id", userID, "connection_id", conn.ID)
		return &AuthResult{Connection: updated, Session: o}, nil
	}

	return nil, fmt.Errorf("unexpected authorize outcome %T", outcome)
}

// Reauthorize refreshes the provider session of an active connection from
// its stored login. A challenge moves the connection to mfa_required and is
// returned as the outcome, not as an error.
func (s *Service) Reauthorize(ctx context.Context, conn *Connection) (flinks.AuthOutcome, error) {
	if conn.Status != StatusActive {
		return nil, &InvalidStateError{Status: conn.Status}
	}

	loginID, err := s.codec.Decrypt(conn.CredentialHandle)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential handle: %w", err)
	}
	if loginID == "" || loginID == PendingHandle {
		return nil, ErrNoStoredLogin
	}

	outcome, err := s.provider.AuthorizeWithLogin(ctx, loginID)
	if err != nil {
		return nil, err
	}

	if ch, ok := outcome.(*flinks.Challenge); ok {
		updated, err := s.repo.RequireChallenge(ctx, conn.ID, ch.RequestID)
		if err != nil {
			return nil, err
		}
		*conn = *updated
		s.logger.Warn("institution requires re-authentication",
			"user_id", conn.UserID, "connection_id", conn.ID)
	}
	return outcome, nil
}

// AccountSummary re-authorizes and fetches live balances without touching
// the reconciled rows.
func (s *Service) AccountSummary(ctx context.Context, userID int64, id string) (*SummaryResult, error) {
	conn, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	outcome, err := s.Reauthorize(ctx, conn)
	if err != nil {
		return nil, err
	}

	switch o := outcome.(type) {
	case *flinks.Challenge:
		return &SummaryResult{Connection: conn, Challenge: o}, nil
	case *flinks.Session:
		if err := s.repo.UpdateRequestID(ctx, conn.ID, o.RequestID); err != nil {
			return nil, err
		}
		accounts, err := s.provider.GetAccountsSummary(ctx, o.RequestID)
		if err != nil {
			return nil, err
		}
		return &SummaryResult{Connection: conn, Accounts: accounts}, nil
	}

	return nil, fmt.Errorf("unexpected authorize outcome %T", outcome)
}

// Disconnect ends a connection and deactivates its accounts. A connection
// that is already disconnected is reported as ErrNotFound.
func (s *Service) Disconnect(ctx context.Context, userID int64, id string) (*Connection, error) {
	conn, deactivated, err := s.repo.Disconnect(ctx, userID, id, flinks.Source)
	if err != nil {
		return nil, err
	}

	s.logger.Info("connection disconnected",
		"user_id", userID, "connection_id", conn.ID, "accounts_deactivated", deactivated)
	return conn, nil
}

func (s *Service) RecordRequestID(ctx context.Context, id, requestID string) error {
	return s.repo.UpdateRequestID(ctx, id, requestID)
}

func (s *Service) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return s.repo.MarkSynced(ctx, id, at)
}

// MarkError records a sync failure. It never fails: a storage error here is
// logged so it does not replace the failure being recorded.
func (s *Service) MarkError(ctx context.Context, id string, cause error) {
	if cause == nil {
		return
	}
	if err := s.repo.MarkError(ctx, id, cause.Error()); err != nil {
		s.logger.Error("failed to record connection error",
			"connection_id", id, "cause", cause, "error", err)
	}
}

func (s *Service) Get(ctx context.Context, userID int64, id string) (*Connection, error) {
	return s.repo.GetByID(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID int64) ([]*Connection, error) {
	if userID <= 0 {
		return nil, errors.New("valid user ID is required")
	}
	return s.repo.ListByUserID(ctx, userID)
}

func (s *Service) ListActive(ctx context.Context) ([]*Connection, error) {
	return s.repo.ListActive(ctx)
}
