package openfinance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"clawfinance/internal/domain/connection"
	"clawfinance/internal/domain/notification"
	"clawfinance/internal/infrastructure/flinks"
)

var (
	syncTracer      = otel.Tracer("clawfinance/sync")
	syncMeter       = otel.Meter("clawfinance/sync")
	syncOutcomes, _ = syncMeter.Int64Counter("sync.outcomes",
		metric.WithDescription("Connection syncs by outcome"),
	)
	syncPolls, _ = syncMeter.Int64Histogram("sync.polls",
		metric.WithDescription("Detail polls needed before the provider answered"),
	)
)

// errPending keeps the poll loop going.
var errPending = errors.New("account detail pending")

// Outcome is how a sync that did not fail ended.
type Outcome string

const (
	OutcomeSynced      Outcome = "synced"
	OutcomePending     Outcome = "pending"
	OutcomeMFARequired Outcome = "mfa_required"
)

// SyncResult describes a finished sync. Counts are zero unless Outcome is
// synced.
type SyncResult struct {
	Outcome      Outcome
	Connection   *connection.Connection
	RequestID    string
	Challenge    *flinks.Challenge
	Accounts     int
	Transactions int
	SyncedAt     *time.Time
}

// Locker serializes syncs of one connection.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type SyncConfig struct {
	PollInterval time.Duration
	MaxPolls     int
}

// SyncService pulls account detail for one connection and reconciles it.
type SyncService struct {
	connections *connection.Service
	provider    flinks.ClientInterface
	reconciler  *Reconciler
	notifier    *notification.Service
	locker      Locker
	cfg         SyncConfig
	clock       clock.Clock
	logger      *slog.Logger
}

// Option configures a SyncService.
type Option func(*SyncService)

// WithClock replaces the wall clock used between polls and for timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *SyncService) { s.clock = c }
}

func NewSyncService(
	connections *connection.Service,
	provider flinks.ClientInterface,
	reconciler *Reconciler,
	notifier *notification.Service,
	locker Locker,
	cfg SyncConfig,
	logger *slog.Logger,
	opts ...Option,
) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SyncService{
		connections: connections,
		provider:    provider,
		reconciler:  reconciler,
		notifier:    notifier,
		locker:      locker,
		cfg:         cfg,
		clock:       clock.WallClock,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync refreshes one active connection. A pending or mfa_required outcome is
// not an error and leaves the connection usable. Any failure marks the
// connection as error unless ctx was cancelled.
func (s *SyncService) Sync(ctx context.Context, userID int64, id string) (*SyncResult, error) {
	ctx, span := syncTracer.Start(ctx, "openfinance.Sync")
	defer span.End()

	result, err := s.sync(ctx, userID, id)

	outcome := "error"
	if err == nil {
		outcome = string(result.Outcome)
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("sync.outcome", outcome))
	syncOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	return result, err
}

func (s *SyncService) sync(ctx context.Context, userID int64, id string) (*SyncResult, error) {
	conn, err := s.activeConnection(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock connection: %w", err)
	}
	defer unlock()

	// Another sync may have changed the row while we waited.
	conn, err = s.activeConnection(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	log := s.logger.With("user_id", userID, "connection_id", conn.ID)

	outcome, err := s.connections.Reauthorize(ctx, conn)
	if err != nil {
		return nil, s.fail(ctx, conn, fmt.Errorf("re-authorization failed: %w", err))
	}

	var session *flinks.Session
	switch o := outcome.(type) {
	case *flinks.Challenge:
		s.notifier.ConnectionMFARequired(ctx, conn.UserID, conn.ID, conn.Institution)
		log.Info("sync needs interactive authentication", "request_id", o.RequestID)
		return &SyncResult{
			Outcome:    OutcomeMFARequired,
			Connection: conn,
			RequestID:  o.RequestID,
			Challenge:  o,
		}, nil
	case *flinks.Session:
		session = o
	default:
		return nil, s.fail(ctx, conn, fmt.Errorf("unexpected authorize outcome %T", outcome))
	}

	if err := s.connections.RecordRequestID(ctx, conn.ID, session.RequestID); err != nil {
		return nil, s.fail(ctx, conn, fmt.Errorf("failed to record request id: %w", err))
	}
	conn.LastRequestID = session.RequestID

	detail, polls, err := s.fetchDetail(ctx, session.RequestID)
	syncPolls.Record(ctx, int64(polls))
	if errors.Is(err, errPending) {
		log.Info("account detail still pending", "request_id", session.RequestID, "polls", polls)
		return &SyncResult{Outcome: OutcomePending, Connection: conn, RequestID: session.RequestID}, nil
	}
	if err != nil {
		return nil, s.fail(ctx, conn, fmt.Errorf("failed to fetch account detail: %w", err))
	}

	reconciled, err := s.reconciler.Reconcile(ctx, Target{
		UserID:       conn.UserID,
		ConnectionID: conn.ID,
		Institution:  conn.Institution,
	}, detail.Accounts)
	if err != nil {
		return nil, s.fail(ctx, conn, fmt.Errorf("reconciliation failed: %w", err))
	}

	now := s.clock.Now().UTC()
	if err := s.connections.MarkSynced(ctx, conn.ID, now); err != nil {
		return nil, s.fail(ctx, conn, fmt.Errorf("failed to mark connection synced: %w", err))
	}
	conn.Status = connection.StatusActive
	conn.LastSyncedAt = &now
	conn.ErrorMessage = nil

	log.Info("connection synced",
		"accounts", reconciled.Accounts, "transactions", reconciled.Transactions, "polls", polls)

	return &SyncResult{
		Outcome:      OutcomeSynced,
		Connection:   conn,
		RequestID:    session.RequestID,
		Accounts:     reconciled.Accounts,
		Transactions: reconciled.Transactions,
		SyncedAt:     &now,
	}, nil
}

func (s *SyncService) activeConnection(ctx context.Context, userID int64, id string) (*connection.Connection, error) {
	conn, err := s.connections.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if conn.Status != connection.StatusActive {
		return nil, &connection.InvalidStateError{Status: conn.Status}
	}
	return conn, nil
}

// fetchDetail asks for account detail once, then polls every PollInterval
// up to MaxPolls times while the provider reports pending. It returns
// errPending when the ceiling is reached and the number of polls made.
func (s *SyncService) fetchDetail(ctx context.Context, requestID string) (*flinks.AccountsDetail, int, error) {
	var (
		detail   *flinks.AccountsDetail
		fatalErr error
		attempt  int
	)

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			var err error
			if attempt == 0 {
				detail, err = s.provider.GetAccountsDetail(ctx, requestID)
			} else {
				detail, err = s.provider.PollAccountsDetail(ctx, requestID)
			}
			attempt++
			if err != nil {
				fatalErr = err
				return err
			}
			if detail.Status == flinks.DetailPending {
				return errPending
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errPending)
		},
		Attempts: 1 + s.cfg.MaxPolls,
		Delay:    s.cfg.PollInterval,
		Clock:    s.clock,
		Stop:     ctx.Done(),
	})

	polls := max(attempt-1, 0)
	switch {
	case fatalErr != nil:
		return nil, polls, fatalErr
	case retry.IsAttemptsExceeded(err):
		return nil, polls, errPending
	case retry.IsRetryStopped(err):
		return nil, polls, ctx.Err()
	case err != nil:
		return nil, polls, err
	}
	return detail, polls, nil
}

// fail records err on the connection and tells the user. A cancelled ctx
// is returned as is and leaves the connection untouched.
func (s *SyncService) fail(ctx context.Context, conn *connection.Connection, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	s.connections.MarkError(ctx, conn.ID, err)
	s.notifier.ConnectionSyncFailed(ctx, conn.UserID, conn.ID, conn.Institution)
	s.logger.Error("connection sync failed",
		"user_id", conn.UserID, "connection_id", conn.ID, "error", err)
	return err
}

// SyncAllResult summarizes a sweep over every active connection.
type SyncAllResult struct {
	Total   int
	Synced  int
	Pending int
	MFA     int
	Failed  int
}

// SyncAll syncs every active connection one after another. Failures are
// counted and logged; only a failure to list connections or a cancelled ctx
// is returned.
func (s *SyncService) SyncAll(ctx context.Context) (*SyncAllResult, error) {
	conns, err := s.connections.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active connections: %w", err)
	}

	summary := &SyncAllResult{Total: len(conns)}
	for _, c := range conns {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := s.Sync(ctx, c.UserID, c.ID)
		if err != nil {
			summary.Failed++
			continue
		}
		switch res.Outcome {
		case OutcomeSynced:
			summary.Synced++
		case OutcomePending:
			summary.Pending++
		case OutcomeMFARequired:
			summary.MFA++
		}
	}

	s.logger.Info("sync sweep finished",
		"total", summary.Total, "synced", summary.Synced, "pending", summary.Pending,
		"mfa_required", summary.MFA, "failed", summary.Failed)
	return summary, nil
}
