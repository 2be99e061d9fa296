package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"clawfinance/internal/domain/connection"
	"clawfinance/internal/domain/openfinance"
)

// Syncer runs one connection sync.
type Syncer interface {
	Sync(ctx context.Context, userID int64, id string) (*openfinance.SyncResult, error)
}

// ConnectionLister lists the connections eligible for background sync.
type ConnectionLister interface {
	ListActive(ctx context.Context) ([]*connection.Connection, error)
}

// ConnectionSyncJob syncs a single active connection.
type ConnectionSyncJob struct {
	userID       int64
	connectionID string
	institution  string
	syncer       Syncer
	logger       *slog.Logger
}

// NewConnectionSyncJob creates a sync job for conn.
func NewConnectionSyncJob(conn *connection.Connection, syncer Syncer, logger *slog.Logger) *ConnectionSyncJob {
	return &ConnectionSyncJob{
		userID:       conn.UserID,
		connectionID: conn.ID,
		institution:  conn.Institution,
		syncer:       syncer,
		logger:       logger,
	}
}

// Execute runs the sync. Pending and MFA outcomes are not failures; the
// connection is retried on the next scheduled run or waits for the user.
func (j *ConnectionSyncJob) Execute(ctx context.Context) error {
	result, err := j.syncer.Sync(ctx, j.userID, j.connectionID)
	if err != nil {
		return fmt.Errorf("sync connection %s: %w", j.connectionID, err)
	}

	switch result.Outcome {
	case openfinance.OutcomeSynced:
		j.logger.Info("connection synced",
			"connection_id", j.connectionID,
			"accounts", result.Accounts,
			"transactions", result.Transactions,
		)
	default:
		j.logger.Info("connection sync incomplete",
			"connection_id", j.connectionID,
			"outcome", result.Outcome,
		)
	}
	return nil
}

// UserID returns the user ID associated with this job.
func (j *ConnectionSyncJob) UserID() string {
	return strconv.FormatInt(j.userID, 10)
}

// Description returns a human-readable description of the job.
func (j *ConnectionSyncJob) Description() string {
	return fmt.Sprintf("sync %s connection %s", j.institution, j.connectionID)
}

// ActiveConnectionJobs returns a JobProvider that emits one sync job per
// active connection.
func ActiveConnectionJobs(connections ConnectionLister, syncer Syncer, logger *slog.Logger) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		conns, err := connections.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list active connections: %w", err)
		}

		jobs := make([]Job, 0, len(conns))
		for _, conn := range conns {
			jobs = append(jobs, NewConnectionSyncJob(conn, syncer, logger))
		}
		return jobs, nil
	}
}
