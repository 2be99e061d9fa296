package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clawfinance/internal/domain/connection"

	"github.com/google/uuid"
)

const connectionColumns = `id, user_id, institution, credential_handle, last_request_id, status,
		last_synced_at, error_message, created_at, updated_at`

// ConnectionRepository implements the connection.Repository interface for PostgreSQL
type ConnectionRepository struct {
	db *DB
}

// NewConnectionRepository creates a new PostgreSQL connection repository
func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*connection.Connection, error) {
	var c connection.Connection
	var status string
	var lastSynced sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(
		&c.ID, &c.UserID, &c.Institution, &c.CredentialHandle, &c.LastRequestID, &status,
		&lastSynced, &errMsg, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = connection.Status(status)
	if lastSynced.Valid {
		t := lastSynced.Time
		c.LastSyncedAt = &t
	}
	if errMsg.Valid {
		c.ErrorMessage = &errMsg.String
	}
	return &c, nil
}

func connectionOrNotFound(c *connection.Connection, err error, op string) (*connection.Connection, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, connection.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s connection: %w", op, err)
	}
	return c, nil
}

// Upsert keeps the row id of an existing (user_id, institution) pair. With
// KeepHandle the stored credential_handle survives the conflict update.
func (r *ConnectionRepository) Upsert(ctx context.Context, params connection.UpsertParams) (*connection.Connection, error) {
	handleSet := "credential_handle = EXCLUDED.credential_handle,"
	if params.KeepHandle {
		handleSet = ""
	}

	query := `
		INSERT INTO connections (id, user_id, institution, credential_handle, last_request_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, institution) DO UPDATE SET
			` + handleSet + `
			last_request_id = EXCLUDED.last_request_id,
			status = EXCLUDED.status,
			error_message = NULL,
			updated_at = NOW()
		RETURNING ` + connectionColumns

	c, err := scanConnection(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.UserID, params.Institution, params.CredentialHandle,
		params.RequestID, string(params.Status),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert connection: %w", err)
	}
	return c, nil
}

func (r *ConnectionRepository) GetByID(ctx context.Context, userID int64, id string) (*connection.Connection, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, connection.ErrNotFound
	}

	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1 AND user_id = $2`
	c, err := scanConnection(r.db.QueryRowContext(ctx, query, id, userID))
	return connectionOrNotFound(c, err, "get")
}

func (r *ConnectionRepository) GetByRequestID(ctx context.Context, userID int64, requestID string) (*connection.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE user_id = $1 AND last_request_id = $2
		ORDER BY updated_at DESC
		LIMIT 1`
	c, err := scanConnection(r.db.QueryRowContext(ctx, query, userID, requestID))
	return connectionOrNotFound(c, err, "get")
}

func (r *ConnectionRepository) ListByUserID(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE user_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, userID)
}

func (r *ConnectionRepository) ListActive(ctx context.Context) ([]*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE status = $1 ORDER BY created_at`
	return r.list(ctx, query, string(connection.StatusActive))
}

func (r *ConnectionRepository) list(ctx context.Context, query string, args ...any) ([]*connection.Connection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*connection.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}
	return conns, nil
}

func (r *ConnectionRepository) Activate(ctx context.Context, id, credentialHandle, requestID string) (*connection.Connection, error) {
	query := `
		UPDATE connections
		SET credential_handle = $2, last_request_id = $3, status = $4,
			error_message = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + connectionColumns
	c, err := scanConnection(r.db.QueryRowContext(ctx, query,
		id, credentialHandle, requestID, string(connection.StatusActive)))
	return connectionOrNotFound(c, err, "activate")
}

func (r *ConnectionRepository) RequireChallenge(ctx context.Context, id, requestID string) (*connection.Connection, error) {
	query := `
		UPDATE connections
		SET last_request_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + connectionColumns
	c, err := scanConnection(r.db.QueryRowContext(ctx, query,
		id, requestID, string(connection.StatusMFARequired)))
	return connectionOrNotFound(c, err, "update")
}

func (r *ConnectionRepository) UpdateRequestID(ctx context.Context, id, requestID string) error {
	return r.exec(ctx, `UPDATE connections SET last_request_id = $2, updated_at = NOW() WHERE id = $1`,
		id, requestID)
}

func (r *ConnectionRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, `
		UPDATE connections
		SET last_synced_at = $2, status = $3, error_message = NULL, updated_at = NOW()
		WHERE id = $1`, id, at, string(connection.StatusActive))
}

// MarkError leaves disconnected rows alone.
func (r *ConnectionRepository) MarkError(ctx context.Context, id, message string) error {
	return r.exec(ctx, `
		UPDATE connections
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1 AND status <> $4`,
		id, string(connection.StatusError), message, string(connection.StatusDisconnected))
}

func (r *ConnectionRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update connection: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return connection.ErrNotFound
	}
	return nil
}

// Disconnect flips the status and deactivates the institution's accounts in
// one transaction.
func (r *ConnectionRepository) Disconnect(ctx context.Context, userID int64, id, apiSource string) (*connection.Connection, int64, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, 0, connection.ErrNotFound
	}

	var conn *connection.Connection
	var deactivated int64

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE connections
			SET status = $3, updated_at = NOW()
			WHERE id = $1 AND user_id = $2 AND status <> $3
			RETURNING ` + connectionColumns

		c, err := scanConnection(tx.QueryRowContext(ctx, query,
			id, userID, string(connection.StatusDisconnected)))
		if errors.Is(err, sql.ErrNoRows) {
			return connection.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to disconnect connection: %w", err)
		}
		conn = c

		result, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET is_active = FALSE, updated_at = NOW()
			WHERE user_id = $1 AND api_source = $2 AND institution_name = $3 AND is_active`,
			userID, apiSource, c.Institution)
		if err != nil {
			return fmt.Errorf("failed to deactivate accounts: %w", err)
		}
		deactivated, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return conn, deactivated, nil
}
