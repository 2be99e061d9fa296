package connection

import (
	"context"
	"time"
)

// Repository defines the interface for connection data access.
// Every method that takes an id and finds no row returns ErrNotFound.
type Repository interface {
	// Upsert inserts a connection or overwrites the caller's existing row
	// for the same institution. Identity is kept and error_message cleared.
	Upsert(ctx context.Context, params UpsertParams) (*Connection, error)

	GetByID(ctx context.Context, userID int64, id string) (*Connection, error)

	// GetByRequestID finds the caller's connection whose last request id matches.
	GetByRequestID(ctx context.Context, userID int64, requestID string) (*Connection, error)

	ListByUserID(ctx context.Context, userID int64) ([]*Connection, error)

	// ListActive returns active connections across all users.
	ListActive(ctx context.Context) ([]*Connection, error)

	// Activate stores the real handle and request id and sets status active.
	Activate(ctx context.Context, id, credentialHandle, requestID string) (*Connection, error)

	// RequireChallenge sets status mfa_required with the challenge's request id.
	RequireChallenge(ctx context.Context, id, requestID string) (*Connection, error)

	UpdateRequestID(ctx context.Context, id, requestID string) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
	MarkError(ctx context.Context, id, message string) error

	// Disconnect flips a not-yet-disconnected connection to disconnected and
	// deactivates the owner's accounts from apiSource at that institution,
	// in one transaction. It reports how many accounts were deactivated.
	Disconnect(ctx context.Context, userID int64, id, apiSource string) (*Connection, int64, error)
}
