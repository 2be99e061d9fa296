package connection

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a connection.
type Status string

const (
	StatusMFARequired  Status = "mfa_required"
	StatusActive       Status = "active"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// PendingHandle is encrypted and stored in place of the provider login id
// while a challenge is outstanding.
const PendingHandle = "pending"

const maxInstitutionLength = 200

var (
	ErrNotFound      = errors.New("connection not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNoStoredLogin = errors.New("connection has no stored provider login")
)

// InvalidStateError is returned when an operation needs a different status.
type InvalidStateError struct {
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("Connection status is '%s'; re-authorize first", e.Status)
}

// Connection links one user to one institution at the provider.
// CredentialHandle is ciphertext and never leaves the service.
type Connection struct {
	ID               string     `json:"id"`
	UserID           int64      `json:"-"`
	Institution      string     `json:"institution"`
	CredentialHandle string     `json:"-"`
	LastRequestID    string     `json:"-"`
	Status           Status     `json:"status"`
	LastSyncedAt     *time.Time `json:"lastSyncedAt"`
	ErrorMessage     *string    `json:"errorMessage"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// StartParams carries the credentials for a first authorization. Username
// and Password are forwarded to the provider and never stored.
type StartParams struct {
	UserID      int64
	Institution string
	Username    string
	Password    string
}

// Validate validates the start parameters
func (p StartParams) Validate() error {
	if p.UserID <= 0 {
		return fmt.Errorf("%w: valid user ID is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Institution) == "" {
		return fmt.Errorf("%w: institution is required", ErrInvalidInput)
	}
	if len(p.Institution) > maxInstitutionLength {
		return fmt.Errorf("%w: institution is too long", ErrInvalidInput)
	}
	if p.Username == "" || p.Password == "" {
		return fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	return nil
}

// UpsertParams writes the connection row for (UserID, Institution).
type UpsertParams struct {
	UserID           int64
	Institution      string
	CredentialHandle string
	RequestID        string
	Status           Status
	// KeepHandle leaves an existing row's credential_handle as stored.
	// CredentialHandle is then only written when the row is new.
	KeepHandle bool
}
