// Package scheduler runs background sync jobs at fixed times of day on a
// bounded worker pool.
package scheduler

import "context"

// Job represents a unit of work that can be executed by the worker pool.
type Job interface {
	// Execute runs the job. It must return promptly once ctx is done.
	Execute(ctx context.Context) error

	// UserID returns the user whose data the job touches, for logs.
	UserID() string

	// Description returns a human-readable description of the job.
	Description() string
}
