package queue

import "errors"

var (
	// ErrSettingsNotFound is returned by CreateJob when the user has no
	// crawler settings row. Jobs cannot be created without a settings
	// snapshot.
	ErrSettingsNotFound = errors.New("crawler settings not found for user")

	// ErrRetryExhausted marks a job's terminal failure after its
	// retry budget is spent.
	ErrRetryExhausted = errors.New("job retry limit exhausted")
)
