package kms

import "github.com/cockroachdb/errors"

var (
	// ErrFatalInit marks a failure of one of the initialization stages. The driver
	// instance has been rolled back and must not be used.
	ErrFatalInit = errors.New("fatal initialization failure")
	// ErrOutOfMemory marks a request that would exceed the capacity or budget of a memory domain
	ErrOutOfMemory = errors.New("out of memory in domain")
	// ErrLimitExceeded marks a command submission that references more memory in a domain
	// than the configured emission ceiling allows
	ErrLimitExceeded = errors.New("command submission exceeds domain limit")
	// ErrNotMaster marks a refused request for display ownership
	ErrNotMaster = errors.New("display ownership unavailable")
	// ErrClosed is returned by devices and channels used after Close
	ErrClosed = errors.New("device handle is closed")
)

// IsResourceExhaustion reports whether err belongs to the resource-exhaustion class:
// the request exceeded a budget and the caller may degrade instead of failing.
func IsResourceExhaustion(err error) bool {
	return errors.Is(err, ErrOutOfMemory) || errors.Is(err, ErrLimitExceeded)
}
