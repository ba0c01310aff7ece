package model

import "github.com/cockroachdb/errors"

// Error kinds of the temporary role engine. Concrete errors are marked with
// one of these, so callers test with errors.Is.
var (
	// ErrStorage means a durable read or write failed; the operation did not take effect.
	ErrStorage = errors.New("grant storage failure")
	// ErrEffectApplicationFailed means the role could not be added on the platform.
	ErrEffectApplicationFailed = errors.New("role application failed")
	// ErrEffectReversalFailed means the role could not be removed on the platform.
	ErrEffectReversalFailed = errors.New("role reversal failed")
	// ErrNotFound means no grant is tracked for the key.
	ErrNotFound = errors.New("grant not found")
	// ErrInvalidDuration means the duration class is not one of the fixed set.
	ErrInvalidDuration = errors.New("invalid duration class")
)
