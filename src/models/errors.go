package models

import "errors"

var (
	// ErrProviderQuota marks a backend rejection for quota or rate limits.
	ErrProviderQuota = errors.New("provider quota exceeded")
	// ErrProviderTimeout marks a backend call that ran out of time.
	ErrProviderTimeout = errors.New("provider timed out")
)

// PartialCompletionError is returned by providers that billed some tokens
// before failing, so the caller can still charge the user for them.
type PartialCompletionError struct {
	Completion *Completion
	Err        error
}

func (e *PartialCompletionError) Error() string {
	return "partial completion: " + e.Err.Error()
}

func (e *PartialCompletionError) Unwrap() error {
	return e.Err
}
