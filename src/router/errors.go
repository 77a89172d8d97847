package router

import (
	"context"
	"errors"
	"fmt"

	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

type DispatchErrorKind string

const (
	DispatchTimeout       DispatchErrorKind = "timeout"
	DispatchProviderError DispatchErrorKind = "provider_error"
	DispatchQuotaExceeded DispatchErrorKind = "quota_exceeded"
)

// DispatchError is returned when the selected backend fails. Usage and Cost
// hold whatever the provider billed before failing (often zero).
type DispatchError struct {
	Kind      DispatchErrorKind
	ModelID   string
	Usage     models.TokenUsage
	Cost      float64
	LatencyMs int64
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s failed (%s): %v", e.ModelID, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func classifyDispatchError(err error) DispatchErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, models.ErrProviderTimeout):
		return DispatchTimeout
	case errors.Is(err, models.ErrProviderQuota):
		return DispatchQuotaExceeded
	default:
		return DispatchProviderError
	}
}
