package budget

import "errors"

// ErrLedgerUnavailable is returned by Admit when the user's persisted usage
// could not be loaded. Requests are refused until it can be.
var ErrLedgerUnavailable = errors.New("usage ledger unavailable")

// DenialKind is why an admission check rejected a request.
type DenialKind string

const (
	RateLimited         DenialKind = "rate_limited"
	DailyTokensExceeded DenialKind = "daily_tokens_exceeded"
	DailyCostExceeded   DenialKind = "daily_cost_exceeded"
)

var denialMessages = map[DenialKind]string{
	RateLimited:         "Rate limit exceeded. Please wait a moment before sending another message.",
	DailyTokensExceeded: "Daily token limit reached. Your budget resets at midnight.",
	DailyCostExceeded:   "Daily cost limit reached. Your budget resets at midnight.",
}

// AdmissionDenied is returned by Admit before any model is called.
type AdmissionDenied struct {
	Kind DenialKind
}

func (e *AdmissionDenied) Error() string {
	return e.Message()
}

// Message is the user-facing reason for the denial.
func (e *AdmissionDenied) Message() string {
	return denialMessages[e.Kind]
}
