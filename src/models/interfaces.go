package models

import (
	"context"
)

// Provider is the single opaque interface every AI backend is adapted to.
// Each adapter translates cacheableLength into its own prefix-caching mechanism.
type Provider interface {
	Complete(ctx context.Context, prompt string, cacheableLength int) (*Completion, error)
}

// RemoteIntentClassifier labels messages the local heuristics could not.
type RemoteIntentClassifier interface {
	ClassifyRemote(ctx context.Context, message string) (*Classification, error)
}

// ContextSource is a read-only collaborator (profile, finance, health) used to
// rebuild one cache tier.
type ContextSource interface {
	Fetch(ctx context.Context, userID string) (string, error)
}

// ContextSourceFunc adapts a plain function to ContextSource.
type ContextSourceFunc func(ctx context.Context, userID string) (string, error)

func (f ContextSourceFunc) Fetch(ctx context.Context, userID string) (string, error) {
	return f(ctx, userID)
}

// TierStore keeps the last built payload of each tier per user.
type TierStore interface {
	Get(ctx context.Context, userID string, tier CacheTier) (*TierSnapshot, error)
	Set(ctx context.Context, userID string, tier CacheTier, snapshot *TierSnapshot) error
	Delete(ctx context.Context, userID string, tier CacheTier) error
}

// LedgerStore persists daily usage counters across restarts.
type LedgerStore interface {
	Load(ctx context.Context, userID string) (*LedgerSnapshot, error)
	Save(ctx context.Context, userID string, snapshot *LedgerSnapshot) error
}

// RoutingLogSink is an append-only destination for routing telemetry.
type RoutingLogSink interface {
	Write(ctx context.Context, entry *RoutingLogEntry) error
}

// HistoryStore keeps the recent conversation turns of each user.
type HistoryStore interface {
	Recent(ctx context.Context, userID string) ([]ChatMessage, error)
	Append(ctx context.Context, userID string, messages ...ChatMessage) error
}
