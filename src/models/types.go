package models

import (
	"strings"
	"time"
)

// Intent is the coarse category of a chat message used to pick a backend model.
type Intent string

const (
	IntentRoast      Intent = "roast"
	IntentAdvice     Intent = "advice"
	IntentCategorize Intent = "categorize"
	IntentSensitive  Intent = "sensitive"
)

// AllIntents lists intents in heuristic precedence order.
var AllIntents = []Intent{IntentRoast, IntentAdvice, IntentCategorize, IntentSensitive}

// ParseIntent maps a label (any case) to a known intent.
func ParseIntent(label string) (Intent, bool) {
	normalized := Intent(strings.ToLower(strings.TrimSpace(label)))
	for _, intent := range AllIntents {
		if intent == normalized {
			return intent, true
		}
	}
	return "", false
}

type ClassifierSource string

const (
	SourceHeuristic ClassifierSource = "heuristic"
	SourceRemote    ClassifierSource = "remote"
)

type Classification struct {
	Intent     Intent
	Confidence float64
	Source     ClassifierSource
	Rationale  string // logged only, never used for routing
}

type ChatRequest struct {
	Message        string `json:"message" binding:"required"`
	IncludeContext bool   `json:"includeContext"`
}

type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Cached int `json:"cached"`
}

// Total is the amount charged against the daily token ceiling.
func (u TokenUsage) Total() int {
	return u.Input + u.Output
}

type ChatResponse struct {
	Message    string     `json:"message"`
	Model      string     `json:"model"`
	Intent     string     `json:"intent"`
	TokensUsed TokenUsage `json:"tokensUsed"`
	Cost       float64    `json:"cost"`
	LatencyMs  int64      `json:"latencyMs"`
}

// CacheTier names one of the three independently refreshed context segments.
type CacheTier string

const (
	TierStatic  CacheTier = "static"
	TierSlow    CacheTier = "slow"
	TierDynamic CacheTier = "dynamic"
)

// TierSnapshot is the last successfully built payload of a tier.
type TierSnapshot struct {
	Payload string    `json:"payload"`
	BuiltAt time.Time `json:"built_at"`
}

// AssembledContext is built fresh per request and never mutated afterwards.
type AssembledContext struct {
	Text string
	// CacheableLength is the number of leading bytes of Text that stay identical
	// between calls and may be cached by the provider.
	CacheableLength int
	Degraded        bool
	DegradedTiers   []CacheTier
}

type ModelRoute struct {
	Intent               Intent
	ModelID              string
	Provider             string
	InputCostPerMillion  float64
	OutputCostPerMillion float64
}

// Completion is what an AI provider reports for a single call.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
	CachedTokens int
	// CacheDiscountRatio is the fraction of the input price charged for cached
	// tokens (0.5 means half price). Zero means the provider reported none.
	CacheDiscountRatio float64
}

type RouteResult struct {
	Text      string
	Usage     TokenUsage
	ModelID   string
	Cost      float64
	LatencyMs int64
}

type RoutingLogEntry struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Intent           Intent           `json:"intent"`
	ModelID          string           `json:"model_id"`
	InputTokens      int              `json:"input_tokens"`
	OutputTokens     int              `json:"output_tokens"`
	CachedTokens     int              `json:"cached_tokens"`
	CostUSD          float64          `json:"cost_usd"`
	LatencyMs        int64            `json:"latency_ms"`
	Timestamp        time.Time        `json:"timestamp"`
	Degraded         bool             `json:"degraded"`
	ClassifierSource ClassifierSource `json:"classifier_source"`
	Confidence       float64          `json:"confidence"`
	Success          bool             `json:"success"`
	ErrorKind        string           `json:"error_kind,omitempty"`
}

// ChatMessage is one turn of a user's conversation history.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// LedgerSnapshot is the persisted part of a user's usage ledger.
type LedgerSnapshot struct {
	TokensUsedToday int64     `json:"tokens_used_today"`
	CostMicrosToday int64     `json:"cost_micros_today"`
	DayResetAt      time.Time `json:"day_reset_at"`
}

type UsageSnapshot struct {
	UserID           string    `json:"userId"`
	RequestsInWindow int       `json:"requestsInWindow"`
	TokensUsedToday  int64     `json:"tokensUsedToday"`
	CostUsedToday    float64   `json:"costUsedToday"`
	DayResetAt       time.Time `json:"dayResetAt"`
}
