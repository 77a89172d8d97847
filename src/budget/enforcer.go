package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/logger"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
	"www.github.com/Wanderer0074348/RoastRouter/src/utils"
)

// ledger is one user's usage. Every field is guarded by mu; the counters are
// never updated without it.
type ledger struct {
	mu         sync.Mutex
	loaded     bool
	requests   []time.Time
	tokens     int64
	costMicros int64
	dayResetAt time.Time
}

// Enforcer gates every chat request on a per-user sliding window and daily
// token and cost ceilings. Users are serialized independently of each other.
type Enforcer struct {
	window          time.Duration
	maxRequests     int
	tokenLimit      int64
	costLimitMicros int64
	historyBudget   int
	location        *time.Location

	store models.LedgerStore // optional

	mu      sync.RWMutex
	ledgers map[string]*ledger

	now func() time.Time
}

func NewEnforcer(cfg *config.BudgetConfig, store models.LedgerStore) *Enforcer {
	return &Enforcer{
		window:          cfg.RateWindow,
		maxRequests:     cfg.MaxRequestsPerWindow,
		tokenLimit:      cfg.DailyTokenLimit,
		costLimitMicros: utils.USDToMicros(cfg.DailyCostLimitUSD),
		historyBudget:   cfg.HistoryTokenBudget,
		location:        cfg.ResetLocation(),
		store:           store,
		ledgers:         make(map[string]*ledger),
		now:             time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (e *Enforcer) SetClock(now func() time.Time) {
	e.now = now
}

// ledgerFor returns the user's ledger, creating it on first use. The map lock
// is held only for the lookup.
func (e *Enforcer) ledgerFor(userID string) *ledger {
	e.mu.RLock()
	l, ok := e.ledgers[userID]
	e.mu.RUnlock()
	if ok {
		return l
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok = e.ledgers[userID]; !ok {
		l = &ledger{}
		e.ledgers[userID] = l
	}
	return l
}

// Admit checks the daily ceilings and the sliding window, and on success
// appends the request to the window before returning. Denials are returned
// as *AdmissionDenied.
func (e *Enforcer) Admit(ctx context.Context, userID string) error {
	l := e.ledgerFor(userID)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := e.now()
	if err := e.hydrate(ctx, userID, l, now); err != nil {
		logger.ForUser(userID).WithError(err).Warn("Usage ledger unavailable, denying request")
		return err
	}
	e.rollover(l, now)

	if l.tokens >= e.tokenLimit {
		return &AdmissionDenied{Kind: DailyTokensExceeded}
	}
	if l.costMicros >= e.costLimitMicros {
		return &AdmissionDenied{Kind: DailyCostExceeded}
	}

	e.prune(l, now)
	if len(l.requests) >= e.maxRequests {
		return &AdmissionDenied{Kind: RateLimited}
	}

	l.requests = append(l.requests, now)
	return nil
}

// Record adds a finished call's usage to the user's daily counters. It is
// called for failed dispatches too, with zero or partial usage.
func (e *Enforcer) Record(ctx context.Context, userID string, usage models.TokenUsage, cost float64) error {
	l := e.ledgerFor(userID)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := e.now()
	loadErr := e.hydrate(ctx, userID, l, now)
	e.rollover(l, now)

	l.tokens += int64(usage.Total())
	l.costMicros += utils.USDToMicros(cost)

	logger.ForUser(userID).WithFields(logrus.Fields{
		"tokens_today": l.tokens,
		"cost_today":   utils.MicrosToUSD(l.costMicros),
	}).Debug("Recorded usage")

	// Until the persisted ledger is loaded the in-memory counters hold only
	// this process's usage; saving them would overwrite the real totals.
	if loadErr != nil {
		return loadErr
	}
	if e.store == nil {
		return nil
	}
	return e.store.Save(ctx, userID, &models.LedgerSnapshot{
		TokensUsedToday: l.tokens,
		CostMicrosToday: l.costMicros,
		DayResetAt:      l.dayResetAt,
	})
}

// Usage returns a read-only view of the user's current budget state.
func (e *Enforcer) Usage(ctx context.Context, userID string) models.UsageSnapshot {
	l := e.ledgerFor(userID)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := e.now()
	if err := e.hydrate(ctx, userID, l, now); err != nil {
		logger.ForUser(userID).WithError(err).Warn("Usage ledger unavailable, reporting local counters")
	}
	e.rollover(l, now)
	e.prune(l, now)

	return models.UsageSnapshot{
		UserID:           userID,
		RequestsInWindow: len(l.requests),
		TokensUsedToday:  l.tokens,
		CostUsedToday:    utils.MicrosToUSD(l.costMicros),
		DayResetAt:       l.dayResetAt,
	}
}

// TruncateHistory applies the configured history token budget.
func (e *Enforcer) TruncateHistory(history []models.ChatMessage) []models.ChatMessage {
	return TruncateHistoryToFit(history, e.historyBudget)
}

// hydrate loads persisted counters the first time a user is seen. A failed
// load leaves the ledger unloaded so the next call retries; usage recorded
// meanwhile is added on top of the persisted totals once they load.
func (e *Enforcer) hydrate(ctx context.Context, userID string, l *ledger, now time.Time) error {
	if l.loaded {
		return nil
	}
	if l.dayResetAt.IsZero() {
		l.dayResetAt = nextMidnight(now, e.location)
	}

	if e.store == nil {
		l.loaded = true
		return nil
	}

	snapshot, err := e.store.Load(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	l.loaded = true

	// Pending counters from a previous day are dropped before merging.
	e.rollover(l, now)

	if snapshot == nil {
		return nil
	}
	if !snapshot.DayResetAt.IsZero() && !now.Before(snapshot.DayResetAt) {
		return nil
	}

	l.tokens += snapshot.TokensUsedToday
	l.costMicros += snapshot.CostMicrosToday
	if !snapshot.DayResetAt.IsZero() {
		l.dayResetAt = snapshot.DayResetAt
	}
	return nil
}

func (e *Enforcer) rollover(l *ledger, now time.Time) {
	if now.Before(l.dayResetAt) {
		return
	}
	l.tokens = 0
	l.costMicros = 0
	l.dayResetAt = nextMidnight(now, e.location)
}

// prune drops window entries at or before now - window.
func (e *Enforcer) prune(l *ledger, now time.Time) {
	cutoff := now.Add(-e.window)
	keep := 0
	for keep < len(l.requests) && !l.requests[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		l.requests = append(l.requests[:0], l.requests[keep:]...)
	}
}

func nextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
