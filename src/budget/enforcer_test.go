package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testBudgetConfig() *config.BudgetConfig {
	return &config.BudgetConfig{
		RateWindow:           60 * time.Second,
		MaxRequestsPerWindow: 10,
		DailyTokenLimit:      100_000,
		DailyCostLimitUSD:    5.00,
		HistoryTokenBudget:   8000,
		ResetTimezone:        "UTC",
	}
}

func setupEnforcer(t *testing.T, store models.LedgerStore) (*Enforcer, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC)}
	e := NewEnforcer(testBudgetConfig(), store)
	e.SetClock(clock.Now)
	return e, clock
}

func denialKind(t *testing.T, err error) DenialKind {
	t.Helper()
	var denied *AdmissionDenied
	require.True(t, errors.As(err, &denied), "expected AdmissionDenied, got %v", err)
	return denied.Kind
}

func TestEnforcer_EleventhRequestIsRateLimited(t *testing.T) {
	e, clock := setupEnforcer(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Admit(ctx, "user-1"), "request %d", i+1)
		clock.Advance(time.Second)
	}

	err := e.Admit(ctx, "user-1")
	assert.Equal(t, RateLimited, denialKind(t, err))
	assert.Equal(t, "Rate limit exceeded. Please wait a moment before sending another message.", err.Error())
}

func TestEnforcer_WindowSlides(t *testing.T) {
	e, clock := setupEnforcer(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Admit(ctx, "user-1"))
	}
	require.Error(t, e.Admit(ctx, "user-1"))

	clock.Advance(59 * time.Second)
	require.Error(t, e.Admit(ctx, "user-1"))

	clock.Advance(time.Second)
	assert.NoError(t, e.Admit(ctx, "user-1"))
}

func TestEnforcer_DeniedRequestsDoNotFillWindow(t *testing.T) {
	e, clock := setupEnforcer(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Admit(ctx, "user-1"))
	}
	for i := 0; i < 5; i++ {
		require.Error(t, e.Admit(ctx, "user-1"))
	}

	assert.Equal(t, 10, e.Usage(ctx, "user-1").RequestsInWindow)

	clock.Advance(61 * time.Second)
	assert.Equal(t, 0, e.Usage(ctx, "user-1").RequestsInWindow)
}

func TestEnforcer_UsersAreIndependent(t *testing.T) {
	e, _ := setupEnforcer(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Admit(ctx, "user-1"))
	}

	assert.Error(t, e.Admit(ctx, "user-1"))
	assert.NoError(t, e.Admit(ctx, "user-2"))
}

func TestEnforcer_DailyTokenLimitBeatsRateWindow(t *testing.T) {
	e, clock := setupEnforcer(t, nil)
	ctx := context.Background()

	require.NoError(t, e.Admit(ctx, "user-1"))
	require.NoError(t, e.Record(ctx, "user-1", models.TokenUsage{Input: 90_000, Output: 10_000}, 0.5))

	clock.Advance(time.Hour)

	err := e.Admit(ctx, "user-1")
	assert.Equal(t, DailyTokensExceeded, denialKind(t, err))
	assert.Equal(t, "Daily token limit reached. Your budget resets at midnight.", err.Error())
}

func TestEnforcer_DailyCostLimitAtExactlyFiveDollars(t *testing.T) {
	e, _ := setupEnforcer(t, nil)
	ctx := context.Background()

	require.NoError(t, e.Admit(ctx, "user-1"))
	require.NoError(t, e.Record(ctx, "user-1", models.TokenUsage{Input: 100, Output: 100}, 2.50))
	require.NoError(t, e.Admit(ctx, "user-1"))
	require.NoError(t, e.Record(ctx, "user-1", models.TokenUsage{Input: 100, Output: 100}, 2.50))

	err := e.Admit(ctx, "user-1")
	assert.Equal(t, DailyCostExceeded, denialKind(t, err))
	assert.Equal(t, "Daily cost limit reached. Your budget resets at midnight.", err.Error())
}

func TestEnforcer_CostAccumulatesWithoutDrift(t *testing.T) {
	e, _ := setupEnforcer(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, e.Record(ctx, "user-1", models.TokenUsage{}, 0.1))
	}

	assert.Equal(t, 1.0, e.Usage(ctx, "user-1").CostUsedToday)
}

func TestEnforcer_ResetsAtMidnight(t *testing.T) {
	e, clock := setupEnforcer(t, nil)
	ctx := context.Background()

	require.NoError(t, e.Record(ctx, "user-1", models.TokenUsage{Input: 100_000}, 5.00))
	require.Error(t, e.Admit(ctx, "user-1"))

	usage := e.Usage(ctx, "user-1")
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), usage.DayResetAt)

	clock.Advance(8*time.Hour + 30*time.Minute)

	assert.NoError(t, e.Admit(ctx, "user-1"))
	usage = e.Usage(ctx, "user-1")
	assert.Zero(t, usage.TokensUsedToday)
	assert.Zero(t, usage.CostUsedToday)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), usage.DayResetAt)
}

func TestEnforcer_RecordAfterResetStartsFromZero(t *testing.T) {
	e, clock := setupEnforcer(t, nil)
	ctx := context.Background()

	require.NoError(t, e.Record(ctx, "user-1", models.TokenUsage{Input: 50_000}, 1.0))
	clock.Advance(12 * time.Hour)
	require.NoError(t, e.Record(ctx, "user-1", models.TokenUsage{Input: 10, Output: 5}, 0.01))

	usage := e.Usage(ctx, "user-1")
	assert.Equal(t, int64(15), usage.TokensUsedToday)
	assert.Equal(t, 0.01, usage.CostUsedToday)
}

func TestEnforcer_ResetUsesConfiguredTimezone(t *testing.T) {
	cfg := testBudgetConfig()
	cfg.ResetTimezone = "America/New_York"
	e := NewEnforcer(cfg, nil)
	e.SetClock(func() time.Time { return time.Date(2026, 3, 1, 15, 30, 0, 0, time.UTC) })

	usage := e.Usage(context.Background(), "user-1")

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 2, 0, 0, 0, 0, ny).Equal(usage.DayResetAt))
}

func TestEnforcer_ConcurrentAdmitsNeverExceedWindow(t *testing.T) {
	e, _ := setupEnforcer(t, nil)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e.Admit(ctx, "user-1") == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, admitted)
}

func TestEnforcer_ConcurrentRecordsAreNotLost(t *testing.T) {
	e, _ := setupEnforcer(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.Record(ctx, "user-1", models.TokenUsage{Input: 7, Output: 3}, 0.001))
		}()
	}
	wg.Wait()

	usage := e.Usage(ctx, "user-1")
	assert.Equal(t, int64(1000), usage.TokensUsedToday)
	assert.Equal(t, 0.1, usage.CostUsedToday)
}

func TestEnforcer_PersistsLedgerToRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisLedgerStore(client)
	ctx := context.Background()

	first, _ := setupEnforcer(t, store)
	require.NoError(t, first.Record(ctx, "user-1", models.TokenUsage{Input: 99_000, Output: 1_000}, 1.25))

	restarted, _ := setupEnforcer(t, store)
	err = restarted.Admit(ctx, "user-1")
	assert.Equal(t, DailyTokensExceeded, denialKind(t, err))

	usage := restarted.Usage(ctx, "user-1")
	assert.Equal(t, 1.25, usage.CostUsedToday)
}

func TestEnforcer_StaleLedgerFromYesterdayIsReset(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisLedgerStore(client)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "user-1", &models.LedgerSnapshot{
		TokensUsedToday: 100_000,
		CostMicrosToday: 5_000_000,
		DayResetAt:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}))

	e, _ := setupEnforcer(t, store)
	assert.NoError(t, e.Admit(ctx, "user-1"))
}

// flakyLedgerStore fails the first failLoads Load calls.
type flakyLedgerStore struct {
	mu        sync.Mutex
	failLoads int
	snapshot  *models.LedgerSnapshot
	saves     int
}

func (s *flakyLedgerStore) Load(_ context.Context, _ string) (*models.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoads > 0 {
		s.failLoads--
		return nil, errors.New("i/o timeout")
	}
	if s.snapshot == nil {
		return nil, nil
	}
	copied := *s.snapshot
	return &copied, nil
}

func (s *flakyLedgerStore) Save(_ context.Context, _ string, snapshot *models.LedgerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *snapshot
	s.snapshot = &copied
	s.saves++
	return nil
}

func TestEnforcer_FailedLedgerLoadKeepsUserAtCeiling(t *testing.T) {
	ctx := context.Background()
	store := &flakyLedgerStore{
		failLoads: 1,
		snapshot: &models.LedgerSnapshot{
			TokensUsedToday: 100_000,
			CostMicrosToday: 5_000_000,
			DayResetAt:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
	}
	e, _ := setupEnforcer(t, store)

	err := e.Admit(ctx, "user-1")
	assert.ErrorIs(t, err, ErrLedgerUnavailable)

	// The load is retried and the persisted totals still apply.
	err = e.Admit(ctx, "user-1")
	assert.Equal(t, DailyTokensExceeded, denialKind(t, err))

	usage := e.Usage(ctx, "user-1")
	assert.Equal(t, int64(100_000), usage.TokensUsedToday)
	assert.Equal(t, 5.00, usage.CostUsedToday)
}

func TestEnforcer_RecordDuringLedgerOutageDoesNotOverwriteTotals(t *testing.T) {
	ctx := context.Background()
	store := &flakyLedgerStore{
		failLoads: 1,
		snapshot: &models.LedgerSnapshot{
			TokensUsedToday: 50_000,
			CostMicrosToday: 2_000_000,
			DayResetAt:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
	}
	e, _ := setupEnforcer(t, store)

	err := e.Record(ctx, "user-1", models.TokenUsage{Input: 8, Output: 2}, 0.01)
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Zero(t, store.saves)

	require.NoError(t, e.Record(ctx, "user-1", models.TokenUsage{Input: 90, Output: 10}, 0.10))

	require.NotNil(t, store.snapshot)
	assert.Equal(t, int64(50_110), store.snapshot.TokensUsedToday)
	assert.Equal(t, int64(2_110_000), store.snapshot.CostMicrosToday)
	assert.Equal(t, 1, store.saves)
}

func TestEnforcer_PendingUsageFromPreviousDayIsDropped(t *testing.T) {
	ctx := context.Background()
	store := &flakyLedgerStore{failLoads: 1}
	e, clock := setupEnforcer(t, store)

	assert.Error(t, e.Record(ctx, "user-1", models.TokenUsage{Input: 500}, 0.5))

	clock.Advance(9 * time.Hour)
	require.NoError(t, e.Record(ctx, "user-1", models.TokenUsage{Input: 10}, 0.01))

	assert.Equal(t, int64(10), store.snapshot.TokensUsedToday)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), store.snapshot.DayResetAt)
}
