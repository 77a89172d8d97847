package budget

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

const ledgerKeyPrefix = "usage_ledger:"

// RedisLedgerStore persists daily counters in one hash per user so a restart
// does not hand everyone a fresh budget.
type RedisLedgerStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLedgerStore(client *redis.Client) *RedisLedgerStore {
	return &RedisLedgerStore{
		client: client,
		ttl:    48 * time.Hour,
	}
}

func (s *RedisLedgerStore) Load(ctx context.Context, userID string) (*models.LedgerSnapshot, error) {
	fields, err := s.client.HGetAll(ctx, ledgerKeyPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	tokens, err := strconv.ParseInt(fields["tokens"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger tokens: %w", err)
	}
	costMicros, err := strconv.ParseInt(fields["cost_micros"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger cost: %w", err)
	}
	resetUnix, err := strconv.ParseInt(fields["day_reset_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger reset time: %w", err)
	}

	return &models.LedgerSnapshot{
		TokensUsedToday: tokens,
		CostMicrosToday: costMicros,
		DayResetAt:      time.Unix(resetUnix, 0).UTC(),
	}, nil
}

func (s *RedisLedgerStore) Save(ctx context.Context, userID string, snapshot *models.LedgerSnapshot) error {
	key := ledgerKeyPrefix + userID

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"tokens", snapshot.TokensUsedToday,
		"cost_micros", snapshot.CostMicrosToday,
		"day_reset_at", snapshot.DayResetAt.Unix(),
	)
	pipe.Expire(ctx, key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}
