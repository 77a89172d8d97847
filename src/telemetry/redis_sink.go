package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

// RedisStreamSink appends entries to a capped Redis stream for downstream
// analytics consumers.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = "routing_log"
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Write(ctx context.Context, entry *models.RoutingLogEntry) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"id":                entry.ID,
			"user_id":           entry.UserID,
			"intent":            string(entry.Intent),
			"model_id":          entry.ModelID,
			"input_tokens":      entry.InputTokens,
			"output_tokens":     entry.OutputTokens,
			"cached_tokens":     entry.CachedTokens,
			"cost_usd":          strconv.FormatFloat(entry.CostUSD, 'f', 6, 64),
			"latency_ms":        entry.LatencyMs,
			"timestamp":         entry.Timestamp.UTC().Format(time.RFC3339Nano),
			"degraded":          strconv.FormatBool(entry.Degraded),
			"classifier_source": string(entry.ClassifierSource),
			"confidence":        strconv.FormatFloat(entry.Confidence, 'f', 2, 64),
			"success":           strconv.FormatBool(entry.Success),
			"error_kind":        entry.ErrorKind,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
