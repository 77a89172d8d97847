package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

const historyKeyPrefix = "chat_history:"

// SessionStore keeps each user's recent conversation turns in a Redis list,
// oldest first.
type SessionStore struct {
	client *redis.Client
	window int
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, cfg *config.ChatConfig) *SessionStore {
	return &SessionStore{
		client: client,
		window: cfg.HistoryWindow,
		ttl:    cfg.HistoryTTL,
	}
}

// Recent returns up to the configured window of turns.
func (s *SessionStore) Recent(ctx context.Context, userID string) ([]models.ChatMessage, error) {
	values, err := s.client.LRange(ctx, historyKeyPrefix+userID, int64(-s.window), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	history := make([]models.ChatMessage, 0, len(values))
	for _, v := range values {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(v), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		history = append(history, msg)
	}

	return history, nil
}

// Append adds turns, trims the list to the window and refreshes its expiry.
func (s *SessionStore) Append(ctx context.Context, userID string, messages ...models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	key := historyKeyPrefix + userID
	values := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		if msg.ID == "" {
			msg.ID = "msg_" + uuid.New().String()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, data)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.window), -1)
	pipe.Expire(ctx, key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// Clear deletes a user's history
func (s *SessionStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, historyKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

// FormatHistory renders turns as a transcript for the prompt.
func FormatHistory(history []models.ChatMessage) string {
	if len(history) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, msg := range history {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	return b.String()
}
