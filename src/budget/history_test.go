package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

func turn(role string, tokens int) models.ChatMessage {
	return models.ChatMessage{Role: role, Content: strings.Repeat("abcd", tokens)}
}

func TestTruncateHistoryToFit(t *testing.T) {
	tests := []struct {
		name     string
		history  []models.ChatMessage
		budget   int
		wantLen  int
		wantLast int
	}{
		{
			name:    "empty",
			history: nil,
			budget:  100,
			wantLen: 0,
		},
		{
			name:    "fits",
			history: []models.ChatMessage{turn("user", 10), turn("assistant", 10)},
			budget:  100,
			wantLen: 2,
		},
		{
			name:    "drops oldest first",
			history: []models.ChatMessage{turn("user", 50), turn("assistant", 30), turn("user", 30)},
			budget:  70,
			wantLen: 2,
		},
		{
			name:    "last turn alone over budget",
			history: []models.ChatMessage{turn("user", 10), turn("assistant", 500)},
			budget:  100,
			wantLen: 1,
		},
		{
			name:    "stops at first turn that does not fit",
			history: []models.ChatMessage{turn("user", 1), turn("assistant", 90), turn("user", 20)},
			budget:  100,
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateHistoryToFit(tt.history, tt.budget)

			assert.Len(t, got, tt.wantLen)
			assert.LessOrEqual(t, HistoryTokens(got), HistoryTokens(tt.history))
			if len(tt.history) > 0 {
				assert.Equal(t, tt.history[len(tt.history)-1], got[len(got)-1])
			}
		})
	}
}

func TestTruncateHistoryToFit_DefaultBudget(t *testing.T) {
	history := make([]models.ChatMessage, 0, 100)
	for i := 0; i < 100; i++ {
		history = append(history, turn("user", 200))
	}

	got := TruncateHistoryToFit(history, 8000)

	assert.Len(t, got, 40)
	assert.LessOrEqual(t, HistoryTokens(got), 8000)
}
