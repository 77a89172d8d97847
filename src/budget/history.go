package budget

import (
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
	"www.github.com/Wanderer0074348/RoastRouter/src/utils"
)

// TruncateHistoryToFit drops the oldest turns until the estimated token count
// fits tokenBudget. The most recent turn is always kept, even when it alone
// is over budget.
func TruncateHistoryToFit(history []models.ChatMessage, tokenBudget int) []models.ChatMessage {
	if len(history) == 0 {
		return history
	}

	last := len(history) - 1
	total := utils.EstimateTokenCount(history[last].Content)
	start := last

	for i := last - 1; i >= 0; i-- {
		tokens := utils.EstimateTokenCount(history[i].Content)
		if total+tokens > tokenBudget {
			break
		}
		total += tokens
		start = i
	}

	return history[start:]
}

// HistoryTokens is the estimated token count of a history.
func HistoryTokens(history []models.ChatMessage) int {
	total := 0
	for _, msg := range history {
		total += utils.EstimateTokenCount(msg.Content)
	}
	return total
}
