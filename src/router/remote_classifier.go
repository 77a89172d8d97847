package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

const classifierPrompt = `You label messages sent to a personal-finance chat assistant.
Reply with a JSON object: {"intent": "...", "confidence": 0.0-1.0, "rationale": "one line"}.
Valid intents:
- roast: casual banter or a request to be teased about spending
- advice: questions about money decisions, affordability or budgeting
- categorize: requests to categorize or re-categorize transactions
- sensitive: complaints that something is broken or not working`

type remoteLabel struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// OpenAIClassifier is a cheap remote classifier backed by an
// OpenAI-compatible chat completion endpoint in JSON mode.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

func NewOpenAIClassifier(cfg *config.ClassifierConfig) *OpenAIClassifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}

	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

func (c *OpenAIClassifier) ClassifyRemote(ctx context.Context, message string) (*models.Classification, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierPrompt},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		MaxTokens:   60,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("remote classifier request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("remote classifier returned no choices")
	}

	var label remoteLabel
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &label); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response: %w", err)
	}

	intent, ok := models.ParseIntent(label.Intent)
	if !ok {
		return nil, fmt.Errorf("remote classifier returned unknown intent %q", label.Intent)
	}

	confidence := label.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &models.Classification{
		Intent:     intent,
		Confidence: confidence,
		Source:     models.SourceRemote,
		Rationale:  label.Rationale,
	}, nil
}
