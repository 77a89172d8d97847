package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

// OpenAIProvider calls an OpenAI chat model. OpenAI caches identical prompt
// prefixes automatically and reports the cached share in usage details.
type OpenAIProvider struct {
	client        *openai.Client
	model         string
	maxTokens     int
	timeout       time.Duration
	cacheDiscount float64
	workerPool    chan struct{}
}

func NewOpenAIProvider(cfg *config.ProviderConfig, modelID string) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is empty for provider %s (check %s_API_KEY)", cfg.Name, upperName(cfg.Name))
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}

	return &OpenAIProvider{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         modelID,
		maxTokens:     cfg.MaxTokens,
		timeout:       cfg.Timeout,
		cacheDiscount: cfg.CacheDiscount,
		workerPool:    make(chan struct{}, max(cfg.MaxConcurrent, 1)),
	}, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string, cacheableLength int) (*models.Completion, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	release, err := acquire(ctx, p.workerPool)
	if err != nil {
		return nil, err
	}
	defer release()

	system, user := splitPrompt(prompt, cacheableLength)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   p.maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, p.mapError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.model)
	}

	completion := &models.Completion{
		Text:               resp.Choices[0].Message.Content,
		InputTokens:        resp.Usage.PromptTokens,
		OutputTokens:       resp.Usage.CompletionTokens,
		CacheDiscountRatio: p.cacheDiscount,
	}
	if resp.Usage.PromptTokensDetails != nil {
		completion.CachedTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}

	return completion, nil
}

func (p *OpenAIProvider) mapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return wrapContextErr(ctx.Err())
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && (apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.Type == "insufficient_quota") {
		return fmt.Errorf("%s: %w: %v", p.model, models.ErrProviderQuota, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: %v", p.model, models.ErrProviderQuota, err)
	}

	return fmt.Errorf("%s generation failed: %w", p.model, err)
}
