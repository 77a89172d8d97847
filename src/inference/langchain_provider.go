package inference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
	"www.github.com/Wanderer0074348/RoastRouter/src/utils"
)

// LangChainProvider serves OpenAI-compatible vendors (Groq and similar)
// through langchaingo. langchaingo only surfaces prompt and completion token
// counts, so this adapter never reports cached tokens and every input token
// is billed at the full price. Vendors with prefix caching belong on the
// "openai" kind. When usage is missing it is estimated from the prompt and
// response length.
type LangChainProvider struct {
	name       string
	llm        llms.Model
	maxTokens  int
	timeout    time.Duration
	workerPool chan struct{}
}

func NewLangChainProvider(cfg *config.ProviderConfig, modelID string) (*LangChainProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is empty for provider %s", cfg.Name)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is empty for provider %s (check %s_API_KEY)", cfg.Name, upperName(cfg.Name))
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.Endpoint),
		openai.WithToken(cfg.APIKey),
		openai.WithModel(modelID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for model %s: %w", modelID, err)
	}

	return newLangChainProvider(modelID, llm, cfg), nil
}

func newLangChainProvider(modelID string, llm llms.Model, cfg *config.ProviderConfig) *LangChainProvider {
	return &LangChainProvider{
		name:       modelID,
		llm:        llm,
		maxTokens:  cfg.MaxTokens,
		timeout:    cfg.Timeout,
		workerPool: make(chan struct{}, max(cfg.MaxConcurrent, 1)),
	}
}

func (p *LangChainProvider) Complete(ctx context.Context, prompt string, cacheableLength int) (*models.Completion, error) {
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

	callOptions := []llms.CallOption{
		llms.WithTemperature(0.7),
	}
	if p.maxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(p.maxTokens))
	}

	resp, err := p.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, callOptions...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, wrapContextErr(ctx.Err())
		}
		if looksLikeQuota(err) {
			return nil, fmt.Errorf("model %s: %w: %v", p.name, models.ErrProviderQuota, err)
		}
		return nil, fmt.Errorf("model %s generation failed: %w", p.name, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model %s returned no choices", p.name)
	}

	choice := resp.Choices[0]
	completion := &models.Completion{
		Text:         choice.Content,
		InputTokens:  intInfo(choice.GenerationInfo, "PromptTokens"),
		OutputTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
	}

	if completion.InputTokens == 0 {
		completion.InputTokens = utils.EstimateTokenCount(system) + utils.EstimateTokenCount(user)
	}
	if completion.OutputTokens == 0 {
		completion.OutputTokens = utils.EstimateTokenCount(choice.Content)
	}

	return completion, nil
}

// intInfo reads a numeric generation info field whatever integer type the
// backend used.
func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func upperName(name string) string {
	return strings.ToUpper(name)
}
