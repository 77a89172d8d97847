package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"www.github.com/Wanderer0074348/RoastRouter/src/models"
	"www.github.com/Wanderer0074348/RoastRouter/src/utils"
)

// ModelRouter dispatches exactly one call to the backend selected for an
// intent. It never retries and never substitutes a different model.
type ModelRouter struct {
	strategy  RoutingStrategy
	providers map[string]models.Provider // keyed by model id
	timeout   time.Duration
}

func NewModelRouter(strategy RoutingStrategy, providers map[string]models.Provider, timeout time.Duration) *ModelRouter {
	return &ModelRouter{
		strategy:  strategy,
		providers: providers,
		timeout:   timeout,
	}
}

func (r *ModelRouter) Route(ctx context.Context, intent models.Intent, assembled *models.AssembledContext, message string) (*models.RouteResult, error) {
	route, err := r.strategy.Select(intent)
	if err != nil {
		return nil, &DispatchError{Kind: DispatchProviderError, Err: err}
	}

	provider, ok := r.providers[route.ModelID]
	if !ok {
		return nil, &DispatchError{
			Kind:    DispatchProviderError,
			ModelID: route.ModelID,
			Err:     fmt.Errorf("no provider registered for model %s", route.ModelID),
		}
	}

	prompt, cacheableLength := buildPrompt(assembled, message)

	dispatchCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := provider.Complete(dispatchCtx, prompt, cacheableLength)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		dispatchErr := &DispatchError{
			Kind:      classifyDispatchError(err),
			ModelID:   route.ModelID,
			LatencyMs: latencyMs,
			Err:       err,
		}
		var partial *models.PartialCompletionError
		if errors.As(err, &partial) && partial.Completion != nil {
			dispatchErr.Usage = usageOf(partial.Completion)
			dispatchErr.Cost = costOf(route, partial.Completion)
		}
		return nil, dispatchErr
	}

	return &models.RouteResult{
		Text:      strings.TrimSpace(completion.Text),
		Usage:     usageOf(completion),
		ModelID:   route.ModelID,
		Cost:      costOf(route, completion),
		LatencyMs: latencyMs,
	}, nil
}

// buildPrompt appends the message to the assembled context. Only the
// context's cacheable prefix is offered to the provider for caching.
func buildPrompt(assembled *models.AssembledContext, message string) (string, int) {
	if assembled == nil {
		return message, 0
	}

	prompt := assembled.Text + message

	cacheable := assembled.CacheableLength
	if cacheable < 0 {
		cacheable = 0
	}
	if cacheable > len(assembled.Text) {
		cacheable = len(assembled.Text)
	}

	return prompt, cacheable
}

func usageOf(c *models.Completion) models.TokenUsage {
	return models.TokenUsage{
		Input:  c.InputTokens,
		Output: c.OutputTokens,
		Cached: c.CachedTokens,
	}
}

// costOf prices a completion with the route's rates and the discount ratio
// the provider reported for cached tokens.
func costOf(route *models.ModelRoute, c *models.Completion) float64 {
	price := utils.ModelPrice{
		InputPerMillion:  route.InputCostPerMillion,
		OutputPerMillion: route.OutputCostPerMillion,
	}
	return utils.MicrosToUSD(utils.CostMicros(price, usageOf(c), c.CacheDiscountRatio))
}
