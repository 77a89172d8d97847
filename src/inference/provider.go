package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

const assistantPersona = `You are RoastRouter, a witty personal-finance companion.
Keep answers short and concrete. Use the context below about the user when it helps.`

// NewProviders builds one provider per routed model, keyed by model id.
func NewProviders(cfg *config.Config) (map[string]models.Provider, error) {
	byName := make(map[string]config.ProviderConfig, len(cfg.Providers))
	for _, p := range cfg.Providers {
		byName[p.Name] = p
	}

	providers := make(map[string]models.Provider)
	for _, route := range cfg.Routes {
		if _, ok := providers[route.Model]; ok {
			continue
		}

		providerCfg, ok := byName[route.Provider]
		if !ok {
			return nil, fmt.Errorf("route %s references unknown provider %s", route.Intent, route.Provider)
		}

		provider, err := NewProvider(&providerCfg, route.Model)
		if err != nil {
			return nil, err
		}
		providers[route.Model] = provider
	}

	return providers, nil
}

// NewProvider adapts one configured backend for a single model.
func NewProvider(cfg *config.ProviderConfig, modelID string) (models.Provider, error) {
	switch cfg.Kind {
	case "openai":
		return NewOpenAIProvider(cfg, modelID)
	case "langchain":
		return NewLangChainProvider(cfg, modelID)
	default:
		return nil, fmt.Errorf("unknown provider kind %q for %s", cfg.Kind, cfg.Name)
	}
}

// splitPrompt separates the cacheable prefix from the rest of the prompt.
// The prefix goes in the system message so the provider sees an identical
// leading segment across calls.
func splitPrompt(prompt string, cacheableLength int) (string, string) {
	if cacheableLength <= 0 {
		return assistantPersona, prompt
	}
	if cacheableLength > len(prompt) {
		cacheableLength = len(prompt)
	}
	return assistantPersona + "\n\n" + prompt[:cacheableLength], prompt[cacheableLength:]
}

// acquire takes a worker slot or gives up when ctx ends.
func acquire(ctx context.Context, pool chan struct{}) (func(), error) {
	select {
	case pool <- struct{}{}:
		return func() { <-pool }, nil
	case <-ctx.Done():
		return nil, wrapContextErr(ctx.Err())
	}
}

func wrapContextErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrProviderTimeout, err)
	}
	return err
}

// looksLikeQuota matches rate-limit failures from clients that only expose
// the upstream status in the error text.
func looksLikeQuota(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota")
}
