package collaborators

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"www.github.com/Wanderer0074348/RoastRouter/src/cache"
	"www.github.com/Wanderer0074348/RoastRouter/src/config"
	"www.github.com/Wanderer0074348/RoastRouter/src/models"
)

const (
	maxPayloadBytes = 64 << 10
	defaultTimeout  = 3 * time.Second
)

// HTTPSource reads one context segment for a user from a collaborator
// service: GET {base}/v1/context/{segment}/{userID}, plain text response.
type HTTPSource struct {
	client  *http.Client
	baseURL string
	segment string
}

func NewHTTPSource(client *http.Client, baseURL, segment string) *HTTPSource {
	return &HTTPSource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		segment: segment,
	}
}

func (s *HTTPSource) Fetch(ctx context.Context, userID string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/context/%s/%s", s.baseURL, s.segment, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build %s request: %w", s.segment, err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s fetch failed: %w", s.segment, err)
	}
	defer resp.Body.Close()

	// No data for this user yet
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s fetch returned status %d", s.segment, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s payload: %w", s.segment, err)
	}

	return strings.TrimSpace(string(body)), nil
}

// NewHTTPClient returns a client for collaborator calls. When a token URL is
// configured the client authenticates with the OAuth2 client-credentials
// grant and refreshes tokens on its own.
func NewHTTPClient(cfg *config.CollaboratorsConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	base := &http.Client{Timeout: timeout}
	if cfg.TokenURL == "" {
		return base
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{"context.read"},
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = timeout
	return client
}

// NewTierSources wires the profile, finance and health services to the
// context tiers. Services without a URL are skipped.
func NewTierSources(cfg *config.CollaboratorsConfig, client *http.Client) cache.TierSources {
	var sources cache.TierSources

	if cfg.Profile.URL != "" {
		sources.Static = append(sources.Static, NewHTTPSource(client, cfg.Profile.URL, "profile"))
	}
	if cfg.Finance.URL != "" {
		sources.Slow = append(sources.Slow, NewHTTPSource(client, cfg.Finance.URL, "spending-patterns"))
		sources.Dynamic = append(sources.Dynamic, NewHTTPSource(client, cfg.Finance.URL, "live"))
	}
	if cfg.Health.URL != "" {
		sources.Slow = append(sources.Slow, NewHTTPSource(client, cfg.Health.URL, "signals"))
	}

	return sources
}

var _ models.ContextSource = (*HTTPSource)(nil)
