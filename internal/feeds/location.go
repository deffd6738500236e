package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/taipei-transit/crowding-dashboard/internal/transit"
)

// DefaultLocationBaseURL is the TDX basic API root.
const DefaultLocationBaseURL = "https://tdx.transportdata.tw/api/basic"

// TokenSource supplies bearer credentials for the location feed.
type TokenSource interface {
	// GetValid returns a token that is expected to still be accepted.
	GetValid(ctx context.Context) (string, error)
	// Invalidate drops the cached token after an upstream rejection.
	Invalidate()
}

// LocationClient fetches realtime vehicle positions from TDX.
type LocationClient struct {
	baseURL string
	tokens  TokenSource
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewLocationClient creates a client for the realtime location feed. An empty
// baseURL selects DefaultLocationBaseURL.
func NewLocationClient(client *http.Client, baseURL string, tokens TokenSource) *LocationClient {
	if baseURL == "" {
		baseURL = DefaultLocationBaseURL
	}
	return &LocationClient{
		baseURL: baseURL,
		tokens:  tokens,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newBreaker("location-feed"),
	}
}

// FetchLocations retrieves and normalizes the realtime positions for a city.
// A token acquisition failure is reported as an auth error for this cycle.
func (c *LocationClient) FetchLocations(ctx context.Context, city string) ([]transit.LocationRecord, error) {
	token, err := c.tokens.GetValid(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}

	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s/v2/Bus/RealTimeByFrequency/City/%s?%s",
			c.baseURL, url.PathEscape(city), url.Values{"$format": {"JSON"}}.Encode())
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Token no longer honoured upstream; force a refresh next cycle.
		c.tokens.Invalidate()
		return nil, fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: readBodyPrefix(resp.Body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return transit.UnmarshalLocationFeed(data)
}
