package feeds

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/taipei-transit/crowding-dashboard/internal/transit"
)

// DefaultCrowdingURL is the Taipei onboard crowding blob.
const DefaultCrowdingURL = "https://tcgbusfs.blob.core.windows.net/blobbus/TstBusSeatEvent.json"

// CrowdingClient fetches the unauthenticated crowding status feed.
type CrowdingClient struct {
	url     string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

// NewCrowdingClient creates a client for the crowding feed. An empty url
// selects DefaultCrowdingURL.
func NewCrowdingClient(client *http.Client, url string) *CrowdingClient {
	if url == "" {
		url = DefaultCrowdingURL
	}
	return &CrowdingClient{
		url: url,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newBreaker("crowding-feed"),
		now:     time.Now,
	}
}

// FetchCrowding retrieves and normalizes the current crowding records.
func (c *CrowdingClient) FetchCrowding(ctx context.Context) ([]transit.CrowdingRecord, error) {
	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.url, nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: readBodyPrefix(resp.Body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return transit.UnmarshalCrowdingFeed(data, c.now())
}

// readBodyPrefix drains up to 1 KiB of an error body for diagnostics.
func readBodyPrefix(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1024))
	return string(b)
}
