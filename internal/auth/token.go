// Package auth owns the OAuth2 client-credentials token used for the
// location feed. The cached token lives in one explicit component rather
// than package-level state so it can be tested with a fake clock.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultAuthURL is the TDX token issuer.
const DefaultAuthURL = "https://tdx.transportdata.tw/auth/realms/TDXConnect/protocol/openid-connect/token"

// ErrMissingCredentials means no client id/secret were configured.
var ErrMissingCredentials = errors.New("missing client credentials")

// expiryBuffer is subtracted from the issuer-reported lifetime so a token is
// refreshed before it actually lapses mid-request.
const expiryBuffer = 60 * time.Second

// Credentials identify this client to the token issuer.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// TokenResponse is the issuer's success payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenSource caches a bearer token and its expiry, refreshing on demand.
type TokenSource struct {
	authURL string
	creds   Credentials
	client  *http.Client
	now     func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenSource creates a TokenSource. An empty authURL selects
// DefaultAuthURL.
func NewTokenSource(client *http.Client, authURL string, creds Credentials) *TokenSource {
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	return &TokenSource{
		authURL: authURL,
		creds:   creds,
		client:  client,
		now:     time.Now,
	}
}

// GetValid returns the cached token when it is still comfortably inside its
// lifetime, refreshing otherwise.
func (s *TokenSource) GetValid(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && s.now().Before(s.expiresAt.Add(-expiryBuffer)) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Refresh performs the token exchange and replaces the cached token. The
// cache is cleared on failure so a bad token is never reused.
func (s *TokenSource) Refresh(ctx context.Context) (string, error) {
	status, body, err := s.Exchange(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.token, s.expiresAt = "", time.Time{}
		return "", err
	}
	if status < 200 || status >= 300 {
		s.token, s.expiresAt = "", time.Time{}
		return "", fmt.Errorf("token issuer returned status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		s.token, s.expiresAt = "", time.Time{}
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		s.token, s.expiresAt = "", time.Time{}
		return "", errors.New("token issuer returned no access_token")
	}

	s.token = tr.AccessToken
	s.expiresAt = s.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return s.token, nil
}

// Invalidate drops the cached token, forcing the next GetValid to refresh.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token, s.expiresAt = "", time.Time{}
	s.mu.Unlock()
}

// Exchange performs the raw client-credentials POST and returns the issuer's
// status and body untouched. The token relay endpoint proxies these verbatim.
func (s *TokenSource) Exchange(ctx context.Context) (int, []byte, error) {
	if s.creds.ClientID == "" || s.creds.ClientSecret == "" {
		return 0, nil, ErrMissingCredentials
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.creds.ClientID)
	form.Set("client_secret", s.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}
