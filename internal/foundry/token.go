package foundry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenSource supplies a bearer token for the ontology API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token; used for service tokens issued
// out of band and in tests.
type StaticTokenSource string

func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("foundry: empty static token")
	}
	return string(s), nil
}

// tokenResponse is the OAuth token endpoint response body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ClientCredentialsSource obtains tokens via the OAuth client_credentials
// grant and caches them until shortly before expiry.
type ClientCredentialsSource struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// expirySkew is subtracted from the reported lifetime so a token is
// refreshed before the platform would reject it mid-request.
const expirySkew = 30 * time.Second

// Token returns a cached token, fetching a fresh one when the cache is
// empty or within the skew window of expiry.
func (s *ClientCredentialsSource) Token(ctx context.Context) (string, error) {
	nowFn := s.now
	if nowFn == nil {
		nowFn = time.Now
	}

	s.mu.RLock()
	token, expiresAt := s.token, s.expiresAt
	s.mu.RUnlock()
	if token != "" && nowFn().Before(expiresAt.Add(-expirySkew)) {
		return token, nil
	}

	return s.fetch(ctx, nowFn)
}

func (s *ClientCredentialsSource) fetch(ctx context.Context, nowFn func() time.Time) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", s.ClientID)
	form.Set("client_secret", s.ClientSecret)
	if len(s.Scopes) > 0 {
		form.Set("scope", strings.Join(s.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("POST %s: %w", s.TokenURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access_token")
	}

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = time.Minute
	}

	s.mu.Lock()
	s.token = tr.AccessToken
	s.expiresAt = nowFn().Add(lifetime)
	s.mu.Unlock()

	return tr.AccessToken, nil
}
