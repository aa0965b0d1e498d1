// Package auth holds the credential caches that gate every request: the
// OAuth2 client-credentials token for outbound calls and the rotating
// signing keys used to validate inbound webhook requests.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Bot Framework OAuth2 endpoints.
const (
	BotFrameworkTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	BotFrameworkScope    = "https://api.botframework.com/.default"
)

// AuthError reports a failed credential acquisition. It is fatal for the
// attempted operation and carries the upstream HTTP status.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token exchange failed: %d - %s", e.Status, e.Body)
}

// token is an issued bearer token. Immutable; replaced wholesale on
// refresh.
type token struct {
	accessToken string
	expiresAt   time.Time
}

// TokenCache holds one OAuth2 bearer token and refreshes it lazily via
// the client-credentials grant. Refresh happens outside the lock, so two
// concurrent callers may both hit the token endpoint during expiry; the
// refresh is idempotent and the last install wins.
type TokenCache struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client
	now          func() time.Time

	mu  sync.Mutex
	tok *token

	onRefresh func()
}

// TokenCacheOption customizes a TokenCache.
type TokenCacheOption func(*TokenCache)

// WithTokenHTTPClient overrides the HTTP client used for the exchange.
func WithTokenHTTPClient(c *http.Client) TokenCacheOption {
	return func(tc *TokenCache) { tc.httpClient = c }
}

// WithTokenClock overrides the clock, for tests.
func WithTokenClock(now func() time.Time) TokenCacheOption {
	return func(tc *TokenCache) { tc.now = now }
}

// WithTokenRefreshHook registers a callback invoked on every exchange,
// used for metrics.
func WithTokenRefreshHook(fn func()) TokenCacheOption {
	return func(tc *TokenCache) { tc.onRefresh = fn }
}

// NewTokenCache creates a token cache for one client-credentials
// identity against the given token endpoint.
func NewTokenCache(tokenURL, clientID, clientSecret, scope string, opts ...TokenCacheOption) *TokenCache {
	tc := &TokenCache{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Token returns the cached access token, refreshing it first if absent
// or expired. There is no proactive refresh.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.tok != nil && c.now().Before(c.tok.expiresAt) {
		t := c.tok.accessToken
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	tok, err := c.exchange(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.tok = tok
	c.mu.Unlock()
	return tok.accessToken, nil
}

// exchange performs the client-credentials grant.
func (c *TokenCache) exchange(ctx context.Context) (*token, error) {
	if c.onRefresh != nil {
		c.onRefresh()
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"scope":         {c.scope},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &AuthError{Status: resp.StatusCode, Body: string(body)}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" || tokenResp.ExpiresIn == 0 {
		return nil, &AuthError{
			Status: resp.StatusCode,
			Body:   "token endpoint returned no usable token; verify the app id and secret",
		}
	}

	// Expire a minute early so in-flight requests don't race the
	// upstream expiry.
	expiresIn := tokenResp.ExpiresIn - 60
	if expiresIn < 0 {
		expiresIn = 0
	}
	return &token{
		accessToken: tokenResp.AccessToken,
		expiresAt:   c.now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
