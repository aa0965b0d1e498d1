package auth

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// SigningKeysURL is the Bot Framework well-known signing key document.
const SigningKeysURL = "https://login.botframework.com/v1/.well-known/keys"

// keyRefreshInterval is how long a fetched key set stays fresh.
const keyRefreshInterval = time.Hour

// SigningKeyCache maps key thumbprints (x5t) to the signing
// certificates published in the well-known key document. The set is
// refreshed in bulk and replaced wholesale; it is never partially
// updated. Two concurrent refreshes may both fetch, but only one install
// wins the visible state.
type SigningKeyCache struct {
	keysURL    string
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	keys        map[string]*x509.Certificate
	refreshedAt time.Time

	onRefresh func()
}

// SigningKeyCacheOption customizes a SigningKeyCache.
type SigningKeyCacheOption func(*SigningKeyCache)

// WithKeysHTTPClient overrides the HTTP client used for key fetches.
func WithKeysHTTPClient(c *http.Client) SigningKeyCacheOption {
	return func(kc *SigningKeyCache) { kc.httpClient = c }
}

// WithKeysClock overrides the clock, for tests.
func WithKeysClock(now func() time.Time) SigningKeyCacheOption {
	return func(kc *SigningKeyCache) { kc.now = now }
}

// WithKeysRefreshHook registers a callback invoked on every bulk fetch,
// used for metrics.
func WithKeysRefreshHook(fn func()) SigningKeyCacheOption {
	return func(kc *SigningKeyCache) { kc.onRefresh = fn }
}

// NewSigningKeyCache creates a signing key cache over the given key
// document URL.
func NewSigningKeyCache(keysURL string, opts ...SigningKeyCacheOption) *SigningKeyCache {
	kc := &SigningKeyCache{
		keysURL:    keysURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(kc)
	}
	return kc
}

// Key returns the certificate for a thumbprint, refreshing the key set
// first if it is stale. A missing thumbprint is reported as found=false,
// not an error: the caller treats it as an authentication failure, not a
// system fault.
func (c *SigningKeyCache) Key(ctx context.Context, thumbprint string) (*x509.Certificate, bool, error) {
	if err := c.ensureKeys(ctx); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cert, ok := c.keys[thumbprint]
	return cert, ok, nil
}

// ensureKeys fetches the key document unless the cached set is younger
// than the refresh interval. The fetch happens outside the lock.
func (c *SigningKeyCache) ensureKeys(ctx context.Context) error {
	c.mu.Lock()
	fresh := c.keys != nil && c.now().Sub(c.refreshedAt) < keyRefreshInterval
	c.mu.Unlock()
	if fresh {
		return nil
	}

	keys, err := c.fetch(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.keys = keys
	c.refreshedAt = c.now()
	c.mu.Unlock()
	return nil
}

// fetch downloads and parses the full key document. Entries must expose
// both a certificate chain (x5c) and a thumbprint (x5t); the first chain
// entry is decoded as a DER certificate.
func (c *SigningKeyCache) fetch(ctx context.Context) (map[string]*x509.Certificate, error) {
	if c.onRefresh != nil {
		c.onRefresh()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.keysURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch signing keys: %d - %s", resp.StatusCode, string(body))
	}

	var doc struct {
		Keys []struct {
			X5T string   `json:"x5t"`
			X5C []string `json:"x5c"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode signing keys: %w", err)
	}

	keys := make(map[string]*x509.Certificate, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.X5T == "" || len(k.X5C) == 0 {
			continue
		}
		der, err := base64.StdEncoding.DecodeString(k.X5C[0])
		if err != nil {
			return nil, fmt.Errorf("decode certificate for %s: %w", k.X5T, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parse certificate for %s: %w", k.X5T, err)
		}
		keys[k.X5T] = cert
	}
	return keys, nil
}
