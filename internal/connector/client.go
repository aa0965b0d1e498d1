// Package connector is the REST client for the Bot Framework Connector
// API: posting activities, creating conversations, and resolving
// conversation members.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamsbridge/teamsbridge/internal/auth"
	"github.com/teamsbridge/teamsbridge/internal/models"
)

// DeliveryError reports a non-2xx response to an outbound call. It is
// surfaced to whatever triggered the send, never swallowed.
type DeliveryError struct {
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed: %d - %s", e.Status, e.Body)
}

// AccountRegistrar records accounts discovered in conversation rosters so
// later identifier lookups by principal name succeed.
type AccountRegistrar interface {
	StoreAccount(acct models.ChannelAccount) error
}

// memberTTL is how long a cached conversation roster stays fresh.
const memberTTL = 60 * time.Second

type memberEntry struct {
	members   []models.ChannelAccount
	fetchedAt time.Time
}

// Client talks to the Connector API. A nil token cache puts the client
// in emulator mode: requests go out without an Authorization header.
type Client struct {
	httpClient *http.Client
	tokens     *auth.TokenCache
	accounts   AccountRegistrar
	logger     zerolog.Logger
	now        func() time.Time

	memberMu sync.Mutex
	members  map[string]memberEntry

	onMemberLookup func(hit bool)
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// WithMemberLookupHook registers a callback invoked on every member
// cache inspection, used for metrics.
func WithMemberLookupHook(fn func(hit bool)) Option {
	return func(cl *Client) { cl.onMemberLookup = fn }
}

// New creates a Connector client. tokens may be nil for emulator mode;
// accounts may be nil when roster side effects are unwanted.
func New(tokens *auth.TokenCache, accounts AccountRegistrar, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tokens:     tokens,
		accounts:   accounts,
		logger:     logger,
		now:        time.Now,
		members:    make(map[string]memberEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EmulatorMode reports whether the client operates without credentials.
func (c *Client) EmulatorMode() bool {
	return c.tokens == nil
}

func conversationURL(serviceURL, conversationID string) string {
	url := strings.TrimSuffix(serviceURL, "/") + "/v3/conversations"
	if conversationID != "" {
		url += "/" + conversationID
	}
	return url
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return nil
}

func (c *Client) get(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	if err := c.authorize(ctx, req); err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, &DeliveryError{Status: resp.StatusCode, Body: string(body)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) post(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &DeliveryError{Status: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil {
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// SendActivity posts an activity to its reply URL, derived from the
// service URL, the conversation id, and - for threaded replies - the
// activity being replied to. Returns the id the Connector assigned.
func (c *Client) SendActivity(ctx context.Context, serviceURL string, activity *models.Activity) (string, error) {
	if activity.Conversation == nil {
		return "", fmt.Errorf("send activity: %w", models.ErrConversationNotFound)
	}

	url := conversationURL(serviceURL, activity.Conversation.ID) + "/activities"
	if activity.ReplyToID != "" {
		url += "/" + activity.ReplyToID
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, url, activity, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// CreateConversation opens a personal conversation between the bot and a
// member within a tenant and returns it.
func (c *Client) CreateConversation(ctx context.Context, serviceURL, botID, memberID, tenantID string) (*models.Conversation, error) {
	payload := map[string]any{
		"bot":     map[string]string{"id": botID},
		"members": []map[string]string{{"id": memberID}},
		"channelData": map[string]any{
			"tenant": map[string]string{"id": tenantID},
		},
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, conversationURL(serviceURL, ""), payload, &result); err != nil {
		return nil, err
	}
	return &models.Conversation{
		ID:               result.ID,
		ConversationType: models.ConversationPersonal,
		TenantID:         tenantID,
	}, nil
}
