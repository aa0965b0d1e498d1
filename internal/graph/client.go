// Package graph is the Microsoft Graph client used to resolve teams,
// channels and users by name or email. Only the lookup surface the
// adapter needs is implemented.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamsbridge/teamsbridge/internal/auth"
	"github.com/teamsbridge/teamsbridge/internal/models"
)

// Graph endpoints. Team and channel enumeration is only available on the
// beta surface.
const (
	BaseURL = "https://graph.microsoft.com/beta"
	Scope   = "https://graph.microsoft.com/.default"
)

// TokenURL returns the tenant-specific OAuth2 token endpoint.
func TokenURL(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID)
}

// User is a directory user record.
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Team is a Teams team record.
type Team struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Channel is a channel within a team.
type Channel struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Client talks to Microsoft Graph. A nil token cache puts the client in
// emulator mode: requests go out without an Authorization header.
type Client struct {
	baseURL    string
	tokens     *auth.TokenCache
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the Graph base URL, for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Graph client. tokens may be nil for emulator mode.
func New(tokens *auth.TokenCache, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    BaseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &auth.AuthError{
			Status: resp.StatusCode,
			Body:   "graph rejected the credentials; verify the Azure AD app id and secret",
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graph request failed: %d - %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// UserByID fetches a directory user by object id.
func (c *Client) UserByID(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := c.get(ctx, c.baseURL+"/users/"+url.PathEscape(userID), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// listPage is one page of a Graph collection response.
type listPage[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// TeamByName resolves a team by display name. The beta /teams endpoint
// does not reliably apply $filter server-side, so the filter is sent as
// a hint and each page is matched client-side, following nextLink until
// the team is found.
func (c *Client) TeamByName(ctx context.Context, name string) (*Team, error) {
	u := c.baseURL + "/teams?$filter=" + url.QueryEscape(fmt.Sprintf("displayName eq '%s'", name))
	for u != "" {
		var page listPage[Team]
		if err := c.get(ctx, u, &page); err != nil {
			return nil, err
		}
		for _, team := range page.Value {
			if team.DisplayName == name {
				return &team, nil
			}
		}
		u = page.NextLink
	}
	return nil, fmt.Errorf("team %q: %w", name, models.ErrTeamNotFound)
}

// Channels lists the channels of a team.
func (c *Client) Channels(ctx context.Context, teamID string) ([]Channel, error) {
	var channels []Channel
	u := c.baseURL + "/teams/" + url.PathEscape(teamID) + "/channels"
	for u != "" {
		var page listPage[Channel]
		if err := c.get(ctx, u, &page); err != nil {
			return nil, err
		}
		channels = append(channels, page.Value...)
		u = page.NextLink
	}
	return channels, nil
}

// ChannelByName resolves a channel of a team by display name.
func (c *Client) ChannelByName(ctx context.Context, teamID, name string) (*Channel, error) {
	channels, err := c.Channels(ctx, teamID)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		if ch.DisplayName == name {
			return &ch, nil
		}
	}
	return nil, fmt.Errorf("channel %q: %w", name, models.ErrChannelNotFound)
}
