// Package adapter bridges the Bot Framework webhook to a normalized
// chat abstraction: it authenticates and resolves inbound activities
// into person/room identities, dispatches them to a host callback, and
// translates replies and proactive sends back into Connector calls.
package adapter

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/teamsbridge/teamsbridge/internal/auth"
	"github.com/teamsbridge/teamsbridge/internal/connector"
	"github.com/teamsbridge/teamsbridge/internal/graph"
	"github.com/teamsbridge/teamsbridge/internal/metrics"
	"github.com/teamsbridge/teamsbridge/internal/models"
	"github.com/teamsbridge/teamsbridge/internal/state"
)

// DefaultServiceURL is used for outbound calls until an inbound activity
// reports the region-specific endpoint.
const DefaultServiceURL = "https://smba.trafficmanager.net/emea/"

// Callback receives every normalized inbound message.
type Callback func(ctx context.Context, msg *models.Message)

// Adapter owns the inbound resolution and outbound delivery paths.
type Adapter struct {
	appID             string
	tenantID          string
	commandPrefix     string
	defaultServiceURL string

	state     *state.State
	connector *connector.Client
	graph     *graph.Client
	authn     *auth.RequestAuthenticator
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	callback  Callback
	limiter   *rateLimiter
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithAuthenticator installs the inbound request authenticator. Without
// one the webhook accepts unauthenticated traffic (emulator mode).
func WithAuthenticator(authn *auth.RequestAuthenticator) Option {
	return func(a *Adapter) { a.authn = authn }
}

// WithGraph installs the Microsoft Graph client for directory lookups.
func WithGraph(g *graph.Client) Option {
	return func(a *Adapter) { a.graph = g }
}

// WithMetrics installs the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithTenantID sets the tenant used when creating proactive
// conversations outside any recorded channel context.
func WithTenantID(tenantID string) Option {
	return func(a *Adapter) { a.tenantID = tenantID }
}

// WithCommandPrefix sets the prefix that triggers a typing
// acknowledgment before dispatch.
func WithCommandPrefix(prefix string) Option {
	return func(a *Adapter) { a.commandPrefix = prefix }
}

// WithServiceURL overrides the default Connector service URL used until
// an inbound activity reports one.
func WithServiceURL(url string) Option {
	return func(a *Adapter) { a.defaultServiceURL = url }
}

// WithRateLimit caps inbound messages per sender within the window.
// A non-positive limit disables rate limiting.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(a *Adapter) {
		if limit > 0 {
			a.limiter = newRateLimiter(limit, window)
		}
	}
}

// New creates an Adapter. callback receives every resolved message.
func New(appID string, st *state.State, conn *connector.Client, logger zerolog.Logger, callback Callback, opts ...Option) *Adapter {
	a := &Adapter{
		appID:             appID,
		defaultServiceURL: DefaultServiceURL,
		state:             st,
		connector:         conn,
		logger:            logger,
		callback:          callback,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BotID returns the Connector id the bot registers conversations under.
func (a *Adapter) BotID() string {
	return "28:" + a.appID
}

// serviceURL returns the persisted Connector endpoint, falling back to
// the configured default before any inbound activity arrived.
func (a *Adapter) serviceURL() string {
	url, err := a.state.ServiceURL(a.defaultServiceURL)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read service url, using default")
		return a.defaultServiceURL
	}
	return url
}
