package auth

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// BotFrameworkIssuer is the issuer every inbound token must carry.
const BotFrameworkIssuer = "https://api.botframework.com"

// RequestAuthenticator validates inbound webhook Authorization headers.
// It is a pure boolean gate: true means proceed, false means the caller
// must reject the request. Failures never propagate as errors and have
// no side effects.
type RequestAuthenticator struct {
	appID  string
	keys   *SigningKeyCache
	logger zerolog.Logger
}

// NewRequestAuthenticator creates an authenticator for the given bot app
// id using the shared signing key cache.
func NewRequestAuthenticator(appID string, keys *SigningKeyCache, logger zerolog.Logger) *RequestAuthenticator {
	return &RequestAuthenticator{appID: appID, keys: keys, logger: logger}
}

// Validate checks the bearer JWT's algorithm, signing key, signature,
// audience and issuer. Any failure short-circuits to false.
func (a *RequestAuthenticator) Validate(ctx context.Context, authHeader string) bool {
	raw, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return false
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(a.appID),
		jwt.WithIssuer(BotFrameworkIssuer),
		jwt.WithExpirationRequired(),
	)

	tok, err := parser.Parse(raw, func(t *jwt.Token) (any, error) {
		if typ, _ := t.Header["typ"].(string); typ != "JWT" {
			return nil, jwt.ErrTokenUnverifiable
		}
		thumbprint, _ := t.Header["x5t"].(string)
		if thumbprint == "" {
			return nil, jwt.ErrTokenUnverifiable
		}
		cert, found, err := a.keys.Key(ctx, thumbprint)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, jwt.ErrTokenUnverifiable
		}
		return cert.PublicKey, nil
	})
	if err != nil || !tok.Valid {
		a.logger.Debug().Err(err).Msg("rejected inbound token")
		return false
	}
	return true
}
