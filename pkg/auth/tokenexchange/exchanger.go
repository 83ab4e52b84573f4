package tokenexchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway"
	"github.com/riposta/dynamic-mcp-poc/pkg/logger"
)

// DeniedError is returned when the identity provider refuses to exchange a
// token for the requested audience. Its message is user-facing.
type DeniedError struct {
	// Audience is the audience the exchange was attempted for.
	Audience string

	// Err is the underlying classification error.
	Err error
}

// Error returns the user-facing denial message.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("Token exchange denied for audience '%s'. User lacks required access role.", e.Audience)
}

// Unwrap exposes the underlying error so errors.Is sees
// gateway.ErrAuthorizationDenied.
func (e *DeniedError) Unwrap() error {
	return e.Err
}

// ExchangerConfig configures an Exchanger.
type ExchangerConfig struct {
	// TokenURL is the OAuth 2.0 token endpoint URL.
	TokenURL string

	// ClientID is the gateway's OAuth client identifier.
	ClientID string

	// ClientSecret is the gateway's OAuth client secret.
	ClientSecret string

	// Scopes is the optional list of scopes to request.
	Scopes []string

	// HTTPClient overrides the HTTP client used for exchanges.
	HTTPClient *http.Client
}

// Validate checks the config for required fields.
func (c *ExchangerConfig) Validate() error {
	if c.TokenURL == "" {
		return fmt.Errorf("%w: token exchange URL is required", gateway.ErrInvalidConfig)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: token exchange client ID is required", gateway.ErrInvalidConfig)
	}
	return nil
}

// Exchanger performs RFC 8693 token exchanges against a fixed token endpoint
// with fixed client credentials, varying the audience per call. It never
// caches exchanged tokens.
type Exchanger struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scopes       []string
	httpClient   *http.Client
}

var _ gateway.TokenExchanger = (*Exchanger)(nil)

// NewExchanger creates an Exchanger from the given config.
func NewExchanger(cfg ExchangerConfig) (*Exchanger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Exchanger{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		scopes:       cfg.Scopes,
		httpClient:   cfg.HTTPClient,
	}, nil
}

// ExchangeToken swaps the subject token for one scoped to the audience.
// A refusal by the identity provider comes back as *DeniedError; endpoint
// failures wrap gateway.ErrExchangeUnavailable.
func (e *Exchanger) ExchangeToken(ctx context.Context, subjectToken, audience string) (string, error) {
	conf := &ExchangeConfig{
		TokenURL:     e.tokenURL,
		ClientID:     e.clientID,
		ClientSecret: e.clientSecret,
		Audience:     audience,
		Scopes:       e.scopes,
		HTTPClient:   e.httpClient,
		SubjectTokenProvider: func() (string, error) {
			if subjectToken == "" {
				return "", errors.New("no subject token available for exchange")
			}
			return subjectToken, nil
		},
	}

	token, err := conf.TokenSource(ctx).Token()
	if err != nil {
		if errors.Is(err, gateway.ErrAuthorizationDenied) {
			logger.Infow("Token exchange denied", "audience", audience)
			return "", &DeniedError{Audience: audience, Err: err}
		}
		return "", fmt.Errorf("token exchange for audience %q: %w", audience, err)
	}

	logger.Debugw("Token exchange succeeded", "audience", audience)
	return token.AccessToken, nil
}
