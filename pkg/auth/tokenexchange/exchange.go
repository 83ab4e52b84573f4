// Package tokenexchange provides OAuth 2.0 Token Exchange (RFC 8693)
// support for acquiring audience-scoped downstream tokens.
package tokenexchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway"
	"github.com/riposta/dynamic-mcp-poc/pkg/logger"
)

const (
	// grantTypeTokenExchange is the OAuth 2.0 Token Exchange grant type (RFC 8693)
	//nolint:gosec // G101: False positive - these are OAuth2 URN identifiers, not credentials
	grantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"

	// tokenTypeAccessToken indicates an OAuth 2.0 access token
	//nolint:gosec // G101: False positive - these are OAuth2 URN identifiers, not credentials
	tokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"

	// defaultHTTPTimeout is the timeout for HTTP requests
	defaultHTTPTimeout = 30 * time.Second

	// maxResponseBodySize is the maximum size for reading response bodies (1 MB)
	maxResponseBodySize = 1 << 20
)

// defaultHTTPClient is the default HTTP client used for token exchange requests.
var defaultHTTPClient = &http.Client{
	Timeout: defaultHTTPTimeout,
}

// oAuthError represents an OAuth 2.0 error response as defined in RFC 6749 Section 5.2.
type oAuthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
	StatusCode       int    `json:"-"`
}

func (e *oAuthError) String() string {
	return fmt.Sprintf("OAuth error %q (status %d)", e.Error, e.StatusCode)
}

// parseOAuthError attempts to parse an OAuth error response from the response body.
func parseOAuthError(statusCode int, body []byte) *oAuthError {
	var oauthErr oAuthError
	if err := json.Unmarshal(body, &oauthErr); err != nil {
		return nil
	}
	if oauthErr.Error == "" {
		return nil
	}
	oauthErr.StatusCode = statusCode
	return &oauthErr
}

// exchangeRequest contains the fields of an OAuth 2.0 token exchange request.
// Based on RFC 8693: https://datatracker.ietf.org/doc/html/rfc8693
type exchangeRequest struct {
	GrantType          string
	SubjectToken       string
	SubjectTokenType   string
	RequestedTokenType string

	// Optional fields
	Audience string
	Scope    []string
}

// response decodes the token endpoint's answer to an exchange request.
type response struct {
	AccessToken     string `json:"access_token"`
	IssuedTokenType string `json:"issued_token_type"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
	Scope           string `json:"scope"`
}

// clientAuthentication holds the OAuth client credentials for the exchange.
type clientAuthentication struct {
	ClientID     string
	ClientSecret string
}

// ExchangeConfig holds the configuration for a single token exchange.
type ExchangeConfig struct {
	// TokenURL is the OAuth 2.0 token endpoint URL
	TokenURL string

	// ClientID is the OAuth 2.0 client identifier
	ClientID string

	// ClientSecret is the OAuth 2.0 client secret
	ClientSecret string

	// Audience is the target audience for the exchanged token
	Audience string

	// Scopes is the list of scopes to request (optional per RFC 8693)
	Scopes []string

	// SubjectTokenProvider returns the subject token to exchange. A function
	// allows lazy retrieval (e.g. from a request context).
	SubjectTokenProvider func() (string, error)

	// HTTPClient is the HTTP client to use for token exchange requests.
	// If nil, defaultHTTPClient is used.
	HTTPClient *http.Client
}

// Validate checks if the ExchangeConfig contains all required fields.
func (c *ExchangeConfig) Validate() error {
	if c.TokenURL == "" {
		return errors.New("TokenURL is required")
	}
	if c.SubjectTokenProvider == nil {
		return errors.New("SubjectTokenProvider is required")
	}
	if c.ClientID == "" {
		return errors.New("ClientID is required")
	}
	if _, err := url.Parse(c.TokenURL); err != nil {
		return fmt.Errorf("TokenURL is not a valid URL: %w", err)
	}
	return nil
}

// TokenSource returns an oauth2.TokenSource that performs token exchange.
// The source does not cache: every Token() call hits the token endpoint.
func (c *ExchangeConfig) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, conf: c}
}

// tokenSource implements oauth2.TokenSource for token exchange.
type tokenSource struct {
	ctx  context.Context
	conf *ExchangeConfig
}

// Token performs the token exchange and returns the resulting oauth2.Token.
func (ts *tokenSource) Token() (*oauth2.Token, error) {
	conf := ts.conf

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	subjectToken, err := conf.SubjectTokenProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get subject token: %w", err)
	}

	request := &exchangeRequest{
		GrantType:          grantTypeTokenExchange,
		Audience:           conf.Audience,
		Scope:              conf.Scopes,
		RequestedTokenType: tokenTypeAccessToken,
		SubjectToken:       subjectToken,
		SubjectTokenType:   tokenTypeAccessToken,
	}

	clientAuth := clientAuthentication{
		ClientID:     conf.ClientID,
		ClientSecret: conf.ClientSecret,
	}

	resp, err := exchangeToken(ts.ctx, conf.TokenURL, request, clientAuth, conf.HTTPClient)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: server returned empty access_token", gateway.ErrExchangeUnavailable)
	}
	if resp.TokenType == "" {
		resp.TokenType = "Bearer"
	}

	token := &oauth2.Token{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
	}
	if resp.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	return token, nil
}

// exchangeToken performs the HTTP request for a token exchange.
func exchangeToken(
	ctx context.Context,
	endpoint string,
	request *exchangeRequest,
	auth clientAuthentication,
	client *http.Client,
) (*response, error) {
	data, err := buildTokenExchangeFormData(request)
	if err != nil {
		return nil, err
	}

	req, err := createTokenExchangeRequest(ctx, endpoint, data, auth)
	if err != nil {
		return nil, err
	}

	if client == nil {
		client = defaultHTTPClient
	}

	body, err := executeTokenExchangeRequest(client, req)
	if err != nil {
		return nil, err
	}

	var tokenResp response
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse token exchange response", gateway.ErrExchangeUnavailable)
	}

	return &tokenResp, nil
}

// buildTokenExchangeFormData constructs the form data per RFC 8693.
func buildTokenExchangeFormData(request *exchangeRequest) (url.Values, error) {
	data := url.Values{}

	if request.GrantType == "" {
		request.GrantType = grantTypeTokenExchange
	}
	data.Set("grant_type", request.GrantType)

	if request.SubjectToken == "" {
		return nil, errors.New("subject_token is required")
	}
	data.Set("subject_token", request.SubjectToken)

	if request.SubjectTokenType == "" {
		request.SubjectTokenType = tokenTypeAccessToken
	}
	data.Set("subject_token_type", request.SubjectTokenType)

	if request.RequestedTokenType == "" {
		request.RequestedTokenType = tokenTypeAccessToken
	}
	data.Set("requested_token_type", request.RequestedTokenType)

	if request.Audience != "" {
		data.Set("audience", request.Audience)
	}
	if len(request.Scope) > 0 {
		data.Set("scope", strings.Join(request.Scope, " "))
	}

	return data, nil
}

// createTokenExchangeRequest creates the HTTP POST request for the exchange.
// Client credentials go via HTTP Basic Auth per RFC 6749 Section 2.3.1;
// they must be URL-encoded before SetBasicAuth for OAuth2 compatibility.
func createTokenExchangeRequest(
	ctx context.Context,
	endpoint string,
	data url.Values,
	auth clientAuthentication,
) (*http.Request, error) {
	encodedData := data.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encodedData))
	if err != nil {
		return nil, fmt.Errorf("failed to create token exchange request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Length", strconv.Itoa(len(encodedData)))

	if auth.ClientID != "" && auth.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(auth.ClientID), url.QueryEscape(auth.ClientSecret))
	}

	return req, nil
}

// executeTokenExchangeRequest sends the request and returns the response body.
func executeTokenExchangeRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrExchangeUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", gateway.ErrExchangeUnavailable, err)
	}

	if err := validateResponseStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// validateResponseStatus classifies non-2xx answers. 401/403 and OAuth
// denial codes mean the identity provider refused the exchange for this
// subject; everything else is an endpoint failure.
func validateResponseStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode <= 299 {
		return nil
	}

	oauthErr := parseOAuthError(statusCode, body)
	if isDenial(statusCode, oauthErr) {
		logger.Debugw("Token exchange denied", "status", statusCode)
		if oauthErr != nil {
			return fmt.Errorf("%w: %s", gateway.ErrAuthorizationDenied, oauthErr)
		}
		return fmt.Errorf("%w: token endpoint returned status %d", gateway.ErrAuthorizationDenied, statusCode)
	}

	if oauthErr != nil {
		logger.Debugf("Token exchange OAuth error: %s (description: %s)", oauthErr.Error, oauthErr.ErrorDescription)
		return fmt.Errorf("%w: %s", gateway.ErrExchangeUnavailable, oauthErr)
	}

	logger.Debugf("Token exchange failed with status %d: %s", statusCode, string(body))
	return fmt.Errorf("%w: token endpoint returned status %d", gateway.ErrExchangeUnavailable, statusCode)
}

// isDenial reports whether the failure is an authorization refusal rather
// than an endpoint problem.
func isDenial(statusCode int, oauthErr *oAuthError) bool {
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return true
	}
	if oauthErr == nil {
		return false
	}
	switch oauthErr.Error {
	case "access_denied", "invalid_grant", "unauthorized_client":
		return true
	}
	return false
}
