package tokenexchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway"
)

func TestNewExchanger_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewExchanger(ExchangerConfig{ClientID: "gateway"})
	assert.ErrorIs(t, err, gateway.ErrInvalidConfig)

	_, err = NewExchanger(ExchangerConfig{TokenURL: "https://idp.example.com/token"})
	assert.ErrorIs(t, err, gateway.ErrInvalidConfig)

	_, err = NewExchanger(ExchangerConfig{
		TokenURL: "https://idp.example.com/token",
		ClientID: "gateway",
	})
	assert.NoError(t, err)
}

func TestExchanger_ExchangeToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.Form.Get("audience") {
		case "mcp-weather":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(response{
				AccessToken:     "weather-token",
				IssuedTokenType: tokenTypeAccessToken,
				TokenType:       "Bearer",
				ExpiresIn:       300,
			})
		case "mcp-finance":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "access_denied"})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)

	exchanger, err := NewExchanger(ExchangerConfig{
		TokenURL:     srv.URL,
		ClientID:     "gateway-client",
		ClientSecret: "gateway-secret",
	})
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		token, err := exchanger.ExchangeToken(ctx, "incoming-token", "mcp-weather")
		require.NoError(t, err)
		assert.Equal(t, "weather-token", token)
	})

	t.Run("denied", func(t *testing.T) {
		_, err := exchanger.ExchangeToken(ctx, "incoming-token", "mcp-finance")
		require.Error(t, err)
		assert.ErrorIs(t, err, gateway.ErrAuthorizationDenied)

		var denied *DeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, "mcp-finance", denied.Audience)
		assert.Equal(t,
			"Token exchange denied for audience 'mcp-finance'. User lacks required access role.",
			denied.Error())
	})

	t.Run("endpoint failure", func(t *testing.T) {
		_, err := exchanger.ExchangeToken(ctx, "incoming-token", "mcp-other")
		require.Error(t, err)
		assert.ErrorIs(t, err, gateway.ErrExchangeUnavailable)
		assert.NotErrorIs(t, err, gateway.ErrAuthorizationDenied)
	})

	t.Run("empty subject token", func(t *testing.T) {
		_, err := exchanger.ExchangeToken(ctx, "", "mcp-weather")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no subject token")
	})
}

func TestExchanger_UnreachableEndpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	exchanger, err := NewExchanger(ExchangerConfig{
		TokenURL:     url,
		ClientID:     "gateway-client",
		ClientSecret: "gateway-secret",
	})
	require.NoError(t, err)

	_, err = exchanger.ExchangeToken(context.Background(), "incoming-token", "mcp-weather")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrExchangeUnavailable)
}
