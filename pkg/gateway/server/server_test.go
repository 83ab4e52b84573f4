package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/catalog"
	"github.com/riposta/dynamic-mcp-poc/pkg/gateway/session"
)

func TestNew_RequiresAuthMiddleware(t *testing.T) {
	t.Parallel()

	cat, err := catalog.New([]catalog.Server{
		{Name: "weather", URL: "http://weather.internal/mcp", Audience: "mcp-weather"},
	})
	require.NoError(t, err)

	sessions := session.NewManager(time.Minute)
	t.Cleanup(sessions.Stop)

	_, err = New(&Config{}, cat, sessions, &fakeExchanger{}, &fakeBackend{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth middleware is required")
}

func TestServer_StartAndServe(t *testing.T) {
	t.Parallel()

	cat, err := catalog.New([]catalog.Server{
		{Name: "weather", URL: "http://weather.internal/mcp", Audience: "mcp-weather"},
	})
	require.NoError(t, err)

	sessions := session.NewManager(time.Minute)

	rejectAll := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "authentication required", http.StatusUnauthorized)
		})
	}

	srv, err := New(
		&Config{Host: "127.0.0.1", Port: 0, AuthMiddleware: rejectAll},
		cat, sessions, &fakeExchanger{}, &fakeBackend{},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	baseURL := "http://" + srv.Addr()
	client := &http.Client{Timeout: 5 * time.Second}

	t.Run("health is unauthenticated", func(t *testing.T) {
		resp, err := client.Get(baseURL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var status map[string]string
		require.NoError(t, json.Unmarshal(body, &status))
		assert.Equal(t, "ok", status["status"])
	})

	t.Run("mcp endpoint sits behind the auth middleware", func(t *testing.T) {
		resp, err := client.Post(baseURL+"/mcp", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
