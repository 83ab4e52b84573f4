package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway"
)

// fakeDownstream runs a real MCP server over streamable HTTP and records the
// Authorization headers it sees.
type fakeDownstream struct {
	srv *httptest.Server

	mu          sync.Mutex
	authHeaders []string
}

func newFakeDownstream(t *testing.T) *fakeDownstream {
	t.Helper()

	mcpServer := server.NewMCPServer("fake-weather", "0.0.1",
		server.WithToolCapabilities(false),
	)

	mcpServer.AddTool(
		mcp.NewTool("get_weather",
			mcp.WithDescription("Get current weather for a city"),
			mcp.WithString("city", mcp.Description("City name"), mcp.Required()),
		),
		func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]any)
			city, _ := args["city"].(string)
			if city == "" {
				return mcp.NewToolResultError("city is required"), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Sunny in %s", city)), nil
		},
	)

	fake := &fakeDownstream{}
	streamable := server.NewStreamableHTTPServer(mcpServer)
	fake.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		fake.authHeaders = append(fake.authHeaders, r.Header.Get("Authorization"))
		fake.mu.Unlock()
		streamable.ServeHTTP(w, r)
	}))
	t.Cleanup(fake.srv.Close)

	return fake
}

func (f *fakeDownstream) target() *gateway.ServerTarget {
	return &gateway.ServerTarget{
		Name:          "weather",
		BaseURL:       f.srv.URL,
		TransportType: "streamable-http",
	}
}

func (f *fakeDownstream) sawBearer(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.authHeaders {
		if h == "Bearer "+token {
			return true
		}
	}
	return false
}

func TestDownstream_ListTools(t *testing.T) {
	t.Parallel()

	fake := newFakeDownstream(t)
	d := NewDownstream()

	tools, err := d.ListTools(context.Background(), fake.target(), "weather-token")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_weather", tools[0].Name)
	assert.Equal(t, "Get current weather for a city", tools[0].Description)
	assert.Contains(t, string(tools[0].InputSchema), `"city"`)

	assert.True(t, fake.sawBearer("weather-token"), "bearer token should reach the downstream")
}

func TestDownstream_CallTool(t *testing.T) {
	t.Parallel()

	fake := newFakeDownstream(t)
	d := NewDownstream()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		result, err := d.CallTool(ctx, fake.target(), "get_weather",
			map[string]any{"city": "Lisbon"}, "weather-token")
		require.NoError(t, err)
		assert.False(t, result.IsError)
		require.NotEmpty(t, result.Content)
		assert.Equal(t, "text", result.Content[0].Type)
		assert.Equal(t, "Sunny in Lisbon", result.Content[0].Text)
	})

	t.Run("tool-level error passes through", func(t *testing.T) {
		result, err := d.CallTool(ctx, fake.target(), "get_weather",
			map[string]any{"city": ""}, "weather-token")
		require.NoError(t, err)
		assert.True(t, result.IsError)
		require.NotEmpty(t, result.Content)
		assert.Equal(t, "city is required", result.Content[0].Text)
	})
}

func TestDownstream_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := NewDownstream()
	target := &gateway.ServerTarget{Name: "ghost", BaseURL: url, TransportType: "streamable-http"}

	_, err := d.CallTool(context.Background(), target, "anything", nil, "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrDownstream)
}
