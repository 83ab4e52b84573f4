// Package client implements the downstream MCP client adapter. It speaks
// streamable HTTP to downstream servers using the mark3labs/mcp-go SDK,
// authenticating every request with a caller-supplied bearer token.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/riposta/dynamic-mcp-poc/pkg/gateway"
	"github.com/riposta/dynamic-mcp-poc/pkg/logger"
)

const (
	// maxResponseSize caps downstream HTTP response bodies (10 MB). The MCP
	// spec defines no size limit, so bound memory here.
	maxResponseSize = 10 * 1024 * 1024

	// httpTimeout bounds each downstream HTTP request.
	httpTimeout = 30 * time.Second

	// discoveryMaxTries bounds retries when listing tools during enable.
	discoveryMaxTries = 3
)

// Downstream implements gateway.BackendClient over streamable HTTP.
// Clients are created per call: connect, initialize, operate, close. The
// exchanged token lives only for the duration of one call.
type Downstream struct {
	// clientFactory creates MCP clients. A function so tests can stub it.
	clientFactory func(target *gateway.ServerTarget, token string) (*client.Client, error)
}

var _ gateway.BackendClient = (*Downstream)(nil)

// NewDownstream creates a downstream client adapter.
func NewDownstream() *Downstream {
	d := &Downstream{}
	d.clientFactory = defaultClientFactory
	return d
}

// roundTripperFunc is a function adapter for http.RoundTripper.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// bearerRoundTripper injects the exchanged token into downstream requests.
type bearerRoundTripper struct {
	base  http.RoundTripper
	token string
}

func (b *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	if b.token != "" {
		reqClone.Header.Set("Authorization", "Bearer "+b.token)
	}
	return b.base.RoundTrip(reqClone)
}

// defaultClientFactory builds a streamable HTTP MCP client whose transport
// injects the bearer token and caps response sizes.
func defaultClientFactory(target *gateway.ServerTarget, token string) (*client.Client, error) {
	var baseTransport http.RoundTripper = &bearerRoundTripper{
		base:  http.DefaultTransport,
		token: token,
	}

	sizeLimitedTransport := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := baseTransport.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		resp.Body = struct {
			io.Reader
			io.Closer
		}{
			Reader: io.LimitReader(resp.Body, maxResponseSize),
			Closer: resp.Body,
		}
		return resp, nil
	})

	httpClient := &http.Client{
		Transport: sizeLimitedTransport,
		Timeout:   httpTimeout,
	}

	c, err := client.NewStreamableHttpClient(
		target.BaseURL,
		transport.WithHTTPTimeout(httpTimeout),
		transport.WithHTTPBasicClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streamable-http client: %w", err)
	}
	return c, nil
}

// connect starts and initializes a client for the target.
func (d *Downstream) connect(ctx context.Context, target *gateway.ServerTarget, token string) (*client.Client, error) {
	c, err := d.clientFactory(target, token)
	if err != nil {
		return nil, wrapDownstreamError(err, target.Name, "create client")
	}

	if err := c.Start(ctx); err != nil {
		closeQuietly(c)
		return nil, wrapDownstreamError(err, target.Name, "start connection")
	}

	if _, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "mcpgate",
				Version: "0.1.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	}); err != nil {
		closeQuietly(c)
		return nil, wrapDownstreamError(err, target.Name, "initialize")
	}

	return c, nil
}

// ListTools queries the tools the target advertises. Transient failures are
// retried with exponential backoff since this runs on the enable path, where
// a cold downstream may still be warming up.
func (d *Downstream) ListTools(ctx context.Context, target *gateway.ServerTarget, token string) ([]gateway.Tool, error) {
	operation := func() ([]gateway.Tool, error) {
		tools, err := d.listToolsOnce(ctx, target, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return tools, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond

	tools, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(discoveryMaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debugw("Retrying tool discovery",
				"server", target.Name, "error", err, "next_attempt_in", next)
		}),
	)
	if err != nil {
		return nil, err
	}
	return tools, nil
}

func (d *Downstream) listToolsOnce(ctx context.Context, target *gateway.ServerTarget, token string) ([]gateway.Tool, error) {
	c, err := d.connect(ctx, target, token)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(c)

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, wrapDownstreamError(err, target.Name, "list tools")
	}

	tools := make([]gateway.Tool, 0, len(result.Tools))
	for _, tool := range result.Tools {
		schema, err := rawInputSchema(tool)
		if err != nil {
			return nil, fmt.Errorf("%w: bad input schema for tool %q on server %s: %v",
				gateway.ErrDownstream, tool.Name, target.Name, err)
		}
		tools = append(tools, gateway.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}

	logger.Debugw("Discovered downstream tools", "server", target.Name, "count", len(tools))
	return tools, nil
}

// CallTool invokes a tool on the target. Tool-level errors come back as a
// result with IsError set; transport failures wrap gateway.ErrDownstream.
func (d *Downstream) CallTool(
	ctx context.Context,
	target *gateway.ServerTarget,
	name string,
	args map[string]any,
	token string,
) (*gateway.ToolCallResult, error) {
	c, err := d.connect(ctx, target, token)
	if err != nil {
		return nil, err
	}
	defer closeQuietly(c)

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, wrapDownstreamError(err, target.Name, "call tool "+name)
	}

	content := make([]gateway.Content, 0, len(result.Content))
	for _, c := range result.Content {
		content = append(content, convertContent(c))
	}

	return &gateway.ToolCallResult{
		Content:           content,
		StructuredContent: result.StructuredContent,
		IsError:           result.IsError,
	}, nil
}

// rawInputSchema returns the tool's input schema as raw JSON, preferring the
// schema exactly as the downstream sent it.
func rawInputSchema(tool mcp.Tool) (json.RawMessage, error) {
	if len(tool.RawInputSchema) > 0 {
		return tool.RawInputSchema, nil
	}
	return json.Marshal(tool.InputSchema)
}

// convertContent maps SDK content to the domain content shape. Only text is
// forwarded with a payload; other types keep their tag so clients can tell
// something was dropped.
func convertContent(content mcp.Content) gateway.Content {
	if textContent, ok := mcp.AsTextContent(content); ok {
		return gateway.Content{Type: "text", Text: textContent.Text}
	}
	logger.Warnf("Dropping unsupported downstream content type %T", content)
	return gateway.Content{Type: "unknown"}
}

// wrapDownstreamError wraps transport failures with the downstream sentinel
// so callers can dispatch with errors.Is.
func wrapDownstreamError(err error, server, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s on server %s: %v", gateway.ErrDownstream, operation, server, err)
	}
	return fmt.Errorf("%w: failed to %s on server %s: %v", gateway.ErrDownstream, operation, server, err)
}

func closeQuietly(c *client.Client) {
	if err := c.Close(); err != nil {
		logger.Debugf("Failed to close downstream client: %v", err)
	}
}
